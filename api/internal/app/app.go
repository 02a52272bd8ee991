// Package app assembles the pipeline from configuration. Both binaries share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"medmap/api/internal/config"
	"medmap/api/internal/embedding"
	"medmap/api/internal/extract"
	"medmap/api/internal/match"
	"medmap/api/internal/match/external"
	"medmap/api/internal/metrics"
	"medmap/api/internal/ocr"
	"medmap/api/internal/ocr/gemini"
	"medmap/api/internal/ocr/openai"
	"medmap/api/internal/ocr/preprocess"
	"medmap/api/internal/ocr/tesseract"
	"medmap/api/internal/ocr/yandex"
	"medmap/api/internal/pipeline"
	"medmap/api/internal/store"
)

type App struct {
	Pipeline *pipeline.Service
	Metrics  *metrics.Recorder
	DB       *sql.DB // nil in offline mode
}

// Ping reports database health; it always succeeds in offline mode.
func (a *App) Ping(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	return a.DB.PingContext(ctx)
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

type engines struct {
	openai *openai.Engine
	gemini *gemini.Engine
	yandex *yandex.Engine
}

func newEngines(cfg *config.Config) engines {
	e := engines{}
	if cfg.OpenAIAPIKey != "" {
		e.openai = openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		e.openai.BaseURL = cfg.OpenAIBaseURL
		e.openai.EmbeddingModel = cfg.OpenAIEmbeddingModel
	}
	if cfg.GeminiAPIKey != "" {
		e.gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
		e.gemini.EmbeddingModel = cfg.GeminiEmbeddingModel
	}
	if cfg.YCOAuthToken != "" && cfg.YCFolderID != "" {
		e.yandex = yandex.New(cfg.YCOAuthToken, cfg.YCFolderID)
	}
	return e
}

func (e engines) vision(name string) (ocr.VisionTranscriber, error) {
	switch name {
	case "openai":
		if e.openai != nil {
			return e.openai, nil
		}
	case "gemini":
		if e.gemini != nil {
			return e.gemini, nil
		}
	case "yandex":
		if e.yandex != nil {
			return e.yandex, nil
		}
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", name)
	}
	return nil, fmt.Errorf("vision provider %q is not configured", name)
}

type languageModel interface {
	extract.Extractor
	external.Verifier
}

func (e engines) model(name string) (languageModel, error) {
	switch name {
	case "openai":
		if e.openai != nil {
			return e.openai, nil
		}
	case "gemini":
		if e.gemini != nil {
			return e.gemini, nil
		}
	default:
		return nil, fmt.Errorf("unknown language model provider %q", name)
	}
	return nil, fmt.Errorf("language model provider %q is not configured", name)
}

func (e engines) embedder(name string) (embedding.Embedder, error) {
	switch name {
	case "openai":
		if e.openai != nil {
			return e.openai, nil
		}
	case "gemini":
		if e.gemini != nil {
			return e.gemini, nil
		}
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}
	return nil, fmt.Errorf("embedding provider %q is not configured", name)
}

// New builds the pipeline. With no database configured it runs offline on
// the in-memory catalog, without the audit log and OCR cache.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	a := &App{Metrics: rec}
	svc := &pipeline.Service{
		Defaults: ocr.Options{Passes: cfg.OCRPasses, MinConsensus: cfg.MinConsensus},
		CacheTTL: cfg.OCRCacheTTL,
		Metrics:  rec,
	}

	var catalog match.Catalog
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("db connected", "dsn", store.SafeDSN(cfg.DatabaseURL))
		if cfg.AutoMigrate {
			if err := store.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		a.DB = db
		repo := store.NewCatalogRepo(db)
		repo.Dim = cfg.EmbeddingDim
		catalog = repo
		svc.Audit = store.NewAuditRepo(db)
		if cfg.OCRCacheTTL > 0 {
			svc.Cache = store.NewOCRCacheRepo(db)
		}
	} else {
		mem := store.NewMemoryCatalog()
		if cfg.CatalogFile != "" {
			var err error
			if mem, err = store.LoadMemoryCatalog(cfg.CatalogFile); err != nil {
				return nil, err
			}
		}
		slog.Warn("no database configured, using in-memory catalog", "medicines", mem.Len())
		catalog = mem
	}

	eng := newEngines(cfg)
	vision, err := eng.vision(cfg.VisionProvider)
	if err != nil {
		return nil, a.fail(err)
	}
	nlp, err := eng.model(cfg.NLPProvider)
	if err != nil {
		return nil, a.fail(err)
	}
	knowledge, err := eng.model(cfg.KnowledgeProvider)
	if err != nil {
		return nil, a.fail(err)
	}
	base, err := eng.embedder(cfg.EmbeddingProvider)
	if err != nil {
		return nil, a.fail(err)
	}
	var emb match.Embedder
	if base != nil {
		emb = embedding.NewCached(embedding.NewGuarded(base, cfg.EmbeddingDim), cfg.EmbeddingCacheTTL)
	}

	th := ocr.DefaultThresholds()
	th.VisionTimeout = cfg.VisionTimeout
	svc.OCR = &ocr.Service{
		Collector: &ocr.Collector{
			Preprocess:  preprocess.New(),
			Recognizer:  tesseract.New(cfg.TesseractLangs...),
			PassTimeout: cfg.PassTimeout,
			Metrics:     rec,
		},
		Policy:  &ocr.Policy{Thresholds: th, Vision: vision},
		Metrics: rec,
	}
	svc.Extractor = nlp

	chain := match.NewChain(cfg.Profile, cfg.ExternalTimeout, rec,
		external.NewMemo(external.NewOpenFDA(cfg.OpenFDAAPIKey), cfg.ExternalCacheTTL),
		external.NewMemo(external.NewRxNorm(), cfg.ExternalCacheTTL),
		external.NewMemo(external.NewKnowledge(knowledge), cfg.ExternalCacheTTL),
	)
	svc.Matcher = match.NewMatcher(catalog, emb, cfg.Profile, chain, rec)

	a.Pipeline = svc
	slog.Info("pipeline ready",
		"profile", cfg.Profile.Name, "vision", cfg.VisionProvider, "nlp", cfg.NLPProvider,
		"knowledge", cfg.KnowledgeProvider, "embedding", cfg.EmbeddingProvider, "passes", cfg.OCRPasses)
	return a, nil
}

func (a *App) fail(err error) error {
	_ = a.Close()
	return err
}
