package match

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"medmap/api/internal/logger"
	"medmap/api/internal/metrics"
)

const exactRawScore = 99

// Catalog is the read-only medicine catalog.
type Catalog interface {
	// FindExact matches name and, when non-empty, form case-insensitively.
	FindExact(ctx context.Context, name, form string) (*CatalogCandidate, error)
	// Search ranks the catalog by weighted trigram and vector similarity.
	// A nil query vector means a zero vector.
	Search(ctx context.Context, q SearchQuery) ([]Candidate, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Stage is one step of the waterfall. A nil candidate means "try the next stage".
type Stage interface {
	Method() Method
	Find(ctx context.Context, m Mention) (*CatalogCandidate, error)
}

type ExactStage struct {
	Catalog Catalog
}

func (ExactStage) Method() Method { return MethodExact }

func (s ExactStage) Find(ctx context.Context, m Mention) (*CatalogCandidate, error) {
	c, err := s.Catalog.FindExact(ctx, m.SearchName(), strings.TrimSpace(m.Form))
	if err != nil || c == nil {
		return nil, err
	}
	out := *c
	out.Method = MethodExact
	out.RawScore = exactRawScore
	return &out, nil
}

// FuzzyStage searches on trigram similarity only.
type FuzzyStage struct {
	Catalog Catalog
	Profile Profile
}

func (FuzzyStage) Method() Method { return MethodFuzzy }

func (s FuzzyStage) Find(ctx context.Context, m Mention) (*CatalogCandidate, error) {
	res, err := s.Catalog.Search(ctx, SearchQuery{
		Text:         m.SearchName(),
		TrgmWeight:   1.0,
		VectorWeight: 0.0,
		Limit:        s.Profile.SearchLimit,
	})
	if err != nil || len(res) == 0 {
		return nil, err
	}
	best := preferForm(res, m.Form)
	if best.TrgmScore <= s.Profile.MinSimilarity {
		return nil, nil
	}
	out := best.CatalogCandidate
	out.Method = MethodFuzzy
	out.RawScore = best.TrgmScore * 100
	return &out, nil
}

// VectorStage blends trigram and embedding similarity.
type VectorStage struct {
	Catalog  Catalog
	Embedder Embedder
	Profile  Profile
}

func (VectorStage) Method() Method { return MethodVector }

func (s VectorStage) Find(ctx context.Context, m Mention) (*CatalogCandidate, error) {
	if s.Embedder == nil {
		return nil, nil
	}
	text := m.RawInput()
	vec, err := s.Embedder.Embed(ctx, text)
	if err != nil {
		logger.WithContext(ctx).Warn("embedding failed, skipping vector stage", "query", text, "err", err)
		return nil, nil
	}
	res, err := s.Catalog.Search(ctx, SearchQuery{
		Text:         text,
		Vector:       vec,
		TrgmWeight:   s.Profile.TrgmWeight,
		VectorWeight: s.Profile.VectorWeight,
		Limit:        s.Profile.SearchLimit,
	})
	if err != nil || len(res) == 0 {
		return nil, err
	}
	best := preferForm(res, m.Form)
	if best.CombinedScore <= s.Profile.MinSimilarity {
		return nil, nil
	}
	out := best.CatalogCandidate
	out.Method = MethodVector
	out.RawScore = best.CombinedScore * 100
	return &out, nil
}

// preferForm keeps ranking order but takes the first candidate whose form
// matches, if any does.
func preferForm(res []Candidate, form string) Candidate {
	if form = strings.TrimSpace(form); form != "" {
		for _, c := range res {
			if strings.EqualFold(strings.TrimSpace(c.Form), form) {
				return c
			}
		}
	}
	return res[0]
}

type Matcher struct {
	Stages      []Stage
	Profile     Profile
	Fallback    *Chain // optional
	Metrics     *metrics.Recorder
	Concurrency int
}

// NewMatcher wires the exact, fuzzy and vector stages in that order.
func NewMatcher(catalog Catalog, emb Embedder, profile Profile, fallback *Chain, rec *metrics.Recorder) *Matcher {
	return &Matcher{
		Stages: []Stage{
			ExactStage{Catalog: catalog},
			FuzzyStage{Catalog: catalog, Profile: profile},
			VectorStage{Catalog: catalog, Embedder: emb, Profile: profile},
		},
		Profile:     profile,
		Fallback:    fallback,
		Metrics:     rec,
		Concurrency: 4,
	}
}

// Match runs the waterfall, then the external chain. The only error is
// cancellation of ctx.
func (mt *Matcher) Match(ctx context.Context, m Mention) (Outcome, error) {
	log := logger.WithContext(ctx).With("brand", m.BrandName, "variant", m.BrandVariant, "form", m.Form)

	for _, st := range mt.Stages {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		c, err := st.Find(ctx, m)
		if err != nil {
			log.Error("match stage failed", "method", st.Method(), "err", err)
		}
		mt.Metrics.ObserveStage(string(st.Method()), c != nil)
		if c == nil {
			continue
		}
		v := mt.Profile.Validate(m, *c)
		log.Info("catalog match", "method", c.Method, "candidate", c.BrandName,
			"raw", c.RawScore, "final", v.FinalScore, "warnings", v.Warnings)
		return mt.done(Matched(m, v)), nil
	}

	if mt.Fallback != nil {
		ext, err := mt.Fallback.Resolve(ctx, m)
		if err != nil {
			return Outcome{}, err
		}
		if ext != nil {
			log.Info("externally verified", "source", ext.VerifiedBy, "candidate", ext.BrandName)
			return mt.done(ExternallyVerified(m, *ext)), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	log.Info("no match, manual resolution required")
	return mt.done(Unresolved(m)), nil
}

func (mt *Matcher) done(o Outcome) Outcome {
	mt.Metrics.ObserveOutcome(string(o.Resolution), string(o.Tier()))
	return o
}

// MatchAll matches mentions in parallel, keeping input order.
func (mt *Matcher) MatchAll(ctx context.Context, mentions []Mention) ([]Outcome, error) {
	out := make([]Outcome, len(mentions))
	g, gctx := errgroup.WithContext(ctx)
	if mt.Concurrency > 0 {
		g.SetLimit(mt.Concurrency)
	}
	for i, m := range mentions {
		g.Go(func() error {
			o, err := mt.Match(gctx, m)
			if err != nil {
				return fmt.Errorf("match %q: %w", m.BrandName, err)
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
