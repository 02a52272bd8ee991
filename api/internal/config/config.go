package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"medmap/api/internal/match"
)

type Config struct {
	Port        string
	DatabaseURL string
	AutoMigrate bool
	CatalogFile string // YAML seed for the in-memory catalog when no database is set

	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
	GeminiAPIKey         string
	GeminiModel          string
	GeminiEmbeddingModel string
	YCOAuthToken         string
	YCFolderID           string
	OpenFDAAPIKey        string

	// openai | gemini | yandex
	VisionProvider    string
	NLPProvider       string
	KnowledgeProvider string
	EmbeddingProvider string
	EmbeddingDim      int

	TesseractLangs []string
	OCRPasses      int
	MinConsensus   int

	PassTimeout     time.Duration
	VisionTimeout   time.Duration
	ExternalTimeout time.Duration
	RequestTimeout  time.Duration

	OCRCacheTTL       time.Duration // 0 disables
	ExternalCacheTTL  time.Duration
	EmbeddingCacheTTL time.Duration

	Profile match.Profile

	LogLevel  string
	LogFormat string

	TelegramBotToken string
	WebhookURL       string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getBool(k string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

// Load reads the environment, after merging a .env file if one exists.
// Variables already set in the environment win over .env.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: resolveDSN(),
		CatalogFile: getEnv("CATALOG_FILE", ""),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
		YCOAuthToken:         getEnv("YC_OAUTH_TOKEN", ""),
		YCFolderID:           getEnv("YC_FOLDER_ID", ""),
		OpenFDAAPIKey:        getEnv("OPENFDA_API_KEY", ""),

		VisionProvider:    strings.ToLower(getEnv("VISION_PROVIDER", "openai")),
		NLPProvider:       strings.ToLower(getEnv("NLP_PROVIDER", "openai")),
		KnowledgeProvider: strings.ToLower(getEnv("KNOWLEDGE_PROVIDER", "openai")),
		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", "openai")),
		TesseractLangs:    strings.Split(getEnv("TESSERACT_LANGS", "eng"), "+"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}

	var err error
	if c.AutoMigrate, err = getBool("AUTO_MIGRATE", true); err != nil {
		return nil, err
	}
	if c.EmbeddingDim, err = getInt("EMBEDDING_DIM", 1536); err != nil {
		return nil, err
	}
	if c.OCRPasses, err = getInt("OCR_PASSES", 5); err != nil {
		return nil, err
	}
	if c.MinConsensus, err = getInt("OCR_MIN_CONSENSUS", 3); err != nil {
		return nil, err
	}
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"OCR_PASS_TIMEOUT", 45 * time.Second, &c.PassTimeout},
		{"VISION_TIMEOUT", 60 * time.Second, &c.VisionTimeout},
		{"EXTERNAL_TIMEOUT", 5 * time.Second, &c.ExternalTimeout},
		{"REQUEST_TIMEOUT", 3 * time.Minute, &c.RequestTimeout},
		{"OCR_CACHE_TTL", 24 * time.Hour, &c.OCRCacheTTL},
		{"EXTERNAL_CACHE_TTL", time.Hour, &c.ExternalCacheTTL},
		{"EMBEDDING_CACHE_TTL", time.Hour, &c.EmbeddingCacheTTL},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	c.Profile, err = match.LoadProfile(getEnv("MATCH_PROFILE", "strict"), getEnv("MATCH_PROFILE_FILE", ""))
	if err != nil {
		return nil, err
	}
	if c.OCRPasses < 1 {
		return nil, fmt.Errorf("OCR_PASSES must be at least 1, got %d", c.OCRPasses)
	}
	if c.MinConsensus < 1 {
		return nil, fmt.Errorf("OCR_MIN_CONSENSUS must be at least 1, got %d", c.MinConsensus)
	}
	return c, nil
}

// resolveDSN prefers DATABASE_URL, then assembles one from POSTGRES_*/PG*.
// Empty when neither a URL nor a password is configured.
func resolveDSN() string {
	if v := getEnv("DATABASE_URL", ""); v != "" {
		return v
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	if pass == "" {
		return ""
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(getEnv("POSTGRES_USER", "medmap"), pass),
		Host:     net.JoinHostPort(getEnv("PGHOST", "db"), getEnv("PGPORT", "5432")),
		Path:     "/" + getEnv("POSTGRES_DB", "medmap"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
