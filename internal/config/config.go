package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/dealmap/internal/chunker"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/parser"
	"github.com/dgallion1/dealmap/internal/toc"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	LogLevel string

	// Completion service
	LLMProvider    string
	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	LLMTimeout     time.Duration
	LLMRatePerMin  int
	LLMMaxRetries  int

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentDeals int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext   bool
	PDFAllowBinaryFallback bool

	// TOC discovery and verification
	TOCMaxPages        int
	TOCVerifyRadius    int
	TOCRelaxedFallback bool
	TOCRelaxedMinLen   int

	// Retrieval
	ChunkMaxChars int

	// Extraction schema overrides
	SchemaDir string
}

// Load reads an optional .env file and then the environment.
func Load() Config {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	tocDefaults := toc.DefaultOptions()
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("DEALMAP_API_KEY"),

		LogLevel: envOr("LOG_LEVEL", "info"),

		LLMProvider:    os.Getenv("LLM_PROVIDER"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel: envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    envOr("OPENAI_MODEL", "gpt-4.1-mini"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		LLMTimeout:     envDuration("LLM_TIMEOUT", 60*time.Second),
		LLMRatePerMin:  envInt("LLM_RATE_PER_MIN", 0),
		LLMMaxRetries:  envInt("LLM_MAX_RETRIES", 3),

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentDeals: envInt("MAX_CONCURRENT_DEALS", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext:   envBool("PDF_FALLBACK_PDFTOTEXT", true),
		PDFAllowBinaryFallback: envBool("PDF_ALLOW_BINARY_FALLBACK", false),

		TOCMaxPages:        envInt("TOC_MAX_PAGES", tocDefaults.MaxPages),
		TOCVerifyRadius:    envInt("TOC_VERIFY_RADIUS", toc.DefaultRadius),
		TOCRelaxedFallback: envBool("TOC_RELAXED_FALLBACK", tocDefaults.RelaxedFallback),
		TOCRelaxedMinLen:   envInt("TOC_RELAXED_MIN_LEN", tocDefaults.MinRelaxedLen),

		ChunkMaxChars: envInt("CHUNK_MAX_CHARS", chunker.DefaultOptions().MaxChars),

		SchemaDir: os.Getenv("SCHEMA_DIR"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentDeals < 0 {
		cfg.MaxConcurrentDeals = 0
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	if cfg.LLMMaxRetries < 0 {
		cfg.LLMMaxRetries = 0
	}
	if cfg.TOCMaxPages <= 0 {
		cfg.TOCMaxPages = tocDefaults.MaxPages
	}
	if cfg.TOCVerifyRadius < 0 {
		cfg.TOCVerifyRadius = toc.DefaultRadius
	}
	if cfg.TOCRelaxedMinLen <= 0 {
		cfg.TOCRelaxedMinLen = tocDefaults.MinRelaxedLen
	}
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = chunker.DefaultOptions().MaxChars
	}

	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("DEALMAP_API_KEY is required"))
	}
	switch strings.ToLower(c.LLMProvider) {
	case "":
	case "anthropic":
		if c.AnthropicKey == "" {
			errs = append(errs, fmt.Errorf("LLM_PROVIDER=anthropic requires ANTHROPIC_API_KEY"))
		}
	case "openai":
		if c.OpenAIKey == "" {
			errs = append(errs, fmt.Errorf("LLM_PROVIDER=openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.SchemaDir != "" {
		if fi, err := os.Stat(c.SchemaDir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("SCHEMA_DIR %q is not a directory", c.SchemaDir))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL to a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", s)
	}
	return l, nil
}

// LLM returns the completion service settings.
func (c Config) LLM() llm.Config {
	return llm.Config{
		Provider:       c.LLMProvider,
		AnthropicKey:   c.AnthropicKey,
		AnthropicModel: c.AnthropicModel,
		OpenAIKey:      c.OpenAIKey,
		OpenAIModel:    c.OpenAIModel,
		OpenAIBaseURL:  c.OpenAIBaseURL,
		Timeout:        c.LLMTimeout,
		RatePerMinute:  c.LLMRatePerMin,
		MaxRetries:     c.LLMMaxRetries,
	}
}

// ModelLabel names the provider and model that would serve completions,
// or "" when none is configured.
func (c Config) ModelLabel() string {
	switch p := strings.ToLower(c.LLMProvider); {
	case (p == "anthropic" || p == "") && c.AnthropicKey != "":
		return "anthropic/" + c.AnthropicModel
	case (p == "openai" || p == "") && c.OpenAIKey != "":
		return "openai/" + c.OpenAIModel
	}
	return ""
}

// Parser returns the document source options.
func (c Config) Parser() parser.Options {
	return parser.Options{
		FallbackPdftotext:   c.PDFFallbackPdftotext,
		AllowBinaryFallback: c.PDFAllowBinaryFallback,
	}
}

// TOC returns the discovery options.
func (c Config) TOC() toc.Options {
	return toc.Options{
		MaxPages:        c.TOCMaxPages,
		RelaxedFallback: c.TOCRelaxedFallback,
		MinRelaxedLen:   c.TOCRelaxedMinLen,
	}
}

// Chunks returns the chunking options.
func (c Config) Chunks() chunker.Options {
	return chunker.Options{MaxChars: c.ChunkMaxChars}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
