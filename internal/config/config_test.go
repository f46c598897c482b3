package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("JOB_TTL", "")
	t.Setenv("TOC_MAX_PAGES", "")
	t.Setenv("CHUNK_MAX_CHARS", "")
	cfg := Load()

	if cfg.WorkerCount != 4 || cfg.MaxQueueSize <= 0 {
		t.Errorf("unexpected pool defaults %d %d", cfg.WorkerCount, cfg.MaxQueueSize)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("expected 1h job ttl, got %v", cfg.JobTTL)
	}
	if cfg.TOCMaxPages != 8 || !cfg.TOCRelaxedFallback || cfg.TOCRelaxedMinLen != 12 {
		t.Errorf("unexpected toc defaults %+v", cfg.TOC())
	}
	if cfg.ChunkMaxChars != 1200 {
		t.Errorf("expected chunk size 1200, got %d", cfg.ChunkMaxChars)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("WORKER_COUNT", "7")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("JOB_TTL", "90s")
	t.Setenv("PDF_ALLOW_BINARY_FALLBACK", "true")
	t.Setenv("TOC_RELAXED_FALLBACK", "false")
	t.Setenv("TOC_VERIFY_RADIUS", "3")
	t.Setenv("LLM_RATE_PER_MIN", "30")
	cfg := Load()

	if cfg.Port != "9999" || cfg.WorkerCount != 7 || cfg.MaxUploadBytes != 1024 {
		t.Errorf("unexpected overrides %+v", cfg)
	}
	if cfg.JobTTL != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.JobTTL)
	}
	if !cfg.Parser().AllowBinaryFallback {
		t.Error("expected binary fallback enabled")
	}
	if cfg.TOC().RelaxedFallback || cfg.TOCVerifyRadius != 3 {
		t.Errorf("unexpected toc options %+v radius %d", cfg.TOC(), cfg.TOCVerifyRadius)
	}
	if cfg.LLM().RatePerMinute != 30 {
		t.Errorf("expected rate 30, got %d", cfg.LLM().RatePerMinute)
	}
}

func TestLoad_ClampsInvalid(t *testing.T) {
	t.Setenv("WORKER_COUNT", "-2")
	t.Setenv("MAX_QUEUE_SIZE", "0")
	t.Setenv("JOB_TTL", "banana")
	t.Setenv("CHUNK_MAX_CHARS", "-1")
	cfg := Load()

	if cfg.WorkerCount != 4 || cfg.MaxQueueSize != 100 {
		t.Errorf("expected clamped pool, got %d %d", cfg.WorkerCount, cfg.MaxQueueSize)
	}
	if cfg.JobTTL != time.Hour {
		t.Errorf("expected default ttl for bad duration, got %v", cfg.JobTTL)
	}
	if cfg.Chunks().MaxChars != 1200 {
		t.Errorf("expected default chunk size, got %d", cfg.Chunks().MaxChars)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"ok", Config{APIKey: "k", LogLevel: "info"}, ""},
		{"missing key", Config{LogLevel: "info"}, "DEALMAP_API_KEY"},
		{"anthropic without key", Config{APIKey: "k", LogLevel: "info", LLMProvider: "anthropic"}, "ANTHROPIC_API_KEY"},
		{"openai without key", Config{APIKey: "k", LogLevel: "info", LLMProvider: "OpenAI"}, "OPENAI_API_KEY"},
		{"unknown provider", Config{APIKey: "k", LogLevel: "info", LLMProvider: "mystery"}, "unknown LLM_PROVIDER"},
		{"bad level", Config{APIKey: "k", LogLevel: "loud"}, "LOG_LEVEL"},
		{"bad schema dir", Config{APIKey: "k", LogLevel: "info", SchemaDir: "/definitely/not/here"}, "SCHEMA_DIR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	if (Config{LogLevel: "debug"}).SlogLevel() != slog.LevelDebug {
		t.Error("expected debug level")
	}
	if (Config{LogLevel: "WARN"}).SlogLevel() != slog.LevelWarn {
		t.Error("expected warn level")
	}
	if (Config{LogLevel: "nonsense"}).SlogLevel() != slog.LevelInfo {
		t.Error("expected info for unknown level")
	}
}

func TestModelLabel(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"none", Config{}, ""},
		{"anthropic by key", Config{AnthropicKey: "a", AnthropicModel: "claude"}, "anthropic/claude"},
		{"openai by key", Config{OpenAIKey: "o", OpenAIModel: "gpt"}, "openai/gpt"},
		{"explicit provider", Config{LLMProvider: "openai", AnthropicKey: "a", OpenAIKey: "o", OpenAIModel: "gpt"}, "openai/gpt"},
		{"provider without key", Config{LLMProvider: "anthropic", OpenAIKey: "o"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ModelLabel(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
