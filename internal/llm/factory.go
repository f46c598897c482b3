package llm

import (
	"log/slog"
	"strings"
	"time"
)

// Config selects and tunes the completion provider.
type Config struct {
	Provider       string // "anthropic", "openai" or "" for whichever key is set
	AnthropicKey   string
	AnthropicModel string
	OpenAIKey      string
	OpenAIModel    string
	OpenAIBaseURL  string
	Timeout        time.Duration
	RatePerMinute  int
	MaxRetries     int
}

// New returns a guarded completer for the configured provider, or nil when
// no provider has credentials. Callers must handle the nil case.
func New(cfg Config, stats *Stats, log *slog.Logger) *Guard {
	var next Completer
	name := ""
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); {
	case provider == "anthropic" && cfg.AnthropicKey != "",
		provider == "" && cfg.AnthropicKey != "":
		next, name = NewAnthropicClient(cfg.AnthropicKey, cfg.AnthropicModel), "anthropic"
	case provider == "openai" && cfg.OpenAIKey != "",
		provider == "" && cfg.OpenAIKey != "":
		next, name = NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL), "openai"
	default:
		return nil
	}
	return NewGuard(next, GuardOptions{
		Name:          name,
		Timeout:       cfg.Timeout,
		RatePerMinute: cfg.RatePerMinute,
		MaxRetries:    cfg.MaxRetries,
		Stats:         stats,
		Log:           log,
	})
}
