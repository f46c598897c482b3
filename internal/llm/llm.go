// Package llm wraps the text-completion services used for section
// proposals and prose answers. Nothing in the index depends on a completer
// being configured; callers treat every error as "no output".
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Completer produces a completion for a system and user prompt.
type Completer interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// ErrDisabled is returned by Nop.
var ErrDisabled = errors.New("completion service not configured")

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeBlock removes a surrounding markdown code fence.
func StripCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if m := codeBlockRe.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Nop is a Completer that always fails with ErrDisabled.
type Nop struct{}

func (Nop) Generate(context.Context, string, string) (string, error) {
	return "", ErrDisabled
}

// Static returns a fixed response, or Err when set. It records the last
// prompts it saw.
type Static struct {
	Response string
	Err      error

	LastSystem string
	LastUser   string
	Calls      int
}

func (s *Static) Generate(_ context.Context, system, user string) (string, error) {
	s.Calls++
	s.LastSystem, s.LastUser = system, user
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}
