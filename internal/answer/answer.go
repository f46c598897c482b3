// Package answer writes prose answers from quoted evidence, through a
// completion service when one is configured and from a template otherwise.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/retrieval"
)

const (
	fallbackEvidence = 6
	fallbackExcerpt  = 220
)

// Support statuses.
const (
	Supported          = "supported"
	PartiallySupported = "partially_supported"
	NotSupported       = "not_supported"
)

// Support is how well evidence covers a claim.
type Support struct {
	Status string  `json:"status"`
	Score  float64 `json:"score"`
}

// SupportCheck measures the share of the claim's distinct query tokens that
// appear in the evidence excerpts. At least 0.6 is supported and at least
// 0.3 partially supported.
func SupportCheck(claim string, evidence []docmap.Quote) Support {
	tokens := retrieval.QueryTokens(claim)
	if len(tokens) == 0 {
		return Support{Status: NotSupported}
	}
	excerpts := make([]string, len(evidence))
	for i, q := range evidence {
		excerpts[i] = q.Excerpt
	}
	hay := strings.ToLower(strings.Join(excerpts, " "))

	distinct := map[string]bool{}
	matched := 0
	for _, t := range tokens {
		if distinct[t] {
			continue
		}
		distinct[t] = true
		if strings.Contains(hay, t) {
			matched++
		}
	}
	ratio := float64(matched) / float64(len(distinct))
	s := Support{Status: NotSupported, Score: math.Round(ratio*1e4) / 1e4}
	switch {
	case ratio >= 0.6:
		s.Status = Supported
	case ratio >= 0.3:
		s.Status = PartiallySupported
	}
	return s
}

// Result is a synthesized answer.
type Result struct {
	Text     string  `json:"answer"`
	Model    string  `json:"model,omitempty"`
	Fallback bool    `json:"fallback"`
	Support  Support `json:"support"`
}

// Synthesizer turns evidence into an answer. Completer may be nil.
type Synthesizer struct {
	Completer  llm.Completer
	ModelLabel string
	Log        *slog.Logger
}

func New(c llm.Completer, modelLabel string, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synthesizer{Completer: c, ModelLabel: modelLabel, Log: log}
}

// Answer asks the completer for an answer grounded in evidence and falls
// back to a templated listing of the evidence when there is no completer
// or the call fails.
func (s *Synthesizer) Answer(ctx context.Context, question string, evidence []docmap.Quote, check Support) Result {
	if s.Completer != nil {
		text, err := s.Completer.Generate(ctx, SystemPrompt, BuildPrompt(question, evidence, check))
		if err == nil {
			if s.ModelLabel != "" {
				text = "(model: " + s.ModelLabel + ")\n" + text
			}
			return Result{Text: text, Model: s.ModelLabel, Support: check}
		}
		s.logger().Warn("answer synthesis failed, using template", "error", err)
	}
	return Result{Text: Fallback(question, evidence, check), Fallback: true, Support: check}
}

func (s *Synthesizer) logger() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// Fallback lists up to six evidence excerpts under the question, followed
// by the support outcome.
func Fallback(question string, evidence []docmap.Quote, check Support) string {
	lines := []string{
		"Question: " + question,
		"Answer basis (evidence):",
	}
	for i, q := range evidence {
		if i == fallbackEvidence {
			break
		}
		lines = append(lines, fmt.Sprintf("- [%s] (p%d) %s", q.Anchor, q.Page, docmap.Truncate(q.Excerpt, fallbackExcerpt)))
	}
	lines = append(lines, fmt.Sprintf("Consistency: %s (%s)", check.Status, formatScore(check.Score)))
	return strings.Join(lines, "\n")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
