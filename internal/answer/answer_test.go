package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/llm"
)

func quotes(n int) []docmap.Quote {
	out := make([]docmap.Quote, n)
	for i := range out {
		out[i] = docmap.Quote{
			Anchor:     fmt.Sprintf("doc-1:p%d:b1", i+1),
			DocumentID: "doc-1",
			Page:       i + 1,
			Excerpt:    fmt.Sprintf("excerpt %d", i+1),
		}
	}
	return out
}

func TestSupportCheck(t *testing.T) {
	evidence := []docmap.Quote{{Excerpt: "The Maturity Date is March 31, 2030."}}
	tests := []struct {
		claim  string
		status string
		score  float64
	}{
		{"maturity march 2030", Supported, 1},
		{"maturity march extension options leverage", PartiallySupported, 0.4},
		{"leverage covenant breach", NotSupported, 0},
		{"what is the date", NotSupported, 0},
		{"maturity maturity leverage", PartiallySupported, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.claim, func(t *testing.T) {
			got := SupportCheck(tt.claim, evidence)
			if got.Status != tt.status || got.Score != tt.score {
				t.Errorf("expected %s %v, got %s %v", tt.status, tt.score, got.Status, got.Score)
			}
		})
	}
}

func TestAnswer_UsesCompleter(t *testing.T) {
	c := &llm.Static{Response: "The maturity is March 31, 2030 [doc-1:p1:b1]."}
	s := New(c, "anthropic/claude", nil)
	check := Support{Status: Supported, Score: 1}
	res := s.Answer(context.Background(), "When is maturity?", quotes(10), check)

	if res.Fallback {
		t.Fatal("expected completer answer")
	}
	if !strings.HasPrefix(res.Text, "(model: anthropic/claude)\n") {
		t.Errorf("expected model label prefix, got %q", res.Text)
	}
	if c.LastSystem != SystemPrompt {
		t.Errorf("unexpected system prompt %q", c.LastSystem)
	}
	if strings.Count(c.LastUser, "] page ") != 8 {
		t.Errorf("expected eight evidence lines in prompt, got %q", c.LastUser)
	}
	if !strings.Contains(c.LastUser, "Consistency check: supported (1)") {
		t.Errorf("expected consistency line in prompt, got %q", c.LastUser)
	}
}

func TestAnswer_FallsBack(t *testing.T) {
	check := Support{Status: PartiallySupported, Score: 0.4}
	for name, c := range map[string]llm.Completer{
		"no completer": nil,
		"failure":      &llm.Static{Err: errors.New("unavailable")},
	} {
		t.Run(name, func(t *testing.T) {
			res := New(c, "", nil).Answer(context.Background(), "When is maturity?", quotes(9), check)
			if !res.Fallback {
				t.Fatal("expected fallback answer")
			}
			lines := strings.Split(res.Text, "\n")
			if lines[0] != "Question: When is maturity?" || lines[1] != "Answer basis (evidence):" {
				t.Errorf("unexpected header %q", lines[:2])
			}
			if len(lines) != 2+6+1 {
				t.Errorf("expected six evidence lines, got %d lines", len(lines))
			}
			if lines[2] != "- [doc-1:p1:b1] (p1) excerpt 1" {
				t.Errorf("unexpected evidence line %q", lines[2])
			}
			if lines[len(lines)-1] != "Consistency: partially_supported (0.4)" {
				t.Errorf("unexpected consistency line %q", lines[len(lines)-1])
			}
		})
	}
}

func TestFallback_TruncatesExcerpts(t *testing.T) {
	q := []docmap.Quote{{Anchor: "a", Page: 1, Excerpt: strings.Repeat("x", 500)}}
	text := Fallback("q", q, Support{Status: NotSupported})
	line := strings.Split(text, "\n")[2]
	if len(line) != len("- [a] (p1) ")+220 {
		t.Errorf("expected excerpt cut to 220 characters, got %d", len(line))
	}
}
