package toc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/dealmap/internal/docmap"
	"github.com/dgallion1/dealmap/internal/llm"
)

const (
	previewPages = 12
	previewChars = 1200
)

const proposeSystemPrompt = "Extract a basic legal-document table of contents from page previews. " +
	"Return JSON array only. Each item must include: " +
	"section_no, title, page_start, level."

// Propose asks the completer for a section list for a document with no
// table of contents. Failures of any kind yield no sections; they are
// logged, never returned.
func Propose(ctx context.Context, c llm.Completer, doc *docmap.Document, log *slog.Logger) []docmap.Section {
	if c == nil || doc == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	previews := Previews(doc.Pages)
	if len(previews) == 0 {
		return nil
	}
	user := "Document previews:\n" + strings.Join(previews, "\n\n") + "\n\nReturn strictly JSON array, no markdown."

	raw, err := c.Generate(ctx, proposeSystemPrompt, user)
	if err != nil {
		log.Warn("section proposal failed", "doc_id", doc.ID, "error", err)
		return nil
	}
	rows, err := ParseProposals(raw)
	if err != nil {
		log.Warn("section proposal unparseable", "doc_id", doc.ID, "error", err)
		return nil
	}

	total := max(doc.TotalPages, 1)
	out := make([]docmap.Section, 0, len(rows))
	for i, row := range rows {
		idx := i + 1
		no := stringField(row["section_no"])
		if no == "" {
			no = fmt.Sprintf("%s-%d", docmap.LLMPrefix, idx)
		}
		title := stringField(row["title"])
		if title == "" {
			title = "Section " + no
		}
		page := min(max(intField(row["page_start"]), 1), total)
		out = append(out, docmap.Section{
			ID:         doc.ID + ":section:" + no + ":llm:" + strconv.Itoa(idx),
			DocumentID: doc.ID,
			SectionNo:  no,
			Title:      title,
			Level:      max(intField(row["level"]), 1),
			PageStart:  page,
			PageEnd:    page,
			BlockStart: 1,
			Source:     docmap.SourceLLM,
		})
	}
	log.Info("sections proposed", "doc_id", doc.ID, "count", len(out))
	return out
}

// Previews renders the leading pages as "[PAGE n] text" with whitespace
// collapsed. Blank pages are skipped but still counted.
func Previews(pages []string) []string {
	var out []string
	for i, text := range pages {
		if i >= previewPages {
			break
		}
		clean := strings.Join(strings.Fields(text), " ")
		if clean == "" {
			continue
		}
		if r := []rune(clean); len(r) > previewChars {
			clean = string(r[:previewChars])
		}
		out = append(out, fmt.Sprintf("[PAGE %d] %s", i+1, clean))
	}
	return out
}

var jsonArrayRe = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)

// ParseProposals recovers a JSON array of objects from a completion: the
// whole text first, then the text inside a code fence, then the first
// bracketed run of objects. Non-object items are dropped.
func ParseProposals(raw string) ([]map[string]any, error) {
	candidates := []string{strings.TrimSpace(raw), llm.StripCodeBlock(raw)}
	if m := jsonArrayRe.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}
	var lastErr error
	for _, c := range candidates {
		var items []any
		if err := json.Unmarshal([]byte(c), &items); err != nil {
			lastErr = err
			continue
		}
		rows := make([]map[string]any, 0, len(items))
		for _, it := range items {
			if obj, ok := it.(map[string]any); ok {
				rows = append(rows, obj)
			}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("no json array in completion: %w", lastErr)
}

func stringField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, _ := json.Marshal(x)
		return strings.TrimSpace(string(b))
	}
}

// intField reads a whole number from a JSON value; anything else is 1.
func intField(v any) int {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 1
		}
		return int(x)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return 1
}
