package pipeline

import (
	"strconv"
	"strings"

	"github.com/dgallion1/dealmap/internal/detect"
	"github.com/dgallion1/dealmap/internal/docmap"
)

const (
	summaryChars      = 320
	keyEventChars     = 220
	maxKeyEvents      = 5
	genericTitleChars = 100
)

var eventTokens = []string{
	"covenant", "default", "maturity", "interest", "payment",
	"ratio", "margin", "liquidity", "leverage",
}

// genericSections produces one section per page, titled by the page's
// first block.
func genericSections(doc *docmap.Document, pa *pageAnchors) []docmap.Section {
	out := make([]docmap.Section, 0, doc.TotalPages)
	for page := 1; page <= doc.TotalPages; page++ {
		blocks := pa.page(page)
		title := ""
		if len(blocks) > 0 {
			title = strings.TrimSpace(docmap.Truncate(blocks[0].Text, genericTitleChars))
		}
		if title == "" {
			title = "Page " + strconv.Itoa(page)
		}
		no := "P" + strconv.Itoa(page)
		out = append(out, docmap.Section{
			ID:         doc.ID + ":section:" + no + ":generic",
			DocumentID: doc.ID,
			SectionNo:  no,
			Title:      title,
			Level:      1,
			PageStart:  page,
			PageEnd:    page,
			BlockStart: 1,
			Anchor:     pa.first(page),
			Source:     docmap.SourceGeneric,
		})
	}
	return out
}

// textSection is the section a heading block declares.
func textSection(a docmap.Anchor, h *detect.Heading) docmap.Section {
	return docmap.Section{
		ID:         a.DocumentID + ":section:" + h.SectionNo + ":text:" + strconv.Itoa(a.Page) + ":" + strconv.Itoa(a.Block),
		DocumentID: a.DocumentID,
		SectionNo:  h.SectionNo,
		Title:      h.Title,
		Level:      h.Level,
		PageStart:  a.Page,
		PageEnd:    a.Page,
		BlockStart: a.Block,
		Anchor:     a.ID,
		Source:     docmap.SourceText,
	}
}

// outlineSections turns bookmarks into sections anchored at the first
// block of their page. Entries pointing outside the document are skipped.
func outlineSections(doc *docmap.Document, pa *pageAnchors) []docmap.Section {
	var out []docmap.Section
	for i, e := range doc.Outline {
		idx := i + 1
		if e.Page < 1 || e.Page > doc.TotalPages {
			continue
		}
		raw := strings.TrimSpace(e.Title)
		no := detect.Placeholder(docmap.OutlinePrefix, idx)
		title := raw
		if h := detect.DetectHeading(raw); h != nil {
			no, title = h.SectionNo, h.Title
		}
		out = append(out, docmap.Section{
			ID:         doc.ID + ":section:" + no + ":outline:" + strconv.Itoa(idx),
			DocumentID: doc.ID,
			SectionNo:  no,
			Title:      title,
			Level:      max(e.Level, 1),
			PageStart:  e.Page,
			PageEnd:    e.Page,
			BlockStart: 1,
			Anchor:     pa.first(e.Page),
			Source:     docmap.SourceOutline,
		})
	}
	return out
}

// pick keeps one section per (document, normalized number). The winner is
// the higher-priority source, then the lower page. Output keeps the order
// in which keys were first seen.
func pick(sections []docmap.Section) []docmap.Section {
	type key struct{ doc, no string }
	pos := make(map[key]int, len(sections))
	var out []docmap.Section
	for _, s := range sections {
		k := key{s.DocumentID, s.Key()}
		i, ok := pos[k]
		if !ok {
			pos[k] = len(out)
			out = append(out, s)
			continue
		}
		if s.Outranks(out[i]) {
			out[i] = s
		}
	}
	return out
}

// inferPageEnds sets each section's PageEnd to the page before the next
// section of its document starts, never below its own start. The last
// section runs to the end of the document. sections must be sorted.
func inferPageEnds(sections []docmap.Section, totals map[string]int) {
	for i := range sections {
		s := &sections[i]
		next := -1
		for j := i + 1; j < len(sections); j++ {
			if sections[j].DocumentID == s.DocumentID {
				next = j
				break
			}
		}
		if next >= 0 {
			s.PageEnd = max(s.PageStart, sections[next].PageStart-1)
			continue
		}
		if total, ok := totals[s.DocumentID]; ok {
			s.PageEnd = max(total, s.PageStart)
		} else {
			s.PageEnd = s.PageStart
		}
	}
}

// summarize returns the first 320 characters of the section's non-heading
// lines and up to five lines mentioning a covenant-style term.
func summarize(s docmap.Section, pa *pageAnchors, total int) (string, []string) {
	start := max(1, s.PageStart)
	end := min(total, s.PageEnd)

	var lines []string
	for page := start; page <= end; page++ {
		for _, a := range pa.page(page) {
			if detect.IsHeading(a.Text) {
				continue
			}
			lines = append(lines, a.Text)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}

	var events []string
	for _, line := range lines {
		low := strings.ToLower(line)
		for _, tok := range eventTokens {
			if strings.Contains(low, tok) {
				events = append(events, docmap.Truncate(line, keyEventChars))
				break
			}
		}
		if len(events) >= maxKeyEvents {
			break
		}
	}
	return docmap.Truncate(strings.Join(lines, " "), summaryChars), events
}
