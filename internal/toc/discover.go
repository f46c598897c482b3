// Package toc finds table-of-contents entries in the leading pages of a
// document, checks their page numbers against the headings actually on the
// page, and asks a completion service for a section list when a document
// has no table of contents at all.
package toc

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dgallion1/dealmap/internal/detect"
	"github.com/dgallion1/dealmap/internal/docmap"
)

// Options controls discovery.
type Options struct {
	// MaxPages is how many leading pages are scanned.
	MaxPages int
	// RelaxedFallback accepts "Section 4.01 Title 17" lines without dot
	// leaders. It can misfire on prose ending in a number.
	RelaxedFallback bool
	// MinRelaxedLen is the shortest line the relaxed pattern considers.
	MinRelaxedLen int
}

// DefaultOptions returns the standard discovery settings.
func DefaultOptions() Options {
	return Options{MaxPages: 8, RelaxedFallback: true, MinRelaxedLen: 12}
}

// Candidate is one table-of-contents line.
type Candidate struct {
	SectionNo  string
	Title      string
	TOCPage    int
	TargetPage int
}

var (
	tocLineRe = regexp.MustCompile(`(?i)^(?P<label>(?:Section\s+)?\d+(?:\.\d+)*|Article\s+[IVXLCM]+)?\s*(?P<title>[A-Za-z].*?)\s+\.{2,}\s*(?P<page>\d{1,4})$`)
	relaxedRe = regexp.MustCompile(`^(?P<title>[A-Za-z].*?)\s+(?P<page>\d{1,4})$`)
)

// Discover scans the leading pages for TOC lines. Candidates sharing a
// (label or title, title, target page) key collapse to the last one seen,
// kept at the position of the first.
func Discover(pages []string, opts Options) []Candidate {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 8
	}
	var found []Candidate
	for i := 0; i < len(pages) && i < opts.MaxPages; i++ {
		for _, raw := range strings.Split(pages[i], "\n") {
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			if c, ok := matchLine(line, i+1); ok {
				found = append(found, c)
				continue
			}
			if opts.RelaxedFallback && len(line) > opts.MinRelaxedLen {
				if c, ok := matchRelaxed(line, i+1); ok {
					found = append(found, c)
				}
			}
		}
	}
	return dedup(found)
}

func matchLine(line string, tocPage int) (Candidate, bool) {
	m := tocLineRe.FindStringSubmatch(line)
	if m == nil {
		return Candidate{}, false
	}
	page, err := strconv.Atoi(m[tocLineRe.SubexpIndex("page")])
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{
		SectionNo:  labelToSectionNo(strings.TrimSpace(m[tocLineRe.SubexpIndex("label")])),
		Title:      strings.TrimSpace(m[tocLineRe.SubexpIndex("title")]),
		TOCPage:    tocPage,
		TargetPage: page,
	}, true
}

func matchRelaxed(line string, tocPage int) (Candidate, bool) {
	m := relaxedRe.FindStringSubmatch(line)
	if m == nil {
		return Candidate{}, false
	}
	title := strings.TrimSpace(m[relaxedRe.SubexpIndex("title")])
	low := strings.ToLower(title)
	if !strings.HasPrefix(low, "section ") && !strings.HasPrefix(low, "article ") {
		return Candidate{}, false
	}
	page, err := strconv.Atoi(m[relaxedRe.SubexpIndex("page")])
	if err != nil {
		return Candidate{}, false
	}
	c := Candidate{Title: title, TOCPage: tocPage, TargetPage: page}
	if h := detect.DetectHeading(title); h != nil {
		c.SectionNo = h.SectionNo
		c.Title = h.Title
	}
	return c, true
}

// labelToSectionNo maps "Section 2.01" to "2.01" and "Article iv" to
// "ARTICLE-IV". Bare numbers pass through.
func labelToSectionNo(label string) string {
	if label == "" {
		return ""
	}
	fields := strings.Fields(label)
	switch strings.ToLower(fields[0]) {
	case "section":
		if len(fields) > 1 {
			return fields[1]
		}
		return ""
	case "article":
		if len(fields) > 1 {
			return detect.ArticleTarget(fields[1])
		}
		return ""
	}
	return label
}

type dedupKey struct {
	label string
	title string
	page  int
}

func dedup(found []Candidate) []Candidate {
	pos := make(map[dedupKey]int)
	var out []Candidate
	for _, c := range found {
		label := c.SectionNo
		if label == "" {
			label = c.Title
		}
		k := dedupKey{detect.NormalizeKey(label), strings.ToLower(c.Title), c.TargetPage}
		if i, ok := pos[k]; ok {
			out[i] = c
			continue
		}
		pos[k] = len(out)
		out = append(out, c)
	}
	return out
}

// Sections turns candidates into provisional toc sections. Entries with
// no label get a "TOC-{n}" placeholder number.
func Sections(docID string, candidates []Candidate) []docmap.Section {
	out := make([]docmap.Section, 0, len(candidates))
	for i, c := range candidates {
		idx := i + 1
		no := c.SectionNo
		if no == "" {
			no = detect.Placeholder(docmap.TOCPrefix, idx)
		}
		level := strings.Count(no, ".") + 1
		if strings.HasPrefix(no, detect.ArticlePrefix) {
			level = 1
		}
		out = append(out, docmap.Section{
			ID:         docID + ":section:" + no + ":toc:" + strconv.Itoa(idx),
			DocumentID: docID,
			SectionNo:  no,
			Title:      c.Title,
			Level:      level,
			PageStart:  c.TargetPage,
			PageEnd:    c.TargetPage,
			BlockStart: 1,
			Source:     docmap.SourceTOC,
		})
	}
	return out
}
