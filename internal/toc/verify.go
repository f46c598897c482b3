package toc

import (
	"strings"

	"github.com/dgallion1/dealmap/internal/detect"
	"github.com/dgallion1/dealmap/internal/docmap"
)

// DefaultRadius is how many pages either side of the predicted page are
// searched for the heading.
const DefaultRadius = 2

// titlePrefixLen is how much of a TOC title must appear in the heading.
const titlePrefixLen = 25

// BlockSource returns the anchors of one page in block order.
type BlockSource func(page int) []docmap.Anchor

type pageHeading struct {
	anchor docmap.Anchor
	key    string
	title  string
}

// Verify checks every toc section against the headings near its predicted
// page. A heading matches when its normalized number equals the section's
// or its title contains the first 25 characters of the section title.
// Blocks that are themselves TOC lines are not headings here. The
// closest match wins, the earliest page and block on ties. Matched sections
// move to the heading's page and anchor and are marked verified (same
// page) or corrected; the rest are marked unverified. Sections from other
// sources pass through unchanged. The input slice is not modified.
func Verify(sections []docmap.Section, blocks BlockSource, radius int) []docmap.Section {
	if radius < 0 {
		radius = DefaultRadius
	}
	cache := make(map[int][]pageHeading)
	headingsOn := func(page int) []pageHeading {
		if hs, ok := cache[page]; ok {
			return hs
		}
		var hs []pageHeading
		for _, a := range blocks(page) {
			// A TOC line such as "Section 6.02 Prepayment .... 4" also
			// parses as a heading; it is never the section itself.
			if tocLineRe.MatchString(a.Text) {
				continue
			}
			if h := detect.DetectHeading(a.Text); h != nil {
				hs = append(hs, pageHeading{anchor: a, key: detect.NormalizeKey(h.SectionNo), title: strings.ToLower(h.Title)})
			}
		}
		cache[page] = hs
		return hs
	}

	out := make([]docmap.Section, len(sections))
	for i, s := range sections {
		out[i] = s
		if s.Source != docmap.SourceTOC {
			continue
		}
		predicted := s.PageStart
		targetNo := s.Key()
		targetTitle := prefix(strings.ToLower(s.Title), titlePrefixLen)

		var best *pageHeading
		bestDist := -1
		for page := max(1, predicted-radius); page <= predicted+radius; page++ {
			dist := page - predicted
			if dist < 0 {
				dist = -dist
			}
			for _, h := range headingsOn(page) {
				noMatch := targetNo != "" && targetNo == h.key
				titleMatch := targetTitle != "" && strings.Contains(h.title, targetTitle)
				if !noMatch && !titleMatch {
					continue
				}
				if best == nil || dist < bestDist {
					hh := h
					best, bestDist = &hh, dist
				}
			}
		}

		if best == nil {
			out[i].Verification = docmap.Unverified
			continue
		}
		out[i].Anchor = best.anchor.ID
		out[i].PageStart = best.anchor.Page
		out[i].BlockStart = best.anchor.Block
		if best.anchor.Page != predicted {
			out[i].Verification = docmap.Corrected
		} else {
			out[i].Verification = docmap.Verified
		}
	}
	return out
}

// prefix returns the first n runes of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
