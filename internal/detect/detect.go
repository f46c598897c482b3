// Package detect classifies individual text blocks: headings, defined terms
// and cross-reference mentions. Every check is independent; a block can be a
// heading, carry references and fail definition detection all at once.
package detect

import (
	"fmt"
	"regexp"
	"strings"
)

// HeadingKind distinguishes numbered sections from articles.
type HeadingKind string

const (
	KindSection HeadingKind = "section"
	KindArticle HeadingKind = "article"
)

// ArticlePrefix marks article labels in normalized section numbers.
const ArticlePrefix = "ARTICLE-"

// Heading is a detected section or article heading.
type Heading struct {
	Kind      HeadingKind
	SectionNo string
	Title     string
	Level     int
}

var (
	sectionRe        = regexp.MustCompile(`^(?:Section|SECTION)\s+(\d+(?:\.\d+)*)\s*[:.\-]?\s*(.*)$`)
	numericHeadingRe = regexp.MustCompile(`^(\d+(?:\.\d+){1,5})\s+([A-Za-z][A-Za-z0-9 ,:;()'"/&\-]{2,})$`)
	articleRe        = regexp.MustCompile(`^(?:Article|ARTICLE)\s+([IVXLCM]+|[A-Z])\s*[:.\-]?\s*(.*)$`)

	quotedDefRe   = regexp.MustCompile(`(?i)["“]([A-Za-z][A-Za-z0-9\s\-/()]+)["”]\s+means\s+(.+)`)
	unquotedDefRe = regexp.MustCompile(`(?i)^([A-Z][A-Za-z0-9\s\-/()]{2,80})\s+means\s+(.+)$`)

	sectionRefRe = regexp.MustCompile(`(?i)Section\s+(\d+(?:\.\d+)*)`)
	articleRefRe = regexp.MustCompile(`(?i)Article\s+([IVXLCM]+|[A-Z])\b`)
	definedRefRe = regexp.MustCompile(`(?i)as\s+defined\s+in\s+["“]([^"”]+)["”]`)
)

// maxUnquotedTermWords keeps ordinary sentences containing "means" from
// being read as definitions.
const maxUnquotedTermWords = 8

// DetectHeading applies the heading rules in order and returns the first
// match, or nil when the block is not a heading.
func DetectHeading(block string) *Heading {
	if m := sectionRe.FindStringSubmatch(block); m != nil {
		no := m[1]
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = "Section " + no
		}
		return &Heading{Kind: KindSection, SectionNo: no, Title: title, Level: strings.Count(no, ".") + 1}
	}
	if m := numericHeadingRe.FindStringSubmatch(block); m != nil {
		no := m[1]
		return &Heading{Kind: KindSection, SectionNo: no, Title: strings.TrimSpace(m[2]), Level: strings.Count(no, ".") + 1}
	}
	if m := articleRe.FindStringSubmatch(block); m != nil {
		no := strings.ToUpper(strings.TrimSpace(m[1]))
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = "Article " + no
		}
		return &Heading{Kind: KindArticle, SectionNo: ArticlePrefix + no, Title: title, Level: 1}
	}
	return nil
}

// IsHeading reports whether block matches any heading rule.
func IsHeading(block string) bool {
	return DetectHeading(block) != nil
}

// DetectDefinition returns the defined term and its body text. The quoted
// form may appear anywhere in the block; the unquoted form must start it.
func DetectDefinition(block string) (term, text string, ok bool) {
	if m := quotedDefRe.FindStringSubmatch(block); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
	}
	if m := unquotedDefRe.FindStringSubmatch(block); m != nil {
		term = strings.TrimSpace(m[1])
		if len(strings.Fields(term)) <= maxUnquotedTermWords {
			return term, strings.TrimSpace(m[2]), true
		}
	}
	return "", "", false
}

// RefType classifies a cross-reference mention.
type RefType string

const (
	RefSection    RefType = "section_ref"
	RefArticle    RefType = "article_ref"
	RefDefinition RefType = "definition_ref"
	RefUnknown    RefType = "unknown"
)

// Mention is a raw reference found in a block.
type Mention struct {
	Type   RefType
	Target string
}

// References returns every reference mention in block: section refs first,
// then article refs, then "as defined in" refs, each in textual order.
func References(block string) []Mention {
	var out []Mention
	for _, m := range sectionRefRe.FindAllStringSubmatch(block, -1) {
		out = append(out, Mention{Type: RefSection, Target: m[1]})
	}
	for _, m := range articleRefRe.FindAllStringSubmatch(block, -1) {
		out = append(out, Mention{Type: RefArticle, Target: m[1]})
	}
	for _, m := range definedRefRe.FindAllStringSubmatch(block, -1) {
		out = append(out, Mention{Type: RefDefinition, Target: strings.TrimSpace(m[1])})
	}
	return out
}

// NormalizeKey is the lookup form of a section number or label:
// trimmed, lowercased, spaces removed.
func NormalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// ArticleTarget converts a raw article reference ("iv") into its section
// number form ("ARTICLE-IV").
func ArticleTarget(raw string) string {
	return ArticlePrefix + strings.ToUpper(strings.TrimSpace(raw))
}

// Placeholder builds labels such as "TOC-3" for entries without a number.
func Placeholder(prefix string, idx int) string {
	return fmt.Sprintf("%s-%d", prefix, idx)
}
