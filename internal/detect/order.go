package detect

import (
	"regexp"
	"strconv"
	"strings"
)

var romanValues = map[rune]int{'I': 1, 'V': 5, 'X': 10, 'L': 50, 'C': 100, 'D': 500, 'M': 1000}

// RomanValue converts a Roman numeral using subtractive summation.
// Unknown characters count as zero, so "B" yields 0.
func RomanValue(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	total, prev := 0, 0
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0; i-- {
		v := romanValues[runes[i]]
		if v < prev {
			total -= v
		} else {
			total += v
			prev = v
		}
	}
	return total
}

// Label groups, in sort order.
const (
	groupArticle = iota
	groupNumeric
	groupOther
)

const otherRank = 1_000_000_000

var digitsRe = regexp.MustCompile(`\d+`)

// SortKey is the comparable form of a section number.
type SortKey struct {
	group int
	parts []int
	raw   string
}

// KeyOf computes the sort key for a section number. Articles come first by
// Roman value, then anything carrying digits by its integer components, then
// the rest lexically.
func KeyOf(sectionNo string) SortKey {
	if rest, ok := strings.CutPrefix(sectionNo, ArticlePrefix); ok {
		return SortKey{group: groupArticle, parts: []int{RomanValue(rest)}, raw: sectionNo}
	}
	if nums := digitsRe.FindAllString(sectionNo, -1); len(nums) > 0 {
		parts := make([]int, 0, len(nums))
		for _, n := range nums {
			v, err := strconv.Atoi(n)
			if err != nil {
				v = otherRank
			}
			parts = append(parts, v)
		}
		return SortKey{group: groupNumeric, parts: parts, raw: sectionNo}
	}
	return SortKey{group: groupOther, parts: []int{otherRank}, raw: sectionNo}
}

// Compare orders two keys, returning -1, 0 or 1.
func (k SortKey) Compare(o SortKey) int {
	if k.group != o.group {
		if k.group < o.group {
			return -1
		}
		return 1
	}
	for i := 0; i < len(k.parts) && i < len(o.parts); i++ {
		if k.parts[i] != o.parts[i] {
			if k.parts[i] < o.parts[i] {
				return -1
			}
			return 1
		}
	}
	if len(k.parts) != len(o.parts) {
		if len(k.parts) < len(o.parts) {
			return -1
		}
		return 1
	}
	return strings.Compare(k.raw, o.raw)
}

// CompareSectionNo orders two section numbers.
func CompareSectionNo(a, b string) int {
	return KeyOf(a).Compare(KeyOf(b))
}
