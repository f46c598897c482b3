package extract

import (
	"regexp"
	"slices"
	"strings"
)

const maxSignals = 25

var signalPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"facility_amount", regexp.MustCompile(`(?i)\$\s?\d[\d,]*(?:\.\d+)?\s?(?:million|billion|m)?`)},
	{"interest_terms", regexp.MustCompile(`(?i)(?:SOFR|LIBOR|prime rate|base rate|margin|spread|interest rate)`)},
	{"covenants", regexp.MustCompile(`(?i)(?:leverage ratio|interest coverage ratio|fixed charge coverage|minimum liquidity|debt service)`)},
	{"events_of_default", regexp.MustCompile(`(?i)events? of default|default`)},
	{"maturity", regexp.MustCompile(`(?i)maturity date|termination date|expires? on`)},
}

// Signals returns, for each finance signal family, the distinct matches in
// text in sorted order, at most 25 per family. Every family is present.
func Signals(text string) map[string][]string {
	out := make(map[string][]string, len(signalPatterns))
	for _, p := range signalPatterns {
		seen := map[string]bool{}
		vals := []string{}
		for _, m := range p.re.FindAllString(text, -1) {
			m = strings.TrimSpace(m)
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			vals = append(vals, m)
		}
		slices.Sort(vals)
		if len(vals) > maxSignals {
			vals = vals[:maxSignals]
		}
		out[p.name] = vals
	}
	return out
}
