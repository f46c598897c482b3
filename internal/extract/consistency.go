package extract

import (
	"fmt"
	"strings"
	"time"
)

// Consistency statuses.
const (
	StatusPassed  = "passed"
	StatusWarning = "warning"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Consistency is the advisory report over all extracted fields. Issues
// lower the status to warning; warnings never do.
type Consistency struct {
	Status   string   `json:"status"`
	Score    float64  `json:"score"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

var dateLayouts = []string{"January 2, 2006", "2006-01-02"}

// parseDate reads the two date forms the built-in patterns capture.
func parseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func checkConsistency(s Schema, fields map[string]FieldResult) Consistency {
	issues := []string{}
	for _, f := range s.Fields {
		if r, ok := fields[f.Name]; f.Required && (!ok || !r.Found) {
			issues = append(issues, "Missing required field: "+f.Name)
		}
	}

	maturity, okM := parseDate(fields["maturity_date"].ValueOr(""))
	reporting, okR := parseDate(fields["reporting_period_end"].ValueOr(""))
	if okM && okR && maturity.Before(reporting) {
		issues = append(issues, "maturity_date is earlier than reporting_period_end")
	}

	if amount := fields["facility_amount"].ValueOr(""); amount != "" && !strings.Contains(amount, "$") {
		issues = append(issues, "facility_amount did not include explicit currency symbol")
	}

	found := 0
	warnings := []string{}
	for _, f := range s.Fields {
		r := fields[f.Name]
		if !r.Found {
			continue
		}
		found++
		if len(r.Evidence) == 0 {
			warnings = append(warnings, fmt.Sprintf("Field '%s' is found but has no evidence anchors", f.Name))
		}
	}
	coverage := float64(found) / float64(max(1, len(fields)))

	c := Consistency{Status: StatusPassed, Score: round(coverage, 4), Issues: issues, Warnings: warnings}
	if len(issues) > 0 {
		c.Status = StatusWarning
		c.Score = max(0, round(coverage-0.2, 4))
	}
	return c
}
