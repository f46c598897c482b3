// Package extract pulls schema-defined fields out of a document map with
// evidence anchors, confidence and a consistency report.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field describes one value to extract.
type Field struct {
	Name         string   `yaml:"name" json:"name"`
	Required     bool     `yaml:"required" json:"required"`
	SectionHints []string `yaml:"section_hints" json:"section_hints"`
	TermHints    []string `yaml:"term_hints" json:"term_hints"`
	Pattern      string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Schema is an ordered list of fields for one document type.
type Schema struct {
	DocumentType string  `yaml:"document_type" json:"document_type"`
	Version      string  `yaml:"version" json:"version"`
	Fields       []Field `yaml:"fields" json:"fields"`
}

// SchemaViolation reports a malformed schema. It is returned before any
// extraction work starts.
type SchemaViolation struct {
	DocumentType string
	Problems     []string
}

func (e *SchemaViolation) Error() string {
	name := e.DocumentType
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("schema %s: %s", name, strings.Join(e.Problems, "; "))
}

// Validate checks that the schema has fields, that names are present and
// unique, and that every pattern compiles.
func (s *Schema) Validate() error {
	_, err := s.compile()
	return err
}

// compile returns one case-insensitive pattern per field, nil where the
// field has none.
func (s *Schema) compile() ([]*regexp.Regexp, error) {
	var problems []string
	if strings.TrimSpace(s.DocumentType) == "" {
		problems = append(problems, "missing document_type")
	}
	if len(s.Fields) == 0 {
		problems = append(problems, "missing fields list")
	}
	seen := make(map[string]bool, len(s.Fields))
	res := make([]*regexp.Regexp, len(s.Fields))
	for i, f := range s.Fields {
		name := strings.TrimSpace(f.Name)
		switch {
		case name == "":
			problems = append(problems, fmt.Sprintf("field %d has no name", i))
		case seen[name]:
			problems = append(problems, fmt.Sprintf("duplicate field %q", name))
		}
		seen[name] = true
		if f.Pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + f.Pattern)
		if err != nil {
			problems = append(problems, fmt.Sprintf("field %q: bad pattern: %v", name, err))
			continue
		}
		res[i] = re
	}
	if len(problems) > 0 {
		return nil, &SchemaViolation{DocumentType: s.DocumentType, Problems: problems}
	}
	return res, nil
}

// DefaultDocumentType is used when a request names no known type.
const DefaultDocumentType = "credit_agreement"

const datePattern = `([A-Za-z]+\s+\d{1,2},\s+\d{4}|\d{4}-\d{2}-\d{2})`

func builtinSchemas() []Schema {
	return []Schema{
		{
			DocumentType: "credit_agreement",
			Version:      "v1",
			Fields: []Field{
				{
					Name:         "facility_amount",
					Required:     true,
					SectionHints: []string{"commitments", "the commitments", "facility", "loans", "amount"},
					TermHints:    []string{"facility", "commitment", "loan", "amount"},
					Pattern:      `\$\s?\d[\d,]*(?:\.\d+)?\s?(?:million|billion|m)?`,
				},
				{
					Name:         "maturity_date",
					Required:     true,
					SectionHints: []string{"maturity", "termination", "term", "repayment"},
					TermHints:    []string{"maturity", "termination", "repayment"},
					Pattern:      `(?:maturity date is|maturity date|terminates? on|termination date is)\s+` + datePattern,
				},
				{
					Name:         "interest_benchmark",
					SectionHints: []string{"interest", "benchmark", "rate", "applicable margin", "pricing"},
					TermHints:    []string{"sofr", "libor", "base rate", "prime rate", "interest rate"},
					Pattern:      `(SOFR|LIBOR|Base Rate|Prime Rate)`,
				},
				{
					Name:         "conditions_precedent",
					SectionHints: []string{"conditions precedent", "conditions to borrowing", "borrowing", "advances"},
					TermHints:    []string{"condition precedent", "conditions", "borrowing", "request", "notice"},
				},
				{
					Name:         "excess_cash_flow_definition",
					SectionHints: []string{"definitions", "defined terms"},
					TermHints:    []string{"excess cash flow", "means"},
				},
			},
		},
		{
			DocumentType: "compliance_certificate",
			Version:      "v1",
			Fields: []Field{
				{
					Name:         "reporting_period_end",
					Required:     true,
					SectionHints: []string{"reporting period", "period end", "fiscal quarter"},
					TermHints:    []string{"period", "quarter", "ended", "as of"},
					Pattern:      `(?:for the period ended|as of)\s+` + datePattern,
				},
				{
					Name:         "leverage_ratio",
					Required:     true,
					SectionHints: []string{"financial covenant", "leverage ratio", "ratio"},
					TermHints:    []string{"leverage ratio", "total leverage", "ratio"},
					Pattern:      `(\d+(?:\.\d+)?x)`,
				},
				{
					Name:         "compliance_status",
					Required:     true,
					SectionHints: []string{"compliance", "certification", "officer certificate"},
					TermHints:    []string{"in compliance", "not in compliance", "complies", "default"},
					Pattern:      `(in compliance|not in compliance|complies|does not comply)`,
				},
			},
		},
		{
			DocumentType: "rate_notice",
			Version:      "v1",
			Fields: []Field{
				{
					Name:         "effective_date",
					Required:     true,
					SectionHints: []string{"rate notice", "effective", "interest period"},
					TermHints:    []string{"effective", "interest period", "date"},
					Pattern:      `(?:effective|as of)\s+` + datePattern,
				},
				{
					Name:         "benchmark_rate",
					Required:     true,
					SectionHints: []string{"benchmark", "reference rate", "interest"},
					TermHints:    []string{"sofr", "libor", "base rate", "prime"},
					Pattern:      `(SOFR|LIBOR|Base Rate|Prime Rate)`,
				},
				{
					Name:         "margin",
					SectionHints: []string{"applicable margin", "spread", "pricing"},
					TermHints:    []string{"margin", "spread", "bps"},
					Pattern:      `(\d+(?:\.\d+)?\s?(?:%|bps))`,
				},
			},
		},
	}
}

// Registry holds the schemas known to the service. Load overrides before
// sharing a Registry; lookups do not lock.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry returns a registry holding the built-in schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	for _, s := range builtinSchemas() {
		r.schemas[s.DocumentType] = s
	}
	return r
}

// Register adds s, replacing any schema of the same document type.
func (r *Registry) Register(s Schema) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.schemas[s.DocumentType] = s
	return nil
}

// Get returns the schema for a document type.
func (r *Registry) Get(docType string) (Schema, bool) {
	s, ok := r.schemas[docType]
	return s, ok
}

// Resolve returns the schema for docType, or the credit agreement schema
// when docType is unknown.
func (r *Registry) Resolve(docType string) Schema {
	if s, ok := r.schemas[docType]; ok {
		return s
	}
	return r.schemas[DefaultDocumentType]
}

// Types lists the registered document types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// ResolveDocumentType picks a document type: a known hint wins, then a
// mention of a compliance certificate or rate notice in the instruction or
// text, then the credit agreement default.
func (r *Registry) ResolveDocumentType(hint, instruction, text string) string {
	if _, ok := r.schemas[hint]; ok && hint != "" {
		return hint
	}
	hay := strings.ToLower(instruction + "\n" + text)
	switch {
	case strings.Contains(hay, "compliance certificate"):
		return "compliance_certificate"
	case strings.Contains(hay, "rate notice"):
		return "rate_notice"
	}
	return DefaultDocumentType
}

// LoadDir registers every *.yaml and *.yml schema in dir. An empty dir is a
// no-op.
func (r *Registry) LoadDir(dir string) error {
	if dir == "" {
		return nil
	}
	var paths []string
	for _, pat := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return fmt.Errorf("list schemas in %s: %w", dir, err)
		}
		paths = append(paths, m...)
	}
	slices.Sort(paths)
	for _, p := range paths {
		s, err := LoadSchemaFile(p)
		if err != nil {
			return err
		}
		r.schemas[s.DocumentType] = *s
	}
	return nil
}

// LoadSchemaFile reads and validates one YAML schema.
func LoadSchemaFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", path, err)
	}
	return &s, nil
}
