package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrContract marks an extraction payload that breaks the output contract.
var ErrContract = errors.New("extraction contract violated")

const contractSchema = `{
  "type": "object",
  "required": ["document_type", "schema_version", "structure_pass", "field_extraction", "consistency"],
  "properties": {
    "document_type": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string"},
    "field_extraction": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["value", "found", "confidence", "required", "evidence", "reason", "unresolved_dependencies"],
        "properties": {
          "value": {"type": ["string", "null"]},
          "found": {"type": "boolean"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "evidence": {
            "type": "array",
            "maxItems": 3,
            "items": {
              "type": "object",
              "required": ["anchor", "excerpt"],
              "properties": {"anchor": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    },
    "consistency": {
      "type": "object",
      "required": ["status", "score", "issues", "warnings"],
      "properties": {
        "status": {"enum": ["passed", "warning", "failed", "skipped"]},
        "score": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  }
}`

var contract = jsonschema.MustCompileString("extraction_contract.json", contractSchema)

// validateContract checks res against the output schema and confirms that
// every field it reports belongs to s.
func validateContract(s Schema, res *Result) error {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	var unexpected []string
	for name := range res.Fields {
		if !slices.Contains(names, name) {
			unexpected = append(unexpected, name)
		}
	}
	if len(unexpected) > 0 {
		slices.Sort(unexpected)
		return fmt.Errorf("%w: fields not in schema: %v", ErrContract, unexpected)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrContract, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrContract, err)
	}
	if err := contract.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrContract, err)
	}
	return nil
}
