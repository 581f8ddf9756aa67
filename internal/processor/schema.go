package processor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidReport is returned when an analyzer produces a report that does
// not match the stored result schema.
var ErrInvalidReport = errors.New("analysis report does not match schema")

const reportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["query", "summary", "document", "verification", "investment_analysis", "risk_assessment"],
  "properties": {
    "query": {"type": "string"},
    "summary": {"type": "string", "minLength": 1},
    "document": {
      "type": "object",
      "required": ["pages", "words", "characters"],
      "properties": {
        "pages": {"type": "integer", "minimum": 0},
        "words": {"type": "integer", "minimum": 0},
        "characters": {"type": "integer", "minimum": 0}
      }
    },
    "verification": {
      "type": "object",
      "required": ["is_pdf", "has_text"],
      "properties": {
        "is_pdf": {"type": "boolean"},
        "has_text": {"type": "boolean"}
      }
    },
    "investment_analysis": {"type": "string"},
    "risk_assessment": {"type": "string"},
    "excerpt": {"type": "string"}
  }
}`

func compileReportSchema() (*jsonschema.Schema, error) {
	schema, err := jsonschema.CompileString("report.json", reportSchema)
	if err != nil {
		return nil, fmt.Errorf("compile report schema: %w", err)
	}
	return schema, nil
}

// validateReport checks the encoded report against schema.
func validateReport(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	return nil
}
