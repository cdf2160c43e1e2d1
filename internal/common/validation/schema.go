// internal/common/validation/schema.go
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	CodeRequired     = "REQUIRED_FIELD_MISSING"
	CodeInvalidType  = "INVALID_TYPE"
	CodeMinLength    = "MIN_LENGTH_VIOLATION"
	CodeMaxLength    = "MAX_LENGTH_VIOLATION"
	CodePattern      = "PATTERN_MISMATCH"
	CodeFormat       = "INVALID_FORMAT"
	CodeEnum         = "INVALID_ENUM_VALUE"
	CodeExtraField   = "EXTRA_FIELD"
	CodeMinValue     = "MIN_VALUE_VIOLATION"
	CodeMaxValue     = "MAX_VALUE_VIOLATION"
	CodeInvalidValue = "INVALID_VALUE"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Schema is a compiled JSON Schema plus the order violations are reported in.
type Schema struct {
	compiled   *gojsonschema.Schema
	fieldOrder map[string]int
}

// Compile loads a draft-07 schema document. fieldOrder lists properties in the
// order their violations should be reported; unlisted fields sort after, by name.
func Compile(doc map[string]interface{}, fieldOrder []string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	order := make(map[string]int, len(fieldOrder))
	for i, f := range fieldOrder {
		order[f] = i
	}
	return &Schema{compiled: compiled, fieldOrder: order}, nil
}

// Validate checks payload and returns every violation, never just the first.
func (s *Schema) Validate(payload map[string]interface{}) (*ValidationResult, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return &ValidationResult{Valid: true}, nil
	}

	errs := make([]ValidationError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, toValidationError(desc))
	}
	s.sortErrors(errs)
	return &ValidationResult{Valid: false, Errors: errs}, nil
}

func (s *Schema) sortErrors(errs []ValidationError) {
	rank := func(field string) int {
		if i, ok := s.fieldOrder[field]; ok {
			return i
		}
		return len(s.fieldOrder)
	}
	sort.SliceStable(errs, func(i, j int) bool {
		ri, rj := rank(errs[i].Field), rank(errs[j].Field)
		if ri != rj {
			return ri < rj
		}
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Code < errs[j].Code
	})
}

func toValidationError(desc gojsonschema.ResultError) ValidationError {
	field := desc.Field()
	if prop, ok := desc.Details()["property"].(string); ok && (field == "" || field == "(root)") {
		field = prop
	}
	return ValidationError{
		Field:   field,
		Message: messageFor(desc),
		Code:    codeFor(desc.Type()),
	}
}

func codeFor(errType string) string {
	switch errType {
	case "required":
		return CodeRequired
	case "invalid_type":
		return CodeInvalidType
	case "string_gte":
		return CodeMinLength
	case "string_lte":
		return CodeMaxLength
	case "does_not_match_pattern":
		return CodePattern
	case "format":
		return CodeFormat
	case "enum":
		return CodeEnum
	case "additional_property_not_allowed":
		return CodeExtraField
	case "number_gte", "number_gt":
		return CodeMinValue
	case "number_lte", "number_lt":
		return CodeMaxValue
	default:
		return CodeInvalidValue
	}
}

func messageFor(desc gojsonschema.ResultError) string {
	switch desc.Type() {
	case "required":
		return "is required"
	case "does_not_match_pattern":
		return "has an invalid format"
	}
	return strings.TrimSpace(desc.Description())
}

// GetErrorMessages renders "field: message" lines.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(vr.Errors))
	for _, err := range vr.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	return len(vr.GetErrorsForField(field)) > 0
}

func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var out []ValidationError
	for _, err := range vr.Errors {
		if err.Field == field {
			out = append(out, err)
		}
	}
	return out
}

// TrimStrings returns a shallow copy of payload with top-level strings trimmed.
func TrimStrings(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if s, ok := v.(string); ok {
			out[k] = strings.TrimSpace(s)
			continue
		}
		out[k] = v
	}
	return out
}
