package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	doc := map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"required":             []interface{}{"name", "email", "flag"},
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"name":  map[string]interface{}{"type": "string", "minLength": 2, "maxLength": 10},
			"email": map[string]interface{}{"type": "string", "pattern": `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`},
			"flag":  map[string]interface{}{"type": "boolean"},
			"count": map[string]interface{}{"type": "number", "minimum": 0},
		},
	}
	s, err := Compile(doc, []string{"name", "email", "flag", "count"})
	require.NoError(t, err)
	return s
}

func TestSchema_Valid(t *testing.T) {
	res, err := testSchema(t).Validate(map[string]interface{}{
		"name": "Jo", "email": "jo@example.com", "flag": true,
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestSchema_ReturnsAllViolationsInFieldOrder(t *testing.T) {
	res, err := testSchema(t).Validate(map[string]interface{}{
		"count": -1.0,
		"email": "not-an-email",
		"name":  "J",
	})
	require.NoError(t, err)
	require.False(t, res.Valid)

	fields := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"name", "email", "flag", "count"}, fields)

	assert.Equal(t, CodeMinLength, res.GetErrorsForField("name")[0].Code)
	assert.Equal(t, CodePattern, res.GetErrorsForField("email")[0].Code)
	assert.Equal(t, CodeRequired, res.GetErrorsForField("flag")[0].Code)
	assert.Equal(t, CodeMinValue, res.GetErrorsForField("count")[0].Code)
	assert.Len(t, res.GetErrorMessages(), 4)
}

func TestSchema_TypeAndExtraFieldViolations(t *testing.T) {
	res, err := testSchema(t).Validate(map[string]interface{}{
		"name": "Jo", "email": "jo@example.com", "flag": "yes", "extra": 1,
	})
	require.NoError(t, err)
	require.False(t, res.Valid)

	assert.True(t, res.HasErrors("flag"))
	assert.Equal(t, CodeInvalidType, res.GetErrorsForField("flag")[0].Code)
	assert.True(t, res.HasErrors("extra"))
	assert.Equal(t, CodeExtraField, res.GetErrorsForField("extra")[0].Code)
}

func TestSchema_NilPayloadReportsEveryRequiredField(t *testing.T) {
	res, err := testSchema(t).Validate(nil)
	require.NoError(t, err)
	assert.Len(t, res.Errors, 3)
}

func TestTrimStrings(t *testing.T) {
	out := TrimStrings(map[string]interface{}{"name": "  Jo ", "flag": true})
	assert.Equal(t, "Jo", out["name"])
	assert.Equal(t, true, out["flag"])
}
