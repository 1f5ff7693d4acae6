package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	Text    string  `json:"text" description:"The input text"`
	Count   int     `json:"count,omitempty"`
	Ratio   float64 `json:"ratio"`
	Enabled bool    `json:"enabled"`
	Skip    string  `json:"-"`
	Tag     *string `json:"tag"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, props, 5)

	text, ok := props["text"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", text["type"])
	assert.Equal(t, "The input text", text["description"])

	count := props["count"].(map[string]any)
	assert.Equal(t, "integer", count["type"])

	ratio := props["ratio"].(map[string]any)
	assert.Equal(t, "number", ratio["type"])

	// omitempty and pointer fields are optional; "-" fields are skipped.
	required, ok := schema["required"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"text", "ratio", "enabled"}, required)
	_, skipped := props["Skip"]
	assert.False(t, skipped)
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema("not a struct")

	assert.Equal(t, "object", schema["type"])
	assert.Empty(t, schema["properties"])
}

func TestValidateParameters_Valid(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{
		"text":    "hello",
		"ratio":   0.5,
		"enabled": true,
	}, schema)
	assert.NoError(t, err)
}

func TestValidateParameters_MissingRequired(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{"text": "hello"}, schema)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "required field is missing")
}

func TestValidateParameters_WrongType(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{
		"text":    123,
		"ratio":   0.5,
		"enabled": true,
	}, schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text")
}

func TestValidateParameters_JSONNumberAsInteger(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count": map[string]any{"type": "integer"},
		},
		"required": []any{"count"},
	}

	// JSON decoding yields float64; whole numbers pass, fractions fail.
	assert.NoError(t, ValidateParameters(map[string]any{"count": float64(3)}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"count": 3.5}, schema))
}

func TestValidateParameters_ExtraFieldsAllowed(t *testing.T) {
	schema := CreateSchema(sampleArgs{})

	err := ValidateParameters(map[string]any{
		"text":       "hello",
		"ratio":      1.0,
		"enabled":    false,
		"unexpected": "ignored",
	}, schema)
	assert.NoError(t, err)
}
