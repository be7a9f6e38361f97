package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "type": "object",
  "required": ["name", "tags"],
  "properties": {
    "name": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}}
  }
}`

func TestValidateBytes(t *testing.T) {
	s, err := Compile("person", personSchema)
	require.NoError(t, err)

	assert.NoError(t, s.ValidateBytes([]byte(`{"name": "a", "tags": []}`)))

	err = s.ValidateBytes([]byte(`{"tags": [1]}`))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "person", ve.Schema)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, ve.Error(), "person: validation failed")
}

func TestValidateDocument(t *testing.T) {
	s := MustCompile("person", personSchema)

	assert.NoError(t, s.ValidateDocument(map[string]any{"name": "a", "tags": []any{"x"}}))

	err := s.ValidateDocument(map[string]any{"name": 3, "tags": []any{}})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"name"}, ve.Fields())
}

func TestCompileInvalidSchema(t *testing.T) {
	_, err := Compile("broken", `{"type": 12}`)
	var le *SchemaLoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "broken", le.Schema)
}

func TestValidateJSONString(t *testing.T) {
	assert.NoError(t, ValidateJSONString(personSchema, `{"name": "n", "tags": ["a"]}`))
	assert.Error(t, ValidateJSONString(personSchema, `{"name": "n"}`))
}
