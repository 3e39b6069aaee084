package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(DefaultOptions(), nil)
	require.NoError(t, err)
	return v
}

func mustSchema(t *testing.T, raw string) SchemaDocument {
	t.Helper()
	doc, err := ParseSchemaDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func mustInstance(t *testing.T, raw string) Instance {
	t.Helper()
	inst, err := ParseInstance([]byte(raw))
	require.NoError(t, err)
	return inst
}

func TestValidateInstance_MissingRequiredProperty(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{"type":"object","required":["id"]}`)

	result := v.ValidateInstance(mustInstance(t, `{}`), schema)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "required", result.Errors[0].Keyword)
	assert.Equal(t, "", result.Errors[0].InstancePath)
	assert.Contains(t, result.Errors[0].Message, "id")
}

func TestValidateInstance_CollectsAllErrors(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"age": {"type": "integer", "minimum": 0},
			"email": {"type": "string", "format": "email"}
		},
		"required": ["name"]
	}`)

	result := v.ValidateInstance(mustInstance(t, `{"age": -3, "email": "not-an-email"}`), schema)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 3)

	byPath := map[string]ErrorRecord{}
	for _, rec := range result.Errors {
		byPath[rec.InstancePath] = rec
	}
	assert.Equal(t, "required", byPath[""].Keyword)
	assert.Equal(t, "minimum", byPath["/age"].Keyword)
	assert.Equal(t, "format", byPath["/email"].Keyword)
	assert.True(t, strings.HasPrefix(byPath["/age"].SchemaPath, "#"))
}

func TestValidateInstance_Valid(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{"type":"object","required":["id"]}`)

	result := v.ValidateInstance(mustInstance(t, `{"id": 1}`), schema)

	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateInstance_IsDeterministic(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{
		"type": "object",
		"properties": {
			"a": {"type": "string"},
			"b": {"type": "string"},
			"c": {"type": "string"},
			"d": {"type": "string"}
		}
	}`)
	inst := mustInstance(t, `{"a": 1, "b": 2, "c": 3, "d": 4}`)

	first := v.ValidateInstance(inst, schema)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, v.ValidateInstance(inst, schema))
	}

	fresh := newTestValidator(t)
	assert.Equal(t, first, fresh.ValidateInstance(inst, schema))
}

func TestValidateInstance_CompileFailureIsSyntheticError(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{"type":"banana"}`)

	result := v.ValidateInstance(mustInstance(t, `{}`), schema)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, KeywordCompile, result.Errors[0].Keyword)
	assert.Contains(t, result.Errors[0].Message, "Schema compilation error")
}

func TestValidateSchemaDocument(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"object schema", `{"type":"object","properties":{"id":{"type":"integer"}}}`, true},
		{"boolean schema", `true`, true},
		{"empty schema", `{}`, true},
		{"invalid type enumeration", `{"type":"banana"}`, false},
		{"wrong keyword value type", `{"type":"object","required":"id"}`, false},
		{"unknown keyword", `{"type":"object","colour":"red"}`, false},
		{"nested unknown keyword", `{"properties":{"a":{"type":"string","lenght":3}}}`, false},
		{"extension keyword", `{"type":"object","x-ui":{"order":1}}`, true},
		{"dangling local ref", `{"$ref":"#/definitions/missing"}`, false},
		{"external ref", `{"$ref":"other.json"}`, false},
		{"local ref", `{"definitions":{"id":{"type":"integer"}},"properties":{"id":{"$ref":"#/definitions/id"}}}`, true},
		{"number document", `5`, false},
		{"string document", `"schema"`, false},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateSchemaDocument(mustSchema(t, tt.doc))
			assert.Equal(t, tt.valid, result.Valid, result.CompilationError)
			if !tt.valid {
				assert.NotEmpty(t, result.CompilationError)
			} else {
				assert.Empty(t, result.CompilationError)
			}
		})
	}
}

func TestValidateSchemaDocument_NonStrictAllowsUnknownKeywords(t *testing.T) {
	opts := DefaultOptions()
	opts.Strict = false
	v, err := New(opts, nil)
	require.NoError(t, err)

	result := v.ValidateSchemaDocument(mustSchema(t, `{"type":"object","colour":"red"}`))
	assert.True(t, result.Valid)
}

func TestValidateJSONText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		valid   bool
		errPart string
	}{
		{"object", `{"a": 1}`, true, ""},
		{"array", `[1, 2, 3]`, true, ""},
		{"scalar", `42`, true, ""},
		{"empty", ``, false, "required"},
		{"whitespace", " \n\t ", false, "required"},
		{"truncated", `{"a": `, false, "Invalid JSON format"},
		{"trailing data", `{"a": 1} {"b": 2}`, false, "Invalid JSON format"},
		{"comments rejected by default", `{"a": 1 // note
		}`, false, "Invalid JSON format"},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateJSONText(tt.text)
			assert.Equal(t, tt.valid, result.Valid)
			if tt.valid {
				assert.Empty(t, result.Error)
			} else {
				assert.Contains(t, result.Error, tt.errPart)
				assert.Nil(t, result.Parsed)
			}
		})
	}
}

func TestValidateJSONText_AllowComments(t *testing.T) {
	opts := DefaultOptions()
	opts.AllowComments = true
	v, err := New(opts, nil)
	require.NoError(t, err)

	result := v.ValidateJSONText(`{
		// identifier
		"id": 7, /* trailing comma below */
	}`)

	require.True(t, result.Valid, result.Error)
	obj, ok := result.Parsed.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, json.Number("7"), obj["id"])
}

func TestValidateContentSize(t *testing.T) {
	v := newTestValidator(t)
	assert.NoError(t, v.ValidateContentSize(make([]byte, DefaultMaxContentBytes)))

	err := v.ValidateContentSize(make([]byte, DefaultMaxContentBytes+1))
	require.Error(t, err)
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, "Content is too large (maximum 10 MiB)", err.Error())
}

func TestCompileCacheReusesCompilation(t *testing.T) {
	v := newTestValidator(t)
	schema := mustSchema(t, `{"type":"object","required":["id"]}`)
	same := mustSchema(t, `{"required":["id"],"type":"object"}`)

	v.ValidateInstance(mustInstance(t, `{}`), schema)
	v.ValidateInstance(mustInstance(t, `{"id":1}`), same)
	assert.Equal(t, 1, v.cache.len())

	v.ValidateInstance(mustInstance(t, `{}`), mustSchema(t, `{"type":"array"}`))
	assert.Equal(t, 2, v.cache.len())
}

func TestCompileCacheEvictsOldest(t *testing.T) {
	opts := DefaultOptions()
	opts.CacheSize = 2
	v, err := New(opts, nil)
	require.NoError(t, err)

	for _, raw := range []string{`{"type":"string"}`, `{"type":"number"}`, `{"type":"array"}`} {
		v.ValidateSchemaDocument(mustSchema(t, raw))
	}
	assert.Equal(t, 2, v.cache.len())
}

func TestParseDraft(t *testing.T) {
	for _, name := range []string{"", "draft7", "draft4", "draft6", "2019-09", "2020-12"} {
		_, err := ParseDraft(name)
		assert.NoError(t, err, name)
	}
	_, err := ParseDraft("draft3")
	assert.ErrorIs(t, err, ErrUnknownDraft)
}

func TestSchemaDocumentJSONRoundTrip(t *testing.T) {
	doc := mustSchema(t, `{"type":"object","maximum":1.50}`)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var back SchemaDocument
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, doc.Value(), back.Value())
}
