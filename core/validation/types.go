package validation

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaDocument is a JSON value used as a JSON Schema. It is kept distinct
// from Instance so the two validator entry points cannot be swapped.
type SchemaDocument struct {
	value any
}

// NewSchemaDocument wraps an already decoded JSON value.
func NewSchemaDocument(v any) SchemaDocument {
	return SchemaDocument{value: v}
}

// ParseSchemaDocument decodes raw JSON into a SchemaDocument.
func ParseSchemaDocument(data []byte) (SchemaDocument, error) {
	v, err := Decode(data)
	if err != nil {
		return SchemaDocument{}, err
	}
	return SchemaDocument{value: v}, nil
}

// Value returns the decoded JSON value.
func (d SchemaDocument) Value() any { return d.value }

func (d SchemaDocument) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.value)
}

func (d *SchemaDocument) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	d.value = v
	return nil
}

// Instance is a JSON value validated against a SchemaDocument.
type Instance struct {
	value any
}

// NewInstance wraps an already decoded JSON value.
func NewInstance(v any) Instance {
	return Instance{value: v}
}

// ParseInstance decodes raw JSON into an Instance.
func ParseInstance(data []byte) (Instance, error) {
	v, err := Decode(data)
	if err != nil {
		return Instance{}, err
	}
	return Instance{value: v}, nil
}

// Value returns the decoded JSON value.
func (i Instance) Value() any { return i.value }

func (i Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.value)
}

func (i *Instance) UnmarshalJSON(data []byte) error {
	v, err := Decode(data)
	if err != nil {
		return err
	}
	i.value = v
	return nil
}

// Decode parses a single JSON value, keeping numbers as json.Number so no
// precision is lost between storage round trips.
func Decode(data []byte) (any, error) {
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// ErrorRecord describes one violation found while validating an instance.
type ErrorRecord struct {
	InstancePath string `json:"instancePath"`
	SchemaPath   string `json:"schemaPath,omitempty"`
	Keyword      string `json:"keyword"`
	Message      string `json:"message"`
}

// Result is the outcome of validating an instance against a schema.
type Result struct {
	Valid  bool          `json:"valid"`
	Errors []ErrorRecord `json:"errors"`
}

// SchemaResult is the outcome of checking a schema document.
type SchemaResult struct {
	Valid            bool   `json:"valid"`
	CompilationError string `json:"compilationError,omitempty"`
}

// TextResult is the outcome of parsing JSON text.
type TextResult struct {
	Valid  bool   `json:"valid"`
	Parsed any    `json:"parsed,omitempty"`
	Error  string `json:"error,omitempty"`
}
