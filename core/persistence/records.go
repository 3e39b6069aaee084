// Package persistence keeps the association graph durable. It serializes
// schemas and their files into association records, stores them through a
// RecordStore and, on load, reconciles the records against the live blob
// store.
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/validation"
)

// RecordName is the blob name of the association record inside the schema
// namespace.
const RecordName = "schema-associations.json"

// ErrNoRecord is returned by RecordStore.Load when nothing was saved yet.
var ErrNoRecord = errors.New("no association record")

// FileRecord is the recorded state of one associated data file. Content is
// nil when the record carries no cached copy.
type FileRecord struct {
	Name    string                   `json:"name"`
	Path    string                   `json:"path"`
	Content json.RawMessage          `json:"content,omitempty"`
	IsValid bool                     `json:"isValid"`
	Errors  []validation.ErrorRecord `json:"errors"`
}

// AssociationRecord is the recorded file set of one schema.
type AssociationRecord struct {
	SchemaPath      string       `json:"schemaPath"`
	SchemaName      string       `json:"schemaName"`
	AssociatedFiles []FileRecord `json:"associatedFiles"`
}

// RecordStore persists association records as one unit.
type RecordStore interface {
	// Load returns the saved records, or ErrNoRecord.
	Load(ctx context.Context) ([]AssociationRecord, error)
	// Save replaces the saved records atomically.
	Save(ctx context.Context, records []AssociationRecord) error
}

// RecordsFromSchemas converts repository snapshots into association records.
func RecordsFromSchemas(schemas []association.Schema) ([]AssociationRecord, error) {
	records := make([]AssociationRecord, 0, len(schemas))
	for _, s := range schemas {
		rec := AssociationRecord{
			SchemaPath:      s.Path,
			SchemaName:      s.Name,
			AssociatedFiles: make([]FileRecord, 0, len(s.AssociatedFiles)),
		}
		for _, f := range s.AssociatedFiles {
			content, err := json.Marshal(f.Content)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal content of %s: %w", f.Path, err)
			}
			errs := f.Errors
			if errs == nil {
				errs = []validation.ErrorRecord{}
			}
			rec.AssociatedFiles = append(rec.AssociatedFiles, FileRecord{
				Name:    f.Name,
				Path:    f.Path,
				Content: content,
				IsValid: f.IsValid,
				Errors:  errs,
			})
		}
		records = append(records, rec)
	}
	return records, nil
}

// MarshalRecords serializes the association graph of schemas.
func MarshalRecords(schemas []association.Schema) ([]byte, error) {
	records, err := RecordsFromSchemas(schemas)
	if err != nil {
		return nil, err
	}
	return encodeRecords(records)
}

func encodeRecords(records []AssociationRecord) ([]byte, error) {
	if records == nil {
		records = []AssociationRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal association records: %w", err)
	}
	return data, nil
}

// UnmarshalRecords parses a serialized association record.
func UnmarshalRecords(data []byte) ([]AssociationRecord, error) {
	var records []AssociationRecord
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal association records: %w", err)
	}
	if dec.More() {
		return nil, errors.New("failed to unmarshal association records: trailing data")
	}
	return records, nil
}

// CachedContent decodes the cached copy of a file. ok is false when the
// record carries none or it does not parse.
func (f FileRecord) CachedContent() (validation.Instance, bool) {
	if len(f.Content) == 0 {
		return validation.Instance{}, false
	}
	inst, err := validation.ParseInstance(f.Content)
	if err != nil {
		return validation.Instance{}, false
	}
	return inst, true
}
