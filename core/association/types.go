package association

import (
	"errors"

	"github.com/asaidimu/manyjson/core/validation"
)

var (
	ErrDuplicateSchema = errors.New("duplicate schema name")
	ErrSchemaNotFound  = errors.New("schema not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrOwnedElsewhere  = errors.New("file is associated with another schema")
	ErrPathTaken       = errors.New("a file already exists at this path")
)

// JsonFile is a data file and the cached outcome of validating it against
// its owning schema. Path is its identity.
type JsonFile struct {
	Name    string                   `json:"name"`
	Path    string                   `json:"path"`
	Content validation.Instance      `json:"content"`
	IsValid bool                     `json:"isValid"`
	Errors  []validation.ErrorRecord `json:"errors"`

	// Stale is set when Content is the last recorded copy because the live
	// blob could not be read.
	Stale bool `json:"stale,omitempty"`
}

func (f JsonFile) clone() JsonFile {
	if f.Errors != nil {
		errs := make([]validation.ErrorRecord, len(f.Errors))
		copy(errs, f.Errors)
		f.Errors = errs
	}
	return f
}

// Schema is a schema document, its storage locator and the files validated
// against it. Name is its identity.
type Schema struct {
	Name            string                    `json:"name"`
	Path            string                    `json:"path"`
	Content         validation.SchemaDocument `json:"content"`
	AssociatedFiles []JsonFile                `json:"associatedFiles"`
}

// FileNames lists the names of the associated files.
func (s Schema) FileNames() []string {
	names := make([]string, 0, len(s.AssociatedFiles))
	for _, f := range s.AssociatedFiles {
		names = append(names, f.Name)
	}
	return names
}

// FindFile returns the associated file stored at path.
func (s Schema) FindFile(path string) (JsonFile, bool) {
	for _, f := range s.AssociatedFiles {
		if f.Path == path {
			return f, true
		}
	}
	return JsonFile{}, false
}

func (s Schema) clone() Schema {
	files := make([]JsonFile, len(s.AssociatedFiles))
	for i, f := range s.AssociatedFiles {
		files[i] = f.clone()
	}
	s.AssociatedFiles = files
	return s
}

// Selection is the current schema, the current file and the editor mode.
// Schema and File are empty when nothing is selected.
type Selection struct {
	Schema string
	File   string
	Mode   Mode
}
