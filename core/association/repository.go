// Package association holds the in-memory graph of schemas and the data
// files validated against them, together with the current selection.
//
// Every mutation is a single critical section, so concurrent callers never
// observe a half applied change. Readers get value snapshots; the
// Repository never hands out its internal state.
package association

import (
	"fmt"
	"sort"
	"sync"

	"github.com/asaidimu/manyjson/core/validation"
	"go.uber.org/zap"
)

// InstanceValidator is the part of validation.Validator the repository
// needs to keep cached validity current.
type InstanceValidator interface {
	ValidateInstance(value validation.Instance, schema validation.SchemaDocument) validation.Result
}

// Repository is the authoritative in-memory association graph.
type Repository struct {
	mu        sync.RWMutex
	validator InstanceValidator
	logger    *zap.Logger

	schemas map[string]*Schema
	owners  map[string]string // file path -> schema name

	currentSchema string
	currentFile   string
	mode          Mode
}

// NewRepository creates an empty repository. Files are validated with v on
// every insertion and schema content change.
func NewRepository(v InstanceValidator, logger *zap.Logger) *Repository {
	if v == nil {
		panic("association: nil validator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		validator: v,
		logger:    logger,
		schemas:   make(map[string]*Schema),
		owners:    make(map[string]string),
		mode:      Idle{},
	}
}

// AddSchema inserts schema. Its associated files are validated against its
// content. Names are unique; a colliding name yields ErrDuplicateSchema.
func (r *Repository) AddSchema(schema Schema) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[schema.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSchema, schema.Name)
	}
	for _, f := range schema.AssociatedFiles {
		if owner, ok := r.owners[f.Path]; ok {
			return fmt.Errorf("%w: %s belongs to %s", ErrOwnedElsewhere, f.Path, owner)
		}
	}

	s := schema.clone()
	r.validateFiles(&s)
	r.schemas[s.Name] = &s
	r.indexFiles(&s)
	r.logger.Debug("Schema added", zap.String("schema", s.Name), zap.Int("files", len(s.AssociatedFiles)))
	return nil
}

// RemoveSchema removes the schema named name and returns it. When it was
// selected, the current schema, current file and mode are all cleared.
func (r *Repository) RemoveSchema(name string) (Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	for _, f := range s.AssociatedFiles {
		delete(r.owners, f.Path)
		r.forgetFile(f.Path)
	}
	delete(r.schemas, name)

	if r.currentSchema == name {
		r.currentSchema = ""
		r.currentFile = ""
		r.mode = Idle{}
	} else if referencesSchema(r.mode, name) {
		r.mode = Idle{}
	}
	return s.clone(), nil
}

// ReplaceSchemas swaps the whole schema set, as after a reload. Selections
// pointing at schemas or files that no longer exist are cleared.
func (r *Repository) ReplaceSchemas(schemas []Schema) error {
	next := make(map[string]*Schema, len(schemas))
	owners := make(map[string]string)
	for _, schema := range schemas {
		if _, dup := next[schema.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSchema, schema.Name)
		}
		s := schema.clone()
		for _, f := range s.AssociatedFiles {
			if owner, ok := owners[f.Path]; ok {
				return fmt.Errorf("%w: %s belongs to %s", ErrOwnedElsewhere, f.Path, owner)
			}
			owners[f.Path] = s.Name
		}
		next[s.Name] = &s
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range next {
		r.validateFiles(s)
	}
	r.schemas = next
	r.owners = owners
	r.pruneSelection()
	return nil
}

// AddFileToSchema associates file with the named schema, replacing an entry
// with the same path. A file owned by a different schema is rejected with
// ErrOwnedElsewhere; callers detach it first.
func (r *Repository) AddFileToSchema(schemaName string, file JsonFile) (JsonFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[schemaName]
	if !ok {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	if owner, ok := r.owners[file.Path]; ok && owner != schemaName {
		return JsonFile{}, fmt.Errorf("%w: %s belongs to %s", ErrOwnedElsewhere, file.Path, owner)
	}

	f := file.clone()
	r.validateFile(s, &f)

	replaced := false
	for i := range s.AssociatedFiles {
		if s.AssociatedFiles[i].Path == f.Path {
			s.AssociatedFiles[i] = f
			replaced = true
			break
		}
	}
	if !replaced {
		s.AssociatedFiles = append(s.AssociatedFiles, f)
	}
	r.owners[f.Path] = schemaName
	return f.clone(), nil
}

// RemoveFileFromSchema detaches the file at path from the named schema.
// Selection and mode referring to it are cleared.
func (r *Repository) RemoveFileFromSchema(schemaName, path string) (JsonFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[schemaName]
	if !ok {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	for i, f := range s.AssociatedFiles {
		if f.Path != path {
			continue
		}
		s.AssociatedFiles = append(s.AssociatedFiles[:i:i], s.AssociatedFiles[i+1:]...)
		delete(r.owners, path)
		r.forgetFile(path)
		return f.clone(), nil
	}
	return JsonFile{}, fmt.Errorf("%w: %s in %s", ErrFileNotFound, path, schemaName)
}

// MoveFile detaches the file at file.Path from schema from and associates
// file with schema to in one step. Nothing changes when either schema is
// missing or the file is not owned by from.
func (r *Repository) MoveFile(from, to string, file JsonFile) (JsonFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.schemas[from]
	if !ok {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, from)
	}
	dst, ok := r.schemas[to]
	if !ok {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, to)
	}
	owner, owned := r.owners[file.Path]
	if !owned {
		return JsonFile{}, fmt.Errorf("%w: %s in %s", ErrFileNotFound, file.Path, from)
	}
	if owner != from {
		return JsonFile{}, fmt.Errorf("%w: %s belongs to %s", ErrOwnedElsewhere, file.Path, owner)
	}
	if from == to {
		for i := range dst.AssociatedFiles {
			if dst.AssociatedFiles[i].Path == file.Path {
				f := file.clone()
				r.validateFile(dst, &f)
				dst.AssociatedFiles[i] = f
				return f.clone(), nil
			}
		}
	}

	for i, f := range src.AssociatedFiles {
		if f.Path == file.Path {
			src.AssociatedFiles = append(src.AssociatedFiles[:i:i], src.AssociatedFiles[i+1:]...)
			break
		}
	}
	r.forgetFile(file.Path)

	f := file.clone()
	r.validateFile(dst, &f)
	dst.AssociatedFiles = append(dst.AssociatedFiles, f)
	r.owners[f.Path] = to
	return f.clone(), nil
}

// ReplaceAssociatedFiles swaps the whole file set of a schema and validates
// every file against the schema's content.
func (r *Repository) ReplaceAssociatedFiles(schemaName string, files []JsonFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[schemaName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}

	seen := make(map[string]struct{}, len(files))
	next := make([]JsonFile, 0, len(files))
	for _, file := range files {
		if owner, ok := r.owners[file.Path]; ok && owner != schemaName {
			return fmt.Errorf("%w: %s belongs to %s", ErrOwnedElsewhere, file.Path, owner)
		}
		if _, dup := seen[file.Path]; dup {
			return fmt.Errorf("%w: %s", ErrPathTaken, file.Path)
		}
		seen[file.Path] = struct{}{}
		next = append(next, file.clone())
	}

	for _, f := range s.AssociatedFiles {
		if _, kept := seen[f.Path]; !kept {
			delete(r.owners, f.Path)
			r.forgetFile(f.Path)
		}
	}
	s.AssociatedFiles = next
	r.validateFiles(s)
	r.indexFiles(s)
	return nil
}

// RevalidateAll recomputes the cached validity of every file associated
// with the named schema against its current content.
func (r *Repository) RevalidateAll(schemaName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[schemaName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	r.validateFiles(s)
	return nil
}

// SetSchemaContent replaces the content of a schema and revalidates its
// files in the same step.
func (r *Repository) SetSchemaContent(schemaName string, content validation.SchemaDocument) (Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schemas[schemaName]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, schemaName)
	}
	s.Content = content
	r.validateFiles(s)
	return s.clone(), nil
}

// UpdateFile applies fn to a copy of the file at path and stores the result
// in place, keeping its position and owner. fn may change Path, as a rename
// does; selection and mode follow the new path. The file is revalidated.
func (r *Repository) UpdateFile(path string, fn func(*JsonFile)) (JsonFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[path]
	if !ok {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	s := r.schemas[owner]
	idx := -1
	for i := range s.AssociatedFiles {
		if s.AssociatedFiles[i].Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return JsonFile{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	f := s.AssociatedFiles[idx].clone()
	fn(&f)
	if f.Path != path {
		if _, taken := r.owners[f.Path]; taken {
			return JsonFile{}, fmt.Errorf("%w: %s", ErrPathTaken, f.Path)
		}
	}
	r.validateFile(s, &f)
	s.AssociatedFiles[idx] = f

	if f.Path != path {
		delete(r.owners, path)
		r.owners[f.Path] = owner
		if r.currentFile == path {
			r.currentFile = f.Path
		}
		r.mode = renameFile(r.mode, path, f.Path)
	}
	return f.clone(), nil
}

// Schema returns a snapshot of the schema named name.
func (r *Repository) Schema(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return Schema{}, false
	}
	return s.clone(), true
}

// Schemas returns snapshots of every schema sorted by name.
func (r *Repository) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SchemaNames returns every schema name, sorted.
func (r *Repository) SchemaNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// File returns a snapshot of the file at path and the name of its owner.
func (r *Repository) File(path string) (JsonFile, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[path]
	if !ok {
		return JsonFile{}, "", false
	}
	f, ok := r.schemas[owner].FindFile(path)
	if !ok {
		return JsonFile{}, "", false
	}
	return f.clone(), owner, true
}

// OwnerOf returns the name of the schema the file at path belongs to.
func (r *Repository) OwnerOf(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[path]
	return owner, ok
}

// SelectSchema makes name the current schema and resets the mode. An empty
// name clears the selection. The current file is kept only if it belongs to
// the newly selected schema.
func (r *Repository) SelectSchema(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		if _, ok := r.schemas[name]; !ok {
			return fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
		}
	}
	r.currentSchema = name
	if r.currentFile != "" && r.owners[r.currentFile] != name {
		r.currentFile = ""
	}
	r.mode = Idle{}
	return nil
}

// SelectFile makes the file at path current, selecting its owner too, and
// resets the mode. An empty path clears the current file only.
func (r *Repository) SelectFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if path == "" {
		r.currentFile = ""
		r.mode = Idle{}
		return nil
	}
	owner, ok := r.owners[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	r.currentSchema = owner
	r.currentFile = path
	r.mode = Idle{}
	return nil
}

// SetMode switches the editor mode. Files and schemas it refers to must
// exist.
func (r *Repository) SetMode(m Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := m.(type) {
	case nil:
		r.mode = Idle{}
		return nil
	case EditingFile:
		if _, ok := r.owners[m.Path]; !ok {
			return fmt.Errorf("%w: %s", ErrFileNotFound, m.Path)
		}
	case DiffingFiles:
		for _, p := range []string{m.Source, m.Target} {
			if _, ok := r.owners[p]; !ok {
				return fmt.Errorf("%w: %s", ErrFileNotFound, p)
			}
		}
	case ViewingSchema:
		if _, ok := r.schemas[m.Schema]; !ok {
			return fmt.Errorf("%w: %s", ErrSchemaNotFound, m.Schema)
		}
	case EditingSchema:
		if _, ok := r.schemas[m.Schema]; !ok {
			return fmt.Errorf("%w: %s", ErrSchemaNotFound, m.Schema)
		}
	}
	r.mode = m
	return nil
}

// Selection returns the current schema, file and mode.
func (r *Repository) Selection() Selection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Selection{Schema: r.currentSchema, File: r.currentFile, Mode: r.mode}
}

func (r *Repository) validateFiles(s *Schema) {
	for i := range s.AssociatedFiles {
		r.validateFile(s, &s.AssociatedFiles[i])
	}
}

func (r *Repository) validateFile(s *Schema, f *JsonFile) {
	res := r.validator.ValidateInstance(f.Content, s.Content)
	f.IsValid = res.Valid
	f.Errors = res.Errors
	if f.Errors == nil {
		f.Errors = []validation.ErrorRecord{}
	}
}

func (r *Repository) indexFiles(s *Schema) {
	for _, f := range s.AssociatedFiles {
		r.owners[f.Path] = s.Name
	}
}

// forgetFile clears selection state that points at a removed file. Callers
// hold the write lock.
func (r *Repository) forgetFile(path string) {
	if r.currentFile == path {
		r.currentFile = ""
	}
	if referencesFile(r.mode, path) {
		r.mode = Idle{}
	}
}

func (r *Repository) pruneSelection() {
	if r.currentSchema != "" {
		if _, ok := r.schemas[r.currentSchema]; !ok {
			r.currentSchema = ""
			r.currentFile = ""
			r.mode = Idle{}
			return
		}
	}
	if r.currentFile != "" && r.owners[r.currentFile] != r.currentSchema {
		r.currentFile = ""
	}
	switch m := r.mode.(type) {
	case EditingFile:
		if _, ok := r.owners[m.Path]; !ok {
			r.mode = Idle{}
		}
	case DiffingFiles:
		_, src := r.owners[m.Source]
		_, dst := r.owners[m.Target]
		if !src || !dst {
			r.mode = Idle{}
		}
	case ViewingSchema:
		if _, ok := r.schemas[m.Schema]; !ok {
			r.mode = Idle{}
		}
	case EditingSchema:
		if _, ok := r.schemas[m.Schema]; !ok {
			r.mode = Idle{}
		}
	}
}
