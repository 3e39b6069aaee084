package workspace

import (
	"context"
	"errors"
	"strings"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/naming"
	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/asaidimu/manyjson/utils"
	"go.uber.org/zap"
)

// CreateSchema validates name and content, stores the document and adds it
// to the repository.
func (s *Service) CreateSchema(ctx context.Context, name string, content validation.SchemaDocument) (association.Schema, error) {
	return tracked(s, OpCreateSchema, name, "", func() (association.Schema, error) {
		normalized, err := naming.ValidateName(name, naming.KindSchema, nil)
		if err != nil {
			return association.Schema{}, nameError(OpCreateSchema, err)
		}
		payload, err := utils.PrettyJSON(content)
		if err != nil {
			return association.Schema{}, newError(OpCreateSchema, KindInvalidInput, err, "Schema content cannot be encoded: %v", err)
		}
		return s.createSchema(ctx, normalized, content, payload)
	})
}

// CreateSchemaFromText is CreateSchema for raw editor text. The text is
// stored as written.
func (s *Service) CreateSchemaFromText(ctx context.Context, name, text string) (association.Schema, error) {
	return tracked(s, OpCreateSchema, name, "", func() (association.Schema, error) {
		normalized, err := naming.ValidateName(name, naming.KindSchema, nil)
		if err != nil {
			return association.Schema{}, nameError(OpCreateSchema, err)
		}
		parsed, payload, err := s.decodeText(OpCreateSchema, text)
		if err != nil {
			return association.Schema{}, err
		}
		return s.createSchema(ctx, normalized, validation.NewSchemaDocument(parsed), payload)
	})
}

func (s *Service) createSchema(ctx context.Context, name string, content validation.SchemaDocument, payload []byte) (association.Schema, error) {
	if err := s.validator.ValidateContentSize(payload); err != nil {
		return association.Schema{}, newError(OpCreateSchema, KindInvalidInput, err, "%s", err.Error())
	}
	if res := s.validator.ValidateSchemaDocument(content); !res.Valid {
		return association.Schema{}, newError(OpCreateSchema, KindCompilation, validation.ErrInvalidSchema,
			"Invalid JSON Schema: %s", res.CompilationError)
	}

	if _, err := naming.ValidateName(name, naming.KindSchema, s.repo.SchemaNames()); err != nil {
		return association.Schema{}, nameError(OpCreateSchema, err)
	}
	// the record shares the schema namespace
	if strings.EqualFold(name, persistence.RecordName) {
		return association.Schema{}, newError(OpCreateSchema, KindConflict, naming.ErrReserved,
			"Schema name is reserved for the association record: %s", name)
	}
	token := naming.NamespaceFor(name)
	for _, existing := range s.repo.SchemaNames() {
		if naming.NamespaceFor(existing) == token {
			return association.Schema{}, newError(OpCreateSchema, KindConflict, naming.ErrDuplicate,
				"A schema with a conflicting storage name already exists: %s", existing)
		}
	}

	ns, err := s.ensureNamespace(ctx, OpCreateSchema, s.opts.SchemaNamespace)
	if err != nil {
		return association.Schema{}, err
	}
	locator := s.store.Locator(ns, name)
	if err := s.store.Write(ctx, locator, payload); err != nil {
		return association.Schema{}, storageError(OpCreateSchema, name, err)
	}

	schema := association.Schema{Name: name, Path: locator, Content: content}
	if err := s.repo.AddSchema(schema); err != nil {
		return association.Schema{}, newError(OpCreateSchema, KindConflict, err, "A schema with this name already exists")
	}
	s.logger.Info("Schema created", zap.String("schema", name), zap.String("path", locator))
	s.saveRecord(ctx)

	created, _ := s.repo.Schema(name)
	return created, nil
}

// UpdateSchema replaces the content of an existing schema and revalidates
// every associated file against it.
func (s *Service) UpdateSchema(ctx context.Context, name string, content validation.SchemaDocument) (association.Schema, error) {
	name = naming.Normalize(name)
	return tracked(s, OpUpdateSchema, name, "", func() (association.Schema, error) {
		current, ok := s.repo.Schema(name)
		if !ok {
			return association.Schema{}, newError(OpUpdateSchema, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", name)
		}
		if res := s.validator.ValidateSchemaDocument(content); !res.Valid {
			return association.Schema{}, newError(OpUpdateSchema, KindCompilation, validation.ErrInvalidSchema,
				"Invalid JSON Schema: %s", res.CompilationError)
		}
		payload, err := utils.PrettyJSON(content)
		if err != nil {
			return association.Schema{}, newError(OpUpdateSchema, KindInvalidInput, err, "Schema content cannot be encoded: %v", err)
		}
		if err := s.validator.ValidateContentSize(payload); err != nil {
			return association.Schema{}, newError(OpUpdateSchema, KindInvalidInput, err, "%s", err.Error())
		}
		if err := s.store.Write(ctx, current.Path, payload); err != nil {
			return association.Schema{}, storageError(OpUpdateSchema, name, err)
		}

		updated, err := s.repo.SetSchemaContent(name, content)
		if err != nil {
			return association.Schema{}, newError(OpUpdateSchema, KindNotFound, err, "Schema not found: %s", name)
		}
		s.saveRecord(ctx)
		return updated, nil
	})
}

// DeleteSchema removes a schema document and evicts it from the repository.
// Its data files stay in storage, detached from any schema.
func (s *Service) DeleteSchema(ctx context.Context, name string) error {
	name = naming.Normalize(name)
	_, err := tracked(s, OpDeleteSchema, name, "", func() (association.Schema, error) {
		current, ok := s.repo.Schema(name)
		if !ok {
			return association.Schema{}, newError(OpDeleteSchema, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", name)
		}
		if err := s.store.Delete(ctx, current.Path); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return association.Schema{}, storageError(OpDeleteSchema, name, err)
			}
			s.logger.Warn("Schema blob already gone", zap.String("schema", name), zap.String("path", current.Path))
		}

		removed, err := s.repo.RemoveSchema(name)
		if err != nil {
			return association.Schema{}, newError(OpDeleteSchema, KindNotFound, err, "Schema not found: %s", name)
		}
		for _, f := range removed.AssociatedFiles {
			s.emit(createEvent(FileOrphaned, OpDeleteSchema, name, f.Path, nil, nil, timeZero))
		}
		s.logger.Info("Schema deleted", zap.String("schema", name), zap.Int("orphanedFiles", len(removed.AssociatedFiles)))
		s.saveRecord(ctx)
		return removed, nil
	})
	return err
}

// RefreshSchema re-reads a schema document from storage after an out of
// band edit. A document that no longer compiles is rejected and the loaded
// content is kept.
func (s *Service) RefreshSchema(ctx context.Context, name string) (association.Schema, error) {
	name = naming.Normalize(name)
	return tracked(s, OpRefreshSchema, name, "", func() (association.Schema, error) {
		current, ok := s.repo.Schema(name)
		if !ok {
			return association.Schema{}, newError(OpRefreshSchema, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", name)
		}
		data, err := s.store.Read(ctx, current.Path)
		if err != nil {
			return association.Schema{}, storageError(OpRefreshSchema, name, err)
		}
		parsed, _, err := s.decodeText(OpRefreshSchema, string(data))
		if err != nil {
			return association.Schema{}, err
		}
		doc := validation.NewSchemaDocument(parsed)
		if res := s.validator.ValidateSchemaDocument(doc); !res.Valid {
			return association.Schema{}, newError(OpRefreshSchema, KindCompilation, validation.ErrInvalidSchema,
				"Invalid JSON Schema: %s", res.CompilationError)
		}
		updated, err := s.repo.SetSchemaContent(name, doc)
		if err != nil {
			return association.Schema{}, newError(OpRefreshSchema, KindNotFound, err, "Schema not found: %s", name)
		}
		s.saveRecord(ctx)
		return updated, nil
	})
}
