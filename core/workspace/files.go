package workspace

import (
	"context"
	"errors"
	"path"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/naming"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"go.uber.org/zap"
)

// CreateDataFile creates a data file in the namespace of a schema. With
// RequireValidOnCreate, content that violates the schema is rejected and
// the violations are attached to the returned error.
func (s *Service) CreateDataFile(ctx context.Context, schemaName, name, text string) (association.JsonFile, error) {
	schemaName = naming.Normalize(schemaName)
	return tracked(s, OpCreateFile, schemaName, name, func() (association.JsonFile, error) {
		schema, ok := s.repo.Schema(schemaName)
		if !ok {
			return association.JsonFile{}, newError(OpCreateFile, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", schemaName)
		}

		normalized, err := naming.ValidateName(name, naming.KindData, schema.FileNames())
		if err != nil {
			return association.JsonFile{}, nameError(OpCreateFile, err)
		}

		parsed, payload, err := s.decodeText(OpCreateFile, text)
		if err != nil {
			return association.JsonFile{}, err
		}
		content := validation.NewInstance(parsed)

		if s.opts.RequireValidOnCreate {
			if res := s.validator.ValidateInstance(content, schema.Content); !res.Valid {
				werr := newError(OpCreateFile, KindInvalidInput, nil, "Data does not match the schema: %s", res.Errors[0].Message)
				werr.Issues = res.Errors
				return association.JsonFile{}, werr
			}
		}

		ns, err := s.ensureNamespace(ctx, OpCreateFile, s.DataNamespaceOf(schemaName))
		if err != nil {
			return association.JsonFile{}, err
		}
		locator := s.store.Locator(ns, normalized)
		if _, err := s.store.Read(ctx, locator); err == nil {
			return association.JsonFile{}, newError(OpCreateFile, KindConflict, storage.ErrExists, "A file with this name already exists")
		} else if !errors.Is(err, storage.ErrNotFound) {
			return association.JsonFile{}, storageError(OpCreateFile, normalized, err)
		}
		if _, owned := s.repo.OwnerOf(locator); owned {
			return association.JsonFile{}, newError(OpCreateFile, KindConflict, association.ErrPathTaken, "A file with this name already exists")
		}

		if err := s.store.Write(ctx, locator, payload); err != nil {
			return association.JsonFile{}, storageError(OpCreateFile, normalized, err)
		}
		file, err := s.repo.AddFileToSchema(schemaName, association.JsonFile{Name: normalized, Path: locator, Content: content})
		if err != nil {
			return association.JsonFile{}, s.repositoryError(OpCreateFile, err)
		}
		s.logger.Info("Data file created", zap.String("schema", schemaName), zap.String("path", locator), zap.Bool("valid", file.IsValid))
		s.saveRecord(ctx)
		return file, nil
	})
}

// SaveDataFile writes new content for the file at path. Validation against
// the owning schema never blocks the save; its outcome is cached on the
// returned file.
func (s *Service) SaveDataFile(ctx context.Context, filePath, text string) (association.JsonFile, error) {
	return tracked(s, OpSaveFile, "", filePath, func() (association.JsonFile, error) {
		parsed, payload, err := s.decodeText(OpSaveFile, text)
		if err != nil {
			return association.JsonFile{}, err
		}
		content := validation.NewInstance(parsed)

		if err := s.store.Write(ctx, filePath, payload); err != nil {
			return association.JsonFile{}, storageError(OpSaveFile, filePath, err)
		}

		if _, owned := s.repo.OwnerOf(filePath); !owned {
			s.logger.Debug("Saved file without schema", zap.String("path", filePath))
			return association.JsonFile{
				Name:    path.Base(filePath),
				Path:    filePath,
				Content: content,
				Errors:  []validation.ErrorRecord{},
			}, nil
		}

		file, err := s.repo.UpdateFile(filePath, func(f *association.JsonFile) {
			f.Content = content
			f.Stale = false
		})
		if err != nil {
			return association.JsonFile{}, s.repositoryError(OpSaveFile, err)
		}
		s.saveRecord(ctx)
		return file, nil
	})
}

// DeleteDataFile removes a data file from storage and from its schema.
func (s *Service) DeleteDataFile(ctx context.Context, filePath string) error {
	_, err := tracked(s, OpDeleteFile, "", filePath, func() (association.JsonFile, error) {
		owner, ok := s.repo.OwnerOf(filePath)
		if !ok {
			return association.JsonFile{}, newError(OpDeleteFile, KindNotFound, association.ErrFileNotFound, "File not found: %s", filePath)
		}
		if err := s.store.Delete(ctx, filePath); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return association.JsonFile{}, storageError(OpDeleteFile, filePath, err)
			}
			s.logger.Warn("Data file already gone", zap.String("path", filePath))
		}
		removed, err := s.repo.RemoveFileFromSchema(owner, filePath)
		if err != nil {
			return association.JsonFile{}, s.repositoryError(OpDeleteFile, err)
		}
		s.saveRecord(ctx)
		return removed, nil
	})
	return err
}

// RenameFile gives the file at path a new name within the same namespace.
// The repository entry is updated in place so selection and diffing follow
// the file. Renaming onto an existing file is rejected and leaves the
// original untouched.
func (s *Service) RenameFile(ctx context.Context, filePath, newName string) (association.JsonFile, error) {
	return tracked(s, OpRenameFile, "", filePath, func() (association.JsonFile, error) {
		file, owner, ok := s.repo.File(filePath)
		if !ok {
			return association.JsonFile{}, newError(OpRenameFile, KindNotFound, association.ErrFileNotFound, "File not found: %s", filePath)
		}
		schema, _ := s.repo.Schema(owner)

		siblings := make([]string, 0, len(schema.AssociatedFiles))
		for _, f := range schema.AssociatedFiles {
			if f.Path != filePath {
				siblings = append(siblings, f.Name)
			}
		}
		normalized, err := naming.ValidateName(newName, naming.KindData, siblings)
		if err != nil {
			return association.JsonFile{}, nameError(OpRenameFile, err)
		}
		if normalized == file.Name {
			return file, nil
		}

		target := s.store.Locator(path.Dir(filePath), normalized)
		if _, taken := s.repo.OwnerOf(target); taken {
			return association.JsonFile{}, newError(OpRenameFile, KindConflict, storage.ErrExists, "A file with this name already exists")
		}
		if err := s.store.Rename(ctx, filePath, target); err != nil {
			return association.JsonFile{}, storageError(OpRenameFile, file.Name, err)
		}

		renamed, err := s.repo.UpdateFile(filePath, func(f *association.JsonFile) {
			f.Name = normalized
			f.Path = target
		})
		if err != nil {
			if rbErr := s.store.Rename(ctx, target, filePath); rbErr != nil {
				s.logger.Error("Failed to undo rename", zap.String("from", target), zap.String("to", filePath), zap.Error(rbErr))
			}
			return association.JsonFile{}, s.repositoryError(OpRenameFile, err)
		}
		s.logger.Info("Data file renamed", zap.String("from", filePath), zap.String("to", target))
		s.saveRecord(ctx)
		return renamed, nil
	})
}

// AssociateFile attaches an existing blob, for instance one picked in an
// open dialog, to a schema. A file owned by another schema moves over.
func (s *Service) AssociateFile(ctx context.Context, schemaName, locator string) (association.JsonFile, error) {
	schemaName = naming.Normalize(schemaName)
	return tracked(s, OpAssociateFile, schemaName, locator, func() (association.JsonFile, error) {
		schema, ok := s.repo.Schema(schemaName)
		if !ok {
			return association.JsonFile{}, newError(OpAssociateFile, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", schemaName)
		}

		data, err := s.store.Read(ctx, locator)
		if err != nil {
			return association.JsonFile{}, storageError(OpAssociateFile, locator, err)
		}
		parsed, _, err := s.decodeText(OpAssociateFile, string(data))
		if err != nil {
			return association.JsonFile{}, err
		}

		name := path.Base(locator)
		siblings := make([]string, 0, len(schema.AssociatedFiles))
		for _, f := range schema.AssociatedFiles {
			if f.Path != locator {
				siblings = append(siblings, f.Name)
			}
		}
		if _, err := naming.ValidateName(name, naming.KindData, siblings); err != nil {
			return association.JsonFile{}, nameError(OpAssociateFile, err)
		}

		incoming := association.JsonFile{
			Name:    name,
			Path:    locator,
			Content: validation.NewInstance(parsed),
		}
		var file association.JsonFile
		if previous, owned := s.repo.OwnerOf(locator); owned && previous != schemaName {
			file, err = s.repo.MoveFile(previous, schemaName, incoming)
			if err != nil {
				return association.JsonFile{}, s.repositoryError(OpAssociateFile, err)
			}
			s.logger.Info("Moved data file to another schema", zap.String("path", locator), zap.String("from", previous), zap.String("to", schemaName))
		} else {
			file, err = s.repo.AddFileToSchema(schemaName, incoming)
			if err != nil {
				return association.JsonFile{}, s.repositoryError(OpAssociateFile, err)
			}
		}
		s.saveRecord(ctx)
		return file, nil
	})
}

// RefreshFile re-reads a data file after an out of band edit and
// revalidates it.
func (s *Service) RefreshFile(ctx context.Context, filePath string) (association.JsonFile, error) {
	return tracked(s, OpRefreshFile, "", filePath, func() (association.JsonFile, error) {
		if _, owned := s.repo.OwnerOf(filePath); !owned {
			return association.JsonFile{}, newError(OpRefreshFile, KindNotFound, association.ErrFileNotFound, "File not found: %s", filePath)
		}
		data, err := s.store.Read(ctx, filePath)
		if err != nil {
			return association.JsonFile{}, storageError(OpRefreshFile, filePath, err)
		}
		parsed, _, err := s.decodeText(OpRefreshFile, string(data))
		if err != nil {
			return association.JsonFile{}, err
		}
		file, err := s.repo.UpdateFile(filePath, func(f *association.JsonFile) {
			f.Content = validation.NewInstance(parsed)
			f.Stale = false
		})
		if err != nil {
			return association.JsonFile{}, s.repositoryError(OpRefreshFile, err)
		}
		s.saveRecord(ctx)
		return file, nil
	})
}

// repositoryError maps repository sentinels onto workspace kinds.
func (s *Service) repositoryError(op Operation, err error) *Error {
	switch {
	case errors.Is(err, association.ErrSchemaNotFound):
		return newError(op, KindNotFound, err, "Schema not found")
	case errors.Is(err, association.ErrFileNotFound):
		return newError(op, KindNotFound, err, "File not found")
	case errors.Is(err, association.ErrPathTaken), errors.Is(err, association.ErrOwnedElsewhere), errors.Is(err, association.ErrDuplicateSchema):
		return newError(op, KindConflict, err, "%v", err)
	default:
		return newError(op, KindStorage, err, "%v", err)
	}
}
