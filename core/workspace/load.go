package workspace

import (
	"context"
	"path"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/naming"
	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/validation"
	"go.uber.org/zap"
)

// LoadSchemas rebuilds the repository from storage. Schema documents come
// from the schema namespace; associations come from the record, reconciled
// against the data namespaces. The record is not rewritten here, so a
// corrupt record survives for inspection until the next mutation.
func (s *Service) LoadSchemas(ctx context.Context) ([]persistence.LoadReport, error) {
	return tracked(s, OpLoadSchemas, "", "", func() ([]persistence.LoadReport, error) {
		entries, err := s.store.List(ctx, s.opts.SchemaNamespace)
		if err != nil {
			return nil, storageError(OpLoadSchemas, s.opts.SchemaNamespace, err)
		}

		schemas := make([]association.Schema, 0, len(entries))
		tokens := make(map[string]string, len(entries))
		for _, e := range entries {
			if path.Base(e.Locator) == persistence.RecordName {
				continue
			}
			log := s.logger.With(zap.String("path", e.Locator))
			if err := s.validator.ValidateContentSize(e.Content); err != nil {
				log.Warn("Skipping oversized schema document", zap.Error(err))
				continue
			}
			doc, err := validation.ParseSchemaDocument(e.Content)
			if err != nil {
				log.Warn("Skipping unparseable schema document", zap.Error(err))
				continue
			}
			if res := s.validator.ValidateSchemaDocument(doc); !res.Valid {
				log.Warn("Skipping invalid schema document", zap.String("reason", res.CompilationError))
				continue
			}
			name := naming.Normalize(e.Name)
			token := naming.NamespaceFor(name)
			if other, clash := tokens[token]; clash {
				log.Warn("Skipping schema sharing a data namespace", zap.String("schema", name), zap.String("other", other))
				continue
			}
			tokens[token] = name
			schemas = append(schemas, association.Schema{Name: name, Path: e.Locator, Content: doc})
		}

		result := s.reconciler.Load(ctx, schemas)

		owners := make(map[string]string)
		for i := range schemas {
			files := result.Files[schemas[i].Name]
			kept := make([]association.JsonFile, 0, len(files))
			for _, f := range files {
				if other, taken := owners[f.Path]; taken {
					s.logger.Warn("File recorded under two schemas, keeping the first",
						zap.String("path", f.Path), zap.String("kept", other), zap.String("skipped", schemas[i].Name))
					continue
				}
				owners[f.Path] = schemas[i].Name
				kept = append(kept, f)
			}
			schemas[i].AssociatedFiles = kept
		}

		if s.opts.DiscoverFiles {
			for i, report := range result.Reports {
				if i >= len(schemas) || report.Schema != schemas[i].Name {
					continue
				}
				for _, loc := range report.Unrecorded {
					if _, taken := owners[loc]; taken {
						continue
					}
					f, ok := s.readFile(ctx, loc)
					if !ok {
						continue
					}
					owners[loc] = schemas[i].Name
					schemas[i].AssociatedFiles = append(schemas[i].AssociatedFiles, f)
				}
			}
		}

		if err := s.repo.ReplaceSchemas(schemas); err != nil {
			return nil, s.repositoryError(OpLoadSchemas, err)
		}
		for _, report := range result.Reports {
			for _, p := range report.Stale {
				s.emit(createEvent(FileStale, OpLoadSchemas, report.Schema, p, nil, nil, timeZero))
			}
		}
		s.logger.Info("Schemas loaded", zap.Int("schemas", len(schemas)), zap.Int("files", len(owners)))
		return result.Reports, nil
	})
}

// LoadSchemaFiles replaces the associated files of a schema with the
// contents of its data namespace. Files owned by another schema stay
// where they are.
func (s *Service) LoadSchemaFiles(ctx context.Context, schemaName string) (association.Schema, error) {
	schemaName = naming.Normalize(schemaName)
	return tracked(s, OpLoadFiles, schemaName, "", func() (association.Schema, error) {
		if _, ok := s.repo.Schema(schemaName); !ok {
			return association.Schema{}, newError(OpLoadFiles, KindNotFound, association.ErrSchemaNotFound, "Schema not found: %s", schemaName)
		}
		ns := s.DataNamespaceOf(schemaName)
		entries, err := s.store.List(ctx, ns)
		if err != nil {
			return association.Schema{}, storageError(OpLoadFiles, ns, err)
		}

		files := make([]association.JsonFile, 0, len(entries))
		for _, e := range entries {
			if owner, owned := s.repo.OwnerOf(e.Locator); owned && owner != schemaName {
				s.logger.Debug("Skipping file owned by another schema", zap.String("path", e.Locator), zap.String("owner", owner))
				continue
			}
			inst, err := validation.ParseInstance(e.Content)
			if err != nil {
				s.logger.Warn("Skipping unparseable data file", zap.String("path", e.Locator), zap.Error(err))
				continue
			}
			files = append(files, association.JsonFile{Name: e.Name, Path: e.Locator, Content: inst})
		}

		if err := s.repo.ReplaceAssociatedFiles(schemaName, files); err != nil {
			return association.Schema{}, s.repositoryError(OpLoadFiles, err)
		}
		s.saveRecord(ctx)
		schema, _ := s.repo.Schema(schemaName)
		return schema, nil
	})
}

// readFile loads a data file discovered in storage. Unreadable or
// unparseable blobs are logged and skipped.
func (s *Service) readFile(ctx context.Context, locator string) (association.JsonFile, bool) {
	data, err := s.store.Read(ctx, locator)
	if err != nil {
		s.logger.Warn("Skipping unreadable data file", zap.String("path", locator), zap.Error(err))
		return association.JsonFile{}, false
	}
	inst, err := validation.ParseInstance(data)
	if err != nil {
		s.logger.Warn("Skipping unparseable data file", zap.String("path", locator), zap.Error(err))
		return association.JsonFile{}, false
	}
	return association.JsonFile{Name: path.Base(locator), Path: locator, Content: inst}, true
}
