package persistence

import (
	"context"
	"errors"

	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"go.uber.org/zap"
)

// SchemaState tracks one schema through a load.
type SchemaState string

const (
	StateUnseen     SchemaState = "unseen"
	StateListed     SchemaState = "listed"
	StateReconciled SchemaState = "reconciled"
	StateFailed     SchemaState = "failed"
)

// LoadReport describes how the files of one schema were restored. The
// slices hold file paths.
type LoadReport struct {
	Schema string
	State  SchemaState

	// Restored files came back from the record, live or cached.
	Restored []string
	// Stale files were restored from the cached copy.
	Stale []string
	// Dropped files had neither live nor cached content.
	Dropped []string
	// Unrecorded files exist in the namespace but not in the record.
	Unrecorded []string
}

// LoadResult is the outcome of Reconciler.Load.
type LoadResult struct {
	Files   map[string][]association.JsonFile
	Reports []LoadReport
}

// NamespaceFunc maps a schema name onto the namespace of its data files.
type NamespaceFunc func(schemaName string) string

// Reconciler rebuilds associations from the durable record, checked
// against the live blob store, and writes the record back after changes.
type Reconciler struct {
	store     storage.BlobStore
	records   RecordStore
	validator association.InstanceValidator
	namespace NamespaceFunc
	logger    *zap.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(store storage.BlobStore, records RecordStore, v association.InstanceValidator, ns NamespaceFunc, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, records: records, validator: v, namespace: ns, logger: logger}
}

// Records exposes the underlying record store.
func (r *Reconciler) Records() RecordStore { return r.records }

// Load reconciles the recorded associations of schemas. It never fails: an
// absent or corrupt record leaves every schema in StateFailed with no files
// and its namespace listing reported as Unrecorded. Per file problems are
// logged and reported.
func (r *Reconciler) Load(ctx context.Context, schemas []association.Schema) LoadResult {
	result := LoadResult{Files: make(map[string][]association.JsonFile, len(schemas))}

	records, err := r.records.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoRecord) {
			r.logger.Info("No association record, starting without associations")
		} else {
			r.logger.Warn("Association record unusable, starting without associations", zap.Error(err))
		}
		for _, s := range schemas {
			result.Files[s.Name] = []association.JsonFile{}
			result.Reports = append(result.Reports, LoadReport{
				Schema:     s.Name,
				State:      StateFailed,
				Unrecorded: r.listNamespace(ctx, s.Name),
			})
		}
		return result
	}

	byPath := make(map[string]AssociationRecord, len(records))
	byName := make(map[string]AssociationRecord, len(records))
	for _, rec := range records {
		if rec.SchemaPath != "" {
			byPath[rec.SchemaPath] = rec
		}
		byName[rec.SchemaName] = rec
	}

	for _, s := range schemas {
		rec, ok := byPath[s.Path]
		if !ok {
			rec, ok = byName[s.Name]
		}
		files, report := r.reconcileSchema(ctx, s, rec.AssociatedFiles)
		result.Files[s.Name] = files
		result.Reports = append(result.Reports, report)
	}
	return result
}

func (r *Reconciler) reconcileSchema(ctx context.Context, s association.Schema, recorded []FileRecord) ([]association.JsonFile, LoadReport) {
	report := LoadReport{Schema: s.Name, State: StateUnseen}
	log := r.logger.With(zap.String("schema", s.Name))

	namespace := r.namespace(s.Name)
	live := make(map[string][]byte)
	listed := make([]string, 0)
	entries, err := r.store.List(ctx, namespace)
	if err != nil {
		log.Warn("Listing schema namespace failed, relying on direct reads", zap.String("namespace", namespace), zap.Error(err))
	}
	for _, e := range entries {
		live[e.Locator] = e.Content
		listed = append(listed, e.Locator)
	}
	report.State = StateListed

	files := make([]association.JsonFile, 0, len(recorded))
	inRecord := make(map[string]struct{}, len(recorded))
	for _, fr := range recorded {
		inRecord[fr.Path] = struct{}{}

		content, stale, ok := r.resolveContent(ctx, fr, live, log)
		if !ok {
			log.Warn("Dropping recorded file without live or cached content", zap.String("path", fr.Path))
			report.Dropped = append(report.Dropped, fr.Path)
			continue
		}

		res := r.validator.ValidateInstance(content, s.Content)
		files = append(files, association.JsonFile{
			Name:    fr.Name,
			Path:    fr.Path,
			Content: content,
			IsValid: res.Valid,
			Errors:  res.Errors,
			Stale:   stale,
		})
		report.Restored = append(report.Restored, fr.Path)
		if stale {
			report.Stale = append(report.Stale, fr.Path)
		}
	}

	for _, loc := range listed {
		if _, ok := inRecord[loc]; !ok {
			report.Unrecorded = append(report.Unrecorded, loc)
		}
	}

	report.State = StateReconciled
	log.Debug("Schema reconciled",
		zap.Int("restored", len(report.Restored)),
		zap.Int("stale", len(report.Stale)),
		zap.Int("dropped", len(report.Dropped)),
		zap.Int("unrecorded", len(report.Unrecorded)))
	return files, report
}

// listNamespace returns the locators in the data namespace of a schema so
// that files stay discoverable when the record is unusable.
func (r *Reconciler) listNamespace(ctx context.Context, schemaName string) []string {
	namespace := r.namespace(schemaName)
	entries, err := r.store.List(ctx, namespace)
	if err != nil {
		r.logger.Warn("Listing schema namespace failed", zap.String("schema", schemaName), zap.String("namespace", namespace), zap.Error(err))
		return nil
	}
	locators := make([]string, 0, len(entries))
	for _, e := range entries {
		locators = append(locators, e.Locator)
	}
	return locators
}

// resolveContent prefers the live blob and falls back to the recorded copy.
func (r *Reconciler) resolveContent(ctx context.Context, fr FileRecord, live map[string][]byte, log *zap.Logger) (validation.Instance, bool, bool) {
	data, listed := live[fr.Path]
	var readErr error
	if !listed {
		data, readErr = r.store.Read(ctx, fr.Path)
	}
	if readErr == nil {
		inst, err := validation.ParseInstance(data)
		if err == nil {
			return inst, false, true
		}
		readErr = err
	}

	cached, ok := fr.CachedContent()
	if !ok {
		return validation.Instance{}, false, false
	}
	log.Warn("Live read failed, using recorded content", zap.String("path", fr.Path), zap.Error(readErr))
	return cached, true, true
}

// Save writes the association record for schemas.
func (r *Reconciler) Save(ctx context.Context, schemas []association.Schema) error {
	records, err := RecordsFromSchemas(schemas)
	if err != nil {
		return err
	}
	return r.records.Save(ctx, records)
}
