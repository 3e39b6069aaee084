// Package workspace sequences naming, validation, storage, the association
// repository and the reconciler into the use cases an editor needs:
// creating, updating and deleting schemas and data files, renaming,
// associating and reloading them.
//
// Every operation returns a *Error on failure and never panics for expected
// conditions. The in-memory repository is only touched once storage has
// succeeded, so an I/O failure leaves it unchanged. Saving the association
// record afterwards is best effort: a failure is logged and published as a
// RecordSaveFailed event.
package workspace

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/manyjson/core/association"
	"github.com/asaidimu/manyjson/core/naming"
	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/storage"
	"github.com/asaidimu/manyjson/core/validation"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// Options tunes the use cases.
type Options struct {
	// RequireValidOnCreate rejects new data files that violate their schema.
	// Saving an existing file never blocks on validity.
	RequireValidOnCreate bool

	// DiscoverFiles makes LoadSchemas also attach files found in a schema's
	// namespace that the association record does not know about.
	DiscoverFiles bool

	// Retry bounds namespace creation retries.
	Retry storage.RetryPolicy

	// SchemaNamespace holds schema documents and the association record.
	SchemaNamespace string

	// DataNamespace is the parent of every schema's data namespace.
	DataNamespace string
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{
		RequireValidOnCreate: true,
		Retry:                storage.DefaultRetryPolicy(),
		SchemaNamespace:      "schemas",
		DataNamespace:        "data",
	}
}

// Service is the orchestration layer. It owns the repository for the
// lifetime of a session.
type Service struct {
	store      storage.BlobStore
	validator  *validation.Validator
	repo       *association.Repository
	reconciler *persistence.Reconciler
	opts       Options
	logger     *zap.Logger

	bus           *events.TypedEventBus[Event]
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// New wires a Service. When records is nil the association record is kept
// as a blob in the schema namespace.
func New(store storage.BlobStore, records persistence.RecordStore, v *validation.Validator, opts Options, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("workspace: a blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if v == nil {
		var err error
		if v, err = validation.New(validation.DefaultOptions(), logger); err != nil {
			return nil, fmt.Errorf("could not initialize validator: %w", err)
		}
	}
	if opts.SchemaNamespace == "" {
		opts.SchemaNamespace = "schemas"
	}
	if opts.DataNamespace == "" {
		opts.DataNamespace = "data"
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = storage.DefaultRetryPolicy()
	}
	if records == nil {
		records = persistence.NewBlobRecordStore(store, store.Locator(opts.SchemaNamespace, persistence.RecordName), logger)
	}

	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	s := &Service{
		store:         store,
		validator:     v,
		repo:          association.NewRepository(v, logger),
		opts:          opts,
		logger:        logger,
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}
	s.reconciler = persistence.NewReconciler(store, records, v, s.DataNamespaceOf, logger)
	return s, nil
}

// Repository exposes the association graph for read access.
func (s *Service) Repository() *association.Repository { return s.repo }

// Validator returns the validator shared by all components.
func (s *Service) Validator() *validation.Validator { return s.validator }

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }

// DataNamespaceOf returns the namespace holding the data files of a schema.
func (s *Service) DataNamespaceOf(schemaName string) string {
	return s.store.Locator(s.opts.DataNamespace, naming.NamespaceFor(schemaName))
}

// Schemas returns snapshots of every loaded schema.
func (s *Service) Schemas() []association.Schema { return s.repo.Schemas() }

// Schema returns a snapshot of one schema.
func (s *Service) Schema(name string) (association.Schema, bool) {
	return s.repo.Schema(naming.Normalize(name))
}

// File returns a snapshot of a data file and its owner.
func (s *Service) File(path string) (association.JsonFile, string, bool) {
	return s.repo.File(path)
}

// SelectSchema makes name the current schema. An empty name clears it.
func (s *Service) SelectSchema(name string) error {
	if name != "" {
		name = naming.Normalize(name)
	}
	if err := s.repo.SelectSchema(name); err != nil {
		return newError(OpSelect, KindNotFound, err, "Schema not found: %s", name)
	}
	return nil
}

// SelectFile makes the file at path current, together with its schema.
func (s *Service) SelectFile(path string) error {
	if err := s.repo.SelectFile(path); err != nil {
		return newError(OpSelect, KindNotFound, err, "File not found: %s", path)
	}
	return nil
}

// SetMode switches the editor mode.
func (s *Service) SetMode(m association.Mode) error {
	if err := s.repo.SetMode(m); err != nil {
		return newError(OpSelect, KindNotFound, err, "Cannot switch to %s: %v", m, err)
	}
	return nil
}

// Selection returns the current selection.
func (s *Service) Selection() association.Selection { return s.repo.Selection() }

// SaveRecord writes the association record now. Use cases call it
// implicitly; it is exposed for shutdown paths.
func (s *Service) SaveRecord(ctx context.Context) error {
	if err := s.reconciler.Save(ctx, s.repo.Schemas()); err != nil {
		return newError(OpSaveRecord, KindStorage, err, "Failed to save schema associations: %v", err)
	}
	return nil
}

// saveRecord persists the association record and swallows the error after
// logging and publishing it.
func (s *Service) saveRecord(ctx context.Context) {
	if err := s.reconciler.Save(ctx, s.repo.Schemas()); err != nil {
		s.logger.Error("Failed to save association record", zap.Error(err))
		s.emit(createEvent(RecordSaveFailed, OpSaveRecord, "", "", nil, err, timeZero))
	}
}

// decodeText checks size and syntax of user supplied JSON and returns the
// parsed value with the bytes to store.
func (s *Service) decodeText(op Operation, text string) (any, []byte, error) {
	payload := []byte(text)
	if err := s.validator.ValidateContentSize(payload); err != nil {
		return nil, nil, newError(op, KindInvalidInput, err, "%s", err.Error())
	}
	res := s.validator.ValidateJSONText(text)
	if !res.Valid {
		return nil, nil, newError(op, KindInvalidInput, nil, "%s", res.Error)
	}
	if s.validator.Options().AllowComments {
		payload = jsonc.ToJSON(payload)
	}
	return res.Parsed, payload, nil
}

// ensureNamespace creates namespace with the configured retry policy.
func (s *Service) ensureNamespace(ctx context.Context, op Operation, namespace string) (string, error) {
	loc, err := storage.EnsureNamespace(ctx, s.store, namespace, s.opts.Retry, s.logger)
	if err != nil {
		return "", newError(op, KindStorage, err, "Failed to prepare storage for %s: %v", namespace, err)
	}
	return loc, nil
}
