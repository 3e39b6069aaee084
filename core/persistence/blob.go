package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/asaidimu/manyjson/core/storage"
	"go.uber.org/zap"
)

// BlobRecordStore keeps the association record as a single JSON blob.
type BlobRecordStore struct {
	store   storage.BlobStore
	locator string
	logger  *zap.Logger
}

var _ RecordStore = (*BlobRecordStore)(nil)

// NewBlobRecordStore stores the record at locator in store.
func NewBlobRecordStore(store storage.BlobStore, locator string, logger *zap.Logger) *BlobRecordStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobRecordStore{store: store, locator: locator, logger: logger}
}

// Locator is where the record lives.
func (b *BlobRecordStore) Locator() string { return b.locator }

func (b *BlobRecordStore) Load(ctx context.Context) ([]AssociationRecord, error) {
	data, err := b.store.Read(ctx, b.locator)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read association record: %w", err)
	}
	return UnmarshalRecords(data)
}

func (b *BlobRecordStore) Save(ctx context.Context, records []AssociationRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}
	if err := b.store.Write(ctx, b.locator, data); err != nil {
		return fmt.Errorf("failed to write association record: %w", err)
	}
	b.logger.Debug("Association record saved", zap.String("locator", b.locator), zap.Int("schemas", len(records)))
	return nil
}
