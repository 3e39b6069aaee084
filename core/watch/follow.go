package watch

import (
	"context"
	"path"

	"github.com/asaidimu/manyjson/core/persistence"
	"github.com/asaidimu/manyjson/core/workspace"
	"go.uber.org/zap"
)

// Follow applies watcher events to svc until ctx is cancelled or the
// watcher is stopped.
func Follow(ctx context.Context, w *Watcher, svc *workspace.Service, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			Apply(ctx, svc, ev, logger)
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// Apply brings svc in line with one change. Edits to known blobs refresh
// them; schema documents appearing or disappearing trigger a reload. The
// association record is ignored since the service writes it itself.
func Apply(ctx context.Context, svc *workspace.Service, ev Event, logger *zap.Logger) {
	log := logger.With(zap.String("locator", ev.Locator), zap.Stringer("op", ev.Op))
	dir, base := path.Dir(ev.Locator), path.Base(ev.Locator)

	if dir == svc.Options().SchemaNamespace {
		if base == persistence.RecordName {
			return
		}
		_, known := svc.Schema(base)
		switch {
		case known && ev.Op != OpDelete:
			if _, err := svc.RefreshSchema(ctx, base); err != nil {
				log.Warn("Schema refresh failed", zap.Error(err))
			}
		case !known && ev.Op == OpDelete:
		default:
			if _, err := svc.LoadSchemas(ctx); err != nil {
				log.Warn("Schema reload failed", zap.Error(err))
			}
		}
		return
	}

	if _, _, owned := svc.File(ev.Locator); !owned {
		return
	}
	if ev.Op == OpDelete {
		log.Warn("Associated data file removed outside the workspace")
		return
	}
	if _, err := svc.RefreshFile(ctx, ev.Locator); err != nil {
		log.Warn("Data file refresh failed", zap.Error(err))
	}
}
