package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/livetrack/livetrack/internal/config"
	"github.com/livetrack/livetrack/internal/core/store"
	errwrap "github.com/livetrack/livetrack/internal/errors"
	"github.com/livetrack/livetrack/internal/observability"
)

// openStore opens the configured store and brings its schema up to date.
// A nil cfg loads the effective configuration first.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		loaded, err := loadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, errwrap.WrapDatabaseError(ctx, err, "open store")
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, errwrap.WrapDatabaseError(ctx, err, "migrate store")
	}

	if log := observability.Logger(); log != nil {
		log.Debug("Store ready",
			zap.String("store", describeStore(cfg.Store)),
			zap.Bool("remote", db.Remote()),
			zap.Int("schema_version", store.SchemaVersion))
	}
	return db, nil
}
