package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"gatekeeper/internal/core/ports"
	"gatekeeper/internal/infrastructure/repositories/memory"
	"gatekeeper/internal/infrastructure/repositories/postgres"
	"gatekeeper/pkg/config"
)

// StoreFactory creates the whitelist store with fallback support: when
// the database is unavailable the service degrades to an in-memory store
// rather than refusing to start.
type StoreFactory struct {
	usePostgres bool
	db          *sqlx.DB
	logger      *zap.SugaredLogger
}

// NewStoreFactory connects to PostgreSQL when enabled in the config.
func NewStoreFactory(cfg *config.Config, logger *zap.SugaredLogger) (*StoreFactory, error) {
	factory := &StoreFactory{
		usePostgres: cfg.Database.Enabled,
		logger:      logger,
	}

	if cfg.Database.Enabled {
		db, err := postgres.Connect(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			logger.Warnw("failed to connect to postgres, falling back to memory store",
				"error", err,
			)
			factory.usePostgres = false
		} else {
			factory.db = db
			logger.Info("using postgres store")
		}
	}

	if !factory.usePostgres {
		logger.Info("using memory store")
	}

	return factory, nil
}

// CreateStore creates the whitelist store.
func (f *StoreFactory) CreateStore() ports.Store {
	if f.usePostgres && f.db != nil {
		return postgres.NewStore(f.db)
	}
	return memory.NewStore()
}

// Close closes the database connection if used.
func (f *StoreFactory) Close() error {
	if f.db != nil {
		return f.db.Close()
	}
	return nil
}

// HealthCheck checks database connection health.
func (f *StoreFactory) HealthCheck(ctx context.Context) error {
	if f.usePostgres && f.db != nil {
		return f.db.PingContext(ctx)
	}
	return nil
}
