// Package repository selects the persistent tier of the normalized cache.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"confetti/internal/domain"
	"confetti/internal/repository/postgres"
	"confetti/internal/repository/sqlite"
)

// Store providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
)

// StoreConfig holds configuration for opening a record store.
type StoreConfig struct {
	Provider string
	// Dir holds one SQLite file per namespace.
	Dir string
	// DB is the shared Postgres pool. When nil, DatabaseURL is opened per store.
	DB          *sql.DB
	DatabaseURL string
}

// OpenStore opens the record store of namespace. Provider "memory" returns a nil store,
// which leaves the cache memory-only.
func OpenStore(ctx context.Context, cfg StoreConfig, namespace string) (domain.RecordStore, error) {
	switch cfg.Provider {
	case ProviderSQLite, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		store, err := sqlite.Open(ctx, filepath.Join(dir, namespace+".db"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store %s: %w", namespace, err)
		}
		return store, nil
	case ProviderPostgres:
		var store *postgres.RecordStore
		var err error
		switch {
		case cfg.DB != nil:
			store, err = postgres.NewRecordStore(cfg.DB, namespace)
		case cfg.DatabaseURL != "":
			store, err = postgres.Open(ctx, cfg.DatabaseURL, namespace)
		default:
			return nil, fmt.Errorf("%w: database url is required for the postgres store", domain.ErrInvalidInput)
		}
		if err != nil {
			return nil, fmt.Errorf("open postgres store %s: %w", namespace, err)
		}
		return store, nil
	case ProviderMemory:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", domain.ErrInvalidInput, cfg.Provider)
	}
}
