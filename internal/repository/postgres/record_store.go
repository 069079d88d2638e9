package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"confetti/internal/domain"
	"confetti/internal/repository/migrate"
	"confetti/internal/repository/postgres/migrations"
)

// RecordStore is a domain.RecordStore on a table shared by every cache namespace.
// Rows of other namespaces are never read or written.
type RecordStore struct {
	DB        *sql.DB
	Namespace string
	// ownsDB is set when Close should close DB.
	ownsDB bool
}

// NewRecordStore returns the store of namespace on db. Close leaves db open.
func NewRecordStore(db *sql.DB, namespace string) (*RecordStore, error) {
	if db == nil {
		return nil, domain.ErrStoreNotReady
	}
	if strings.TrimSpace(namespace) == "" {
		return nil, fmt.Errorf("%w: namespace is required", domain.ErrInvalidInput)
	}
	return &RecordStore{DB: db, Namespace: namespace}, nil
}

// OpenDB connects to databaseURL and applies migrations. The pool can be shared by
// the stores of every namespace through NewRecordStore.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open is OpenDB for a single namespace. Close closes the connection pool.
func Open(ctx context.Context, databaseURL, namespace string) (*RecordStore, error) {
	db, err := OpenDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	store, err := NewRecordStore(db, namespace)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := migrate.Apply(ctx, db, migrate.Postgres, migrations.FS); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *RecordStore) LoadRecords(ctx context.Context, keys []string) (map[string]domain.Record, error) {
	out := make(map[string]domain.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	query := `
		SELECT record_key, fields, updated_at
		FROM cache_records
		WHERE namespace = $1 AND record_key = ANY($2)
	`
	rows, err := r.DB.QueryContext(ctx, query, r.Namespace, pq.Array(keys))
	if isUndefinedTable(err) {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreNotReady, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec domain.Record
		var fields []byte
		if err := rows.Scan(&rec.Key, &fields, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", rec.Key, err)
		}
		out[rec.Key] = rec
	}
	return out, rows.Err()
}

// MergeRecords upserts records in one transaction. Stored and incoming fields are
// combined with jsonb concatenation, so incoming fields win and others are kept.
func (r *RecordStore) MergeRecords(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO cache_records (namespace, record_key, fields, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace, record_key) DO UPDATE
		SET fields = cache_records.fields || EXCLUDED.fields, updated_at = EXCLUDED.updated_at
	`
	now := time.Now().UTC()
	for _, rec := range records {
		fields, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Key, err)
		}
		updatedAt := rec.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}
		if _, err := tx.ExecContext(ctx, query, r.Namespace, rec.Key, string(fields), updatedAt); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (r *RecordStore) DeleteRecords(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query := `DELETE FROM cache_records WHERE namespace = $1 AND record_key = ANY($2)`
	if _, err := r.DB.ExecContext(ctx, query, r.Namespace, pq.Array(keys)); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (r *RecordStore) Clear(ctx context.Context) error {
	query := `DELETE FROM cache_records WHERE namespace = $1`
	if _, err := r.DB.ExecContext(ctx, query, r.Namespace); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func (r *RecordStore) Close() error {
	if !r.ownsDB {
		return nil
	}
	return r.DB.Close()
}

// isUndefinedTable reports whether err is Postgres rejecting a missing relation, which
// happens when the store is used before Migrate.
func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
