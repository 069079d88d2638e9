// Package sqlite is the on-device persistent tier of the normalized cache: one SQLite
// database file per cache namespace.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"confetti/internal/domain"
	"confetti/internal/repository/migrate"
	"confetti/internal/repository/sqlite/migrations"
)

// maxBatch bounds the number of keys bound into one IN (...) list.
const maxBatch = 500

// Store is a domain.RecordStore backed by a SQLite file.
type Store struct {
	sqlDB *sql.DB
}

// Open opens and migrates the store at path, creating the file if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrate.SQLite, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) LoadRecords(ctx context.Context, keys []string) (map[string]domain.Record, error) {
	if s == nil || s.sqlDB == nil {
		return nil, domain.ErrStoreNotReady
	}
	out := make(map[string]domain.Record, len(keys))
	for start := 0; start < len(keys); start += maxBatch {
		end := min(start+maxBatch, len(keys))
		if err := s.loadBatch(ctx, keys[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadBatch(ctx context.Context, keys []string, into map[string]domain.Record) error {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := `SELECT record_key, fields_json, updated_at FROM records WHERE record_key IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",") + `)`
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var fields []byte
		var updatedAt int64
		if err := rows.Scan(&key, &fields, &updatedAt); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		rec, err := decodeRecord(key, fields, updatedAt)
		if err != nil {
			return err
		}
		into[key] = rec
	}
	return rows.Err()
}

// MergeRecords merges each record field by field over the stored one in a single
// transaction.
func (s *Store) MergeRecords(ctx context.Context, records []domain.Record) error {
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotReady
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		var existing domain.Record
		var fields []byte
		var updatedAt int64
		err := tx.QueryRowContext(ctx, `SELECT fields_json, updated_at FROM records WHERE record_key = ?`, rec.Key).
			Scan(&fields, &updatedAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read record %s: %w", rec.Key, err)
		default:
			if existing, err = decodeRecord(rec.Key, fields, updatedAt); err != nil {
				return err
			}
		}
		merged, _ := existing.MergeFields(rec)
		if rec.UpdatedAt.IsZero() {
			merged.UpdatedAt = time.Now().UTC()
		}
		encoded, err := json.Marshal(merged.Fields)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.Key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (record_key, fields_json, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(record_key) DO UPDATE SET
			    fields_json = excluded.fields_json,
			    updated_at = excluded.updated_at`,
			rec.Key, string(encoded), merged.UpdatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *Store) DeleteRecords(ctx context.Context, keys []string) error {
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotReady
	}
	for start := 0; start < len(keys); start += maxBatch {
		batch := keys[start:min(start+maxBatch, len(keys))]
		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		query := `DELETE FROM records WHERE record_key IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + `)`
		if _, err := s.sqlDB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return domain.ErrStoreNotReady
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func decodeRecord(key string, fields []byte, updatedAt int64) (domain.Record, error) {
	rec := domain.Record{Key: key, UpdatedAt: time.UnixMilli(updatedAt).UTC()}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return domain.Record{}, fmt.Errorf("decode record %s: %w", key, err)
	}
	return rec, nil
}
