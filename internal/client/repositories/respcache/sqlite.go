// Package respcache persists the response cache used by the request
// interception layer: serialized HTTP responses keyed by
// "generation:METHOD:path?query", each paired with a ":metadata" sibling row
// carrying timestamp and expiry.
package respcache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mvoronin-dev/pocketledger/internal/dbx"
)

// Repository is a plain KV contract; the interception layer owns key layout
// and TTL semantics. Get returns (nil, nil) on a miss.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, like string) ([]string, error)
	DeleteLike(ctx context.Context, like string) error
	DeleteNotLike(ctx context.Context, like string) error
	Clear(ctx context.Context) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx, `SELECT value FROM response_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache[%s]: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO response_cache (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set cache[%s]: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache[%s]: %w", key, err)
	}
	return nil
}

// Keys lists keys matching a SQL LIKE pattern, e.g. "%:metadata".
func (r *SQLiteRepository) Keys(ctx context.Context, like string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM response_cache WHERE key LIKE ? ORDER BY key`, like)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *SQLiteRepository) DeleteLike(ctx context.Context, like string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key LIKE ?`, like); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

// DeleteNotLike purges every row whose key does not match the pattern.
// Used on activation to drop all cache generations except the current one.
func (r *SQLiteRepository) DeleteNotLike(ctx context.Context, like string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache WHERE key NOT LIKE ?`, like); err != nil {
		return fmt.Errorf("failed to purge stale cache generations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM response_cache`); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
