// Package queue persists the mutation queue: an ordered, durable log of
// pending create/update/delete operations not yet confirmed by the server.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/dbx"
)

// Repository is the storage contract for the mutation queue.
//
// List returns the full pending set in FIFO order without removing anything;
// Remove is idempotent. Requeue moves an entry to the back of the order and
// bumps its retry counter.
type Repository interface {
	Enqueue(ctx context.Context, e *models.QueueEntry) error
	List(ctx context.Context) ([]models.QueueEntry, error)
	Remove(ctx context.Context, id string) error
	Requeue(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	RewritePayloadRefs(ctx context.Context, oldID, newID string) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Enqueue appends e to the tail of the queue. The AUTOINCREMENT position
// column fixes FIFO order across restarts.
func (r *SQLiteRepository) Enqueue(ctx context.Context, e *models.QueueEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_queue (id, operation, collection, payload, enqueued_at, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Id, string(e.Operation), string(e.Collection), []byte(e.Payload),
		e.EnqueuedAt.UTC().Format(time.RFC3339Nano), e.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	return nil
}

// List returns every pending entry in insertion order.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT position, id, operation, collection, payload, enqueued_at, retry_count
		 FROM sync_queue ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	defer rows.Close()

	var result []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var op, col, enqueuedAt string
		var payload []byte
		if err := rows.Scan(&e.Position, &e.Id, &op, &col, &payload, &enqueuedAt, &e.RetryCount); err != nil {
			return nil, err
		}
		e.Operation = models.Operation(op)
		e.Collection = models.Collection(col)
		e.Payload = payload
		if e.EnqueuedAt, err = time.Parse(time.RFC3339Nano, enqueuedAt); err != nil {
			return nil, fmt.Errorf("invalid enqueued_at %q: %w", enqueuedAt, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Remove deletes one entry. Removing a missing id is a no-op, not an error.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return nil
}

// Requeue deletes the entry and reinserts it so it receives a fresh tail
// position, with retry_count incremented. Delete-and-reinsert keeps the
// AUTOINCREMENT sequence authoritative for ordering.
func (r *SQLiteRepository) Requeue(ctx context.Context, id string) error {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, operation, collection, payload, enqueued_at, retry_count
		 FROM sync_queue WHERE id = ?`, id)

	var e models.QueueEntry
	var op, col, enqueuedAt string
	var payload []byte
	err := row.Scan(&e.Id, &op, &col, &payload, &enqueuedAt, &e.RetryCount)
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read queue entry: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to requeue entry: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sync_queue (id, operation, collection, payload, enqueued_at, retry_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Id, op, col, payload, enqueuedAt, e.RetryCount+1)
	if err != nil {
		return fmt.Errorf("failed to requeue entry: %w", err)
	}
	return nil
}

// Count returns the number of pending entries. Pending-count displays always
// re-derive from the table, never from a separately maintained counter.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

// RewritePayloadRefs substitutes oldID for newID inside queued JSON payloads.
// Temporary ids are prefix+timestamp+random, so a plain byte substitution
// cannot hit an unrelated value.
func (r *SQLiteRepository) RewritePayloadRefs(ctx context.Context, oldID, newID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_queue SET payload = CAST(REPLACE(CAST(payload AS TEXT), ?, ?) AS BLOB)
		 WHERE CAST(payload AS TEXT) LIKE '%' || ? || '%'`,
		oldID, newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to rewrite payload refs: %w", err)
	}
	return nil
}
