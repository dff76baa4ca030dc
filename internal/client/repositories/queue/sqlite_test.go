package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_queue (
  position INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  operation TEXT NOT NULL,
  collection TEXT NOT NULL,
  payload BLOB NOT NULL,
  enqueued_at TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return db
}

func entry(op models.Operation, payload string) *models.QueueEntry {
	return &models.QueueEntry{
		Id:         uuid.NewString(),
		Operation:  op,
		Collection: models.CollectionTransactions,
		Payload:    json.RawMessage(payload),
		EnqueuedAt: time.Now().UTC(),
	}
}

func TestEnqueueList_FIFO(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	first := entry(models.OpCreate, `{"n":1}`)
	second := entry(models.OpUpdate, `{"n":2}`)
	third := entry(models.OpDelete, `{"n":3}`)
	for _, e := range []*models.QueueEntry{first, second, third} {
		require.NoError(t, r.Enqueue(ctx, e))
	}

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, first.Id, got[0].Id)
	assert.Equal(t, second.Id, got[1].Id)
	assert.Equal(t, third.Id, got[2].Id)
	assert.Equal(t, models.OpUpdate, got[1].Operation)
	assert.JSONEq(t, `{"n":3}`, string(got[2].Payload))
}

func TestRemove_Idempotent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	e := entry(models.OpCreate, `{}`)
	require.NoError(t, r.Enqueue(ctx, e))
	require.NoError(t, r.Remove(ctx, e.Id))
	require.NoError(t, r.Remove(ctx, e.Id), "removing a missing id is a no-op")

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRequeue_MovesToBackAndBumpsRetry(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	failing := entry(models.OpCreate, `{"fails":true}`)
	healthy := entry(models.OpCreate, `{"fails":false}`)
	require.NoError(t, r.Enqueue(ctx, failing))
	require.NoError(t, r.Enqueue(ctx, healthy))

	require.NoError(t, r.Requeue(ctx, failing.Id))

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, healthy.Id, got[0].Id, "requeued entry must not block later entries")
	assert.Equal(t, failing.Id, got[1].Id)
	assert.Equal(t, 1, got[1].RetryCount)
	assert.Equal(t, 0, got[0].RetryCount)
}

func TestRequeue_ThenNewEnqueueStaysBehind(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	a := entry(models.OpCreate, `{}`)
	require.NoError(t, r.Enqueue(ctx, a))
	require.NoError(t, r.Requeue(ctx, a.Id))

	b := entry(models.OpCreate, `{}`)
	require.NoError(t, r.Enqueue(ctx, b))

	got, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.Id, got[0].Id)
	assert.Equal(t, b.Id, got[1].Id, "fresh enqueue goes behind the requeued entry")
}

func TestDurability_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + dir + "/queue.db"

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE sync_queue (
  position INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  operation TEXT NOT NULL,
  collection TEXT NOT NULL,
  payload BLOB NOT NULL,
  enqueued_at TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	ctx := context.Background()
	r := NewSQLiteRepository(db)
	kept := entry(models.OpCreate, `{"keep":true}`)
	removed := entry(models.OpCreate, `{"keep":false}`)
	require.NoError(t, r.Enqueue(ctx, kept))
	require.NoError(t, r.Enqueue(ctx, removed))
	require.NoError(t, r.Remove(ctx, removed.Id))
	require.NoError(t, db.Close())

	// simulate a restart
	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db2.Close() })

	got, err := NewSQLiteRepository(db2).List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, kept.Id, got[0].Id)
}

func TestRewritePayloadRefs(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	tempID := models.NewTempID()
	e := entry(models.OpCreate, `{"accountId":"`+tempID+`","amount":"5"}`)
	other := entry(models.OpCreate, `{"accountId":"acc-real"}`)
	require.NoError(t, r.Enqueue(ctx, e))
	require.NoError(t, r.Enqueue(ctx, other))

	require.NoError(t, r.RewritePayloadRefs(ctx, tempID, "srv-9"))

	got, err := r.List(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"accountId":"srv-9","amount":"5"}`, string(got[0].Payload))
	assert.JSONEq(t, `{"accountId":"acc-real"}`, string(got[1].Payload))
}
