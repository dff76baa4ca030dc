package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/transactions"
	"github.com/mvoronin-dev/pocketledger/internal/common"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_IdempotentInit(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db")

	s1, err := Open(ctx, dsn)
	require.NoError(t, err)

	tx := &models.Transaction{
		Id:        "t1",
		AccountId: "a1",
		Amount:    decimal.NewFromInt(10),
		Type:      models.TypeExpense,
		Date:      time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s1.Transactions().CreateOrUpdate(ctx, tx))
	require.NoError(t, s1.Close())

	// a second Open must not recreate or truncate collections
	s2, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Transactions().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.AccountId)
}

func TestNilStore_DegradesToNotInitialized(t *testing.T) {
	var s *Store
	ctx := context.Background()

	_, err := s.Token(ctx)
	assert.True(t, errors.Is(err, common.ErrStoreNotInitialized))

	err = s.PutRecord(ctx, models.CollectionAccounts, json.RawMessage(`{}`))
	assert.True(t, errors.Is(err, common.ErrStoreNotInitialized))

	_, err = s.ExportAll(ctx)
	assert.True(t, errors.Is(err, common.ErrStoreNotInitialized))
}

func TestTokenRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SetToken(ctx, "bearer-xyz"))
	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bearer-xyz", tok)
}

func TestPutRecord_DispatchByCollection(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	payload := json.RawMessage(`{"id":"acc1","name":"Wallet","balance":"120.50","currency":"EUR","createdAt":"` + now + `","updatedAt":"` + now + `"}`)
	require.NoError(t, s.PutRecord(ctx, models.CollectionAccounts, payload))

	acc, err := s.Accounts().GetByID(ctx, "acc1")
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(decimal.RequireFromString("120.50")))

	err = s.PutRecord(ctx, models.Collection("unknown"), payload)
	require.Error(t, err)
}

func TestReplaceRecordID_PropagatesReferences(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	tempAcc := models.NewTempID()
	require.NoError(t, s.Accounts().CreateOrUpdate(ctx, &models.Account{
		Id: tempAcc, Name: "Cash", Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.Transactions().CreateOrUpdate(ctx, &models.Transaction{
		Id: "t1", AccountId: tempAcc, Amount: decimal.NewFromInt(5),
		Type: models.TypeExpense, Date: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.Queue().Enqueue(ctx, &models.QueueEntry{
		Id: "q1", Operation: models.OpCreate, Collection: models.CollectionTransactions,
		Payload:    json.RawMessage(`{"accountId":"` + tempAcc + `"}`),
		EnqueuedAt: now,
	}))

	serverPayload := json.RawMessage(`{"id":"srv-acc-1","name":"Cash","balance":"0","createdAt":"` +
		now.Format(time.RFC3339Nano) + `","updatedAt":"` + now.Format(time.RFC3339Nano) + `"}`)
	require.NoError(t, s.ReplaceRecordID(ctx, models.CollectionAccounts, tempAcc, serverPayload))

	_, err := s.Accounts().GetByID(ctx, tempAcc)
	assert.True(t, errors.Is(err, common.ErrorNotFound))

	acc, err := s.Accounts().GetByID(ctx, "srv-acc-1")
	require.NoError(t, err)
	assert.True(t, acc.Synced)

	txRec, err := s.Transactions().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "srv-acc-1", txRec.AccountId, "transaction refs must follow the id swap")

	entries, err := s.Queue().List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, `{"accountId":"srv-acc-1"}`, string(entries[0].Payload))
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openStore(t)
	now := time.Now().UTC()

	require.NoError(t, src.Accounts().CreateOrUpdate(ctx, &models.Account{
		Id: "a1", Name: "Wallet", Balance: decimal.NewFromInt(100), CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, src.Transactions().CreateOrUpdate(ctx, &models.Transaction{
		Id: "t1", AccountId: "a1", Amount: decimal.NewFromInt(20),
		Type: models.TypeIncome, Date: now, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, src.Categories().CreateOrUpdate(ctx, &models.Category{
		Id: "c1", Name: "Food", Type: models.TypeExpense, CreatedAt: now, UpdatedAt: now,
	}))

	snap, err := src.ExportAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 1)
	require.Len(t, snap.Accounts, 1)
	require.Len(t, snap.Categories, 1)

	dst := openStore(t)
	// pre-existing rows must be replaced by the restore
	require.NoError(t, dst.Accounts().CreateOrUpdate(ctx, &models.Account{
		Id: "stale", Name: "Old", Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, dst.ImportAll(ctx, snap))

	accs, err := dst.Accounts().GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, accs, 1)
	assert.Equal(t, "a1", accs[0].Id)

	txs, err := dst.Transactions().GetAll(ctx, transactions.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.NewFromInt(20)))
}
