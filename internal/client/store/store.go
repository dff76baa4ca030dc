// Package store implements the local durable store: a sqlite-backed,
// per-profile persistence layer holding the record collections, the mutation
// queue, the key/value metadata table, and the response cache. It is a pure
// data layer with no network awareness.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/mvoronin-dev/pocketledger/internal/client/migrations"
	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/accounts"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/categories"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/metadata"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/queue"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/respcache"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/transactions"
	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/dbx"

	_ "modernc.org/sqlite"
)

// Store is the façade over the sqlite database. Every mutating call is
// durable before it returns; sqlite commits synchronously within each call.
type Store struct {
	db *sql.DB

	transactions transactions.Repository
	accounts     accounts.Repository
	categories   categories.Repository
	queue        queue.Repository
	metadata     metadata.Repository
	respCache    respcache.Repository
}

// Open opens (or creates) the database at dsn and applies pending schema
// migrations. Opening an already-migrated database is a no-op for the schema:
// goose tracks applied versions and the DDL uses IF NOT EXISTS guards, so
// calling Open repeatedly never recreates or truncates existing collections.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreNotInitialized, err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrStoreNotInitialized, err)
	}

	return &Store{
		db:           db,
		transactions: transactions.NewSQLiteRepository(db),
		accounts:     accounts.NewSQLiteRepository(db),
		categories:   categories.NewSQLiteRepository(db),
		queue:        queue.NewSQLiteRepository(db),
		metadata:     metadata.NewSQLiteRepository(db),
		respCache:    respcache.NewSQLiteRepository(db),
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ready guards every accessor so a half-constructed store degrades into the
// distinct not-initialized error instead of a nil dereference.
func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return common.ErrStoreNotInitialized
	}
	return nil
}

// Transactions returns the transactions repository.
func (s *Store) Transactions() transactions.Repository { return s.transactions }

// Accounts returns the accounts repository.
func (s *Store) Accounts() accounts.Repository { return s.accounts }

// Categories returns the categories repository.
func (s *Store) Categories() categories.Repository { return s.categories }

// Queue returns the mutation queue repository.
func (s *Store) Queue() queue.Repository { return s.queue }

// Metadata returns the key/value metadata repository.
func (s *Store) Metadata() metadata.Repository { return s.metadata }

// ResponseCache returns the response cache repository.
func (s *Store) ResponseCache() respcache.Repository { return s.respCache }

// Token reads the stored bearer token; empty string when absent.
func (s *Store) Token(ctx context.Context) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	v, err := s.metadata.Get(ctx, metadata.KeyAuthToken)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// SetToken stores the bearer token used to authenticate replayed requests.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.metadata.Set(ctx, metadata.KeyAuthToken, []byte(token))
}

// PutRecord upserts a JSON record into the named collection. Used by the
// sync and interception layers, which handle payloads generically.
func (s *Store) PutRecord(ctx context.Context, col models.Collection, payload json.RawMessage) error {
	if err := s.ready(); err != nil {
		return err
	}
	switch col {
	case models.CollectionTransactions:
		var t models.Transaction
		if err := json.Unmarshal(payload, &t); err != nil {
			return fmt.Errorf("invalid transaction payload: %w", err)
		}
		return s.transactions.CreateOrUpdate(ctx, &t)
	case models.CollectionAccounts:
		var a models.Account
		if err := json.Unmarshal(payload, &a); err != nil {
			return fmt.Errorf("invalid account payload: %w", err)
		}
		return s.accounts.CreateOrUpdate(ctx, &a)
	case models.CollectionCategories:
		var c models.Category
		if err := json.Unmarshal(payload, &c); err != nil {
			return fmt.Errorf("invalid category payload: %w", err)
		}
		return s.categories.CreateOrUpdate(ctx, &c)
	}
	return fmt.Errorf("unknown collection %q", col)
}

// MarkRecordSynced flags a record in the named collection as server-confirmed.
func (s *Store) MarkRecordSynced(ctx context.Context, col models.Collection, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	switch col {
	case models.CollectionTransactions:
		return s.transactions.MarkSynced(ctx, id)
	case models.CollectionAccounts:
		return s.accounts.MarkSynced(ctx, id)
	case models.CollectionCategories:
		return s.categories.MarkSynced(ctx, id)
	}
	return fmt.Errorf("unknown collection %q", col)
}

// DeleteRecord removes a record from the named collection.
func (s *Store) DeleteRecord(ctx context.Context, col models.Collection, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	switch col {
	case models.CollectionTransactions:
		return s.transactions.DeleteByID(ctx, id)
	case models.CollectionAccounts:
		return s.accounts.DeleteByID(ctx, id)
	case models.CollectionCategories:
		return s.categories.DeleteByID(ctx, id)
	}
	return fmt.Errorf("unknown collection %q", col)
}

// ReplaceRecordID atomically swaps a temporary id for the server-confirmed
// record: the record row itself, any rows referencing the temporary id
// (transactions pointing at a temp account or category), and queued payloads
// that still mention it. Runs in one transaction.
func (s *Store) ReplaceRecordID(ctx context.Context, col models.Collection, tempID string, serverPayload json.RawMessage) error {
	if err := s.ready(); err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := transactions.NewSQLiteRepository(tx)
		queueRepo := queue.NewSQLiteRepository(tx)

		var newID string
		switch col {
		case models.CollectionTransactions:
			var t models.Transaction
			if err := json.Unmarshal(serverPayload, &t); err != nil {
				return fmt.Errorf("invalid transaction payload: %w", err)
			}
			t.Synced = true
			newID = t.Id
			if err := txRepo.ReplaceID(ctx, tempID, &t); err != nil {
				return err
			}
		case models.CollectionAccounts:
			var a models.Account
			if err := json.Unmarshal(serverPayload, &a); err != nil {
				return fmt.Errorf("invalid account payload: %w", err)
			}
			a.Synced = true
			newID = a.Id
			if err := accounts.NewSQLiteRepository(tx).ReplaceID(ctx, tempID, &a); err != nil {
				return err
			}
			if err := txRepo.UpdateAccountRefs(ctx, tempID, newID); err != nil {
				return err
			}
		case models.CollectionCategories:
			var c models.Category
			if err := json.Unmarshal(serverPayload, &c); err != nil {
				return fmt.Errorf("invalid category payload: %w", err)
			}
			c.Synced = true
			newID = c.Id
			if err := categories.NewSQLiteRepository(tx).ReplaceID(ctx, tempID, &c); err != nil {
				return err
			}
			if err := txRepo.UpdateCategoryRefs(ctx, tempID, newID); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown collection %q", col)
		}

		return queueRepo.RewritePayloadRefs(ctx, tempID, newID)
	})
}

// Snapshot is a whole-store dump used for backup and the initial offline seed.
type Snapshot struct {
	ExportedAt   time.Time            `json:"exportedAt"`
	Transactions []models.Transaction `json:"transactions"`
	Accounts     []models.Account     `json:"accounts"`
	Categories   []models.Category    `json:"categories"`
	Metadata     map[string]string    `json:"metadata"`
}

// ExportAll dumps the record collections and metadata. The mutation queue and
// response cache are not part of a snapshot: pending mutations belong to the
// device that made them, and cached responses are rebuildable.
func (s *Store) ExportAll(ctx context.Context) (*Snapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	txs, err := s.transactions.GetAll(ctx, transactions.Filter{})
	if err != nil {
		return nil, err
	}
	accs, err := s.accounts.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	cats, err := s.categories.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := s.metadata.List(ctx)
	if err != nil {
		return nil, err
	}
	metaStr := make(map[string]string, len(meta))
	for k, v := range meta {
		metaStr[k] = string(v)
	}
	return &Snapshot{
		ExportedAt:   time.Now().UTC(),
		Transactions: txs,
		Accounts:     accs,
		Categories:   cats,
		Metadata:     metaStr,
	}, nil
}

// ImportAll restores a snapshot, replacing the record collections in one
// transaction. Metadata keys from the snapshot overwrite existing ones.
func (s *Store) ImportAll(ctx context.Context, snap *Snapshot) error {
	if err := s.ready(); err != nil {
		return err
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, table := range []string{"transactions", "accounts", "categories"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to reset %s: %w", table, err)
			}
		}

		txRepo := transactions.NewSQLiteRepository(tx)
		for i := range snap.Transactions {
			if err := txRepo.CreateOrUpdate(ctx, &snap.Transactions[i]); err != nil {
				return err
			}
		}
		accRepo := accounts.NewSQLiteRepository(tx)
		for i := range snap.Accounts {
			if err := accRepo.CreateOrUpdate(ctx, &snap.Accounts[i]); err != nil {
				return err
			}
		}
		catRepo := categories.NewSQLiteRepository(tx)
		for i := range snap.Categories {
			if err := catRepo.CreateOrUpdate(ctx, &snap.Categories[i]); err != nil {
				return err
			}
		}
		metaRepo := metadata.NewSQLiteRepository(tx)
		for k, v := range snap.Metadata {
			if err := metaRepo.Set(ctx, k, []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
}
