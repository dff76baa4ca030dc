// Package accounts persists the accounts collection of the local durable store.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/dbx"
)

// Repository is the storage contract for accounts.
type Repository interface {
	CreateOrUpdate(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetAll(ctx context.Context) ([]models.Account, error)
	DeleteByID(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string) error
	ReplaceID(ctx context.Context, oldID string, a *models.Account) error
	AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, a *models.Account) error {
	query := `INSERT INTO accounts (id, name, type, balance, currency, color, icon, synced, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				type = excluded.type,
				balance = excluded.balance,
				currency = excluded.currency,
				color = excluded.color,
				icon = excluded.icon,
				synced = excluded.synced,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		a.Id, a.Name, a.Type, a.Balance.String(), a.Currency, a.Color, a.Icon,
		boolToInt(a.Synced), a.CreatedAt.UTC().Format(time.RFC3339Nano), a.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, type, balance, currency, color, icon, synced, created_at, updated_at
		 FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, balance, currency, color, icon, synced, created_at, updated_at
		 FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select accounts: %w", err)
	}
	defer rows.Close()

	var result []models.Account
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE accounts SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark account synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReplaceID(ctx context.Context, oldID string, a *models.Account) error {
	if err := r.DeleteByID(ctx, oldID); err != nil {
		return err
	}
	return r.CreateOrUpdate(ctx, a)
}

// AdjustBalance shifts the stored balance by delta. The read-modify-write is
// fine here: the store is single-user and callers serialize through it.
func (r *SQLiteRepository) AdjustBalance(ctx context.Context, id string, delta decimal.Decimal) error {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = time.Now().UTC()
	return r.CreateOrUpdate(ctx, a)
}

func scanAccount(scan func(dest ...any) error) (*models.Account, error) {
	var a models.Account
	var balance, createdAt, updatedAt string
	var synced int
	if err := scan(&a.Id, &a.Name, &a.Type, &balance, &a.Currency, &a.Color, &a.Icon,
		&synced, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("invalid balance %q: %w", balance, err)
	}
	a.Synced = synced != 0
	if a.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
