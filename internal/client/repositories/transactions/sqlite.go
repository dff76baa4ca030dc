package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/common"
	"github.com/mvoronin-dev/pocketledger/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// CreateOrUpdate upserts a transaction by id. On conflict every semantic
// column is replaced; last write wins.
func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, t *models.Transaction) error {
	query := `INSERT INTO transactions (id, account_id, category_id, amount, type, description, date, synced, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id,
				category_id = excluded.category_id,
				amount = excluded.amount,
				type = excluded.type,
				description = excluded.description,
				date = excluded.date,
				synced = excluded.synced,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.Id, t.AccountId, t.CategoryId, t.Amount.String(), string(t.Type), t.Description,
		t.Date.UTC().Format(time.RFC3339Nano), boolToInt(t.Synced),
		t.CreatedAt.UTC().Format(time.RFC3339Nano), t.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return nil
}

// GetByID fetches one transaction; common.ErrorNotFound when missing.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, category_id, amount, type, description, date, synced, created_at, updated_at
		 FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select transaction: %w", err)
	}
	return t, nil
}

// GetAll lists transactions matching f, newest date first.
func (r *SQLiteRepository) GetAll(ctx context.Context, f Filter) ([]models.Transaction, error) {
	query := `SELECT id, account_id, category_id, amount, type, description, date, synced, created_at, updated_at
			  FROM transactions`
	var conds []string
	var args []any
	if f.From != nil {
		conds = append(conds, "date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		conds = append(conds, "date <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.AccountId != "" {
		conds = append(conds, "account_id = ?")
		args = append(args, f.AccountId)
	}
	if f.CategoryId != "" {
		conds = append(conds, "category_id = ?")
		args = append(args, f.CategoryId)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select transactions: %w", err)
	}
	defer rows.Close()

	var result []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByID removes a transaction; deleting a missing id is a no-op.
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// MarkSynced flags a transaction as server-confirmed.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark transaction synced: %w", err)
	}
	return nil
}

// ReplaceID deletes the row stored under oldID and upserts t (which carries
// the server-issued id).
func (r *SQLiteRepository) ReplaceID(ctx context.Context, oldID string, t *models.Transaction) error {
	if err := r.DeleteByID(ctx, oldID); err != nil {
		return err
	}
	return r.CreateOrUpdate(ctx, t)
}

// UpdateAccountRefs rewrites account references from oldID to newID.
// Used when a temporary account id is swapped for a server-issued one.
func (r *SQLiteRepository) UpdateAccountRefs(ctx context.Context, oldID, newID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET account_id = ? WHERE account_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to update account refs: %w", err)
	}
	return nil
}

// UpdateCategoryRefs rewrites category references from oldID to newID.
func (r *SQLiteRepository) UpdateCategoryRefs(ctx context.Context, oldID, newID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET category_id = ? WHERE category_id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("failed to update category refs: %w", err)
	}
	return nil
}

func scanTransaction(scan func(dest ...any) error) (*models.Transaction, error) {
	var t models.Transaction
	var amount, typ, date, createdAt, updatedAt string
	var synced int
	if err := scan(&t.Id, &t.AccountId, &t.CategoryId, &amount, &typ, &t.Description,
		&date, &synced, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	t.Type = models.TransactionType(typ)
	t.Synced = synced != 0
	if t.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
