// Package categories persists the categories collection of the local durable store.
package categories

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

// Repository is the storage contract for categories.
type Repository interface {
	CreateOrUpdate(ctx context.Context, c *models.Category) error
	GetByID(ctx context.Context, id string) (*models.Category, error)
	GetAll(ctx context.Context) ([]models.Category, error)
	DeleteByID(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string) error
	ReplaceID(ctx context.Context, oldID string, c *models.Category) error
}

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, c *models.Category) error {
	query := `INSERT INTO categories (id, name, type, color, icon, synced, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name,
				type = excluded.type,
				color = excluded.color,
				icon = excluded.icon,
				synced = excluded.synced,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.Id, c.Name, string(c.Type), c.Color, c.Icon, boolToInt(c.Synced),
		c.CreatedAt.UTC().Format(time.RFC3339Nano), c.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, type, color, icon, synced, created_at, updated_at
		 FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, type, color, icon, synced, created_at, updated_at
		 FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}
	defer rows.Close()

	var result []models.Category
	for rows.Next() {
		c, err := scanCategory(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE categories SET synced = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark category synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ReplaceID(ctx context.Context, oldID string, c *models.Category) error {
	if err := r.DeleteByID(ctx, oldID); err != nil {
		return err
	}
	return r.CreateOrUpdate(ctx, c)
}

func scanCategory(scan func(dest ...any) error) (*models.Category, error) {
	var c models.Category
	var typ, createdAt, updatedAt string
	var synced int
	if err := scan(&c.Id, &c.Name, &typ, &c.Color, &c.Icon, &synced, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Type = models.TransactionType(typ)
	c.Synced = synced != 0
	var err error
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt, err)
	}
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
