// Package transactions persists the transactions collection of the local
// durable store.
package transactions

import (
	"context"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

// Filter narrows GetAll results. Zero-value fields are ignored.
type Filter struct {
	From       *time.Time
	To         *time.Time
	AccountId  string
	CategoryId string
	Type       models.TransactionType
}

// Repository is the storage contract for transactions.
//
// CreateOrUpdate is an upsert by id (last write wins). GetAll returns rows
// ordered by date descending. ReplaceID swaps a temporary id for the
// server-issued record in one step.
type Repository interface {
	CreateOrUpdate(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	GetAll(ctx context.Context, f Filter) ([]models.Transaction, error)
	DeleteByID(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string) error
	ReplaceID(ctx context.Context, oldID string, t *models.Transaction) error
	UpdateAccountRefs(ctx context.Context, oldID, newID string) error
	UpdateCategoryRefs(ctx context.Context, oldID, newID string) error
}
