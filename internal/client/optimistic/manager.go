// Package optimistic applies local mutations immediately, before the server
// confirms them. A create gets a temporary id and shows up in views at once;
// when the server answers, the record is reconciled in place, and if the
// mutation ultimately fails, the exact previous state is restored.
package optimistic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mvoronin-dev/pocketledger/internal/client/events"
	"github.com/mvoronin-dev/pocketledger/internal/client/models"
	"github.com/mvoronin-dev/pocketledger/internal/client/repositories/transactions"
	"github.com/mvoronin-dev/pocketledger/internal/client/store"
	"github.com/mvoronin-dev/pocketledger/internal/logging"
)

// RollbackError wraps the failure that forced a rollback. Callers surface the
// original cause to the user and refetch server state when Refetch is set.
type RollbackError struct {
	Cause error
	// Refetch signals that local state may have diverged beyond what the
	// rollback could restore, so views should reload from the server.
	Refetch bool
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("mutation rolled back: %v", e.Cause)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// Manager coordinates optimistic state changes over the local store and
// announces them on the event bus.
type Manager struct {
	store *store.Store
	bus   *events.Bus
	log   logging.Logger
	now   func() time.Time
}

// NewManager builds an optimistic update manager.
func NewManager(st *store.Store, bus *events.Bus, log logging.Logger) *Manager {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Manager{store: st, bus: bus, log: log, now: time.Now}
}

// CreateTransaction persists tx under a temporary id and shifts the affected
// account balance by its signed amount, so lists and aggregates agree before
// the server has seen anything. Returns the stored copy, temp id included.
func (m *Manager) CreateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	now := m.now().UTC()
	stored := *tx
	if stored.Id == "" {
		stored.Id = models.NewTempID()
	}
	stored.Synced = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := m.store.Transactions().CreateOrUpdate(ctx, &stored); err != nil {
		return nil, err
	}
	if stored.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, stored.AccountId, stored.SignedAmount()); err != nil {
			// undo the insert so store and aggregates never disagree
			_ = m.store.Transactions().DeleteByID(ctx, stored.Id)
			return nil, err
		}
	}

	m.publish(events.RecordCreated, models.CollectionTransactions, stored.Id, &stored)
	return &stored, nil
}

// UpdateTransaction replaces an existing transaction and moves the balance
// deltas: the old signed amount is backed out of the old account, the new one
// applied to the new account (which may be the same).
func (m *Manager) UpdateTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	prev, err := m.store.Transactions().GetByID(ctx, tx.Id)
	if err != nil {
		return nil, err
	}

	updated := *tx
	updated.Synced = false
	updated.CreatedAt = prev.CreatedAt
	updated.UpdatedAt = m.now().UTC()
	if err := m.store.Transactions().CreateOrUpdate(ctx, &updated); err != nil {
		return nil, err
	}

	if prev.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, prev.AccountId, prev.SignedAmount().Neg()); err != nil {
			return nil, err
		}
	}
	if updated.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, updated.AccountId, updated.SignedAmount()); err != nil {
			return nil, err
		}
	}

	m.publish(events.RecordUpdated, models.CollectionTransactions, updated.Id, &updated)
	return &updated, nil
}

// DeleteTransaction removes a transaction and backs its amount out of the
// account balance.
func (m *Manager) DeleteTransaction(ctx context.Context, id string) error {
	prev, err := m.store.Transactions().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Transactions().DeleteByID(ctx, id); err != nil {
		return err
	}
	if prev.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, prev.AccountId, prev.SignedAmount().Neg()); err != nil {
			return err
		}
	}
	m.publish(events.RecordDeleted, models.CollectionTransactions, id, prev)
	return nil
}

// CreateAccount persists a new account under a temporary id.
func (m *Manager) CreateAccount(ctx context.Context, a *models.Account) (*models.Account, error) {
	now := m.now().UTC()
	stored := *a
	if stored.Id == "" {
		stored.Id = models.NewTempID()
	}
	stored.Synced = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if err := m.store.Accounts().CreateOrUpdate(ctx, &stored); err != nil {
		return nil, err
	}
	m.publish(events.RecordCreated, models.CollectionAccounts, stored.Id, &stored)
	return &stored, nil
}

// CreateCategory persists a new category under a temporary id.
func (m *Manager) CreateCategory(ctx context.Context, c *models.Category) (*models.Category, error) {
	now := m.now().UTC()
	stored := *c
	if stored.Id == "" {
		stored.Id = models.NewTempID()
	}
	stored.Synced = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if err := m.store.Categories().CreateOrUpdate(ctx, &stored); err != nil {
		return nil, err
	}
	m.publish(events.RecordCreated, models.CollectionCategories, stored.Id, &stored)
	return &stored, nil
}

// Reconcile swaps the temporary record for the server-confirmed copy. The
// swap is in place, so the record keeps its position in date-ordered views,
// and no duplicate ever appears. Aggregates are untouched: the optimistic
// apply already shifted them, and the confirmed record carries the same
// amounts.
func (m *Manager) Reconcile(ctx context.Context, col models.Collection, tempID string, serverPayload json.RawMessage) error {
	if err := m.store.ReplaceRecordID(ctx, col, tempID, serverPayload); err != nil {
		return err
	}
	var probe struct {
		Id string `json:"id"`
	}
	_ = json.Unmarshal(serverPayload, &probe)
	m.log.Debug(ctx, "record reconciled", "collection", col, "tempId", tempID, "serverId", probe.Id)
	m.publish(events.RecordReconciled, col, probe.Id, serverPayload)
	return nil
}

// RollbackCreate undoes an optimistic transaction create after the server
// rejected it: the record disappears and the account balance returns to its
// exact prior value. The returned error wraps cause so callers can show the
// real failure.
func (m *Manager) RollbackCreate(ctx context.Context, id string, cause error) error {
	tx, err := m.store.Transactions().GetByID(ctx, id)
	if err != nil {
		// record already gone; state cannot be restored precisely
		m.publish(events.RecordRolledBack, models.CollectionTransactions, id, nil)
		return &RollbackError{Cause: cause, Refetch: true}
	}
	if err := m.store.Transactions().DeleteByID(ctx, id); err != nil {
		return err
	}
	if tx.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, tx.AccountId, tx.SignedAmount().Neg()); err != nil {
			return err
		}
	}
	m.log.Info(ctx, "optimistic create rolled back", "id", id, "cause", cause)
	m.publish(events.RecordRolledBack, models.CollectionTransactions, id, tx)
	return &RollbackError{Cause: cause}
}

// RollbackUpdate restores the pre-update snapshot of a transaction, balance
// shift included.
func (m *Manager) RollbackUpdate(ctx context.Context, current *models.Transaction, prev *models.Transaction, cause error) error {
	if err := m.store.Transactions().CreateOrUpdate(ctx, prev); err != nil {
		return err
	}
	if current.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, current.AccountId, current.SignedAmount().Neg()); err != nil {
			return err
		}
	}
	if prev.AccountId != "" {
		if err := m.store.Accounts().AdjustBalance(ctx, prev.AccountId, prev.SignedAmount()); err != nil {
			return err
		}
	}
	m.publish(events.RecordRolledBack, models.CollectionTransactions, prev.Id, prev)
	return &RollbackError{Cause: cause}
}

// Summary computes the analytics aggregates from local data, so the analytics
// view works offline and reflects optimistic records immediately.
func (m *Manager) Summary(ctx context.Context) (*models.AnalyticsSummary, error) {
	txs, err := m.store.Transactions().GetAll(ctx, transactions.Filter{})
	if err != nil {
		return nil, err
	}

	monthStart := m.monthStart()
	var s models.AnalyticsSummary
	for i := range txs {
		tx := &txs[i]
		amt := tx.Amount
		if tx.Type == models.TypeIncome {
			s.TotalIncome = s.TotalIncome.Add(amt)
			if !tx.Date.Before(monthStart) {
				s.MonthlyIncome = s.MonthlyIncome.Add(amt)
			}
		} else {
			s.TotalExpense = s.TotalExpense.Add(amt)
			if !tx.Date.Before(monthStart) {
				s.MonthlyExpense = s.MonthlyExpense.Add(amt)
			}
		}
	}
	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	return &s, nil
}

func (m *Manager) monthStart() time.Time {
	now := m.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (m *Manager) publish(t events.Type, col models.Collection, id string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(events.Event{Type: t, Collection: col, RecordID: id, Payload: payload})
}
