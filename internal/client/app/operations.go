package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

// queuedAck is the synthetic body the interception transport returns when a
// mutation was enqueued instead of delivered.
type queuedAck struct {
	Queued bool `json:"queued"`
}

// deliverCreate posts an optimistic record through the intercepted client and
// settles local state based on the outcome: reconcile on a real server
// response, keep the temporary record on a queued ack, roll back on a hard
// rejection. Returns the server-issued id, or "" when the mutation was queued
// and the temporary id still stands.
func (a *App) deliverCreate(ctx context.Context, col models.Collection, tempID string, record any) (string, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return "", err
	}

	resp, err := a.API.Create(ctx, col, payload)
	if err != nil {
		// rolled back; the returned error carries the server's rejection
		return "", a.Optimistic.RollbackCreate(ctx, tempID, err)
	}

	var ack queuedAck
	if json.Unmarshal(resp, &ack) == nil && ack.Queued {
		return "", nil
	}

	if err := a.Optimistic.Reconcile(ctx, col, tempID, resp); err != nil {
		return "", err
	}
	var probe struct {
		Id string `json:"id"`
	}
	if err := json.Unmarshal(resp, &probe); err != nil || probe.Id == "" {
		return "", fmt.Errorf("malformed create response for %s", col)
	}
	return probe.Id, nil
}

// AddTransaction runs the full optimistic create flow for a transaction: the
// record and its balance shift apply locally at once, then delivery decides
// whether it is reconciled, left queued, or rolled back.
func (a *App) AddTransaction(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	stored, err := a.Optimistic.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	serverID, err := a.deliverCreate(ctx, models.CollectionTransactions, stored.Id, stored)
	if err != nil {
		return nil, err
	}
	if serverID == "" {
		return stored, nil
	}
	return a.Store.Transactions().GetByID(ctx, serverID)
}

// AddAccount optimistically creates an account.
func (a *App) AddAccount(ctx context.Context, acc *models.Account) (*models.Account, error) {
	stored, err := a.Optimistic.CreateAccount(ctx, acc)
	if err != nil {
		return nil, err
	}
	serverID, err := a.deliverCreate(ctx, models.CollectionAccounts, stored.Id, stored)
	if err != nil {
		return nil, err
	}
	if serverID == "" {
		return stored, nil
	}
	return a.Store.Accounts().GetByID(ctx, serverID)
}

// AddCategory optimistically creates a category.
func (a *App) AddCategory(ctx context.Context, cat *models.Category) (*models.Category, error) {
	stored, err := a.Optimistic.CreateCategory(ctx, cat)
	if err != nil {
		return nil, err
	}
	serverID, err := a.deliverCreate(ctx, models.CollectionCategories, stored.Id, stored)
	if err != nil {
		return nil, err
	}
	if serverID == "" {
		return stored, nil
	}
	return a.Store.Categories().GetByID(ctx, serverID)
}

// RemoveTransaction deletes a transaction locally and sends (or queues) the
// delete. Records the server never saw are settled entirely on the device.
func (a *App) RemoveTransaction(ctx context.Context, id string) error {
	neverSynced := models.IsTempID(id)

	if err := a.Optimistic.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	if neverSynced {
		// the create is still queued; drop it instead of sending a delete
		return a.dropQueuedFor(ctx, id)
	}
	return a.API.Delete(ctx, models.CollectionTransactions, id)
}

// dropQueuedFor removes pending queue entries that reference a record which
// no longer exists locally.
func (a *App) dropQueuedFor(ctx context.Context, id string) error {
	entries, err := a.Store.Queue().List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		var probe struct {
			Id string `json:"id"`
		}
		if json.Unmarshal(e.Payload, &probe) == nil && probe.Id == id {
			if err := a.Store.Queue().Remove(ctx, e.Id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary fetches the analytics aggregates through the intercepted client,
// falling back to a locally computed summary when the response is the offline
// placeholder, so optimistic records are always reflected.
func (a *App) Summary(ctx context.Context) (*models.AnalyticsSummary, error) {
	resp, err := a.API.Get(ctx, "/api/analytics/summary")
	if err == nil {
		var s models.AnalyticsSummary
		if json.Unmarshal(resp, &s) == nil && !s.Balance.IsZero() {
			return &s, nil
		}
	}
	return a.Optimistic.Summary(ctx)
}
