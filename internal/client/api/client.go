// Package api is the HTTP client for the remote PocketLedger REST API.
// The sync engine depends only on this narrow surface: stable endpoint paths
// per collection, JSON bodies, 2xx-success status codes, and a bearer token.
package api

import (
	"context"
	"encoding/json"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

// TokenSource supplies the current bearer token. The sync engine wires this
// to the metadata table so replayed requests always carry the freshest token.
type TokenSource func(ctx context.Context) (string, error)

// Client is the remote API contract used by the sync engine and the CLI.
type Client interface {
	Ping(ctx context.Context) error
	Login(ctx context.Context, email, password string) (string, error)
	Create(ctx context.Context, col models.Collection, payload json.RawMessage) (json.RawMessage, error)
	Update(ctx context.Context, col models.Collection, id string, payload json.RawMessage) error
	Delete(ctx context.Context, col models.Collection, id string) error
	Get(ctx context.Context, path string) (json.RawMessage, error)
}
