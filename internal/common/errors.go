// Package common defines shared constants and sentinel errors used across
// PocketLedger client layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Store lifecycle errors. Offline features degrade to no-ops when the
	// local store could not be opened; this sentinel marks that state.
	ErrStoreNotInitialized = errors.New("local store not initialized")

	// Sync engine errors.
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrServerUnavailable = errors.New("server unavailable")

	// Auth errors.
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrTokenExpired     = errors.New("token expired")
	ErrUnauthorized     = errors.New("unauthorized")
)
