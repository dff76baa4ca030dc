package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of mutation a queue entry replays.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// QueueEntry is one pending mutation not yet confirmed by the server.
// Position fixes FIFO order; re-enqueued entries get a fresh tail position so
// a persistently failing entry does not starve later independent ones.
type QueueEntry struct {
	Id         string          `json:"id"`
	Position   int64           `json:"-"`
	Operation  Operation       `json:"operation"`
	Collection Collection      `json:"collection"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
}
