// Package events is a small in-process publish/subscribe bus. The optimistic
// update layer and the sync engine publish record-change and invalidation
// events on it; view-layer caches subscribe and update themselves, so the
// core never has to know about any specific UI state container.
package events

import (
	"sync"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

// Type names the event kinds published on the bus.
type Type string

const (
	RecordCreated    Type = "record.created"
	RecordUpdated    Type = "record.updated"
	RecordDeleted    Type = "record.deleted"
	RecordReconciled Type = "record.reconciled"
	RecordRolledBack Type = "record.rolledback"
	ViewsInvalidated Type = "views.invalidated"
	SyncCompleted    Type = "sync.completed"
)

// Event carries what changed. Payload is event-specific (a record, a sync
// summary) and may be nil.
type Event struct {
	Type       Type
	Collection models.Collection
	RecordID   string
	Payload    any
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; panics are swallowed so one bad subscriber cannot
// take down a sync pass.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]Handler
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every current subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(e)
		}()
	}
}
