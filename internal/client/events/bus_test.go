package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvoronin-dev/pocketledger/internal/client/models"
)

func TestPublish_ReachesAllSubscribers(t *testing.T) {
	b := NewBus()

	var got1, got2 []Event
	b.Subscribe(func(e Event) { got1 = append(got1, e) })
	b.Subscribe(func(e Event) { got2 = append(got2, e) })

	b.Publish(Event{Type: RecordCreated, Collection: models.CollectionTransactions, RecordID: "t1"})

	assert.Len(t, got1, 1)
	assert.Len(t, got2, 1)
	assert.Equal(t, RecordCreated, got1[0].Type)
	assert.Equal(t, "t1", got2[0].RecordID)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	b := NewBus()

	var n int
	off := b.Subscribe(func(Event) { n++ })

	b.Publish(Event{Type: ViewsInvalidated})
	off()
	b.Publish(Event{Type: ViewsInvalidated})

	assert.Equal(t, 1, n)
}

func TestPublish_PanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBus()

	var reached bool
	b.Subscribe(func(Event) { panic("bad subscriber") })
	b.Subscribe(func(Event) { reached = true })

	assert.NotPanics(t, func() {
		b.Publish(Event{Type: SyncCompleted})
	})
	assert.True(t, reached, "later subscribers still run after a panic")
}
