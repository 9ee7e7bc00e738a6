package notify

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/WishPool/internal/models"
)

func testBroker() *Broker {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewBroker(l, nil)
}

func event(itemID string, version int64) ChangeEvent {
	return ChangeEvent{Item: &models.WishlistItem{ID: itemID, Version: version}}
}

func TestSubscribeReceivesPerItemEvents(t *testing.T) {
	b := testBroker()

	sub := b.Subscribe("item-1", 4)
	defer sub.Cancel()

	b.Publish(event("item-1", 2))
	b.Publish(event("item-2", 2)) // different item, not delivered
	b.Publish(event("item-1", 3))

	ev := <-sub.C
	assert.Equal(t, int64(2), ev.Item.Version)
	ev = <-sub.C
	assert.Equal(t, int64(3), ev.Item.Version)

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event for item %s", ev.Item.ID)
	default:
	}
}

func TestWildcardSubscription(t *testing.T) {
	b := testBroker()

	sub := b.Subscribe(AllItems, 4)
	defer sub.Cancel()

	b.Publish(event("item-1", 2))
	b.Publish(event("item-2", 2))

	first := <-sub.C
	second := <-sub.C
	assert.Equal(t, "item-1", first.Item.ID)
	assert.Equal(t, "item-2", second.Item.ID)
}

func TestCancelStopsDelivery(t *testing.T) {
	b := testBroker()

	sub := b.Subscribe("item-1", 4)
	sub.Cancel()

	// No events after Cancel returns; the channel is closed.
	b.Publish(event("item-1", 2))

	_, ok := <-sub.C
	assert.False(t, ok)

	// Cancel is idempotent.
	sub.Cancel()
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	b := testBroker()

	sub := b.Subscribe("item-1", 1)
	defer sub.Cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(event("item-1", 2))
		b.Publish(event("item-1", 3)) // buffer full: dropped, not blocked
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	ev := <-sub.C
	assert.Equal(t, int64(2), ev.Item.Version)
	require.Equal(t, int64(1), b.Dropped())
}

func TestConcurrentCancelAndPublish(t *testing.T) {
	b := testBroker()

	// Hammering Publish while subscribers come and go must not panic
	// (send on closed channel) or deadlock.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(event("item-1", 2))
			}
		}
	}()

	for i := 0; i < 100; i++ {
		sub := b.Subscribe("item-1", 1)
		sub.Cancel()
	}
	close(stop)
}
