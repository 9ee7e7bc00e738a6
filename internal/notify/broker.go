package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/Kerhoff/WishPool/internal/metrics"
	"github.com/Kerhoff/WishPool/internal/models"
)

// AllItems subscribes to committed transitions of every item.
const AllItems = ""

// ChangeEvent is one committed state transition. Record is set for
// contributions and nil for admin edits; Deleted marks the tombstone
// event. Item.Version lets a consumer re-sequence events for one item.
type ChangeEvent struct {
	Item    *models.WishlistItem
	Record  *models.ContributionRecord
	Deleted bool
}

// Broker fans committed change events out to per-item subscribers. The
// ledger publishes synchronously right after each successful conditional
// write, so per item the stream follows commit order.
//
// Sends never block a committer: a subscriber whose buffer is full loses
// the event, which is counted. After Cancel returns, no further event is
// delivered on the subscription's channel.
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[int64]*Subscription
	nextID  atomic.Int64
	dropped atomic.Int64
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewBroker creates an empty broker. metrics may be nil.
func NewBroker(logger *logrus.Logger, m *metrics.Metrics) *Broker {
	return &Broker{
		subs:    make(map[string]map[int64]*Subscription),
		logger:  logger,
		metrics: m,
	}
}

// Subscription is a cancellable stream of change events for one item (or
// all items when subscribed with AllItems).
type Subscription struct {
	// C delivers events in commit order. Closed by Cancel.
	C <-chan ChangeEvent

	ch     chan ChangeEvent
	id     int64
	itemID string
	broker *Broker
	once   sync.Once
}

// Subscribe registers a subscriber for itemID with the given channel
// buffer. Pass AllItems to receive every item's transitions.
func (b *Broker) Subscribe(itemID string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ChangeEvent, buffer)
	sub := &Subscription{
		C:      ch,
		ch:     ch,
		id:     b.nextID.Inc(),
		itemID: itemID,
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[itemID] == nil {
		b.subs[itemID] = make(map[int64]*Subscription)
	}
	b.subs[itemID][sub.id] = sub
	return sub
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once. When Cancel returns, no further sends will occur.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[s.itemID]; m != nil {
			delete(m, s.id)
			if len(m) == 0 {
				delete(b.subs, s.itemID)
			}
		}
		close(s.ch)
	})
}

// Publish delivers the event to the item's subscribers and to wildcard
// subscribers. Sends happen under the read lock, so a concurrent Cancel
// (which takes the write lock before closing) cannot race a send.
func (b *Broker) Publish(ev ChangeEvent) {
	if ev.Item == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	b.deliver(b.subs[ev.Item.ID], ev)
	b.deliver(b.subs[AllItems], ev)
}

func (b *Broker) deliver(subs map[int64]*Subscription, ev ChangeEvent) {
	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Inc()
			b.metrics.ObserveEventDropped()
			if b.logger != nil {
				b.logger.WithFields(logrus.Fields{
					"item_id": ev.Item.ID,
					"version": ev.Item.Version,
				}).Warn("Dropped change event: subscriber buffer full")
			}
		}
	}
}

// Dropped returns how many events were lost to full subscriber buffers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
