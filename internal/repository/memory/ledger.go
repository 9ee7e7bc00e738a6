package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/repository"
)

type entry struct {
	item    *models.WishlistItem
	log     []*models.ContributionRecord
	deleted bool
}

// LedgerStore is an in-process implementation of repository.LedgerStore.
// It backs tests and local development and mirrors the conditional-write
// semantics of the SQL stores exactly: the mutex only guards map access,
// never a caller's read-modify-write cycle, so version conflicts surface
// the same way they do against a real database.
type LedgerStore struct {
	mu    sync.Mutex
	items map[string]*entry
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates an empty in-memory store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{items: make(map[string]*entry)}
}

// Create inserts a new item at version 1.
func (s *LedgerStore) Create(_ context.Context, item *models.WishlistItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.items[item.ID]; ok && !e.deleted {
		return repository.ErrAlreadyExists
	}

	stored := item.Clone()
	stored.Version = 1
	s.items[item.ID] = &entry{item: stored}
	item.Version = 1
	return nil
}

// Get returns a snapshot of the item.
func (s *LedgerStore) Get(_ context.Context, itemID string) (*models.WishlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[itemID]
	if !ok || e.deleted {
		return nil, repository.ErrNotFound
	}
	return e.item.Clone(), nil
}

// List returns all live items ordered by creation time.
func (s *LedgerStore) List(_ context.Context) ([]*models.WishlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*models.WishlistItem, 0, len(s.items))
	for _, e := range s.items {
		if e.deleted {
			continue
		}
		items = append(items, e.item.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// CompareAndSet applies the mutation if the stored version still matches.
// Item update and record append happen under one lock acquisition, which
// is this store's equivalent of a transaction.
func (s *LedgerStore) CompareAndSet(_ context.Context, itemID string, expectedVersion int64, item *models.WishlistItem, record *models.ContributionRecord) (*models.WishlistItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[itemID]
	if !ok || e.deleted {
		return nil, repository.ErrNotFound
	}
	if e.item.Version != expectedVersion {
		return nil, repository.ErrVersionMismatch
	}
	if record != nil && record.IdempotencyKey != "" {
		for _, r := range e.log {
			if r.IdempotencyKey == record.IdempotencyKey {
				return nil, repository.ErrDuplicateKey
			}
		}
	}

	stored := item.Clone()
	stored.ID = itemID
	stored.CreatedAt = e.item.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	stored.Version = expectedVersion + 1
	e.item = stored

	if record != nil {
		rec := *record
		rec.ItemID = itemID
		e.log = append(e.log, &rec)
	}

	return stored.Clone(), nil
}

// Delete tombstones the item; its log stays readable.
func (s *LedgerStore) Delete(_ context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[itemID]
	if !ok || e.deleted {
		return repository.ErrNotFound
	}
	e.deleted = true
	return nil
}

// Log returns the item's contribution log in commit order.
func (s *LedgerStore) Log(_ context.Context, itemID string) ([]*models.ContributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[itemID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := make([]*models.ContributionRecord, len(e.log))
	for i, r := range e.log {
		rec := *r
		out[i] = &rec
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *LedgerStore) Close() error { return nil }
