package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/metrics"
	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/notify"
	"github.com/Kerhoff/WishPool/internal/repository"
)

// Admin applies structural edits to wishlist items: creation, target and
// mode changes, deletion. Whether the caller is actually an admin is the
// identity collaborator's problem; this type assumes the gate has been
// passed.
type Admin struct {
	store   repository.LedgerStore
	broker  *notify.Broker
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewAdmin creates an Admin mutation handler. broker and m may be nil.
func NewAdmin(store repository.LedgerStore, broker *notify.Broker, logger *logrus.Logger, m *metrics.Metrics) *Admin {
	return &Admin{store: store, broker: broker, logger: logger, metrics: m}
}

// CreateItem validates the spec and inserts a new pending item.
func (a *Admin) CreateItem(ctx context.Context, spec models.ItemSpec) (*models.WishlistItem, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	now := time.Now().UTC()
	item := &models.WishlistItem{
		ID:               uuid.NewString(),
		Name:             spec.Name,
		URL:              spec.URL,
		Notes:            spec.Notes,
		TargetCost:       spec.TargetCost,
		Mode:             spec.Mode,
		PartialAllowed:   spec.PartialAllowed,
		TotalContributed: decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// Derived even at creation: a zero-target cumulative item is born
	// fulfilled, everything else pending.
	item.Status = Derive(item.Mode, item.TargetCost, item.TotalContributed, item.PartialAllowed, item.Claimed)

	if err := a.store.Create(ctx, item); err != nil {
		return nil, mapStoreErr(err)
	}

	a.metrics.ObserveItemCreated()
	a.logger.WithFields(logrus.Fields{
		"item_id": item.ID,
		"mode":    item.Mode,
		"target":  item.TargetCost,
	}).Info("Wishlist item created")
	return item, nil
}

// UpdateItem changes target cost, mode and partial policy, then re-runs
// the status derivation against the existing totals. A lowered target can
// flip a committed item to fulfilled without any new contribution record;
// prior contributions are never rejected or undone.
func (a *Admin) UpdateItem(ctx context.Context, itemID string, spec models.ItemSpec) (*models.WishlistItem, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	for attempt := 1; ; attempt++ {
		item, err := a.store.Get(ctx, itemID)
		if err != nil {
			return nil, mapStoreErr(err)
		}

		candidate := item.Clone()
		candidate.Name = spec.Name
		candidate.URL = spec.URL
		candidate.Notes = spec.Notes
		candidate.TargetCost = spec.TargetCost
		candidate.Mode = spec.Mode
		candidate.PartialAllowed = spec.PartialAllowed
		candidate.Status = Derive(candidate.Mode, candidate.TargetCost, candidate.TotalContributed, candidate.PartialAllowed, candidate.Claimed)

		committed, err := a.store.CompareAndSet(ctx, itemID, item.Version, candidate, nil)
		switch {
		case err == nil:
			if a.broker != nil {
				a.broker.Publish(notify.ChangeEvent{Item: committed})
			}
			a.logger.WithFields(logrus.Fields{
				"item_id": committed.ID,
				"status":  committed.Status,
				"version": committed.Version,
			}).Info("Wishlist item updated")
			return committed, nil

		case errors.Is(err, repository.ErrVersionMismatch):
			a.metrics.ObserveRetry()
			if attempt >= maxAttempts {
				return nil, fmt.Errorf("%w: item %s after %d attempts", ErrConflict, itemID, attempt)
			}
			if err := sleepWithJitter(ctx, attempt); err != nil {
				return nil, err
			}

		default:
			return nil, mapStoreErr(err)
		}
	}
}

// DeleteItem tombstones the item. The tombstone is atomic with respect to
// concurrent contributions: a racing Contribute either commits fully
// before deletion takes effect or fails NotFound. Contribution records
// are retained for audit.
func (a *Admin) DeleteItem(ctx context.Context, itemID string) error {
	item, err := a.store.Get(ctx, itemID)
	if err != nil {
		return mapStoreErr(err)
	}

	if err := a.store.Delete(ctx, itemID); err != nil {
		return mapStoreErr(err)
	}

	if a.broker != nil {
		a.broker.Publish(notify.ChangeEvent{Item: item, Deleted: true})
	}
	a.logger.WithField("item_id", itemID).Info("Wishlist item deleted")
	return nil
}

// GetItem returns the current snapshot of one item.
func (a *Admin) GetItem(ctx context.Context, itemID string) (*models.WishlistItem, error) {
	item, err := a.store.Get(ctx, itemID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return item, nil
}

// ListItems returns all live items.
func (a *Admin) ListItems(ctx context.Context) ([]*models.WishlistItem, error) {
	items, err := a.store.List(ctx)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return items, nil
}

// Contributions returns the item's append-only log in commit order.
func (a *Admin) Contributions(ctx context.Context, itemID string) ([]*models.ContributionRecord, error) {
	records, err := a.store.Log(ctx, itemID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return records, nil
}
