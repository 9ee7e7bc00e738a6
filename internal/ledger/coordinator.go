package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/WishPool/internal/metrics"
	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/notify"
	"github.com/Kerhoff/WishPool/internal/repository"
)

const (
	// maxAttempts bounds the optimistic-concurrency retry loop.
	maxAttempts = 5
	// backoffBase is the unit of the jittered linear backoff between
	// attempts.
	backoffBase = 10 * time.Millisecond
)

// ContributeRequest is one contribution attempt. Amount must be nil for
// exclusive items and set for cumulative items. IdempotencyKey is
// optional; a caller retrying after an ambiguous result should reuse the
// key so the attempt cannot double count.
type ContributeRequest struct {
	ItemID          string
	ContributorID   string
	ContributorName string
	Amount          *decimal.Decimal
	IdempotencyKey  string
}

// Coordinator orchestrates contribution attempts against the ledger
// store: read, validate, derive the next status, conditional write,
// retry on conflicting concurrent writers. It holds no locks across I/O;
// correctness rests on the store's compare-and-set primitive.
type Coordinator struct {
	store   repository.LedgerStore
	broker  *notify.Broker
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

// NewCoordinator creates a Coordinator. broker and m may be nil.
func NewCoordinator(store repository.LedgerStore, broker *notify.Broker, logger *logrus.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{store: store, broker: broker, logger: logger, metrics: m}
}

// Contribute applies one contribution attempt and returns the committed
// item snapshot and the appended record. A failed attempt leaves no
// durable side effect: the record append and the total/claim update are
// one atomic unit inside the store's conditional write.
func (c *Coordinator) Contribute(ctx context.Context, req ContributeRequest) (*models.WishlistItem, *models.ContributionRecord, error) {
	for attempt := 1; ; attempt++ {
		item, err := c.store.Get(ctx, req.ItemID)
		if err != nil {
			return nil, nil, mapStoreErr(err)
		}

		candidate, err := c.nextState(item, req)
		if err != nil {
			c.metrics.ObserveContribution(string(item.Mode), "rejected")
			return nil, nil, err
		}

		record := &models.ContributionRecord{
			ID:              ulid.Make().String(),
			ItemID:          item.ID,
			ContributorID:   req.ContributorID,
			ContributorName: req.ContributorName,
			IdempotencyKey:  req.IdempotencyKey,
			CreatedAt:       time.Now().UTC(),
		}
		if item.Mode == models.ModeCumulative {
			record.Amount = decimal.NullDecimal{Decimal: *req.Amount, Valid: true}
		}

		committed, err := c.store.CompareAndSet(ctx, item.ID, item.Version, candidate, record)
		switch {
		case err == nil:
			c.metrics.ObserveContribution(string(item.Mode), "committed")
			c.publish(notify.ChangeEvent{Item: committed, Record: record})
			c.logger.WithFields(logrus.Fields{
				"item_id":        committed.ID,
				"contributor_id": req.ContributorID,
				"status":         committed.Status,
				"version":        committed.Version,
			}).Info("Contribution committed")
			return committed, record, nil

		case errors.Is(err, repository.ErrVersionMismatch):
			c.metrics.ObserveRetry()
			if attempt >= maxAttempts {
				c.metrics.ObserveContribution(string(item.Mode), "conflict")
				return nil, nil, fmt.Errorf("%w: item %s after %d attempts", ErrConflict, req.ItemID, attempt)
			}
			if err := sleepWithJitter(ctx, attempt); err != nil {
				return nil, nil, err
			}

		case errors.Is(err, repository.ErrDuplicateKey):
			c.metrics.ObserveContribution(string(item.Mode), "duplicate")
			return nil, nil, fmt.Errorf("%w: key %q", ErrDuplicateAttempt, req.IdempotencyKey)

		default:
			return nil, nil, mapStoreErr(err)
		}
	}
}

// nextState validates the request against the snapshot and computes the
// candidate item for the conditional write.
func (c *Coordinator) nextState(item *models.WishlistItem, req ContributeRequest) (*models.WishlistItem, error) {
	if item.Status == models.StatusFulfilled {
		return nil, fmt.Errorf("%w: item %s", ErrAlreadyFulfilled, item.ID)
	}

	candidate := item.Clone()

	switch item.Mode {
	case models.ModeExclusive:
		if req.Amount != nil {
			return nil, fmt.Errorf("%w: exclusive items take no amount", ErrInvalidAmount)
		}
		if item.Claimed {
			return nil, fmt.Errorf("%w: item %s", ErrAlreadyFulfilled, item.ID)
		}
		candidate.Claimed = true

	case models.ModeCumulative:
		if req.Amount == nil {
			return nil, fmt.Errorf("%w: cumulative items require an amount", ErrInvalidAmount)
		}
		amount := *req.Amount
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidAmount, amount)
		}

		remaining := item.Remaining()
		if !item.PartialAllowed {
			if amount.Sub(remaining).Abs().GreaterThan(Epsilon) {
				return nil, fmt.Errorf("%w: partial contributions disallowed, need exactly %s", ErrInvalidAmount, remaining)
			}
		} else if amount.Sub(remaining).GreaterThan(Epsilon) {
			return nil, fmt.Errorf("%w: %s would exceed target by %s", ErrInvalidAmount, amount, amount.Sub(remaining))
		}
		candidate.TotalContributed = item.TotalContributed.Add(amount)

	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidAmount, item.Mode)
	}

	candidate.Status = Derive(candidate.Mode, candidate.TargetCost, candidate.TotalContributed, candidate.PartialAllowed, candidate.Claimed)
	return candidate, nil
}

func (c *Coordinator) publish(ev notify.ChangeEvent) {
	if c.broker != nil {
		c.broker.Publish(ev)
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, repository.ErrAlreadyExists):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

// sleepWithJitter waits before the next CAS attempt, honoring ctx.
func sleepWithJitter(ctx context.Context, attempt int) error {
	d := time.Duration(attempt)*backoffBase + time.Duration(rand.Int63n(int64(backoffBase)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
