package repository

import (
	"context"
	"errors"

	"github.com/Kerhoff/WishPool/internal/models"
)

// Store-level sentinel errors. The ledger maps these onto its caller-facing
// taxonomy; implementations must return them (possibly wrapped) so that
// errors.Is works across the boundary.
var (
	// ErrNotFound means the item does not exist or has been tombstoned.
	ErrNotFound = errors.New("item not found")
	// ErrVersionMismatch means the conditional write lost to a concurrent
	// committer and the caller must re-read before retrying.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrDuplicateKey means the item's log already holds a record with the
	// attempted idempotency key.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
	// ErrAlreadyExists means Create was called with an ID already in use.
	ErrAlreadyExists = errors.New("item already exists")
	// ErrUnavailable wraps transient storage failures (connection loss,
	// timeouts). Callers may retry with backoff.
	ErrUnavailable = errors.New("storage unavailable")
)

// LedgerStore is the durable record of wishlist items and their
// contribution logs. It interprets no business rules; it only guarantees
// atomicity and isolation of the conditional write and durability of
// committed state.
//
// All reads exclude tombstoned items.
type LedgerStore interface {
	// Create inserts a new item at version 1.
	Create(ctx context.Context, item *models.WishlistItem) error

	// Get returns the current item snapshot including its version.
	Get(ctx context.Context, itemID string) (*models.WishlistItem, error)

	// List returns all live items ordered by creation time.
	List(ctx context.Context) ([]*models.WishlistItem, error)

	// CompareAndSet replaces the item's mutable fields and, when record is
	// non-nil, appends it to the item's log - both in one atomic unit. The
	// write succeeds only if the stored version equals expectedVersion; on
	// success the store bumps the version and returns the stored item.
	CompareAndSet(ctx context.Context, itemID string, expectedVersion int64, item *models.WishlistItem, record *models.ContributionRecord) (*models.WishlistItem, error)

	// Delete tombstones the item. Contribution records are retained. The
	// tombstone is atomic with respect to concurrent CompareAndSet calls:
	// a racing conditional write either commits fully before the tombstone
	// or fails.
	Delete(ctx context.Context, itemID string) error

	// Log returns the item's append-only contribution log in commit order.
	// Works for tombstoned items too, so the audit trail stays readable.
	Log(ctx context.Context, itemID string) ([]*models.ContributionRecord, error)

	// Close releases underlying resources.
	Close() error
}
