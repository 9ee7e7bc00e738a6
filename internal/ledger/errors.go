package ledger

import "errors"

// Caller-facing error taxonomy. Every operation either commits fully or
// returns one of these with no durable side effect.
var (
	// ErrNotFound means the referenced item does not exist (or was deleted).
	ErrNotFound = errors.New("wishlist item not found")

	// ErrInvalidAmount covers non-positive amounts, an amount on an
	// exclusive item, a missing amount on a cumulative item, the wrong
	// exact amount when partial contributions are disallowed, and amounts
	// that would push the total past the target.
	ErrInvalidAmount = errors.New("invalid contribution amount")

	// ErrAlreadyFulfilled means the item no longer accepts contributions.
	ErrAlreadyFulfilled = errors.New("item already fulfilled")

	// ErrConflict means the retry budget was exhausted under concurrent
	// writers. The caller may retry the whole operation.
	ErrConflict = errors.New("too many concurrent updates")

	// ErrStorageUnavailable means the underlying store failed transiently.
	// Never masked as success; the caller may retry with backoff.
	ErrStorageUnavailable = errors.New("ledger storage unavailable")

	// ErrDuplicateAttempt means the item's log already carries the
	// contribution's idempotency key; the earlier attempt committed.
	ErrDuplicateAttempt = errors.New("duplicate contribution attempt")

	// ErrInvalidSpec wraps item spec validation failures on create/update.
	ErrInvalidSpec = errors.New("invalid item spec")
)
