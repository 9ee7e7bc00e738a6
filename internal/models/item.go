package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
)

// Mode describes how a wishlist item gets fulfilled.
type Mode string

const (
	// ModeExclusive means a single contributor claims the whole item.
	ModeExclusive Mode = "exclusive"
	// ModeCumulative means monetary contributions add up toward the target.
	ModeCumulative Mode = "cumulative"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeExclusive || m == ModeCumulative
}

// Status is derived from an item's mode, target, total and claim state.
// It is never set directly; the ledger recomputes it on every mutation.
type Status string

const (
	// StatusPending means nothing has been contributed yet.
	StatusPending Status = "pending"
	// StatusCommitted means a cumulative item has partial contributions.
	StatusCommitted Status = "committed"
	// StatusFulfilled means the item is claimed or fully funded.
	StatusFulfilled Status = "fulfilled"
)

// WishlistItem is one entry on the shared wishlist.
//
// Version is the optimistic-locking token: every committed mutation bumps
// it by one, and conditional writes only succeed against the version the
// writer read. TotalContributed and Claimed only ever move forward here;
// admin edits are the single path that can put an item over its target.
type WishlistItem struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	URL              string          `json:"url,omitempty" db:"url"`
	Notes            string          `json:"notes,omitempty" db:"notes"`
	TargetCost       decimal.Decimal `json:"target_cost" db:"target_cost"`
	Mode             Mode            `json:"mode" db:"mode"`
	PartialAllowed   bool            `json:"partial_allowed" db:"partial_allowed"`
	TotalContributed decimal.Decimal `json:"total_contributed" db:"total_contributed"`
	Claimed          bool            `json:"claimed" db:"claimed"`
	Status           Status          `json:"status" db:"status"`
	Version          int64           `json:"version" db:"version"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining returns the amount still needed to reach the target. Can be
// negative after a downward admin edit of an overfunded item.
func (i *WishlistItem) Remaining() decimal.Decimal {
	return i.TargetCost.Sub(i.TotalContributed)
}

// Clone returns a deep copy. decimal.Decimal is immutable, so a field
// copy is enough.
func (i *WishlistItem) Clone() *WishlistItem {
	c := *i
	return &c
}

// ItemSpec carries the admin-editable fields for item creation and
// structural edits.
type ItemSpec struct {
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Notes          string          `json:"notes"`
	TargetCost     decimal.Decimal `json:"target_cost"`
	Mode           Mode            `json:"mode"`
	PartialAllowed bool            `json:"partial_allowed"`
}

// Validate checks the spec and returns every violation at once.
func (s ItemSpec) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(s.Name) == "" {
		result = multierror.Append(result, fmt.Errorf("name must not be empty"))
	}
	if s.TargetCost.IsNegative() {
		result = multierror.Append(result, fmt.Errorf("target_cost must be non-negative, got %s", s.TargetCost))
	}
	if !s.Mode.Valid() {
		result = multierror.Append(result, fmt.Errorf("mode must be %q or %q, got %q", ModeExclusive, ModeCumulative, s.Mode))
	}
	if s.PartialAllowed && s.Mode == ModeExclusive {
		result = multierror.Append(result, fmt.Errorf("partial_allowed is only meaningful for %q items", ModeCumulative))
	}

	return result.ErrorOrNil()
}
