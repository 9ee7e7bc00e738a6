package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionRecord is one entry in an item's append-only contribution
// log. Records are never mutated or deleted; a deleted item keeps its log
// for audit.
//
// Amount is unset for exclusive claims and carries the contributed sum for
// cumulative items. IdempotencyKey is optional; when present, a second
// record with the same key on the same item is rejected by the store.
type ContributionRecord struct {
	ID              string              `json:"id" db:"id"`
	ItemID          string              `json:"item_id" db:"item_id"`
	ContributorID   string              `json:"contributor_id" db:"contributor_id"`
	ContributorName string              `json:"contributor_name" db:"contributor_name"`
	Amount          decimal.NullDecimal `json:"amount,omitempty" db:"amount"`
	IdempotencyKey  string              `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
}
