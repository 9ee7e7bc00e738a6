package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/Kerhoff/WishPool/internal/models"
)

// Epsilon absorbs rounding noise when comparing monetary totals. All
// arithmetic is exact decimal, so this only matters at the fulfillment
// boundary and for the exact-amount check of non-partial items.
var Epsilon = decimal.New(1, -6)

// Derive computes an item's status from its current fields. Pure, no I/O.
//
// An exclusive item is fulfilled exactly when claimed. A cumulative item
// is fulfilled when the total reaches the target (within Epsilon),
// committed while partially funded, and pending at zero. partialAllowed
// does not influence the status, only which contributions are accepted;
// it is part of the signature so the engine sees the full derivation
// input.
func Derive(mode models.Mode, targetCost, totalContributed decimal.Decimal, partialAllowed, claimed bool) models.Status {
	_ = partialAllowed

	if mode == models.ModeExclusive {
		if claimed {
			return models.StatusFulfilled
		}
		return models.StatusPending
	}

	if totalContributed.GreaterThanOrEqual(targetCost.Sub(Epsilon)) {
		return models.StatusFulfilled
	}
	if totalContributed.IsPositive() {
		return models.StatusCommitted
	}
	return models.StatusPending
}
