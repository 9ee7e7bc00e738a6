package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Kerhoff/WishPool/internal/models"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		mode    models.Mode
		target  string
		total   string
		claimed bool
		want    models.Status
	}{
		{"exclusive unclaimed", models.ModeExclusive, "800", "0", false, models.StatusPending},
		{"exclusive claimed", models.ModeExclusive, "800", "0", true, models.StatusFulfilled},
		{"cumulative empty", models.ModeCumulative, "800", "0", false, models.StatusPending},
		{"cumulative partial", models.ModeCumulative, "800", "250", false, models.StatusCommitted},
		{"cumulative exact", models.ModeCumulative, "800", "800", false, models.StatusFulfilled},
		{"cumulative within epsilon", models.ModeCumulative, "800", "799.9999995", false, models.StatusFulfilled},
		{"cumulative just below epsilon", models.ModeCumulative, "800", "799.99", false, models.StatusCommitted},
		{"cumulative over target after edit", models.ModeCumulative, "700", "800", false, models.StatusFulfilled},
		{"zero target cumulative", models.ModeCumulative, "0", "0", false, models.StatusFulfilled},
		{"tiny contribution", models.ModeCumulative, "800", "0.01", false, models.StatusCommitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.mode, d(tt.target), d(tt.total), true, tt.claimed)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveIgnoresPartialAllowed(t *testing.T) {
	// partialAllowed gates which contributions are accepted, not what the
	// resulting status is.
	for _, partial := range []bool{true, false} {
		got := Derive(models.ModeCumulative, d("800"), d("250"), partial, false)
		assert.Equal(t, models.StatusCommitted, got)
	}
}

func TestDriftAcrossManySmallContributions(t *testing.T) {
	// 8000 contributions of 0.10 must sum to exactly 800. This is the
	// reason money is decimal, not float64.
	total := decimal.Zero
	step := d("0.10")
	for i := 0; i < 8000; i++ {
		total = total.Add(step)
	}
	assert.True(t, total.Equal(d("800")), "got %s", total)
	assert.Equal(t, models.StatusFulfilled, Derive(models.ModeCumulative, d("800"), total, true, false))
}
