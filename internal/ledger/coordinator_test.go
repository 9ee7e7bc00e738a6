package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kerhoff/WishPool/internal/models"
	"github.com/Kerhoff/WishPool/internal/notify"
	"github.com/Kerhoff/WishPool/internal/repository/memory"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newTestLedger wires a coordinator and admin over a fresh memory store.
func newTestLedger(t *testing.T) (*Coordinator, *Admin) {
	t.Helper()
	store := memory.NewLedgerStore()
	l := testLogger()
	broker := notify.NewBroker(l, nil)
	return NewCoordinator(store, broker, l, nil), NewAdmin(store, broker, l, nil)
}

func createItem(t *testing.T, admin *Admin, spec models.ItemSpec) *models.WishlistItem {
	t.Helper()
	item, err := admin.CreateItem(context.Background(), spec)
	require.NoError(t, err)
	return item
}

func amountReq(itemID, contributor, amount string) ContributeRequest {
	a := d(amount)
	return ContributeRequest{
		ItemID:          itemID,
		ContributorID:   contributor,
		ContributorName: contributor,
		Amount:          &a,
	}
}

func TestContributeCumulativeHappyPath(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Espresso machine", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})

	committed, record, err := coord.Contribute(ctx, amountReq(item.ID, "alice", "250.00"))
	require.NoError(t, err)
	assert.True(t, committed.TotalContributed.Equal(d("250.00")))
	assert.Equal(t, models.StatusCommitted, committed.Status)
	assert.Equal(t, int64(2), committed.Version)
	require.True(t, record.Amount.Valid)
	assert.True(t, record.Amount.Decimal.Equal(d("250.00")))

	log, err := admin.Contributions(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "alice", log[0].ContributorID)
}

func TestContributeValidation(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	shared := createItem(t, admin, models.ItemSpec{
		Name: "Bike", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})
	exclusive := createItem(t, admin, models.ItemSpec{
		Name: "Watch", TargetCost: d("300.00"), Mode: models.ModeExclusive,
	})

	tests := []struct {
		name string
		req  ContributeRequest
		want error
	}{
		{"missing item", amountReq("no-such-id", "alice", "10"), ErrNotFound},
		{"zero amount", amountReq(shared.ID, "alice", "0"), ErrInvalidAmount},
		{"negative amount", amountReq(shared.ID, "alice", "-5"), ErrInvalidAmount},
		{"amount on exclusive", amountReq(exclusive.ID, "alice", "300"), ErrInvalidAmount},
		{"no amount on cumulative", ContributeRequest{ItemID: shared.ID, ContributorID: "alice"}, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := coord.Contribute(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// No durable side effects from any rejected attempt.
	log, err := admin.Contributions(ctx, shared.ID)
	require.NoError(t, err)
	assert.Empty(t, log)
	got, err := admin.GetItem(ctx, shared.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalContributed.IsZero())
}

func TestContributeExactAmountRequired(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Lego set", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: false,
	})

	_, _, err := coord.Contribute(ctx, amountReq(item.ID, "alice", "799.99"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	committed, _, err := coord.Contribute(ctx, amountReq(item.ID, "alice", "800.00"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFulfilled, committed.Status)
	assert.True(t, committed.TotalContributed.Equal(d("800.00")))
}

func TestContributeOvershootRejected(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Grill", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})

	_, _, err := coord.Contribute(ctx, amountReq(item.ID, "alice", "250.00"))
	require.NoError(t, err)

	// Would exceed the target by 1.00: rejected, not capped.
	_, _, err = coord.Contribute(ctx, amountReq(item.ID, "bob", "551.00"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	committed, _, err := coord.Contribute(ctx, amountReq(item.ID, "bob", "550.00"))
	require.NoError(t, err)
	assert.True(t, committed.TotalContributed.Equal(d("800.00")))
	assert.Equal(t, models.StatusFulfilled, committed.Status)

	_, _, err = coord.Contribute(ctx, amountReq(item.ID, "carol", "1.00"))
	assert.ErrorIs(t, err, ErrAlreadyFulfilled)
}

func TestConcurrentCumulativeContributions(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	const n = 16
	item := createItem(t, admin, models.ItemSpec{
		Name: "Trip fund", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})
	share := d("800.00").Div(decimal.NewFromInt(n)) // 50.00 each

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := share
			_, _, errs[i] = coord.Contribute(ctx, ContributeRequest{
				ItemID:        item.ID,
				ContributorID: "user",
				Amount:        &a,
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "contribution %d", i)
	}

	committed, err := admin.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, committed.TotalContributed.Equal(d("800.00")), "got %s", committed.TotalContributed)
	assert.Equal(t, models.StatusFulfilled, committed.Status)

	log, err := admin.Contributions(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, log, n)
}

func TestExclusiveClaimRace(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Headphones", TargetCost: d("300.00"), Mode: models.ModeExclusive,
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = coord.Contribute(ctx, ContributeRequest{
				ItemID:        item.ID,
				ContributorID: "racer",
			})
		}(i)
	}
	wg.Wait()

	var succeeded, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errorIsAny(err, ErrAlreadyFulfilled, ErrConflict):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, lost)

	// Exclusive invariant: the log never holds more than one record.
	log, err := admin.Contributions(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)

	committed, err := admin.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, committed.Claimed)
	assert.Equal(t, models.StatusFulfilled, committed.Status)
}

func TestIdempotencyKeyRejectsRetry(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Console", TargetCost: d("800.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})

	req := amountReq(item.ID, "alice", "100.00")
	req.IdempotencyKey = "attempt-1"

	_, _, err := coord.Contribute(ctx, req)
	require.NoError(t, err)

	// A retry after an ambiguous result carries the same key and must not
	// double count.
	_, _, err = coord.Contribute(ctx, req)
	assert.ErrorIs(t, err, ErrDuplicateAttempt)

	committed, err := admin.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, committed.TotalContributed.Equal(d("100.00")))

	log, err := admin.Contributions(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestContributeAgainstDeletedItem(t *testing.T) {
	coord, admin := newTestLedger(t)
	ctx := context.Background()

	item := createItem(t, admin, models.ItemSpec{
		Name: "Gone", TargetCost: d("100.00"),
		Mode: models.ModeCumulative, PartialAllowed: true,
	})
	require.NoError(t, admin.DeleteItem(ctx, item.ID))

	_, _, err := coord.Contribute(ctx, amountReq(item.ID, "alice", "10.00"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
