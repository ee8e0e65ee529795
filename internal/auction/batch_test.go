package auction

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func book(bids, asks []*Order) (b, a []*Order) {
	return bids, asks
}

func requireTrade(t *testing.T, report BatchReport, price string, qty uint32) {
	t.Helper()
	require.Equal(t, OutcomeTrade, report.Outcome)
	assert.True(t, report.Price.Equal(decimal.RequireFromString(price)),
		"clearing price = %s, want %s", report.Price, price)
	assert.Equal(t, qty, report.Qty)
}

func TestCalculateBatchHorizontalOverlap(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("7", 2), bid("6", 1), bid("5", 3), bid("3", 2)},
		[]*Order{ask("2", 1), ask("3", 1), ask("4", 2), ask("5", 1), ask("7", 3)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "5", 5)

	// 7x2 and 6x1 clear in full; the 5x3 bid is partially filled and keeps
	// resting with 1 remaining.
	require.Len(t, report.ClearedBids, 2)
	require.Len(t, report.ClearedAsks, 4)
	require.Len(t, bids, 2)
	assert.Equal(t, uint32(1), bids[0].Qty)
	assert.True(t, bids[0].Price.Equal(decimal.NewFromInt(5)))
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(decimal.NewFromInt(7)))
}

func TestCalculateBatchVerticalOverlap(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("8", 2), bid("6", 1), bid("5", 1), bid("4", 2), bid("1", 2)},
		[]*Order{ask("2", 1), ask("3", 3), ask("6", 1), ask("7", 3)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "4", 4)

	require.Len(t, report.ClearedBids, 3)
	require.Len(t, report.ClearedAsks, 2)
}

func TestCalculateBatchPointIntersection(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("7", 2), bid("5", 1), bid("4", 1), bid("3", 2), bid("1", 3)},
		[]*Order{ask("1", 4), ask("2", 3), ask("4", 2)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "2.5", 6)

	require.Len(t, report.ClearedBids, 4)
	require.Len(t, report.ClearedAsks, 1)
	// The 2x3 ask is partially consumed down to 1.
	require.NotEmpty(t, asks)
	assert.True(t, asks[0].Price.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, uint32(1), asks[0].Qty)
}

func TestCalculateBatchBidShort(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("7", 2), bid("5", 1), bid("4", 1), bid("3", 1)},
		[]*Order{ask("1", 4), ask("2", 3), ask("4", 2)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "2.5", 5)

	require.Len(t, report.ClearedBids, 4)
	assert.Empty(t, bids)
}

func TestCalculateBatchNoCross(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("2", 1), bid("1", 4)},
		[]*Order{ask("3", 2), ask("4", 2), ask("5", 1)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTrade, report.Outcome)
	assert.Len(t, bids, 2)
	assert.Len(t, asks, 3)
}

func TestCalculateBatchEmptySide(t *testing.T) {
	bids, asks := book(nil, []*Order{ask("3", 2), ask("4", 2)})

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoTrade, report.Outcome)
}

func TestCalculateBatchFullFlow(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("112", 2), bid("111.76", 21), bid("111.45", 200), bid("111.35", 100)},
		[]*Order{ask("110", 2), ask("111.32", 21), ask("111.45", 100), ask("112.35", 100)},
	)

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "111.45", 123)

	// Cleared bids: 112x2 and 111.76x21 in full; the 111.45 bid is filled
	// partially (100 of 200) and keeps resting.
	require.Len(t, report.ClearedBids, 2)
	assert.True(t, report.ClearedBids[0].Price.Equal(decimal.NewFromInt(112)))
	assert.True(t, report.ClearedBids[1].Price.Equal(decimal.RequireFromString("111.76")))

	// Cleared asks: 110x2, 111.32x21 and 111.45x100 in full.
	require.Len(t, report.ClearedAsks, 3)
	assert.True(t, report.ClearedAsks[2].Price.Equal(decimal.RequireFromString("111.45")))
	assert.Equal(t, uint32(100), report.ClearedAsks[2].Qty)

	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(decimal.RequireFromString("111.45")))
	assert.Equal(t, uint32(100), bids[0].Qty)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(decimal.RequireFromString("112.35")))
}

func TestCalculateBatchSeniority(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("2", 1), bid("1", 4)},
		[]*Order{ask("3", 2)},
	)

	// Three no-trade batches: every surviving order ages by one per batch.
	for k := 1; k <= 3; k++ {
		report, err := CalculateBatch(&bids, &asks)
		require.NoError(t, err)
		require.Equal(t, OutcomeNoTrade, report.Outcome)
		for _, o := range bids {
			assert.Equal(t, uint32(k), o.BatchesOut)
		}
		for _, o := range asks {
			assert.Equal(t, uint32(k), o.BatchesOut)
		}
	}
}

func TestCalculateBatchSeniorityTieBreak(t *testing.T) {
	young := bid("5", 3)
	old := bid("5", 3)
	old.BatchesOut = 4

	bids := []*Order{young, old}
	asks := []*Order{ask("5", 3)}

	report, err := CalculateBatch(&bids, &asks)
	require.NoError(t, err)
	requireTrade(t, report, "5", 3)

	// The older order at the level clears; the younger one keeps resting.
	require.Len(t, report.ClearedBids, 1)
	assert.Equal(t, old.ID, report.ClearedBids[0].ID)
	require.Len(t, bids, 1)
	assert.Equal(t, young.ID, bids[0].ID)
}

func TestCalculateBatchQuantityOverflow(t *testing.T) {
	bids, asks := book(
		[]*Order{bid("5", 4294967295), bid("4", 1)},
		[]*Order{ask("3", 1)},
	)

	_, err := CalculateBatch(&bids, &asks)
	assert.ErrorIs(t, err, ErrQuantityOverflow)
}

func TestCalculateBatchDeterminism(t *testing.T) {
	build := func() (bids, asks []*Order) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 64; i++ {
			price := fmt.Sprintf("%d.%02d", 90+rng.Intn(20), rng.Intn(100))
			qty := uint32(1 + rng.Intn(50))
			bids = append(bids, bid(price, qty))
			price = fmt.Sprintf("%d.%02d", 90+rng.Intn(20), rng.Intn(100))
			asks = append(asks, ask(price, uint32(1+rng.Intn(50))))
		}
		return bids, asks
	}

	bids1, asks1 := build()
	bids2, asks2 := build()

	r1, err := CalculateBatch(&bids1, &asks1)
	require.NoError(t, err)
	r2, err := CalculateBatch(&bids2, &asks2)
	require.NoError(t, err)

	require.Equal(t, r1.Outcome, r2.Outcome)
	if r1.Trade() {
		assert.True(t, r1.Price.Equal(r2.Price))
		assert.Equal(t, r1.Qty, r2.Qty)
	}
	require.Equal(t, len(r1.ClearedBids), len(r2.ClearedBids))
	require.Equal(t, len(r1.ClearedAsks), len(r2.ClearedAsks))
	for i := range r1.ClearedBids {
		assert.True(t, r1.ClearedBids[i].Price.Equal(r2.ClearedBids[i].Price))
		assert.Equal(t, r1.ClearedBids[i].Qty, r2.ClearedBids[i].Qty)
	}
	for i := range r1.ClearedAsks {
		assert.True(t, r1.ClearedAsks[i].Price.Equal(r2.ClearedAsks[i].Price))
		assert.Equal(t, r1.ClearedAsks[i].Qty, r2.ClearedAsks[i].Qty)
	}
}

func TestCalculateBatchProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		var bids, asks []*Order
		for i := 0; i < 1+rng.Intn(30); i++ {
			price := fmt.Sprintf("%d.%02d", 95+rng.Intn(10), rng.Intn(100))
			bids = append(bids, bid(price, uint32(1+rng.Intn(100))))
		}
		for i := 0; i < 1+rng.Intn(30); i++ {
			price := fmt.Sprintf("%d.%02d", 95+rng.Intn(10), rng.Intn(100))
			asks = append(asks, ask(price, uint32(1+rng.Intn(100))))
		}

		qtyBefore := make(map[uuid.UUID]uint32)
		for _, o := range bids {
			qtyBefore[o.ID] = o.Qty
		}
		for _, o := range asks {
			qtyBefore[o.ID] = o.Qty
		}

		report, err := CalculateBatch(&bids, &asks)
		require.NoError(t, err)
		if !report.Trade() {
			continue
		}

		// Volume conservation on each side: cleared snapshots plus the one
		// partial decrement account for exactly q*.
		checkSide := func(cleared []Order, surviving []*Order, side string) {
			var clearedQty, partialQty uint32
			partials := 0
			for _, o := range cleared {
				clearedQty += o.Qty
			}
			for _, o := range surviving {
				if before := qtyBefore[o.ID]; o.Qty != before {
					partialQty += before - o.Qty
					partials++
				}
			}
			assert.LessOrEqual(t, partials, 1, "%s: more than one partial fill", side)
			assert.Equal(t, report.Qty, clearedQty+partialQty, "%s: volume not conserved", side)
		}
		checkSide(report.ClearedBids, bids, "bids")
		checkSide(report.ClearedAsks, asks, "asks")

		// Price admissibility: p* within every cleared order's limit.
		for _, o := range report.ClearedBids {
			assert.True(t, o.Price.GreaterThanOrEqual(report.Price))
		}
		for _, o := range report.ClearedAsks {
			assert.True(t, o.Price.LessThanOrEqual(report.Price))
		}

		// Cleared snapshots arrive in priority order.
		for i := 1; i < len(report.ClearedBids); i++ {
			assert.True(t, report.ClearedBids[i].Price.LessThanOrEqual(report.ClearedBids[i-1].Price))
		}
		for i := 1; i < len(report.ClearedAsks); i++ {
			assert.True(t, report.ClearedAsks[i].Price.GreaterThanOrEqual(report.ClearedAsks[i-1].Price))
		}

		// Survivors aged by exactly one batch.
		for _, o := range append(append([]*Order{}, bids...), asks...) {
			assert.Equal(t, uint32(1), o.BatchesOut)
		}
	}
}
