package auction

import (
	"sort"

	"github.com/shopspring/decimal"
)

// BatchOutcome tags a batch result.
type BatchOutcome string

const (
	OutcomeNoTrade BatchOutcome = "NO_TRADE"
	OutcomeTrade   BatchOutcome = "TRADE"
)

// BatchReport is the result of one batch. For a trade outcome it carries the
// uniform clearing price, the traded quantity and by-value snapshots of every
// fully consumed order, in clearing priority order. A partially filled order
// is not reported; it stays in the book with its quantity reduced.
type BatchReport struct {
	Outcome     BatchOutcome    `json:"outcome"`
	Price       decimal.Decimal `json:"price,omitempty"`
	Qty         uint32          `json:"qty,omitempty"`
	ClearedBids []Order         `json:"cleared_bids,omitempty"`
	ClearedAsks []Order         `json:"cleared_asks,omitempty"`
}

// Trade reports whether the batch produced a fill.
func (r BatchReport) Trade() bool {
	return r.Outcome == OutcomeTrade
}

// CalculateBatch runs a single batch over the two order lists. It sorts both
// sides into clearing priority, builds the cumulative curves, intersects
// them, allocates the clearing quantity back across individual orders, and
// purges fully consumed orders from the slices. Every order still resting
// when the batch ends has its seniority bumped, no-trade batches included.
//
// The caller must hold exclusive access to both slices for the duration of
// the call. The computation itself is purely sequential.
func CalculateBatch(bids, asks *[]*Order) (BatchReport, error) {
	sortBids(*bids)
	sortAsks(*asks)

	demand, err := buildCurveSegments(*bids)
	if err != nil {
		return BatchReport{}, err
	}
	supply, err := buildCurveSegments(*asks)
	if err != nil {
		return BatchReport{}, err
	}

	pStar, qStar, ok := intersectDemandSupply(demand, supply)
	if !ok || qStar == 0 {
		surviveBatch(*bids)
		surviveBatch(*asks)
		return BatchReport{Outcome: OutcomeNoTrade}, nil
	}

	clearedBids := clearOrders(*bids, pStar, qStar, bidAdmissible)
	clearedAsks := clearOrders(*asks, pStar, qStar, askAdmissible)

	*bids = retainResting(*bids)
	*asks = retainResting(*asks)
	surviveBatch(*bids)
	surviveBatch(*asks)

	return BatchReport{
		Outcome:     OutcomeTrade,
		Price:       pStar,
		Qty:         qStar,
		ClearedBids: clearedBids,
		ClearedAsks: clearedAsks,
	}, nil
}

// sortBids orders bids by price descending, older orders first within a
// level. The stable sort keeps admission order as the final tie-break so a
// given book always clears the same way.
func sortBids(bids []*Order) {
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Price.Cmp(bids[j].Price); c != 0 {
			return c > 0
		}
		return bids[i].BatchesOut > bids[j].BatchesOut
	})
}

// sortAsks orders asks by price ascending, older orders first within a level.
func sortAsks(asks []*Order) {
	sort.SliceStable(asks, func(i, j int) bool {
		if c := asks[i].Price.Cmp(asks[j].Price); c != 0 {
			return c < 0
		}
		return asks[i].BatchesOut > asks[j].BatchesOut
	})
}

// retainResting drops cleared orders in place and returns the shortened
// slice.
func retainResting(orders []*Order) []*Order {
	n := 0
	for _, o := range orders {
		if !o.cleared {
			orders[n] = o
			n++
		}
	}
	return orders[:n]
}

// surviveBatch bumps the seniority counter on every order that outlived the
// batch.
func surviveBatch(orders []*Order) {
	for _, o := range orders {
		o.BatchesOut++
	}
}
