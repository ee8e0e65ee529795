// Package book holds the resting orders for the single traded instrument
// between batches. The book is the only shared mutable state in the service:
// the command updater and the batch driver take turns under its lock.
package book

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/frequent-batch-auction/internal/auction"
)

// Book is the two-sided order container. All access goes through its mutex;
// a batch holds the lock for its full duration so the set of orders it sees
// is exactly the set present when the lock was acquired.
type Book struct {
	mu   sync.Mutex
	bids []*auction.Order
	asks []*auction.Order
}

// New creates an empty book.
func New() *Book {
	return &Book{}
}

// Add admits a new order with zero seniority. The order participates in the
// very next batch.
func (b *Book) Add(side auction.Side, price decimal.Decimal, qty uint32) (*auction.Order, error) {
	order := auction.NewOrder(side, price, qty)
	if err := order.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if side == auction.SideBuy {
		b.bids = append(b.bids, order)
	} else {
		b.asks = append(b.asks, order)
	}
	return order, nil
}

// Cancel removes the oldest exact (price, qty) match on the named side,
// oldest meaning the highest seniority. Returns false when nothing matches;
// an unmatched cancel is a no-op.
func (b *Book) Cancel(side auction.Side, price decimal.Decimal, qty uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders := &b.bids
	if side == auction.SideSell {
		orders = &b.asks
	}

	match := -1
	for i, o := range *orders {
		if !o.Matches(price, qty) {
			continue
		}
		if match < 0 || o.BatchesOut > (*orders)[match].BatchesOut {
			match = i
		}
	}
	if match < 0 {
		return false
	}

	*orders = append((*orders)[:match], (*orders)[match+1:]...)
	return true
}

// RunBatch executes one batch over the book under exclusive access and
// returns its report. Orders admitted while the batch runs are serialized to
// the next one.
func (b *Book) RunBatch() (auction.BatchReport, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return auction.CalculateBatch(&b.bids, &b.asks)
}

// Snapshot returns by-value copies of both sides in their current order:
// clearing priority as of the last batch, followed by orders admitted since.
func (b *Book) Snapshot() (bids, asks []auction.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bids = make([]auction.Order, 0, len(b.bids))
	for _, o := range b.bids {
		bids = append(bids, *o)
	}
	asks = make([]auction.Order, 0, len(b.asks))
	for _, o := range b.asks {
		asks = append(asks, *o)
	}
	return bids, asks
}

// Depth returns the number of resting orders on each side.
func (b *Book) Depth() (bids, asks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bids), len(b.asks)
}

// RestingQty returns the total resting quantity on each side.
func (b *Book) RestingQty() (bidQty, askQty uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.bids {
		bidQty += uint64(o.Qty)
	}
	for _, o := range b.asks {
		askQty += uint64(o.Qty)
	}
	return bidQty, askQty
}
