// Package auction implements the batch-clearing core: priority sorting,
// cumulative curve construction, curve intersection and the allocation of
// the clearing quantity back across individual orders.
package auction

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side identifies which half of the book an order rests on.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is the fundamental matching unit. Price is an exact decimal,
// Qty is the remaining unfilled quantity and is decremented in place on a
// partial fill. BatchesOut counts how many batches the order has survived
// since admission and is the tie-break inside a price level: older orders
// clear first.
type Order struct {
	ID         uuid.UUID       `json:"id"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Qty        uint32          `json:"qty"`
	BatchesOut uint32          `json:"batches_out"`

	// cleared marks an order as fully consumed by the current batch. It is
	// transient: the driver removes cleared orders before returning.
	cleared bool
}

// NewOrder creates a resting order with zero seniority.
func NewOrder(side Side, price decimal.Decimal, qty uint32) *Order {
	return &Order{
		ID:    uuid.New(),
		Side:  side,
		Price: price,
		Qty:   qty,
	}
}

// Validation errors. A resting order must carry a positive quantity and a
// positive price; anything else is rejected at admission.
var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidPrice    = errors.New("price must be positive")
)

// Validate checks the admission invariants for a resting order.
func (o *Order) Validate() error {
	if o.Qty == 0 {
		return ErrInvalidQuantity
	}
	if !o.Price.IsPositive() {
		return ErrInvalidPrice
	}
	return nil
}

// Matches reports whether the order is an exact (price, qty) match, the key
// used by cancellation.
func (o *Order) Matches(price decimal.Decimal, qty uint32) bool {
	return o.Qty == qty && o.Price.Equal(price)
}
