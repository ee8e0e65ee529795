package auction

import "github.com/shopspring/decimal"

// pricePredicate decides whether an order's price is admissible at the
// clearing price: bids clear at or above p*, asks at or below.
type pricePredicate func(orderPrice, pStar decimal.Decimal) bool

func bidAdmissible(orderPrice, pStar decimal.Decimal) bool {
	return orderPrice.GreaterThanOrEqual(pStar)
}

func askAdmissible(orderPrice, pStar decimal.Decimal) bool {
	return orderPrice.LessThanOrEqual(pStar)
}

// clearOrders walks one side in priority order and allocates qStar across it.
// Fully consumed orders are flagged cleared and snapshotted; the first order
// that exceeds the remaining quantity is partially filled in place and the
// walk stops, so at most one order per side ends up partial. The snapshots
// come back in priority order.
func clearOrders(orders []*Order, pStar decimal.Decimal, qStar uint32, admissible pricePredicate) []Order {
	var cleared []Order

	remaining := qStar
	for _, order := range orders {
		if !admissible(order.Price, pStar) {
			// Priority order: every later price is worse.
			break
		}
		if order.Qty <= remaining {
			order.cleared = true
			remaining -= order.Qty
			cleared = append(cleared, *order)
			continue
		}
		order.Qty -= remaining
		break
	}

	return cleared
}
