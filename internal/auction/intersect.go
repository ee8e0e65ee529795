package auction

import "github.com/shopspring/decimal"

var two = decimal.NewFromInt(2)

// intersectDemandSupply sweeps the demand and supply step curves with two
// pointers and returns the clearing point (p*, q*). The sweep tracks the
// rightmost point on the quantity axis where demand still lies weakly above
// supply; p* is the midpoint of the two prices forming the last accepted
// overlap. Returns ok=false when either curve is empty or the best bid is
// below the best ask.
//
// q* can legitimately come back zero when the curves touch only at a
// boundary; the driver suppresses that into a no-trade outcome.
func intersectDemandSupply(demand, supply []Segment) (pStar decimal.Decimal, qStar uint32, ok bool) {
	if len(demand) == 0 || len(supply) == 0 {
		return decimal.Decimal{}, 0, false
	}
	if demand[0].Price.LessThan(supply[0].Price) {
		return decimal.Decimal{}, 0, false
	}

	// Last accepted pair and the candidates one step ahead.
	var idxDemand, idxSupply int
	var nextDemand, nextSupply int

	for nextDemand < len(demand) && nextSupply < len(supply) {
		segDemand := demand[nextDemand]
		segSupply := supply[nextSupply]

		if segSupply.Price.GreaterThan(segDemand.Price) {
			// The curves have crossed.
			break
		}

		idxDemand = nextDemand
		idxSupply = nextSupply
		// Advance whichever side runs out of quantity first.
		if segDemand.QMax < segSupply.QMax {
			nextDemand++
			qStar = segDemand.QMax
		} else {
			nextSupply++
			qStar = segSupply.QMax
		}
	}

	pStar = demand[idxDemand].Price.Add(supply[idxSupply].Price).Div(two)
	return pStar, qStar, true
}
