package auction

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

// Segment is one step of a cumulative demand or supply curve: QMax is the
// total quantity offered up to and including Price on that side. Segments are
// held in the side's traversal order (bids high->low price, asks low->high),
// so QMax is monotonically non-decreasing along the slice.
type Segment struct {
	Price decimal.Decimal
	QMax  uint32
}

// ErrQuantityOverflow signals that the cumulative quantity on one side no
// longer fits in 32 bits. A well-formed session never reaches it, so the
// batch is aborted rather than repaired.
var ErrQuantityOverflow = errors.New("cumulative quantity overflows uint32")

// buildCurveSegments collapses a priority-sorted order list into curve
// segments. Orders sharing a price fold into a single segment carrying the
// cumulative total at that level. The input order determines the output
// order, so the same list always yields the same curve.
func buildCurveSegments(orders []*Order) ([]Segment, error) {
	segments := make([]Segment, 0, len(orders))

	var cum uint32
	for _, o := range orders {
		if o.Qty > math.MaxUint32-cum {
			return nil, ErrQuantityOverflow
		}
		cum += o.Qty

		if n := len(segments); n > 0 && segments[n-1].Price.Equal(o.Price) {
			segments[n-1].QMax = cum
			continue
		}
		segments = append(segments, Segment{Price: o.Price, QMax: cum})
	}

	return segments, nil
}
