package auction

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bid(price string, qty uint32) *Order {
	return NewOrder(SideBuy, decimal.RequireFromString(price), qty)
}

func ask(price string, qty uint32) *Order {
	return NewOrder(SideSell, decimal.RequireFromString(price), qty)
}

func TestBuildCurveSegments(t *testing.T) {
	t.Run("CollapsesSharedPriceLevels", func(t *testing.T) {
		orders := []*Order{
			bid("111.69", 3),
			bid("111.69", 3),
			bid("111.69", 4),
			bid("111.00", 1),
			bid("110.97", 2),
			bid("110.97", 1),
		}

		segments, err := buildCurveSegments(orders)
		require.NoError(t, err)
		require.Len(t, segments, 3)

		assert.True(t, segments[0].Price.Equal(decimal.RequireFromString("111.69")))
		assert.Equal(t, uint32(10), segments[0].QMax)
		assert.True(t, segments[1].Price.Equal(decimal.RequireFromString("111.00")))
		assert.Equal(t, uint32(11), segments[1].QMax)
		assert.True(t, segments[2].Price.Equal(decimal.RequireFromString("110.97")))
		assert.Equal(t, uint32(14), segments[2].QMax)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		segments, err := buildCurveSegments(nil)
		require.NoError(t, err)
		assert.Empty(t, segments)
	})

	t.Run("SinglePriceLevel", func(t *testing.T) {
		orders := []*Order{ask("5", 2), ask("5", 3), ask("5", 4)}

		segments, err := buildCurveSegments(orders)
		require.NoError(t, err)
		require.Len(t, segments, 1)
		assert.Equal(t, uint32(9), segments[0].QMax)
	})

	t.Run("EqualValueDifferentScaleCollapses", func(t *testing.T) {
		// 5 and 5.00 are the same price level.
		orders := []*Order{bid("5", 2), bid("5.00", 3)}

		segments, err := buildCurveSegments(orders)
		require.NoError(t, err)
		require.Len(t, segments, 1)
		assert.Equal(t, uint32(5), segments[0].QMax)
	})

	t.Run("QuantityOverflow", func(t *testing.T) {
		orders := []*Order{
			bid("5", math.MaxUint32),
			bid("4", 1),
		}

		_, err := buildCurveSegments(orders)
		assert.ErrorIs(t, err, ErrQuantityOverflow)
	})
}

func TestCurveMonotonicity(t *testing.T) {
	bids := []*Order{
		bid("7", 2), bid("6", 1), bid("6", 2), bid("5", 3), bid("3", 2),
	}
	sortBids(bids)

	segments, err := buildCurveSegments(bids)
	require.NoError(t, err)

	var total uint32
	for _, o := range bids {
		total += o.Qty
	}

	var prev uint32
	for i, seg := range segments {
		assert.Greater(t, seg.QMax, prev, "segment %d not strictly increasing", i)
		prev = seg.QMax
		for j := i + 1; j < len(segments); j++ {
			assert.False(t, seg.Price.Equal(segments[j].Price), "duplicate price level")
		}
	}
	assert.Equal(t, total, segments[len(segments)-1].QMax)
}
