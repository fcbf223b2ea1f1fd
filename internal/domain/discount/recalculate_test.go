package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecalculate(t *testing.T) {
	items := []CartItem{
		{ID: "a", Price: d("300"), Quantity: 2},
		{ID: "b", Price: d("150"), Quantity: 2},
	}

	t.Run("drops discount below minimum subtotal", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:           "FLAT100",
			DiscountAmount: d("100"),
			DiscountType:   ValueFixedAmount,
			DiscountValue:  d("100"),
			PriceRuleID:    "1",
			Title:          "Flat 100",
			PriceRule: &PriceRule{
				ID:              "1",
				ValueType:       ValueFixedAmount,
				Value:           d("-100"),
				MinimumSubtotal: ptr(d("1000")),
				TargetSelection: TargetAll,
			},
		}

		// 300*2 + 150*2 = 900 < 1000.
		got := Recalculate(items, nil, applied, d("40"))
		assert.Nil(t, got)
	})

	t.Run("keeps discount when minimum still met", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:           "FLAT100",
			DiscountAmount: d("100"),
			DiscountType:   ValueFixedAmount,
			DiscountValue:  d("100"),
			PriceRuleID:    "1",
			Title:          "Flat 100",
			PriceRule: &PriceRule{
				ID:              "1",
				ValueType:       ValueFixedAmount,
				Value:           d("-100"),
				MinimumSubtotal: ptr(d("1000")),
				TargetSelection: TargetAll,
			},
		}

		got := Recalculate(items, map[string]int{"a": 3}, applied, decimal.Zero)
		require.NotNil(t, got)
		assert.True(t, d("100").Equal(got.DiscountAmount))
		assert.Equal(t, "FLAT100", got.Code)
		assert.Equal(t, "1", got.PriceRuleID)
		assert.Equal(t, "Flat 100", got.Title)
		assert.NotSame(t, applied, got)
	})

	t.Run("recomputes percentage on targeted lines", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:           "HALFB",
			DiscountAmount: d("150"),
			DiscountType:   ValuePercentage,
			DiscountValue:  d("50"),
			PriceRuleID:    "2",
			PriceRule: &PriceRule{
				ID:                 "2",
				ValueType:          ValuePercentage,
				Value:              d("-50"),
				TargetSelection:    TargetSpecific,
				EntitledProductIDs: []string{"b"},
			},
		}

		got := Recalculate(items, map[string]int{"b": 1}, applied, decimal.Zero)
		require.NotNil(t, got)
		assert.True(t, d("75").Equal(got.DiscountAmount), "got %s", got.DiscountAmount)
	})

	t.Run("fixed amount shrinks with the cart", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:           "BIG",
			DiscountAmount: d("500"),
			DiscountType:   ValueFixedAmount,
			DiscountValue:  d("500"),
			PriceRule: &PriceRule{
				ValueType:       ValueFixedAmount,
				Value:           d("500"),
				TargetSelection: TargetAll,
			},
		}

		got := Recalculate([]CartItem{{ID: "a", Price: d("120"), Quantity: 1}}, nil, applied, decimal.Zero)
		require.NotNil(t, got)
		assert.True(t, d("120").Equal(got.DiscountAmount))
	})

	t.Run("zero override removes the line", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:          "TEN",
			DiscountType:  ValuePercentage,
			DiscountValue: d("10"),
			PriceRule: &PriceRule{
				ValueType:       ValuePercentage,
				Value:           d("-10"),
				MinimumSubtotal: ptr(d("500")),
				TargetSelection: TargetAll,
			},
		}

		// Only b remains: 150*2 = 300 < 500.
		assert.Nil(t, Recalculate(items, map[string]int{"a": 0}, applied, decimal.Zero))

		got := Recalculate(items, map[string]int{"b": 0}, applied, decimal.Zero)
		require.NotNil(t, got)
		assert.True(t, d("60").Equal(got.DiscountAmount), "got %s", got.DiscountAmount)
	})

	t.Run("nil applied discount", func(t *testing.T) {
		assert.Nil(t, Recalculate(items, nil, nil, decimal.Zero))
	})

	t.Run("missing snapshot falls back to type and value", func(t *testing.T) {
		applied := &AppliedDiscount{
			Code:          "TEN",
			DiscountType:  ValuePercentage,
			DiscountValue: d("10"),
		}

		got := Recalculate(items, nil, applied, decimal.Zero)
		require.NotNil(t, got)
		assert.True(t, d("90").Equal(got.DiscountAmount))
	})
}

func TestCartTotals(t *testing.T) {
	items := []CartItem{
		{ID: "a", Price: d("100"), Quantity: 1},
		{ID: "b", Price: d("50"), Quantity: 2},
	}

	tests := []struct {
		name         string
		quantities   map[string]int
		applied      *AppliedDiscount
		deliveryFee  decimal.Decimal
		wantSubtotal string
		wantDiscount string
		wantTotal    string
	}{
		{
			name:         "no discount",
			deliveryFee:  d("40"),
			wantSubtotal: "200",
			wantDiscount: "0",
			wantTotal:    "240",
		},
		{
			name: "fixed amount reused verbatim",
			applied: &AppliedDiscount{
				DiscountAmount: d("30"),
				DiscountType:   ValueFixedAmount,
				DiscountValue:  d("30"),
				PriceRule:      &PriceRule{ValueType: ValueFixedAmount, Value: d("30"), TargetSelection: TargetAll},
			},
			deliveryFee:  d("40"),
			wantSubtotal: "200",
			wantDiscount: "30",
			wantTotal:    "210",
		},
		{
			name:       "fixed amount capped at subtotal",
			quantities: map[string]int{"b": 1},
			applied: &AppliedDiscount{
				DiscountAmount: d("500"),
				DiscountType:   ValueFixedAmount,
				PriceRule:      &PriceRule{ValueType: ValueFixedAmount, Value: d("500"), TargetSelection: TargetAll},
			},
			deliveryFee:  d("40"),
			wantSubtotal: "150",
			wantDiscount: "150",
			wantTotal:    "40",
		},
		{
			name:         "zero override removes the line",
			quantities:   map[string]int{"a": 0},
			deliveryFee:  d("10"),
			wantSubtotal: "100",
			wantDiscount: "0",
			wantTotal:    "110",
		},
		{
			name:       "percentage recomputed live",
			quantities: map[string]int{"b": 4},
			applied: &AppliedDiscount{
				DiscountAmount: d("20"),
				DiscountType:   ValuePercentage,
				DiscountValue:  d("10"),
				PriceRule:      &PriceRule{ValueType: ValuePercentage, Value: d("-10"), TargetSelection: TargetAll},
			},
			wantSubtotal: "300",
			wantDiscount: "30",
			wantTotal:    "270",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CartTotals(items, tt.quantities, tt.applied, tt.deliveryFee)

			assert.True(t, d(tt.wantSubtotal).Equal(got.Subtotal), "subtotal %s", got.Subtotal)
			assert.True(t, d(tt.wantDiscount).Equal(got.Discount), "discount %s", got.Discount)
			assert.True(t, d(tt.wantTotal).Equal(got.Total), "total %s", got.Total)
			assert.True(t, got.Discount.Equal(got.Savings))
			assert.True(t, tt.deliveryFee.Equal(got.DeliveryFee))
		})
	}
}
