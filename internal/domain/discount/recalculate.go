package discount

import (
	"github.com/shopspring/decimal"
)

// Totals is the price breakdown shown at checkout and charged at payment.
type Totals struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	DeliveryFee decimal.Decimal
	Total       decimal.Decimal
	Savings     decimal.Decimal
}

// Recalculate recomputes an applied discount after the cart changed, using
// the stored price rule snapshot instead of resolving the code again.
// quantities overrides item quantities by item id. It returns nil when the
// snapshot's minimum subtotal is no longer met or applied is nil; otherwise a
// copy of applied with a fresh DiscountAmount.
//
// deliveryFee never affects the discount; it is accepted so that every cart
// call site passes the same arguments.
func Recalculate(
	items []CartItem,
	quantities map[string]int,
	applied *AppliedDiscount,
	deliveryFee decimal.Decimal,
) *AppliedDiscount {
	if applied == nil {
		return nil
	}

	items = applyQuantities(items, quantities)
	subtotal := Subtotal(items)
	rule := applied.Rule()

	if rule.MinimumSubtotal != nil && subtotal.LessThan(*rule.MinimumSubtotal) {
		return nil
	}

	updated := *applied
	updated.DiscountAmount = Calculate(rule, subtotal, items)
	return &updated
}

// CartTotals computes the checkout breakdown. A fixed amount discount reuses
// applied.DiscountAmount capped at the subtotal, a percentage discount is
// recomputed against the current cart.
func CartTotals(
	items []CartItem,
	quantities map[string]int,
	applied *AppliedDiscount,
	deliveryFee decimal.Decimal,
) Totals {
	items = applyQuantities(items, quantities)
	subtotal := Subtotal(items)
	fee := floorAtZero(deliveryFee)

	amount := zero
	if applied != nil {
		rule := applied.Rule()
		switch rule.ValueType {
		case ValuePercentage:
			amount = Calculate(rule, subtotal, items)
		default:
			amount = clamp(applied.DiscountAmount, subtotal)
		}
	}

	total := floorAtZero(subtotal.Sub(amount).Add(fee))

	return Totals{
		Subtotal:    subtotal,
		Discount:    amount,
		DeliveryFee: fee,
		Total:       total,
		Savings:     amount,
	}
}

// applyQuantities returns a copy of items with quantities overridden by the
// map entry for each item id. An override of zero or less removes the line.
func applyQuantities(items []CartItem, quantities map[string]int) []CartItem {
	if len(quantities) == 0 {
		return items
	}
	out := make([]CartItem, 0, len(items))
	for _, item := range items {
		if qty, ok := quantities[item.ID]; ok {
			if qty <= 0 {
				continue
			}
			item.Quantity = qty
		}
		out = append(out, item)
	}
	return out
}
