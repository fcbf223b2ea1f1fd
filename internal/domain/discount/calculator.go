package discount

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// Calculate returns the discount amount rule grants on the cart. The result
// is always within [0, cartTotal] and is not rounded; round with RoundMoney
// at the response boundary only.
func Calculate(rule *PriceRule, cartTotal decimal.Decimal, items []CartItem) decimal.Decimal {
	base := EligibleBase(rule, cartTotal, items)
	value := rule.AbsValue()

	var amount decimal.Decimal
	switch rule.ValueType {
	case ValueFixedAmount:
		amount = decimal.Min(value, base)
	case ValuePercentage:
		amount = base.Mul(value).Div(hundred)
	default:
		// Unknown value types come from malformed upstream data.
		return zero
	}

	return clamp(amount, cartTotal)
}

// EligibleBase returns the part of the cart the rule's value applies to: the
// entitled lines for a targeted rule with entitlements, the whole cart total
// otherwise.
func EligibleBase(rule *PriceRule, cartTotal decimal.Decimal, items []CartItem) decimal.Decimal {
	if !rule.Targeted() || !rule.HasEntitlements() {
		return cartTotal
	}

	sum := zero
	for _, item := range items {
		if rule.Entitles(item) {
			sum = sum.Add(lineTotal(item))
		}
	}
	return sum
}

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []CartItem) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(lineTotal(item))
	}
	return sum
}

// RoundMoney rounds an amount to cents for display and serialization.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func lineTotal(item CartItem) decimal.Decimal {
	return item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// clamp bounds amount to [0, ceiling]. A negative ceiling yields zero.
func clamp(amount, ceiling decimal.Decimal) decimal.Decimal {
	amount = floorAtZero(amount)
	if amount.GreaterThan(ceiling) {
		return floorAtZero(ceiling)
	}
	return amount
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return zero
	}
	return d
}
