// Package discount holds the storefront pricing rules: price rule eligibility,
// discount calculation and recalculation of an applied discount as the cart
// changes.
package discount

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValueType enumerates how a price rule's value is interpreted.
type ValueType string

const (
	// ValueFixedAmount takes a fixed monetary amount off the eligible base.
	ValueFixedAmount ValueType = "fixed_amount"
	// ValuePercentage takes a percentage of the eligible base.
	ValuePercentage ValueType = "percentage"
)

// TargetSelection enumerates which cart lines a price rule applies to.
type TargetSelection string

const (
	// TargetAll applies the rule to the whole cart.
	TargetAll TargetSelection = "all"
	// TargetSpecific applies the rule only to entitled products or variants.
	TargetSpecific TargetSelection = "specific"
)

// StatusDisabled marks a price rule that must never match a code.
const StatusDisabled = "disabled"

// PriceRule is the business rule behind one or more discount codes.
type PriceRule struct {
	ID                  string
	Title               string
	ValueType           ValueType
	Value               decimal.Decimal
	StartsAt            time.Time
	EndsAt              *time.Time
	UsageLimit          *int
	UsageCount          int
	MinimumSubtotal     *decimal.Decimal
	MinimumSubtotalText string
	TargetSelection     TargetSelection
	EntitledProductIDs  []string
	EntitledVariantIDs  []string
	Status              string
}

// MinimumThreshold returns the minimum subtotal exactly as upstream wrote it
// (MinimumSubtotalText), or "" when the rule has none.
func (r *PriceRule) MinimumThreshold() string {
	switch {
	case r.MinimumSubtotal == nil:
		return ""
	case r.MinimumSubtotalText != "":
		return r.MinimumSubtotalText
	default:
		return r.MinimumSubtotal.String()
	}
}

// Targeted reports whether the rule only applies to entitled cart lines.
func (r *PriceRule) Targeted() bool {
	return r.TargetSelection == TargetSpecific
}

// HasEntitlements reports whether at least one entitled id set is non-empty.
func (r *PriceRule) HasEntitlements() bool {
	return len(r.EntitledProductIDs) > 0 || len(r.EntitledVariantIDs) > 0
}

// Disabled reports whether upstream marked the rule as disabled.
func (r *PriceRule) Disabled() bool {
	return strings.EqualFold(r.Status, StatusDisabled)
}

// Entitles reports whether the cart item's product id or variant id belongs
// to the union of the rule's entitled product and variant ids.
func (r *PriceRule) Entitles(item CartItem) bool {
	ids := []string{NormalizeID(item.ID)}
	if item.VariantID != "" {
		ids = append(ids, NormalizeID(item.VariantID))
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if containsID(r.EntitledProductIDs, id) || containsID(r.EntitledVariantIDs, id) {
			return true
		}
	}
	return false
}

// AbsValue returns the rule value without the sign upstream attaches to it.
func (r *PriceRule) AbsValue() decimal.Decimal {
	return r.Value.Abs()
}

// DiscountCode is a redeemable code issued under a price rule.
type DiscountCode struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	PriceRuleID string `json:"priceRuleId"`
	UsageCount  int    `json:"usageCount"`
}

// CartItem is a cart line as seen by the pricing rules.
type CartItem struct {
	ID        string
	VariantID string
	Price     decimal.Decimal
	Quantity  int
}

// AppliedDiscount is the result of a successful code check. It is persisted
// by the client and sent back on every cart change.
type AppliedDiscount struct {
	Code           string
	DiscountAmount decimal.Decimal
	DiscountType   ValueType
	DiscountValue  decimal.Decimal
	PriceRuleID    string
	Title          string
	PriceRule      *PriceRule
}

// Rule returns the price rule snapshot of the applied discount. Discounts
// persisted without a snapshot get a whole-cart rule rebuilt from their type
// and value.
func (a *AppliedDiscount) Rule() *PriceRule {
	if a.PriceRule != nil {
		return a.PriceRule
	}
	return &PriceRule{
		ID:              a.PriceRuleID,
		Title:           a.Title,
		ValueType:       a.DiscountType,
		Value:           a.DiscountValue,
		TargetSelection: TargetAll,
	}
}

// NormalizeCode trims whitespace and uppercases a discount code. All code
// comparisons happen on normalized values.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeID reduces a Shopify global id such as
// "gid://shopify/ProductVariant/42" to its numeric tail. Plain ids are
// returned trimmed.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if NormalizeID(v) == id {
			return true
		}
	}
	return false
}
