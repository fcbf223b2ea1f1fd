package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrIneligible matches every *IneligibleError via errors.Is.
var ErrIneligible = errors.New("discount not applicable")

// Reason identifies which eligibility check rejected a price rule.
type Reason string

const (
	ReasonNotYetActive   Reason = "not_yet_active"
	ReasonExpired        Reason = "expired"
	ReasonUsageLimit     Reason = "usage_limit_reached"
	ReasonMinimumNotMet  Reason = "minimum_subtotal"
	ReasonNotApplicable  Reason = "not_applicable"
	ReasonNoLongerActive Reason = "no_longer_applicable"
)

// IneligibleError reports why a resolved price rule does not apply to the
// cart. Its message is shown to the shopper as is.
type IneligibleError struct {
	Reason Reason
	// Threshold is the configured minimum subtotal, quoted verbatim.
	Threshold string
}

func (e *IneligibleError) Error() string {
	switch e.Reason {
	case ReasonNotYetActive:
		return "Discount code is not yet active"
	case ReasonExpired:
		return "Discount code has expired"
	case ReasonUsageLimit:
		return "Discount code usage limit reached"
	case ReasonMinimumNotMet:
		return "Minimum purchase of " + e.Threshold + " required"
	case ReasonNotApplicable:
		return "Discount code is not applicable to items in your cart"
	case ReasonNoLongerActive:
		return "Discount no longer applicable"
	default:
		return ErrIneligible.Error()
	}
}

// Is makes every IneligibleError match ErrIneligible.
func (e *IneligibleError) Is(target error) bool {
	return target == ErrIneligible
}

// Validate decides whether rule applies to the cart at instant now. It returns
// nil when the rule applies and an *IneligibleError for the first failing
// check otherwise. Only price rule fields are consulted; the discount code's
// own status is ignored.
func Validate(rule *PriceRule, cartTotal decimal.Decimal, items []CartItem, now time.Time) error {
	if now.Before(rule.StartsAt) {
		return &IneligibleError{Reason: ReasonNotYetActive}
	}
	if rule.EndsAt != nil && now.After(*rule.EndsAt) {
		return &IneligibleError{Reason: ReasonExpired}
	}
	if rule.UsageLimit != nil && rule.UsageCount >= *rule.UsageLimit {
		return &IneligibleError{Reason: ReasonUsageLimit}
	}
	if rule.MinimumSubtotal != nil && cartTotal.LessThan(*rule.MinimumSubtotal) {
		return &IneligibleError{Reason: ReasonMinimumNotMet, Threshold: rule.MinimumThreshold()}
	}
	if rule.Targeted() && !anyEntitled(rule, items) {
		return &IneligibleError{Reason: ReasonNotApplicable}
	}
	return nil
}

// anyEntitled reports whether at least one cart item is entitled by rule.
// A targeted rule with empty entitlement sets matches nothing.
func anyEntitled(rule *PriceRule, items []CartItem) bool {
	for _, item := range items {
		if rule.Entitles(item) {
			return true
		}
	}
	return false
}
