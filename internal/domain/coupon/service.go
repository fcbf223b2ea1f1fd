package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

// CodeResolver resolves a raw discount code.
type CodeResolver interface {
	Resolve(ctx context.Context, raw string) (*Resolution, error)
}

// CheckRequest is a discount code submitted together with the cart snapshot
// it should apply to.
type CheckRequest struct {
	Code      string
	Items     []discount.CartItem
	CartTotal decimal.Decimal
}

// Service checks discount codes against carts.
type Service struct {
	resolver CodeResolver
	now      func() time.Time
}

// NewService creates a Service.
func NewService(resolver CodeResolver) *Service {
	return &Service{
		resolver: resolver,
		now:      time.Now,
	}
}

// Check resolves the code, validates the rule against the cart and computes
// the discount. It returns ErrNotFound, *discount.IneligibleError or
// *UpstreamError on failure.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*discount.AppliedDiscount, error) {
	res, err := s.resolver.Resolve(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	rule := res.Rule
	if err := discount.Validate(&rule, req.CartTotal, req.Items, s.now()); err != nil {
		return nil, err
	}

	return &discount.AppliedDiscount{
		Code:           discount.NormalizeCode(res.Code.Code),
		DiscountAmount: discount.Calculate(&rule, req.CartTotal, req.Items),
		DiscountType:   rule.ValueType,
		DiscountValue:  rule.AbsValue(),
		PriceRuleID:    rule.ID,
		Title:          rule.Title,
		PriceRule:      &rule,
	}, nil
}
