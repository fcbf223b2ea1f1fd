// Package coupon resolves storefront discount codes against the upstream
// discount API and turns them into applied discounts.
package coupon

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

// ErrNotFound is returned when a code matches no discount code, neither via
// the lookup endpoint nor via the full price rule scan.
var ErrNotFound = errors.New("invalid discount code")

// UpstreamError is returned when a code was found but the details needed to
// apply it could not be fetched.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return "upstream " + e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PageRequest selects one page of a cursor-paginated listing. An empty Cursor
// requests the first page.
type PageRequest struct {
	Limit  int
	Cursor string
}

// Page is one page of a cursor-paginated listing. An empty NextCursor marks
// the last page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Upstream is the discount API the resolver reads from.
type Upstream interface {
	// LookupDiscountCode finds a discount code by exact (case-insensitive) code.
	LookupDiscountCode(ctx context.Context, code string) (*discount.DiscountCode, error)
	// ListPriceRules returns one page of all price rules of the shop.
	ListPriceRules(ctx context.Context, req PageRequest) (Page[discount.PriceRule], error)
	// ListDiscountCodes returns one page of the codes issued under a price rule.
	ListDiscountCodes(ctx context.Context, priceRuleID string, req PageRequest) (Page[discount.DiscountCode], error)
	// GetPriceRule fetches a single price rule.
	GetPriceRule(ctx context.Context, priceRuleID string) (*discount.PriceRule, error)
}

// Resolution is a discount code together with the price rule it belongs to.
type Resolution struct {
	Code discount.DiscountCode
	Rule discount.PriceRule
}

// newResolution pairs code and rule. The rule's usage count is raised to the
// code's when upstream only reports usage per code.
func newResolution(code discount.DiscountCode, rule discount.PriceRule) Resolution {
	if code.UsageCount > rule.UsageCount {
		rule.UsageCount = code.UsageCount
	}
	return Resolution{Code: code, Rule: rule}
}
