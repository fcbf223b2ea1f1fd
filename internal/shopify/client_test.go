package shopify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const testToken = "shpat_test"

const priceRuleJSON = `{
	"id": 507328175,
	"value_type": "percentage",
	"value": "-15.0",
	"customer_selection": "all",
	"target_type": "line_item",
	"target_selection": "entitled",
	"allocation_method": "across",
	"starts_at": "2025-01-01T00:00:00-05:00",
	"ends_at": null,
	"usage_limit": 100,
	"entitled_product_ids": [921728736],
	"entitled_variant_ids": [],
	"prerequisite_subtotal_range": {"greater_than_or_equal_to": "40.0"},
	"title": "SUMMERSALE15OFF"
}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL,
		AccessToken: testToken,
		Timeout:     time.Second,
		Transport:   http.DefaultTransport,
	})
	require.NoError(t, err)
	return c
}

func TestClient_GetPriceRule(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/price_rules/507328175.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get("X-Shopify-Access-Token"))
		_, _ = w.Write([]byte(`{"price_rule":` + priceRuleJSON + `}`))
	})
	c := newTestClient(t, mux)

	rule, err := c.GetPriceRule(context.Background(), "507328175")
	require.NoError(t, err)

	assert.Equal(t, "507328175", rule.ID)
	assert.Equal(t, "SUMMERSALE15OFF", rule.Title)
	assert.Equal(t, discount.ValuePercentage, rule.ValueType)
	assert.True(t, decimal.RequireFromString("-15").Equal(rule.Value))
	assert.Equal(t, discount.TargetSpecific, rule.TargetSelection)
	assert.Equal(t, []string{"921728736"}, rule.EntitledProductIDs)
	assert.Empty(t, rule.EntitledVariantIDs)
	assert.Nil(t, rule.EndsAt)
	require.NotNil(t, rule.UsageLimit)
	assert.Equal(t, 100, *rule.UsageLimit)
	require.NotNil(t, rule.MinimumSubtotal)
	assert.True(t, decimal.NewFromInt(40).Equal(*rule.MinimumSubtotal))
	assert.Equal(t, "40.0", rule.MinimumSubtotalText)
	assert.True(t, rule.StartsAt.Equal(time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC)))
}

func TestClient_LookupDiscountCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/discount_codes/lookup.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") != "SUMMER" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/admin/api/2024-01/price_rules/507328175/discount_codes/1054381139.json", http.StatusSeeOther)
	})
	mux.HandleFunc("/admin/api/2024-01/price_rules/507328175/discount_codes/1054381139.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testToken, r.Header.Get("X-Shopify-Access-Token"))
		_, _ = w.Write([]byte(`{"discount_code":{"id":1054381139,"price_rule_id":507328175,"code":"SUMMER","usage_count":3,"created_at":"2025-01-01T00:00:00Z"}}`))
	})
	c := newTestClient(t, mux)

	dc, err := c.LookupDiscountCode(context.Background(), "SUMMER")
	require.NoError(t, err)
	assert.Equal(t, discount.DiscountCode{ID: "1054381139", Code: "SUMMER", PriceRuleID: "507328175", UsageCount: 3}, *dc)

	_, err = c.LookupDiscountCode(context.Background(), "MISSING")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_ListPriceRulesPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/price_rules.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("limit"))
		switch q.Get("page_info") {
		case "":
			w.Header().Add("Link", `<https://shop.example/admin/api/2024-01/price_rules.json?limit=1&page_info=second>; rel="next"`)
			_, _ = w.Write([]byte(`{"price_rules":[` + priceRuleJSON + `]}`))
		case "second":
			w.Header().Add("Link", `<https://shop.example/admin/api/2024-01/price_rules.json?limit=1&page_info=first>; rel="previous"`)
			_, _ = w.Write([]byte(`{"price_rules":[{"id":2,"title":"Flat","value_type":"fixed_amount","value":"-5.0","target_selection":"all","starts_at":"2025-01-01T00:00:00Z"}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	first, err := c.ListPriceRules(ctx, coupon.PageRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "second", first.NextCursor)

	second, err := c.ListPriceRules(ctx, coupon.PageRequest{Limit: 1, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "2", second.Items[0].ID)
	assert.Equal(t, discount.TargetAll, second.Items[0].TargetSelection)
	assert.Empty(t, second.NextCursor)
}

func TestClient_ListDiscountCodesFillsRuleID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/api/2024-01/price_rules/9/discount_codes.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"discount_codes":[{"id":1,"code":"A"},{"id":2,"code":"B","price_rule_id":9}]}`))
	})
	c := newTestClient(t, mux)

	page, err := c.ListDiscountCodes(context.Background(), "9", coupon.PageRequest{Limit: 250})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	for _, dc := range page.Items {
		assert.Equal(t, "9", dc.PriceRuleID)
	}
	assert.Empty(t, page.NextCursor)
}

func TestClient_StatusError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"[API] Invalid API key"}`, http.StatusUnauthorized)
	}))

	_, err := c.GetPriceRule(context.Background(), "1")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.False(t, IsNotFound(err))

	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_MalformedBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price_rule":{"id":`))
	}))

	_, err := c.GetPriceRule(context.Background(), "1")
	require.Error(t, err)
}

func TestNextCursor(t *testing.T) {
	tests := []struct {
		name  string
		links []string
		want  string
	}{
		{name: "none"},
		{
			name:  "next only",
			links: []string{`<https://s.myshopify.com/admin/api/2024-01/price_rules.json?limit=250&page_info=abc>; rel="next"`},
			want:  "abc",
		},
		{
			name: "previous and next",
			links: []string{
				`<https://s.myshopify.com/admin/api/2024-01/price_rules.json?page_info=prev>; rel="previous", <https://s.myshopify.com/admin/api/2024-01/price_rules.json?page_info=nxt>; rel="next"`,
			},
			want: "nxt",
		},
		{
			name:  "previous only",
			links: []string{`<https://s.myshopify.com/admin/api/2024-01/price_rules.json?page_info=prev>; rel="previous"`},
		},
		{
			name:  "unquoted rel",
			links: []string{`<https://s.myshopify.com/x.json?page_info=q>; rel=next`},
			want:  "q",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextCursor(tt.links))
		})
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{AccessToken: "x"})
	require.Error(t, err)

	_, err = New(Config{Domain: "shop.myshopify.com"})
	require.Error(t, err)

	c, err := New(Config{Domain: "https://shop.myshopify.com/", AccessToken: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.myshopify.com", c.base.String())
	assert.Equal(t, DefaultAPIVersion, c.version)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}
