// Package shopify is a minimal Shopify Admin REST client for price rules and
// discount codes.
package shopify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const (
	DefaultAPIVersion = "2024-01"
	DefaultTimeout    = 10 * time.Second

	maxBodySize = 8 << 20
)

// Config configures the client.
type Config struct {
	// Domain is the shop domain, e.g. "example.myshopify.com".
	Domain      string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration

	// BaseURL overrides "https://<Domain>".
	BaseURL string
	// Transport defaults to an otelhttp instrumented http.DefaultTransport.
	Transport http.RoundTripper
}

// Client talks to the Shopify Admin REST API. Requests are never retried.
type Client struct {
	http    *http.Client
	base    *url.URL
	token   string
	version string
}

var _ coupon.Upstream = (*Client)(nil)

// New creates a Client.
func New(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		domain := strings.TrimSpace(cfg.Domain)
		if domain == "" {
			return nil, errors.New("shop domain is required")
		}
		domain = strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://")
		base = "https://" + strings.TrimSuffix(domain, "/")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		base:    u,
		token:   cfg.AccessToken,
		version: version,
	}, nil
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// LookupDiscountCode finds a discount code by code. Shopify answers with a
// redirect to the code resource, which the http client follows.
func (c *Client) LookupDiscountCode(ctx context.Context, code string) (*discount.DiscountCode, error) {
	var dc discount.DiscountCode
	_, err := c.get(ctx, "discount_codes/lookup.json", url.Values{"code": {code}}, func(d *jx.Decoder) error {
		return decodeEnvelope(d, "discount_code", func(d *jx.Decoder) error {
			return decodeDiscountCode(d, &dc)
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "lookup discount code")
	}
	return &dc, nil
}

// GetPriceRule fetches a single price rule.
func (c *Client) GetPriceRule(ctx context.Context, priceRuleID string) (*discount.PriceRule, error) {
	var rule discount.PriceRule
	_, err := c.get(ctx, "price_rules/"+url.PathEscape(priceRuleID)+".json", nil, func(d *jx.Decoder) error {
		return decodeEnvelope(d, "price_rule", func(d *jx.Decoder) error {
			return decodePriceRule(d, &rule)
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "get price rule %s", priceRuleID)
	}
	return &rule, nil
}

// ListPriceRules returns one page of price rules.
func (c *Client) ListPriceRules(ctx context.Context, req coupon.PageRequest) (coupon.Page[discount.PriceRule], error) {
	var page coupon.Page[discount.PriceRule]
	next, err := c.get(ctx, "price_rules.json", pageQuery(req), func(d *jx.Decoder) error {
		return decodeEnvelope(d, "price_rules", func(d *jx.Decoder) error {
			return d.Arr(func(d *jx.Decoder) error {
				var rule discount.PriceRule
				if err := decodePriceRule(d, &rule); err != nil {
					return err
				}
				page.Items = append(page.Items, rule)
				return nil
			})
		})
	})
	if err != nil {
		return page, errors.Wrap(err, "list price rules")
	}
	page.NextCursor = next
	return page, nil
}

// ListDiscountCodes returns one page of the codes of a price rule.
func (c *Client) ListDiscountCodes(ctx context.Context, priceRuleID string, req coupon.PageRequest) (coupon.Page[discount.DiscountCode], error) {
	var page coupon.Page[discount.DiscountCode]
	path := "price_rules/" + url.PathEscape(priceRuleID) + "/discount_codes.json"
	next, err := c.get(ctx, path, pageQuery(req), func(d *jx.Decoder) error {
		return decodeEnvelope(d, "discount_codes", func(d *jx.Decoder) error {
			return d.Arr(func(d *jx.Decoder) error {
				var dc discount.DiscountCode
				if err := decodeDiscountCode(d, &dc); err != nil {
					return err
				}
				if dc.PriceRuleID == "" {
					dc.PriceRuleID = priceRuleID
				}
				page.Items = append(page.Items, dc)
				return nil
			})
		})
	})
	if err != nil {
		return page, errors.Wrapf(err, "list discount codes of %s", priceRuleID)
	}
	page.NextCursor = next
	return page, nil
}

// Ping checks credentials and reachability by reading the shop resource.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.get(ctx, "shop.json", nil, func(d *jx.Decoder) error {
		return d.Skip()
	}); err != nil {
		return errors.Wrap(err, "ping shop")
	}
	return nil
}

// pageQuery builds list parameters. Shopify rejects filters other than limit
// alongside page_info.
func pageQuery(req coupon.PageRequest) url.Values {
	q := url.Values{}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		q.Set("page_info", req.Cursor)
	}
	return q
}

// get performs a GET against the versioned admin API and decodes the body.
// It returns the next page cursor from the Link header, if any.
func (c *Client) get(ctx context.Context, path string, query url.Values, decode func(d *jx.Decoder) error) (string, error) {
	u := c.base.JoinPath("admin", "api", c.version, path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", errors.Wrap(err, "read body")
	}

	zctx.From(ctx).Debug("Shopify request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{
			Method: http.MethodGet,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   truncate(strings.TrimSpace(string(body)), 256),
		}
	}

	if err := decode(jx.DecodeBytes(body)); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	return nextCursor(resp.Header.Values("Link")), nil
}

// nextCursor extracts page_info from the rel="next" entry of Link headers:
//
//	<https://shop/admin/api/2024-01/price_rules.json?limit=250&page_info=abc>; rel="next"
func nextCursor(links []string) string {
	for _, header := range links {
		for _, link := range strings.Split(header, ",") {
			target, params, found := strings.Cut(strings.TrimSpace(link), ";")
			if !found || !isNextRel(params) {
				continue
			}
			target = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(target), "<"), ">")
			u, err := url.Parse(target)
			if err != nil {
				continue
			}
			if cursor := u.Query().Get("page_info"); cursor != "" {
				return cursor
			}
		}
	}
	return ""
}

func isNextRel(params string) bool {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(value), `"`)) {
			if strings.EqualFold(rel, "next") {
				return true
			}
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
