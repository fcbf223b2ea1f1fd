package export

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"testing"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

type stubUpstream struct {
	rules    []discount.PriceRule
	codes    map[string][]string
	codesErr error
}

func page[T any](all []T, req coupon.PageRequest) coupon.Page[T] {
	start, _ := strconv.Atoi(req.Cursor)
	end := min(start+req.Limit, len(all))
	p := coupon.Page[T]{Items: all[start:end]}
	if end < len(all) {
		p.NextCursor = strconv.Itoa(end)
	}
	return p
}

func (s *stubUpstream) LookupDiscountCode(context.Context, string) (*discount.DiscountCode, error) {
	return nil, errors.New("not used")
}

func (s *stubUpstream) GetPriceRule(context.Context, string) (*discount.PriceRule, error) {
	return nil, errors.New("not used")
}

func (s *stubUpstream) ListPriceRules(_ context.Context, req coupon.PageRequest) (coupon.Page[discount.PriceRule], error) {
	return page(s.rules, req), nil
}

func (s *stubUpstream) ListDiscountCodes(_ context.Context, ruleID string, req coupon.PageRequest) (coupon.Page[discount.DiscountCode], error) {
	if s.codesErr != nil {
		return coupon.Page[discount.DiscountCode]{}, s.codesErr
	}
	var all []discount.DiscountCode
	for i, c := range s.codes[ruleID] {
		all = append(all, discount.DiscountCode{
			ID:          ruleID + "-" + strconv.Itoa(i),
			Code:        c,
			PriceRuleID: ruleID,
			UsageCount:  i,
		})
	}
	return page(all, req), nil
}

func readLines(t *testing.T, data []byte) []string {
	t.Helper()

	gz, err := pgzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = gz.Close() }()

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestExport(t *testing.T) {
	up := &stubUpstream{
		rules: []discount.PriceRule{
			{ID: "1", Title: "Summer\tsale", UsageCount: 3},
			{ID: "2", Title: "Welcome"},
			{ID: "3", Title: "Empty"},
		},
		codes: map[string][]string{
			"1": {"summer10", " SUMMER20 ", "SUMMER30"},
			"2": {"WELCOME", "summer10", "  "},
		},
	}

	var out, filter bytes.Buffer
	sum, err := New(up, coupon.Config{PageSize: 2, MaxPages: 10, ScanConcurrency: 2}).
		Export(context.Background(), &out, &filter)
	require.NoError(t, err)

	assert.Equal(t, Summary{Rules: 3, Codes: 4, Duplicates: 1}, sum)
	assert.Equal(t, []string{
		Header,
		"SUMMER10\t1\tSummer sale\t3",
		"SUMMER20\t1\tSummer sale\t3",
		"SUMMER30\t1\tSummer sale\t3",
		"WELCOME\t2\tWelcome\t0",
	}, readLines(t, out.Bytes()))

	var bf bloom.BloomFilter
	_, err = bf.ReadFrom(&filter)
	require.NoError(t, err)
	for _, code := range []string{"SUMMER10", "SUMMER20", "SUMMER30", "WELCOME"} {
		assert.True(t, bf.TestString(code), code)
	}
}

func TestExport_SkipsDisabledRules(t *testing.T) {
	up := &stubUpstream{
		rules: []discount.PriceRule{
			{ID: "1", Title: "Live"},
			{ID: "2", Title: "Paused", Status: discount.StatusDisabled},
		},
		codes: map[string][]string{
			"1": {"LIVE"},
			"2": {"PAUSED"},
		},
	}

	var out, filter bytes.Buffer
	sum, err := New(up, coupon.Config{}).Export(context.Background(), &out, &filter)
	require.NoError(t, err)

	assert.Equal(t, Summary{Rules: 1, Codes: 1}, sum)
	assert.Equal(t, []string{Header, "LIVE\t1\tLive\t0"}, readLines(t, out.Bytes()))

	var bf bloom.BloomFilter
	_, err = bf.ReadFrom(&filter)
	require.NoError(t, err)
	assert.True(t, bf.TestString("LIVE"))
}

func TestExport_NoFilter(t *testing.T) {
	up := &stubUpstream{
		rules: []discount.PriceRule{{ID: "1", Title: "Only"}},
		codes: map[string][]string{"1": {"ONLY"}},
	}

	var out bytes.Buffer
	sum, err := New(up, coupon.Config{}).Export(context.Background(), &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Codes)
	assert.Len(t, readLines(t, out.Bytes()), 2)
}

func TestExport_Failures(t *testing.T) {
	rules := func(n int) []discount.PriceRule {
		out := make([]discount.PriceRule, n)
		for i := range out {
			out[i] = discount.PriceRule{ID: strconv.Itoa(i + 1)}
		}
		return out
	}

	tests := []struct {
		name    string
		up      *stubUpstream
		cfg     coupon.Config
		wantErr string
	}{
		{
			name:    "code listing fails",
			up:      &stubUpstream{rules: rules(3), codesErr: errors.New("502 Bad Gateway")},
			cfg:     coupon.Config{PageSize: 10, MaxPages: 5},
			wantErr: "502 Bad Gateway",
		},
		{
			name:    "page cap",
			up:      &stubUpstream{rules: rules(10)},
			cfg:     coupon.Config{PageSize: 2, MaxPages: 3},
			wantErr: "page cap reached after 6 items",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := New(tt.up, tt.cfg).Export(context.Background(), &out, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Zero(t, out.Len(), "nothing is written on failure")
		})
	}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a b c d", sanitize("a\tb\nc\rd"))
}
