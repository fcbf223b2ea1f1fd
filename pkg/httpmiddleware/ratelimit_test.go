package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testLimiter(max int, window time.Duration) (*limiter, *clock) {
	c := &clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := newLimiter(RateLimitConfig{Max: max, Window: window})
	l.now = c.now
	return l, c
}

func TestLimiter_Take(t *testing.T) {
	l, c := testLimiter(3, time.Minute)

	for want := 2; want >= 0; want-- {
		v := l.take("a")
		require.True(t, v.allowed)
		assert.Equal(t, want, v.remaining)
	}

	v := l.take("a")
	assert.False(t, v.allowed)
	assert.Equal(t, 20*time.Second, v.retryAfter)

	assert.True(t, l.take("b").allowed, "clients are limited independently")

	c.advance(20 * time.Second)
	assert.True(t, l.take("a").allowed, "one slot frees up per interval")
	assert.False(t, l.take("a").allowed)

	c.advance(time.Minute)
	v = l.take("a")
	assert.True(t, v.allowed)
	assert.Equal(t, 2, v.remaining, "bucket refills after a full window")
}

func TestLimiter_Sweep(t *testing.T) {
	l, c := testLimiter(2, time.Minute)
	l.take("a")
	l.take("b")
	require.Len(t, l.tat, 2)

	c.advance(10 * time.Second)
	l.sweep()
	assert.Len(t, l.tat, 2)

	c.advance(time.Minute)
	l.sweep()
	assert.Empty(t, l.tat)
}

func TestRateLimit_Middleware(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	serve := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/discounts/check", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for range 2 {
		w := serve("10.0.0.1:5000")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := serve("10.0.0.1:5001")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"valid":false,"error":"Too many requests, please try again later"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, serve("10.0.0.2:5000").Code)
}

func TestRateLimit_CustomKey(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: func(r *http.Request) string { return r.Header.Get("X-Shop") },
	})(okHandler())

	serve := func(shop string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Shop", shop)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("one"))
	assert.Equal(t, http.StatusTooManyRequests, serve("one"))
	assert.Equal(t, http.StatusOK, serve("two"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "remote without port", remote: "192.0.2.1", want: "192.0.2.1"},
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.1"}, remote: "10.0.0.9:1", want: "203.0.113.5"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.9:1", want: "198.51.100.7"},
		{name: "empty forwarded", headers: map[string]string{"X-Forwarded-For": " "}, remote: "10.0.0.9:1", want: "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
