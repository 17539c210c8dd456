package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/httputil"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
)

// countingChecker admits the first limit requests per key.
type countingChecker struct {
	counts map[string]int64
	keys   []string
}

func (c *countingChecker) Check(_ context.Context, key string, limit int64, window time.Duration) (LimitResult, error) {
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.keys = append(c.keys, key)
	if c.counts[key] >= limit {
		return LimitResult{Allowed: false, ResetAt: time.Now().Add(window), RetryAfter: window / 2}, nil
	}
	c.counts[key]++
	return LimitResult{Allowed: true, Remaining: limit - c.counts[key], ResetAt: time.Now().Add(window)}, nil
}

func rateCfg(enabled bool, rpm int) func() config.RateLimitConfig {
	return func() config.RateLimitConfig {
		return config.RateLimitConfig{Enabled: enabled, RequestsPerMinute: rpm}
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowsRequest(t *testing.T) {
	handler := Middleware(NewLimiter(nil), rateCfg(true, 100), nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/gate/evaluate", nil)
	req.Header.Set("X-Caller-ID", "chat-server")
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if h := rec.Header().Get(headerRateLimitRequests); h != "100" {
		t.Errorf("expected X-RateLimit-Limit-Requests=100, got %s", h)
	}
	for _, h := range []string{headerRateLimitRemain, headerRateLimitReset} {
		if rec.Header().Get(h) == "" {
			t.Errorf("missing header: %s", h)
		}
	}
}

func TestMiddleware_DefaultRPM(t *testing.T) {
	handler := Middleware(NewLimiter(nil), rateCfg(true, 0), nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/gate/evaluate", nil))

	if h := rec.Header().Get(headerRateLimitRequests); h != "600" {
		t.Errorf("expected default RPM=600, got %s", h)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	checker := &countingChecker{}
	handler := Middleware(checker, rateCfg(false, 1), nil)(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/gate/evaluate", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with limiting disabled, got %d", rec.Code)
		}
	}
	if len(checker.keys) != 0 {
		t.Error("disabled limiter must not be consulted")
	}
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	metrics := telemetry.NewMetricsWith(prometheus.NewRegistry())
	checker := &countingChecker{}
	handler := Middleware(checker, rateCfg(true, 2), metrics)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/gate/evaluate", nil)
		req.Header.Set("X-Caller-ID", "chat-server")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if i == 2 {
			if rec.Header().Get(headerRetryAfter) == "" {
				t.Error("expected Retry-After on rejection")
			}
			var apiErr httputil.APIError
			if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if apiErr.Error.Code != "rate_limit_exceeded" {
				t.Errorf("expected code 'rate_limit_exceeded', got %s", apiErr.Error.Code)
			}
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 200, 200, 429; got %v", codes)
	}

	var m dto.Metric
	if err := metrics.RateLimitHitTotal.Write(&m); err != nil {
		t.Fatal(err)
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("expected 1 rate limit hit, got %v", m.GetCounter().GetValue())
	}
}

func TestCallerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := CallerID(req); got != "10.0.0.7" {
		t.Errorf("expected remote host, got %q", got)
	}

	req.Header.Set("X-Caller-ID", "chat-server")
	if got := CallerID(req); got != "chat-server" {
		t.Errorf("expected header caller, got %q", got)
	}
}
