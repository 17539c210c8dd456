package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bezhai/inner-bot-server-sub001/internal/config"
	"github.com/bezhai/inner-bot-server-sub001/internal/httputil"
	"github.com/bezhai/inner-bot-server-sub001/internal/telemetry"
)

const (
	defaultRPM = 600

	headerCallerID          = "X-Caller-ID"
	headerRateLimitRequests = "X-RateLimit-Limit-Requests"
	headerRateLimitRemain   = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset    = "X-RateLimit-Reset-Requests"
	headerRetryAfter        = "Retry-After"
)

// Middleware limits evaluations per caller. The caller is X-Caller-ID, or
// the remote host when the header is absent.
func Middleware(limiter Checker, cfg func() config.RateLimitConfig, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rl := cfg()
			if !rl.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			reqID := w.Header().Get("X-Request-ID")

			rpm := rl.RequestsPerMinute
			if rpm <= 0 {
				rpm = defaultRPM
			}

			caller := CallerID(r)
			result, _ := limiter.Check(r.Context(), "rpm:"+caller, int64(rpm), time.Minute)

			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemain, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"caller", caller,
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit()
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d evaluations per minute", rpm))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CallerID identifies the client for rate limiting.
func CallerID(r *http.Request) string {
	if id := r.Header.Get(headerCallerID); id != "" {
		return id
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
