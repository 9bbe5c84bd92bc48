// Package ratelimit wraps go-chi/httprate into the global and per-IP
// limiters the HTTP demo adapter applies ahead of its route groups.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tarigateway/reconciler/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse is the JSON body returned when a limit is exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

func createRateLimitHandler(limitType string, windowSeconds int, m *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if m != nil {
			m.ObserveRateLimit(limitType)
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           fmt.Sprintf("%s rate limit exceeded. Please try again later.", limitType),
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// GlobalLimiter rate-limits the whole server across every caller.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(createRateLimitHandler("global", int(cfg.GlobalWindow.Seconds()), cfg.Metrics)),
	)
}

// IPLimiter rate-limits each caller IP independently.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(createRateLimitHandler("per_ip", int(cfg.PerIPWindow.Seconds()), cfg.Metrics)),
	)
}
