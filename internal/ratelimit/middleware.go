package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"lead-funnel/internal/common/errors"
)

// ErrorWriter renders a rejected request. The API layer passes its own so
// 429s share the response envelope of every other error.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

// Middleware applies policy to every request before the body is read.
func (l *Limiter) Middleware(policy string, onError ErrorWriter) func(http.Handler) http.Handler {
	if onError == nil {
		onError = writeError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), policy, l.proxies.ClientIP(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if d.Reset > 0 {
				h.Set("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(d.Reset)))
			}

			if !d.Allowed {
				if err != nil {
					onError(w, r, errors.NewStoreUnavailableError("rate limit", err))
					return
				}
				h.Set("Retry-After", strconv.Itoa(ceilSeconds(d.RetryAfter)))
				onError(w, r, errors.NewRateLimitedError(d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, _ *http.Request, err error) {
	se := errors.Normalize(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(se.Code))
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    se.Code,
			"message": se.Message,
		},
	})
}
