package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/veridocs/veridocs/internal/model"
)

// KeyFunc extracts the rate-limit key from a request. Returning an empty
// string exempts the request from limiting.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys requests by client IP. Used for unauthenticated endpoints
// such as token issuance. X-Forwarded-For is untrusted and deliberately
// ignored; deployments behind a proxy should terminate limits there.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces the limiter for requests keyed by keyFunc under the
// given prefix. Limiter errors fail open: a broken limiter must not take
// down the API. reqIDFunc supplies the request id for the error envelope
// and may be nil.
func Middleware(limiter Limiter, prefix string, keyFunc KeyFunc, reqIDFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), prefix+":"+key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				var reqID string
				if reqIDFunc != nil {
					reqID = reqIDFunc(r)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(model.APIError{
					Error: model.ErrorDetail{
						Code:    model.ErrCodeRateLimited,
						Message: "rate limit exceeded",
					},
					Meta: model.ResponseMeta{
						RequestID: reqID,
						Timestamp: time.Now().UTC(),
					},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
