package mw

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/gateway/ratelimit"
)

// RateLimit admits requests through limiter, keyed by bearer token or, for
// anonymous callers, by remote IP. A nil limiter disables the check.
func RateLimit(limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		dec := limiter.Acquire(callerKey(r), time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			if dec.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			}
			writeJSONError(w, http.StatusTooManyRequests, &core.Error{
				Type:      core.ErrRateLimit,
				Message:   "rate limit exceeded",
				RequestID: reqID,
			})
			return
		}
		defer dec.Permit.Release()

		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if token, ok := parseBearer(r); ok {
		return ratelimit.KeyFromToken(token)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip_" + host
}
