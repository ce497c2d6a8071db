package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RejectFunc renders the response for a throttled request.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// ClientKey identifies the caller by the host part of RemoteAddr. Run chi's
// RealIP middleware first when the dashboard sits behind a proxy.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware throttles POST requests per client. Other methods pass through
// so the login form itself can always be rendered.
//
// Rate-limit headers are set on every throttled-path POST:
//
//	X-RateLimit-Limit     maximum attempts per window
//	X-RateLimit-Remaining attempts left
//	Retry-After           seconds to wait, only when rejected
func Middleware(limiter *Limiter, reject RejectFunc, onReject ...func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := ClientKey(r)

			if !limiter.Allow(key) {
				for _, fn := range onReject {
					fn()
				}
				wait := limiter.RetryAfter(key)
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.attempts))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				if reject != nil {
					reject(w, r, wait)
					return
				}
				http.Error(w, "Too many login attempts. Try again later.", http.StatusTooManyRequests)
				return
			}

			limit, remaining, _ := limiter.Status(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
