package web

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-company request rate. Each company gets its own
// token bucket, created on first sight.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst per company.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (rl *RateLimiter) limiter(companyID uuid.UUID) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[companyID]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[companyID] = l
	}
	return l
}

// Middleware rejects over-limit requests with 429. Runs after auth so the
// company identity is available.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, "missing identity")
			return
		}
		if !rl.limiter(identity.CompanyID).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
