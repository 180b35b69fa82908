package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/voicesop/internal/logging"
)

const limiterResetInterval = time.Hour

// ipLimiter hands out one token bucket per client IP.
type ipLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

func newIPLimiter(perSecond float64, burst int) *ipLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &ipLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		now:   time.Now,
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	// The map is dropped wholesale every hour so idle IPs don't accumulate.
	if l.limiters == nil || now.Sub(l.lastCleanup) > limiterResetInterval {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = now
	}

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// allow reports whether ip may make another request now.
func (l *ipLimiter) allow(ip string) bool {
	return l.get(ip).AllowN(l.now(), 1)
}

// rateLimitMiddleware rejects requests over the per-IP budget with 429.
// A non-positive rate disables limiting.
func rateLimitMiddleware(l *ipLimiter, logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.limit <= 0 {
				return next(c)
			}
			ip := c.RealIP()
			if !l.allow(ip) {
				logger.Warn(c.Request().Context(), "rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", c.Path()),
				)
				return echo.NewHTTPError(http.StatusTooManyRequests, "Rate limit exceeded")
			}
			return next(c)
		}
	}
}
