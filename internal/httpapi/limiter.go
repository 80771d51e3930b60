package httpapi

import (
	"context"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
)

// attemptLimiter caps attempts per client within a sliding period.
type attemptLimiter struct {
	instance *limiter.Limiter
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	rate := limiter.Rate{Period: window, Limit: int64(max)}
	return &attemptLimiter{instance: limiter.New(limitermemory.NewStore(), rate)}
}

func (l *attemptLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return true
	}
	res, err := l.instance.Get(ctx, key)
	if err != nil {
		log.Printf("[auth] WARN: rate limiter unavailable: %v", err)
		return true
	}
	return !res.Reached
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
