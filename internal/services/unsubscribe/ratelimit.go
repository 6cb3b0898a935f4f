package unsubscribe

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests to the same host. It is the only mutable state
// shared between concurrently processed emails.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
}

// NewHostLimiter allows one request per host every interval; interval <= 0 disables limiting
func NewHostLimiter(every time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
	}
}

// Wait blocks until rawURL's host may be contacted or ctx is done
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if hl == nil || hl.every <= 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())

	hl.mu.Lock()
	limiter, ok := hl.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(hl.every), 1)
		hl.limiters[host] = limiter
	}
	hl.mu.Unlock()

	return limiter.Wait(ctx)
}
