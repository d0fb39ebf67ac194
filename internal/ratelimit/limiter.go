package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different upstreams we send requests to
type API string

const (
	// APIYahoo represents the Yahoo Finance chart API
	APIYahoo API = "yahoo"
	// APIScrape represents public yield pages
	APIScrape API = "scrape"
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the singleton rate limiter instance
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = &Limiter{
			limiters: make(map[API]*rate.Limiter),
		}
		instance.initLimiters()
	})
	return instance
}

// initLimiters initializes rate limiters for each API with conservative defaults
func (l *Limiter) initLimiters() {
	// Tests hit local httptest servers, no need to slow them down
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		l.limiters[APIYahoo] = rate.NewLimiter(rate.Inf, 1)
		l.limiters[APIScrape] = rate.NewLimiter(rate.Inf, 1)
		return
	}

	// Yahoo: 4 requests per second, burst of 2
	l.limiters[APIYahoo] = rate.NewLimiter(rate.Limit(4), 2)

	// Yield pages are public websites: one request per second
	l.limiters[APIScrape] = rate.NewLimiter(rate.Limit(1), 1)
}

// isTestMode checks if we're running in test mode
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// SetLimit replaces the limit for api, as configured under rate_limits.
func (l *Limiter) SetLimit(api API, limit rate.Limit, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[api] = rate.NewLimiter(limit, burst)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return true
	}

	return limiter.Allow()
}
