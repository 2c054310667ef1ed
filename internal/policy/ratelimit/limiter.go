// Package ratelimit implements a per-domain token bucket used to pace page
// captures.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/web-archive-agent/internal/metrics"
)

// Limiter manages per-domain rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	overrides    map[string]float64
}

// DomainLimit overrides the default rate for one host. It is a list entry
// rather than a map key because viper splits keys on dots.
type DomainLimit struct {
	Domain string  `mapstructure:"domain"`
	RPS    float64 `mapstructure:"rps"`
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64       `mapstructure:"default_rps"`
	DefaultBurst int           `mapstructure:"default_burst"`
	Domains      []DomainLimit `mapstructure:"domains"`
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	overrides := make(map[string]float64, len(cfg.Domains))
	for _, d := range cfg.Domains {
		overrides[strings.ToLower(d.Domain)] = d.RPS
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: burst,
		overrides:    overrides,
	}
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

// Wait blocks until a token is available for the domain of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := domainOf(rawURL)
	limiter := l.limiterFor(domain)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[domain]
	if !ok {
		limit := l.defaultRate
		if rps, found := l.overrides[domain]; found {
			limit = toLimit(rps)
		}
		limiter = rate.NewLimiter(limit, l.defaultBurst)
		l.limiters[domain] = limiter
	}
	return limiter
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
