// Package ratelimit provides a registry of named token-bucket limiters
// shared across plugins, so multiple nodes calling the same external
// service enforce one combined rate rather than independent ones.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config configures one named limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultConfig returns a conservative default for services with no
// explicit configuration.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 10, Burst: 20}
}

// Limiter wraps *rate.Limiter with the Allow/Wait surface plugins need.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex
	config  Config
}

func newLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		config:  cfg,
	}
}

// Allow reports whether a request may proceed immediately, consuming a
// token if so.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Reset replaces the underlying bucket with a fresh one at the same
// configured rate, discarding any accumulated burst credit.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
}

// Registry is a process-wide collection of named limiters, shared
// across plugins so calls to the same external service (keyed by
// service name, e.g. "openai", "azure-blob") draw from one bucket
// regardless of which node issues them.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
	defaults Config
}

// NewRegistry constructs an empty registry. defaults is applied to any
// service name first seen without an explicit Configure call.
func NewRegistry(defaults Config) *Registry {
	return &Registry{
		limiters: make(map[string]*Limiter),
		defaults: defaults,
	}
}

// Configure sets (or replaces) the limiter configuration for a named
// service. Safe to call before or after the service has issued any
// requests; replacing an in-flight limiter loses its accumulated burst
// credit.
func (r *Registry) Configure(service string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[service] = newLimiter(cfg)
}

// Get returns the named limiter, creating one with the registry's
// default configuration on first use.
func (r *Registry) Get(service string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[service]
	if !ok {
		l = newLimiter(r.defaults)
		r.limiters[service] = l
	}
	return l
}

// Wait is a convenience for Get(service).Wait(ctx).
func (r *Registry) Wait(ctx context.Context, service string) error {
	return r.Get(service).Wait(ctx)
}

// Allow is a convenience for Get(service).Allow().
func (r *Registry) Allow(service string) bool {
	return r.Get(service).Allow()
}
