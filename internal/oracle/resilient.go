package oracle

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/fortify/timeout"
	"golang.org/x/time/rate"
)

// ResilienceConfig bounds and paces provider calls. The zero value applies
// no timeout, no retry, and no rate limit.
type ResilienceConfig struct {
	// Timeout bounds a single call; 0 disables it
	Timeout time.Duration

	// MaxAttempts is the number of transport attempts; values below 2 disable retry
	MaxAttempts int

	// InitialDelay is the first retry backoff
	InitialDelay time.Duration

	// RequestsPerSecond paces calls; 0 disables pacing
	RequestsPerSecond float64
}

// Resilient wraps a Provider with a rate limiter, a per-call timeout, and
// transport retry.
type Resilient struct {
	inner   Provider
	cfg     ResilienceConfig
	limiter *rate.Limiter
}

// NewResilient wraps inner.
func NewResilient(inner Provider, cfg ResilienceConfig) *Resilient {
	r := &Resilient{inner: inner, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	if r.cfg.InitialDelay <= 0 {
		r.cfg.InitialDelay = time.Second
	}
	return r
}

// Name implements Provider.
func (r *Resilient) Name() string {
	return r.inner.Name()
}

// Unwrap returns the wrapped provider.
func (r *Resilient) Unwrap() Provider {
	return r.inner
}

// Generate implements Provider.
func (r *Resilient) Generate(ctx context.Context, req *Request) (*Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	call := func(ctx context.Context) (*Response, error) {
		return r.inner.Generate(ctx, req)
	}

	if r.cfg.MaxAttempts > 1 {
		rt := retry.New[*Response](retry.Config{
			MaxAttempts:   r.cfg.MaxAttempts,
			InitialDelay:  r.cfg.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
		})
		inner := call
		call = func(ctx context.Context) (*Response, error) {
			return rt.Do(ctx, inner)
		}
	}

	if r.cfg.Timeout > 0 {
		t := timeout.New[*Response](timeout.Config{
			DefaultTimeout: r.cfg.Timeout,
		})
		return t.Execute(ctx, r.cfg.Timeout, call)
	}
	return call(ctx)
}

// Health implements Provider.
func (r *Resilient) Health(ctx context.Context) error {
	return r.inner.Health(ctx)
}
