// Package resilience wraps pool recycling with retry and circuit breaking.
package resilience

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/relicta-tech/lockable/internal/domain/resource"
	lrerrors "github.com/relicta-tech/lockable/internal/errors"
)

// Config configures the resilient recycler.
type Config struct {
	// Retry configuration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// Circuit breaker
	FailureThreshold uint32        // consecutive failures before opening
	OpenTimeout      time.Duration // how long to stay open
	HalfOpenRequests uint32        // requests allowed in half-open
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// Recycler decorates a resource.Recycler. Order: circuit breaker, then
// retry, then the pool.
type Recycler struct {
	next    resource.Recycler
	retrier retry.Retry[struct{}]
	breaker circuitbreaker.CircuitBreaker[struct{}]
	logger  *log.Logger
}

// NewRecycler wraps next. MaxAttempts below 2 disables retry and a zero
// FailureThreshold disables the breaker.
func NewRecycler(next resource.Recycler, cfg Config, logger *log.Logger) *Recycler {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	r := &Recycler{next: next, logger: logger}

	if cfg.MaxAttempts > 1 {
		r.retrier = retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
			Jitter:        true,
			IsRetryable:   IsRetryable,
		})
	}

	if cfg.FailureThreshold > 0 {
		threshold := cfg.FailureThreshold
		halfOpen := cfg.HalfOpenRequests
		if halfOpen == 0 {
			halfOpen = 1
		}
		r.breaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: halfOpen,
			Interval:    cfg.OpenTimeout,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}

	return r
}

// Recycle implements resource.Recycler.
func (r *Recycler) Recycle(ctx context.Context, resources []*resource.Resource) error {
	op := func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.next.Recycle(ctx, resources)
	}

	var err error
	if r.breaker != nil {
		_, err = r.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return r.withRetry(ctx, op)
		})
	} else {
		_, err = r.withRetry(ctx, op)
	}

	if err != nil {
		r.logger.Warn("recycle failed", "resources", len(resources), "breaker", r.State(), "error", err)
	}
	return err
}

func (r *Recycler) withRetry(ctx context.Context, op func(context.Context) (struct{}, error)) (struct{}, error) {
	if r.retrier != nil {
		return r.retrier.Do(ctx, op)
	}
	return op(ctx)
}

// State returns the circuit breaker state: "closed", "half-open", "open",
// or "disabled".
func (r *Recycler) State() string {
	if r.breaker == nil {
		return "disabled"
	}
	return r.breaker.State().String()
}

// IsRetryable reports whether a failed recycle is worth another attempt.
// Caller mistakes and cancellation are final; I/O and state failures are
// not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, resource.ErrRecycleInProgress) {
		return false
	}
	switch lrerrors.GetKind(err) {
	case lrerrors.KindValidation, lrerrors.KindNotFound, lrerrors.KindConflict,
		lrerrors.KindEvaluation, lrerrors.KindConfig:
		return false
	}
	return true
}
