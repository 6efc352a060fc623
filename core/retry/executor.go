package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"lease-sync/core/apierr"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds the per-system executor settings.
type Config struct {
	// Name identifies the external system in logs and breaker state.
	Name string
	// Concurrency is the ceiling of in-flight calls. Values below 1 mean 1.
	Concurrency int
	// Breaker enables the circuit breaker.
	Breaker bool
	// BreakerMinRequests is the number of calls observed before the breaker may trip.
	BreakerMinRequests uint32
	// BreakerFailureRatio is the share of server failures that trips the breaker.
	BreakerFailureRatio float64
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option customises an Executor.
type Option func(*Executor)

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// Counters is a snapshot of executor activity.
type Counters struct {
	Calls     int64
	Retries   int64
	Failures  int64
	Exhausted int64
}

// Executor throttles, bounds and retries calls to one external system.
// It is safe for concurrent use.
type Executor struct {
	name    string
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *zap.Logger
	sleep   SleepFunc

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	calls     atomic.Int64
	retries   atomic.Int64
	failures  atomic.Int64
	exhausted atomic.Int64
}

// NewExecutor creates an executor for one external system.
func NewExecutor(cfg Config, logger *zap.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	name := cfg.Name
	if name == "" {
		name = "api"
	}

	e := &Executor{
		name:     name,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		logger:   logger.With(zap.String("system", name)),
		sleep:    sleepContext,
		limiters: make(map[string]*rate.Limiter),
	}
	if cfg.Breaker {
		e.breaker = newBreaker(name, cfg, e.logger)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the external system name.
func (e *Executor) Name() string {
	return e.name
}

// Counters returns a snapshot of the executor's activity.
func (e *Executor) Counters() Counters {
	return Counters{
		Calls:     e.calls.Load(),
		Retries:   e.retries.Load(),
		Failures:  e.failures.Load(),
		Exhausted: e.exhausted.Load(),
	}
}

// Do runs op under the policy. Retryable failures are retried up to
// policy.MaxRetries times; the last error is returned unchanged when the
// budget is exhausted. Non-retryable errors return immediately.
func Do[T any](ctx context.Context, e *Executor, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	policy = policy.normalized()

	for attempt := 0; ; attempt++ {
		var out T
		err := e.run(ctx, policy, func(ctx context.Context) error {
			v, err := op(ctx)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		if err == nil {
			return out, nil
		}
		e.failures.Add(1)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &apierr.Error{Kind: apierr.KindTransientServer, Op: e.name, Message: "circuit breaker rejected call", Err: err}
		}
		if !apierr.IsRetryable(err) {
			return zero, err
		}
		if attempt >= policy.MaxRetries {
			e.exhausted.Add(1)
			e.logger.Warn("Retries exhausted",
				zap.String("policy", policy.Name),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return zero, err
		}

		delay := policy.Backoff(apierr.KindOf(err), attempt)
		if ra := apierr.RetryAfter(err); ra > delay {
			delay = ra
		}
		e.retries.Add(1)
		e.logger.Warn("Retrying after API failure",
			zap.String("policy", policy.Name),
			zap.String("kind", string(apierr.KindOf(err))),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("delay", delay))

		if err := e.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// run performs a single attempt: throttle, take a concurrency slot, call.
func (e *Executor) run(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	if err := e.limiter(policy).Wait(ctx); err != nil {
		return err
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	e.calls.Add(1)
	if e.breaker == nil {
		return fn(ctx)
	}
	_, err := e.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (e *Executor) limiter(policy Policy) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.limiters[policy.Name]
	if !ok {
		limit := rate.Inf
		if policy.MinInterval > 0 {
			limit = rate.Every(policy.MinInterval)
		}
		l = rate.NewLimiter(limit, 1)
		e.limiters[policy.Name] = l
	}
	return l
}

func newBreaker(name string, cfg Config, logger *zap.Logger) *gobreaker.CircuitBreaker[struct{}] {
	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.BreakerFailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		// Only server-side trouble counts against the breaker; rejected
		// payloads and missing records say nothing about system health.
		IsSuccessful: func(err error) bool {
			return err == nil || !apierr.IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
