package retry

import (
	"math"
	"time"

	"lease-sync/core/apierr"
)

const (
	// DefaultMaxRetries is the retry budget of the named policies.
	DefaultMaxRetries = 3
	// RateLimitMultiplier doubles the delay after each 429.
	RateLimitMultiplier = 2.0
	// ServerErrorMultiplier grows the delay by half after each 5xx.
	ServerErrorMultiplier = 1.5
)

// Policy describes how one class of calls is throttled and retried.
type Policy struct {
	// Name identifies the rate class; calls sharing a name share a token bucket.
	Name string
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// RateLimitMultiplier scales the delay between retries caused by 429s.
	RateLimitMultiplier float64
	// ServerErrorMultiplier scales the delay between retries caused by 5xx.
	ServerErrorMultiplier float64
	// MinInterval is the floor between two calls of this class. Zero disables throttling.
	MinInterval time.Duration
}

// Standard is the policy for plain CRUD endpoints.
func Standard() Policy {
	return Policy{
		Name:                  "standard",
		MaxRetries:            DefaultMaxRetries,
		InitialDelay:          200 * time.Millisecond,
		RateLimitMultiplier:   RateLimitMultiplier,
		ServerErrorMultiplier: ServerErrorMultiplier,
		MinInterval:           111 * time.Millisecond,
	}
}

// Search is the policy for search endpoints, which have a tighter rate class.
func Search() Policy {
	return Policy{
		Name:                  "search",
		MaxRetries:            DefaultMaxRetries,
		InitialDelay:          550 * time.Millisecond,
		RateLimitMultiplier:   RateLimitMultiplier,
		ServerErrorMultiplier: ServerErrorMultiplier,
		MinInterval:           550 * time.Millisecond,
	}
}

// WithMaxRetries returns a copy of p with a different retry budget.
func (p Policy) WithMaxRetries(n int) Policy {
	p.MaxRetries = n
	return p
}

// WithMinInterval returns a copy of p with a different call floor.
func (p Policy) WithMinInterval(d time.Duration) Policy {
	p.MinInterval = d
	return p
}

// Backoff returns the delay before retry number attempt+1 for an error of
// the given kind. Attempt counts from zero.
func (p Policy) Backoff(kind apierr.Kind, attempt int) time.Duration {
	mult := p.RateLimitMultiplier
	if kind == apierr.KindTransientServer {
		mult = p.ServerErrorMultiplier
	}
	if mult <= 0 {
		mult = 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(p.InitialDelay) * math.Pow(mult, float64(attempt)))
}

func (p Policy) normalized() Policy {
	if p.Name == "" {
		p.Name = "default"
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.RateLimitMultiplier <= 0 {
		p.RateLimitMultiplier = RateLimitMultiplier
	}
	if p.ServerErrorMultiplier <= 0 {
		p.ServerErrorMultiplier = ServerErrorMultiplier
	}
	return p
}
