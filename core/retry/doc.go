// Package retry implements the rate-limited request executor shared by the
// Buildium and HubSpot clients.
//
// A Policy is a plain value describing how a call class is retried and
// throttled. Two named policies mirror the two rate classes the CRM exposes:
// Standard for CRUD endpoints and Search for the slower search endpoints.
//
// An Executor is created once per external system. It owns:
//   - one token bucket per policy class (golang.org/x/time/rate), which spaces
//     calls by the policy's MinInterval;
//   - a weighted semaphore bounding in-flight calls to the configured
//     concurrency ceiling;
//   - an optional circuit breaker (sony/gobreaker) that stops hammering a
//     system that keeps failing with server errors.
//
// Do runs an operation through the executor. Rate-limit responses back off by
// InitialDelay * 2^attempt, transient server errors by InitialDelay * 1.5^attempt,
// and every other error is returned on first occurrence. The concurrency slot
// is released while a lane sleeps, so a backoff only stalls the caller that
// was throttled.
//
// # Usage
//
//	exec := retry.NewExecutor(retry.Config{Name: "hubspot", Concurrency: 4}, logger)
//	rec, err := retry.Do(ctx, exec, retry.Search(), func(ctx context.Context) (*Record, error) {
//	    return client.search(ctx, req)
//	})
package retry
