// Package apierr classifies failures returned by the external REST APIs.
//
// Every call made by the Buildium and HubSpot clients is turned into an *Error
// carrying one of a closed set of kinds. The retry executor only looks at the
// kind to decide whether an attempt may be repeated, and the orchestrator
// records the kind next to each failed item so a run report can tell
// "gave up after rate limiting" apart from "the target rejected the payload".
//
// # Kinds
//
//   - RateLimited: HTTP 429, retryable with doubling backoff.
//   - TransientServer: 5xx and 408, retryable with a slower 1.5x backoff.
//   - Client: any other 4xx, surfaced on first occurrence.
//   - NotFound: 404, usually consumed as "no existing record".
//   - Configuration: fatal at startup, never produced during a run.
package apierr
