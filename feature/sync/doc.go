// Package sync composes the source client, the reconcilers and the lifecycle
// machine into named sync flows.
//
// # Flows
//
//   - units: iterate units, reconcile each listing, then the tenants and
//     lifecycle associations of the unit's leases.
//   - leases: iterate leases updated since the watermark and re-sync their
//     units. The watermark only advances after a clean, complete run.
//   - owners: iterate rental (and optionally association) owners, reconcile
//     the contact or company, and link it to every listing it owns.
//   - tenant, unit, property: single-entity variants of the above.
//
// # Limits and concurrency
//
// Items in a page run concurrently up to Options.Concurrency. The success
// limit counts only items that created or updated something; a budget holds
// back new items while in-flight ones could still reach the limit, so it is
// never exceeded. Cancelling the context stops new items from starting;
// items already running finish on a detached context.
//
// Per-item failures are recorded in Stats and never abort the batch.
package sync
