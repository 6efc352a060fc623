// Package reconcile provides natural-key upserts against the target system.
//
// A Reconciler wraps one Adapter (listings, contacts, companies) and decides,
// for each desired record, whether to create it, update it, or skip it.
//
// # Modes
//
//   - create-only: an existing record is left alone (skipped: already_exists).
//   - safe-update: only non-empty desired fields that differ are sent, so a
//     sparse source payload never clears target values. This is the default.
//   - force: every desired field is sent, empty values clear the target.
//
// # Duplicate-key races
//
// Lookups by secondary properties (email search) are racy: two lanes can both
// decide to create. When Create is rejected as a duplicate the Reconciler
// re-resolves the key and continues with the resolved record as canonical.
// Writes for the same natural key are serialised through a KeyLock.
//
// # Change gate
//
// Fields derived from a sub-entity (the active lease's rent and dates) are
// guarded by a ChangeGate: unless the sub-entity is newer than the stamp
// stored on the target record, or a tracked field actually differs, derived
// fields are not rewritten.
//
// # Cache
//
// A Cache holds resolved records for one run. It is passed in explicitly
// through Options and has no TTL; create a new one per run.
//
//	rec := reconcile.New(listings, logger)
//	cache := reconcile.NewCache()
//	res, err := rec.Upsert(ctx, "4021", fields, reconcile.Options{Cache: cache})
package reconcile
