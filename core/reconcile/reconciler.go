package reconcile

import (
	"context"
	"fmt"

	"lease-sync/core/apierr"

	"go.uber.org/zap"
)

// Reconciler performs natural-key upserts for one adapter.
type Reconciler struct {
	adapter Adapter
	logger  *zap.Logger
	locks   KeyLock
}

// New creates a reconciler for adapter.
func New(adapter Adapter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		adapter: adapter,
		logger:  logger.With(zap.String("object", adapter.Name())),
	}
}

// Adapter returns the wrapped adapter.
func (r *Reconciler) Adapter() Adapter { return r.adapter }

// Name returns the adapter's object type name.
func (r *Reconciler) Name() string { return r.adapter.Name() }

// Resolve returns the existing record for key through the cache, or nil.
func (r *Reconciler) Resolve(ctx context.Context, key string, cache *Cache) (*Record, error) {
	rec, err := cache.Resolve(ctx, r.adapter, key)
	if apierr.IsNotFound(err) {
		return nil, nil
	}
	return rec, err
}

// Prime fills cache with the records for keys in one batch read when the
// adapter supports it. It returns how many records were found.
func (r *Reconciler) Prime(ctx context.Context, cache *Cache, keys []string) (int, error) {
	bf, ok := r.adapter.(BatchFinder)
	if !ok || cache == nil || len(keys) == 0 {
		return 0, nil
	}

	missing := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, hit := cache.Get(r.adapter.Name(), k); !hit {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	found, err := bf.FindBatch(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("prime %s cache: %w", r.adapter.Name(), err)
	}
	for k, rec := range found {
		cache.Put(r.adapter.Name(), k, rec)
	}
	r.logger.Debug("Primed cache", zap.Int("requested", len(missing)), zap.Int("found", len(found)))
	return len(found), nil
}

// Upsert reconciles the record identified by key towards desired.
func (r *Reconciler) Upsert(ctx context.Context, key string, desired Fields, opts Options) (Result, error) {
	if key == "" {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonMissingKey}, nil
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeSafeUpdate
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	existing, err := r.Resolve(ctx, key, opts.Cache)
	if err != nil {
		return Result{}, fmt.Errorf("resolve %s %s: %w", r.adapter.Name(), key, err)
	}

	if existing == nil {
		fields, changes := planCreate(r.adapter.KeyProperty(), key, unionSets(nil, desired, opts.Sets))
		if opts.DryRun {
			return Result{Outcome: OutcomeCreated, Changes: changes, DryRun: true}, nil
		}

		created, err := r.adapter.Create(ctx, fields)
		if err == nil {
			opts.Cache.Put(r.adapter.Name(), key, created)
			r.logger.Debug("Created record", zap.String("key", key), zap.String("id", created.ID))
			return Result{Outcome: OutcomeCreated, Record: created, Changes: changes}, nil
		}
		if !apierr.IsConflict(err) {
			return Result{}, fmt.Errorf("create %s %s: %w", r.adapter.Name(), key, err)
		}

		// Another writer created the record first; adopt it.
		canonical, rerr := r.adapter.Find(ctx, key)
		if rerr != nil && !apierr.IsNotFound(rerr) {
			return Result{}, fmt.Errorf("re-resolve %s %s after conflict: %w", r.adapter.Name(), key, rerr)
		}
		if canonical == nil {
			return Result{}, fmt.Errorf("create %s %s: %w", r.adapter.Name(), key, err)
		}
		r.logger.Info("Recovered from duplicate create",
			zap.String("key", key),
			zap.String("id", canonical.ID),
		)
		opts.Cache.Put(r.adapter.Name(), key, canonical)
		return r.update(ctx, key, canonical, desired, mode, opts, true)
	}

	return r.update(ctx, key, existing, desired, mode, opts, false)
}

func (r *Reconciler) update(ctx context.Context, key string, existing *Record, desired Fields, mode Mode, opts Options, recovered bool) (Result, error) {
	if mode == ModeCreateOnly {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonAlreadyExists, Record: existing, Recovered: recovered}, nil
	}

	desired = unionSets(existing.Properties, desired, opts.Sets)
	changes := planUpdate(existing.Properties, desired, mode)
	suppressed := false
	if mode != ModeForce && opts.Gate != nil {
		changes, suppressed = opts.Gate.filter(existing.Properties, changes)
	}

	if len(changes) == 0 {
		reason := ReasonUnchanged
		if suppressed {
			reason = ReasonNotModified
		}
		return Result{Outcome: OutcomeSkipped, Reason: reason, Record: existing, Recovered: recovered}, nil
	}

	if opts.DryRun {
		return Result{
			Outcome:   OutcomeUpdated,
			Record:    existing,
			Changes:   changes,
			DryRun:    true,
			Recovered: recovered,
		}, nil
	}

	payload := changeFields(changes)
	updated, err := r.adapter.Update(ctx, existing.ID, payload)
	if err != nil {
		return Result{}, fmt.Errorf("update %s %s: %w", r.adapter.Name(), key, err)
	}
	merged := merge(existing, payload)
	if updated != nil && !updated.UpdatedAt.IsZero() {
		merged.UpdatedAt = updated.UpdatedAt
	}
	updated = merged
	opts.Cache.Put(r.adapter.Name(), key, updated)

	r.logger.Debug("Updated record",
		zap.String("key", key),
		zap.String("id", existing.ID),
		zap.Int("changes", len(changes)),
	)
	return Result{Outcome: OutcomeUpdated, Record: updated, Changes: changes, Recovered: recovered}, nil
}
