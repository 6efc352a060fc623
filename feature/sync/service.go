package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/lifecycle"
	"lease-sync/core/reconcile"
	"lease-sync/core/watermark"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const recordTimeout = 10 * time.Second

// Service runs sync flows.
type Service struct {
	source     Source
	listings   *reconcile.Reconciler
	contacts   *reconcile.Reconciler
	companies  *reconcile.Reconciler
	machine    *lifecycle.Machine
	watermarks *watermark.Store
	seeder     WatermarkSeeder
	recorders  []Recorder
	logger     *zap.Logger

	contactType string
	companyType string
}

// NewService creates a sync service. Missing collaborators and invalid
// association type ids are configuration errors.
func NewService(d Deps) (*Service, error) {
	switch {
	case d.Source == nil:
		return nil, apierr.Configuration("sync: source client is required")
	case d.Listings == nil || d.Contacts == nil || d.Companies == nil:
		return nil, apierr.Configuration("sync: listing, contact and company adapters are required")
	case d.Associator == nil:
		return nil, apierr.Configuration("sync: associator is required")
	}
	if err := d.Types.Validate(); err != nil {
		return nil, err
	}

	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := d.Watermarks
	if store == nil {
		store = watermark.NewStore()
	}

	return &Service{
		source:      d.Source,
		listings:    reconcile.New(d.Listings, logger.Named("listings")),
		contacts:    reconcile.New(d.Contacts, logger.Named("contacts")),
		companies:   reconcile.New(d.Companies, logger.Named("companies")),
		machine:     lifecycle.NewMachine(d.Associator, d.Types, logger.Named("lifecycle")),
		watermarks:  store,
		seeder:      d.Seeder,
		recorders:   d.Recorders,
		logger:      logger,
		contactType: objectType(d.Contacts),
		companyType: objectType(d.Companies),
	}, nil
}

// Watermarks returns the service's watermark store.
func (s *Service) Watermarks() *watermark.Store {
	return s.watermarks
}

// AddRecorder registers a recorder for subsequent runs.
func (s *Service) AddRecorder(r Recorder) {
	s.recorders = append(s.recorders, r)
}

// run is the state of one flow execution.
type run struct {
	svc    *Service
	flow   Flow
	opts   Options
	mode   reconcile.Mode
	stats  *Stats
	budget *budget
	cache  *reconcile.Cache
	memo   *sourceMemo
	units  UnitSyncer
	logger *zap.Logger
}

func (r *run) upsertOptions(gate *reconcile.ChangeGate) reconcile.Options {
	return reconcile.Options{Mode: r.mode, DryRun: r.opts.DryRun, Cache: r.cache, Gate: gate}
}

// contactOptions are the upsert options of contact writes.
func (r *run) contactOptions() reconcile.Options {
	opts := r.upsertOptions(nil)
	opts.Sets = contactSets
	return opts
}

func (r *run) sizer() int {
	return r.budget.pageSize(r.opts.BatchSize)
}

// execute wraps a flow body with run bookkeeping: ids, logging and
// recording.
func (s *Service) execute(ctx context.Context, flow Flow, opts Options, body func(context.Context, *run) error) (*Stats, error) {
	opts = opts.normalized()
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	r := &run{
		svc:    s,
		flow:   flow,
		opts:   opts,
		mode:   mode,
		stats:  newStats(flow, opts.RunID, mode, opts.DryRun),
		budget: newBudget(opts.Limit),
		cache:  reconcile.NewCache(),
		memo:   newSourceMemo(s.source),
		logger: s.logger.With(zap.String("flow", string(flow)), zap.String("run_id", opts.RunID)),
	}
	r.units = &listingEnsurer{
		listings: s.listings,
		memo:     r.memo,
		opts:     r.upsertOptions(nil),
		stats:    r.stats,
	}

	r.logger.Info("Sync started",
		zap.String("mode", string(mode)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("limit", opts.Limit),
		zap.Int("concurrency", opts.Concurrency),
	)

	err = body(ctx, r)
	if err != nil && isStop(ctx, err) {
		r.stats.markStopped()
		err = nil
	}
	r.stats.finish()
	s.record(ctx, r)

	totals := r.stats.Totals()
	hits, misses := r.cache.Stats()
	fields := []zap.Field{
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
		zap.Int("skipped", totals.Skipped),
		zap.Int("errored", totals.Errored),
		zap.Int("items", r.stats.Attempted),
		zap.Int("failed_items", r.stats.FailedItems),
		zap.Int64("cache_hits", hits),
		zap.Int64("cache_misses", misses),
		zap.Duration("duration", r.stats.Duration()),
	}
	switch {
	case err != nil:
		r.logger.Error("Sync aborted", append(fields, zap.Error(err))...)
		return r.stats, fmt.Errorf("sync %s: %w", flow, err)
	case r.stats.Failed():
		r.logger.Error("Sync failed, every item errored", fields...)
	default:
		r.logger.Info("Sync finished", fields...)
	}
	return r.stats, nil
}

func isStop(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

// record hands the stats to every recorder. Failures are logged only.
func (s *Service) record(ctx context.Context, r *run) {
	if len(s.recorders) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	for _, rec := range s.recorders {
		if err := rec.RecordRun(rctx, r.stats); err != nil {
			r.logger.Warn("Failed to record run", zap.Error(err))
		}
	}
}

// dispatch runs fn for each item with bounded concurrency. Items start only
// while the budget allows and the context is live; started items finish on a
// detached context. It returns false when the run should stop fetching.
func dispatch[T any](ctx context.Context, r *run, items []T, fn func(context.Context, T) (bool, error)) bool {
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Concurrency)
	work := context.WithoutCancel(ctx)

	cont := true
	for _, item := range items {
		if ctx.Err() != nil {
			r.stats.markStopped()
			cont = false
			break
		}
		if !r.budget.acquire() {
			cont = false
			break
		}
		if ctx.Err() != nil {
			r.budget.release(false)
			r.stats.markStopped()
			cont = false
			break
		}

		item := item
		g.Go(func() error {
			wrote, err := fn(work, item)
			r.budget.release(wrote)
			r.stats.itemDone(wrote, err)
			if err != nil {
				r.logger.Warn("Item failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if r.budget.met() {
		r.stats.markLimitReached()
		cont = false
	}
	return cont
}

// failItems records a page-level failure against every item of the page.
func failItems[T any](r *run, entity string, items []T, key func(T) string, err error) {
	for _, it := range items {
		r.stats.recordError(entity, key(it), err)
		r.stats.itemDone(false, err)
	}
}
