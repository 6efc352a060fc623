package sync

import (
	"context"
	"fmt"
	"time"

	"lease-sync/core/buildium"
	"lease-sync/core/watermark"

	"go.uber.org/zap"
)

func leaseModified(l buildium.Lease) time.Time {
	return l.LastUpdated
}

// unitLeases is one lease-flow item: a unit and the changed leases that
// brought it into the run.
type unitLeases struct {
	unitID  int
	changed []buildium.Lease
}

// SyncLeases re-syncs the units of every lease updated since the watermark.
// The watermark advances to the newest processed lease only when the whole
// batch was fetched and processed without errors or an early stop, and never
// in a dry run.
func (s *Service) SyncLeases(ctx context.Context, opts Options) (*Stats, error) {
	return s.execute(ctx, FlowLeases, opts, func(ctx context.Context, r *run) error {
		flow := string(FlowLeases)
		mode := r.opts.WatermarkMode()
		mark := s.currentWatermark(ctx, r)
		r.stats.setWatermark(mark, false)

		var tracker watermark.Tracker
		q := buildium.LeaseQuery{
			PropertyIDs: r.opts.PropertyIDs,
			UnitIDs:     r.opts.UnitIDs,
			UpdatedFrom: watermark.Since(mark, mode),
		}
		only := intSet(r.opts.UnitIDs)

		visit := func(page []buildium.Lease) (bool, error) {
			changed := watermark.Filter(page, mark, mode, leaseModified)
			if only != nil {
				kept := changed[:0]
				for _, l := range changed {
					if only[l.UnitID] {
						kept = append(kept, l)
					}
				}
				changed = kept
			}
			if len(changed) == 0 {
				return true, nil
			}
			cont := r.syncLeasePage(ctx, changed, &tracker)
			if !cont {
				tracker.Block()
			}
			return cont, nil
		}

		res, err := s.source.WalkLeases(ctx, q, r.sizer, visit)
		if err == nil && res.Records == 0 && len(q.UnitIDs) > 0 {
			var fallback []int
			fallback, err = r.propertiesOf(ctx, q.UnitIDs)
			if err == nil && len(fallback) > 0 {
				r.logger.Info("Unit filter returned no leases, fell back to property filter",
					zap.Ints("unit_ids", q.UnitIDs), zap.Ints("property_ids", fallback))
				q.UnitIDs, q.PropertyIDs = nil, fallback
				res, err = s.source.WalkLeases(ctx, q, r.sizer, visit)
			}
		}

		if err != nil {
			tracker.Block()
		}
		if res.Truncated {
			r.stats.markTruncated()
			tracker.Block()
		}
		if r.stats.HasErrors() || ctx.Err() != nil {
			tracker.Block()
		}
		if !r.opts.DryRun {
			next, advanced := tracker.Commit(s.watermarks, flow)
			r.stats.setWatermark(next, advanced)
			if advanced {
				r.logger.Info("Watermark advanced", zap.Time("watermark", next))
			}
		}
		return err
	})
}

// currentWatermark returns the in-memory watermark, seeding it from the
// seeder on first use.
func (s *Service) currentWatermark(ctx context.Context, r *run) time.Time {
	flow := string(FlowLeases)
	mark := s.watermarks.Get(flow)
	if !mark.IsZero() || s.seeder == nil {
		return mark
	}
	seed, err := s.seeder.LastWatermark(ctx, flow)
	if err != nil {
		r.logger.Warn("Failed to load persisted watermark, starting from scratch", zap.Error(err))
		return mark
	}
	s.watermarks.Seed(flow, seed)
	return s.watermarks.Get(flow)
}

// syncLeasePage groups changed leases by unit and syncs each unit once with
// the full set of its leases.
func (r *run) syncLeasePage(ctx context.Context, changed []buildium.Lease, tracker *watermark.Tracker) bool {
	var items []unitLeases
	index := make(map[int]int)
	for _, l := range changed {
		i, ok := index[l.UnitID]
		if !ok {
			i = len(items)
			index[l.UnitID] = i
			items = append(items, unitLeases{unitID: l.UnitID})
		}
		items[i].changed = append(items[i].changed, l)
	}

	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.unitID)
	}
	units := r.fetchUnits(ctx, ids)
	if len(units) < len(ids) {
		tracker.Block()
	}
	byID := make(map[int]buildium.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	r.prime(ctx, units)

	all, err := r.leasesForUnits(ctx, ids)
	if err != nil {
		failItems(r, entityUnit, units, buildium.Unit.Key, err)
		tracker.Block()
		return !r.halted(ctx)
	}
	r.loadTenants(ctx, ids)

	ready := items[:0:0]
	for _, it := range items {
		if _, ok := byID[it.unitID]; ok {
			ready = append(ready, it)
		}
	}
	return dispatch(ctx, r, ready, func(ctx context.Context, it unitLeases) (bool, error) {
		wrote, err := r.syncUnit(ctx, byID[it.unitID], mergeLeases(all[it.unitID], it.changed))
		if err != nil {
			tracker.Block()
			return wrote, err
		}
		for _, l := range it.changed {
			tracker.Observe(l.LastUpdated)
		}
		return wrote, nil
	})
}

// mergeLeases returns all, with the changed copies of leases replacing
// older ones and missing ones appended.
func mergeLeases(all, changed []buildium.Lease) []buildium.Lease {
	out := make([]buildium.Lease, 0, len(all)+len(changed))
	byID := make(map[int]buildium.Lease, len(changed))
	for _, l := range changed {
		byID[l.ID] = l
	}
	for _, l := range all {
		if c, ok := byID[l.ID]; ok {
			out = append(out, c)
			delete(byID, l.ID)
			continue
		}
		out = append(out, l)
	}
	for _, l := range changed {
		if _, ok := byID[l.ID]; ok {
			out = append(out, l)
		}
	}
	return out
}

// propertiesOf returns the distinct property ids of the given units.
func (r *run) propertiesOf(ctx context.Context, unitIDs []int) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, id := range unitIDs {
		u, err := r.memo.unit(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get unit %d: %w", id, err)
		}
		if !seen[u.PropertyID] {
			seen[u.PropertyID] = true
			out = append(out, u.PropertyID)
		}
	}
	return out, nil
}
