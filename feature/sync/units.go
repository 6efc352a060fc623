package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lease-sync/core/buildium"
	"lease-sync/core/lifecycle"
	"lease-sync/core/reconcile"

	"go.uber.org/zap"
)

// SyncUnits reconciles the listing of every unit in scope, then the tenant
// contacts and lifecycle associations of the unit's leases.
func (s *Service) SyncUnits(ctx context.Context, opts Options) (*Stats, error) {
	return s.execute(ctx, FlowUnits, opts, func(ctx context.Context, r *run) error {
		return r.syncUnits(ctx, r.opts.PropertyIDs, r.opts.UnitIDs)
	})
}

// SyncUnit reconciles a single unit.
func (s *Service) SyncUnit(ctx context.Context, unitID int, opts Options) (*Stats, error) {
	opts.UnitIDs = []int{unitID}
	return s.execute(ctx, FlowUnit, opts, func(ctx context.Context, r *run) error {
		return r.syncUnits(ctx, nil, r.opts.UnitIDs)
	})
}

// SyncProperty reconciles every unit of a property, then its rental owners.
func (s *Service) SyncProperty(ctx context.Context, propertyID int, opts Options) (*Stats, error) {
	if err := s.machine.Types().ValidateOwners(false); err != nil {
		return nil, err
	}
	opts.PropertyIDs = []int{propertyID}
	return s.execute(ctx, FlowProperty, opts, func(ctx context.Context, r *run) error {
		if _, err := s.source.GetProperty(ctx, propertyID); err != nil {
			return fmt.Errorf("get property %d: %w", propertyID, err)
		}
		if err := r.syncUnits(ctx, r.opts.PropertyIDs, nil); err != nil {
			return err
		}
		if r.halted(ctx) {
			return nil
		}
		return r.syncRentalOwners(ctx, buildium.OwnerQuery{PropertyIDs: r.opts.PropertyIDs})
	})
}

// halted reports whether the run should not start another phase.
func (r *run) halted(ctx context.Context) bool {
	return ctx.Err() != nil || r.budget.met()
}

func (r *run) syncUnits(ctx context.Context, propertyIDs, unitIDs []int) error {
	if len(unitIDs) > 0 && len(propertyIDs) == 0 {
		units := r.fetchUnits(ctx, unitIDs)
		r.syncUnitPage(ctx, units)
		return nil
	}

	only := intSet(unitIDs)
	res, err := r.svc.source.WalkUnits(ctx, buildium.UnitQuery{PropertyIDs: propertyIDs}, r.sizer,
		func(page []buildium.Unit) (bool, error) {
			units := page
			if only != nil {
				units = units[:0:0]
				for _, u := range page {
					if only[u.ID] {
						units = append(units, u)
					}
				}
			}
			if len(units) == 0 {
				return true, nil
			}
			return r.syncUnitPage(ctx, units), nil
		})
	if res.Truncated {
		r.stats.markTruncated()
	}
	return err
}

// fetchUnits loads units one by one. Failures are recorded per unit.
func (r *run) fetchUnits(ctx context.Context, ids []int) []buildium.Unit {
	units := make([]buildium.Unit, 0, len(ids))
	for _, id := range ids {
		u, err := r.memo.unit(ctx, id)
		if err != nil {
			r.stats.recordError(entityUnit, strconv.Itoa(id), err)
			r.stats.itemDone(false, err)
			continue
		}
		units = append(units, *u)
	}
	return units
}

// syncUnitPage primes the listing cache, loads the page's leases and tenants,
// and dispatches one item per unit.
func (r *run) syncUnitPage(ctx context.Context, units []buildium.Unit) bool {
	if len(units) == 0 {
		return true
	}
	r.memo.seedUnits(units)
	r.prime(ctx, units)

	ids := make([]int, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	leases, err := r.leasesForUnits(ctx, ids)
	if err != nil {
		failItems(r, entityUnit, units, buildium.Unit.Key, err)
		return !r.halted(ctx)
	}
	r.loadTenants(ctx, ids)

	return dispatch(ctx, r, units, func(ctx context.Context, u buildium.Unit) (bool, error) {
		return r.syncUnit(ctx, u, leases[u.ID])
	})
}

// prime batch-reads the page's listings into the run cache.
func (r *run) prime(ctx context.Context, units []buildium.Unit) {
	keys := make([]string, 0, len(units))
	for _, u := range units {
		keys = append(keys, u.Key())
	}
	n, err := r.svc.listings.Prime(ctx, r.cache, keys)
	if err != nil {
		r.logger.Warn("Failed to prime listing cache", zap.Error(err))
		return
	}
	r.logger.Debug("Primed listing cache", zap.Int("units", len(keys)), zap.Int("found", n))
}

// leasesForUnits returns the leases of the given units keyed by unit id. When
// the unit filter returns nothing, the query is repeated with the units'
// property ids and filtered locally, since some accounts ignore unit arrays.
func (r *run) leasesForUnits(ctx context.Context, unitIDs []int) (map[int][]buildium.Lease, error) {
	leases, err := r.svc.source.ListLeases(ctx, buildium.LeaseQuery{UnitIDs: unitIDs})
	if err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	if len(leases) == 0 {
		leases, err = r.leasesByProperty(ctx, unitIDs)
		if err != nil {
			return nil, err
		}
	}

	out := make(map[int][]buildium.Lease, len(unitIDs))
	want := intSet(unitIDs)
	for _, l := range leases {
		if want[l.UnitID] {
			out[l.UnitID] = append(out[l.UnitID], l)
		}
	}
	return out, nil
}

func (r *run) leasesByProperty(ctx context.Context, unitIDs []int) ([]buildium.Lease, error) {
	propertyIDs, err := r.propertiesOf(ctx, unitIDs)
	if err != nil {
		return nil, err
	}
	if len(propertyIDs) == 0 {
		return nil, nil
	}

	leases, err := r.svc.source.ListLeases(ctx, buildium.LeaseQuery{PropertyIDs: propertyIDs})
	if err != nil {
		return nil, fmt.Errorf("list leases by property: %w", err)
	}
	if len(leases) > 0 {
		r.logger.Info("Unit filter returned no leases, fell back to property filter",
			zap.Ints("unit_ids", unitIDs),
			zap.Ints("property_ids", propertyIDs),
			zap.Int("leases", len(leases)),
		)
	}
	return leases, nil
}

// loadTenants fetches the page's tenants in one call. Tenants it misses are
// fetched individually later.
func (r *run) loadTenants(ctx context.Context, unitIDs []int) {
	tenants, err := r.svc.source.ListTenants(ctx, buildium.TenantQuery{UnitIDs: unitIDs})
	if err != nil {
		r.logger.Warn("Failed to list tenants, falling back to single lookups", zap.Error(err))
		return
	}
	r.memo.seedTenants(tenants)
}

// syncUnit reconciles one unit's listing, then each tenant's contact and
// lifecycle association.
func (r *run) syncUnit(ctx context.Context, u buildium.Unit, leases []buildium.Lease) (bool, error) {
	key := u.Key()
	fields, gate := listingFields(u, governingLease(leases))
	res, err := r.svc.listings.Upsert(ctx, key, fields, r.upsertOptions(gate))
	r.stats.recordUpsert(entityListing, key, res, err)
	if err != nil {
		return false, err
	}
	wrote := res.Wrote()
	listingID := ""
	if res.Record != nil {
		listingID = res.Record.ID
	}

	var errs []error
	statuses := tenantStatuses(leases)
	tenants := make([]buildium.Tenant, 0, len(statuses))
	for _, tenantID := range sortedKeys(statuses) {
		t, err := r.memo.tenant(ctx, tenantID)
		if err != nil {
			r.stats.recordError(entityTenant, strconv.Itoa(tenantID), err)
			errs = append(errs, fmt.Errorf("get tenant %d: %w", tenantID, err))
			continue
		}
		tenants = append(tenants, *t)
	}
	for _, group := range groupTenants(tenants) {
		w, err := r.syncContactOnListing(ctx, group, listingID, groupStatus(group, statuses))
		wrote = wrote || w
		if err != nil {
			errs = append(errs, err)
		}
	}
	return wrote, errors.Join(errs...)
}

// groupStatus is the highest lease status among tenants sharing a contact.
func groupStatus(group []buildium.Tenant, statuses map[int]lifecycle.LeaseStatus) lifecycle.LeaseStatus {
	all := make([]lifecycle.LeaseStatus, 0, len(group))
	for _, t := range group {
		all = append(all, statuses[t.ID])
	}
	return lifecycle.Precedence(all...)
}

// syncContactOnListing reconciles the contact of tenants sharing an email
// and moves its association with the listing to the state of status.
func (r *run) syncContactOnListing(ctx context.Context, group []buildium.Tenant, listingID string, status lifecycle.LeaseStatus) (bool, error) {
	contactID, wrote, err := r.upsertTenants(ctx, group)
	if err != nil {
		return false, err
	}
	w, err := r.applyLifecycle(ctx, contactID, listingID, status)
	return wrote || w, err
}

// upsertTenants reconciles the contact of tenants sharing an email, writing
// it once. The id is empty when the tenants have no email or a dry run would
// create the contact.
func (r *run) upsertTenants(ctx context.Context, group []buildium.Tenant) (string, bool, error) {
	email := group[0].ContactEmail()
	res, err := r.svc.contacts.Upsert(ctx, email, tenantGroupFields(group), r.contactOptions())
	key := email
	if key == "" {
		key = "tenant/" + strconv.Itoa(group[0].ID)
	}
	r.stats.recordUpsert(entityContact, key, res, err)
	if err != nil {
		return "", false, err
	}
	if res.Record == nil {
		return "", res.Wrote(), nil
	}
	return res.Record.ID, res.Wrote(), nil
}

// applyLifecycle runs the lifecycle machine for a contact and listing. A
// missing side is recorded as a skip.
func (r *run) applyLifecycle(ctx context.Context, contactID, listingID string, status lifecycle.LeaseStatus) (bool, error) {
	from := lifecycle.ObjectRef{Type: r.svc.contactType, ID: contactID}
	if contactID == "" || listingID == "" {
		r.stats.recordSkip(entityAssociation, from.String()+"->"+listingID, skipReason(r.opts.DryRun))
		return false, nil
	}
	tr, err := r.svc.machine.Apply(ctx, from, listingID, status, r.opts.DryRun)
	r.stats.recordLink(tr, err)
	if err != nil {
		return false, err
	}
	return tr.Changed(), nil
}

// link runs a static owner association. A missing side is recorded as a
// skip.
func (r *run) link(ctx context.Context, from lifecycle.ObjectRef, listingID string, typeID int) (bool, error) {
	if from.ID == "" || listingID == "" {
		r.stats.recordSkip(entityAssociation, from.String()+"->"+listingID, skipReason(r.opts.DryRun))
		return false, nil
	}
	tr, err := r.svc.machine.Link(ctx, from, listingID, typeID, r.opts.DryRun)
	r.stats.recordLink(tr, err)
	if err != nil {
		return false, err
	}
	return tr.Changed(), nil
}

func skipReason(dryRun bool) string {
	if dryRun {
		return "pending_create"
	}
	return "missing_endpoint"
}

// listingEnsurer implements UnitSyncer over the listing reconciler.
type listingEnsurer struct {
	listings *reconcile.Reconciler
	memo     *sourceMemo
	opts     reconcile.Options
	stats    *Stats
}

func (e *listingEnsurer) EnsureListing(ctx context.Context, unitID int) (string, bool, error) {
	key := strconv.Itoa(unitID)
	rec, err := e.listings.Resolve(ctx, key, e.opts.Cache)
	if err != nil {
		e.stats.recordError(entityListing, key, err)
		return "", false, fmt.Errorf("resolve listing %s: %w", key, err)
	}
	if rec != nil {
		return rec.ID, false, nil
	}

	u, err := e.memo.unit(ctx, unitID)
	if err != nil {
		e.stats.recordError(entityListing, key, err)
		return "", false, fmt.Errorf("get unit %d: %w", unitID, err)
	}
	fields, _ := listingFields(*u, nil)
	res, err := e.listings.Upsert(ctx, key, fields, e.opts)
	e.stats.recordUpsert(entityListing, key, res, err)
	if err != nil {
		return "", false, err
	}
	if res.Record == nil {
		return "", res.Wrote(), nil
	}
	return res.Record.ID, res.Wrote(), nil
}
