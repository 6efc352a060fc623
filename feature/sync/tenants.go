package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lease-sync/core/buildium"
	"lease-sync/core/lifecycle"
)

// SyncTenant reconciles one tenant's contact and its lifecycle association
// with the listing of every unit it leases.
func (s *Service) SyncTenant(ctx context.Context, tenantID int, opts Options) (*Stats, error) {
	return s.execute(ctx, FlowTenant, opts, func(ctx context.Context, r *run) error {
		t, err := r.memo.tenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("get tenant %d: %w", tenantID, err)
		}
		dispatch(ctx, r, []buildium.Tenant{*t}, r.syncTenant)
		return nil
	})
}

func (r *run) syncTenant(ctx context.Context, t buildium.Tenant) (bool, error) {
	contactID, wrote, err := r.upsertTenants(ctx, []buildium.Tenant{t})
	if err != nil {
		return false, err
	}
	if t.ContactEmail() == "" {
		return false, nil
	}

	var errs []error
	statuses := make(map[int][]lifecycle.LeaseStatus)
	for _, id := range t.LeaseIDs {
		l, err := r.memo.lease(ctx, id)
		if err != nil {
			r.stats.recordError(entityLease, strconv.Itoa(id), err)
			errs = append(errs, fmt.Errorf("get lease %d: %w", id, err))
			continue
		}
		status, err := l.LeaseStatus()
		if err != nil {
			errs = append(errs, fmt.Errorf("lease %d: %w", id, err))
			continue
		}
		statuses[l.UnitID] = append(statuses[l.UnitID], status)
	}

	for _, unitID := range sortedKeys(statuses) {
		listingID, w, err := r.units.EnsureListing(ctx, unitID)
		wrote = wrote || w
		if err != nil {
			errs = append(errs, err)
			continue
		}
		w, err = r.applyLifecycle(ctx, contactID, listingID, lifecycle.Precedence(statuses[unitID]...))
		wrote = wrote || w
		if err != nil {
			errs = append(errs, err)
		}
	}
	return wrote, errors.Join(errs...)
}
