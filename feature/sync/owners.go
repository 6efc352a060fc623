package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"lease-sync/core/buildium"
	"lease-sync/core/lifecycle"
)

// SyncOwners reconciles rental owners, as companies or contacts, and links
// each to the listings of the properties it owns. Association owners are
// included when Options.AssociationOwners is set.
func (s *Service) SyncOwners(ctx context.Context, opts Options) (*Stats, error) {
	if err := s.machine.Types().ValidateOwners(opts.AssociationOwners); err != nil {
		return nil, err
	}
	return s.execute(ctx, FlowOwners, opts, func(ctx context.Context, r *run) error {
		q := buildium.OwnerQuery{PropertyIDs: r.opts.PropertyIDs, OwnerIDs: r.opts.OwnerIDs}
		if err := r.syncRentalOwners(ctx, q); err != nil {
			return err
		}
		if !r.opts.AssociationOwners || r.halted(ctx) {
			return nil
		}
		return r.syncAssociationOwners(ctx, buildium.OwnerQuery{OwnerIDs: r.opts.OwnerIDs})
	})
}

func (r *run) syncRentalOwners(ctx context.Context, q buildium.OwnerQuery) error {
	owners, err := r.svc.source.ListRentalOwners(ctx, q)
	if err != nil {
		return fmt.Errorf("list rental owners: %w", err)
	}
	scope := intSet(q.PropertyIDs)
	dispatch(ctx, r, owners, func(ctx context.Context, o buildium.RentalOwner) (bool, error) {
		return r.syncRentalOwner(ctx, o, scope)
	})
	return nil
}

// syncRentalOwner reconciles one owner and links it to every listing of its
// properties within scope.
func (r *run) syncRentalOwner(ctx context.Context, o buildium.RentalOwner, scope map[int]bool) (bool, error) {
	var (
		from   lifecycle.ObjectRef
		typeID int
		wrote  bool
	)
	if o.IsCompany {
		key := strconv.Itoa(o.ID)
		res, err := r.svc.companies.Upsert(ctx, key, companyFields(o), r.upsertOptions(nil))
		r.stats.recordUpsert(entityCompany, key, res, err)
		if err != nil {
			return false, err
		}
		from = lifecycle.ObjectRef{Type: r.svc.companyType}
		if res.Record != nil {
			from.ID = res.Record.ID
		}
		typeID = r.svc.machine.Types().CompanyOwner
		wrote = res.Wrote()
	} else {
		email := normalizeEmail(o.Email)
		key := email
		if key == "" {
			key = "owner/" + strconv.Itoa(o.ID)
		}
		res, err := r.svc.contacts.Upsert(ctx, email, ownerContactFields(o), r.contactOptions())
		r.stats.recordUpsert(entityContact, key, res, err)
		if err != nil {
			return false, err
		}
		if email == "" {
			return false, nil
		}
		from = lifecycle.ObjectRef{Type: r.svc.contactType}
		if res.Record != nil {
			from.ID = res.Record.ID
		}
		typeID = r.svc.machine.Types().Owner
		wrote = res.Wrote()
	}

	var errs []error
	for _, pid := range o.PropertyIDs {
		if scope != nil && !scope[pid] {
			continue
		}
		units, err := r.memo.propertyUnits(ctx, pid)
		if err != nil {
			r.stats.recordError(entityListing, "property/"+strconv.Itoa(pid), err)
			errs = append(errs, fmt.Errorf("list units of property %d: %w", pid, err))
			continue
		}
		for _, u := range units {
			w, err := r.linkUnit(ctx, from, u.ID, typeID)
			wrote = wrote || w
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return wrote, errors.Join(errs...)
}

func (r *run) syncAssociationOwners(ctx context.Context, q buildium.OwnerQuery) error {
	owners, err := r.svc.source.ListAssociationOwners(ctx, q)
	if err != nil {
		return fmt.Errorf("list association owners: %w", err)
	}
	scope := intSet(r.opts.UnitIDs)
	dispatch(ctx, r, owners, func(ctx context.Context, o buildium.AssociationOwner) (bool, error) {
		return r.syncAssociationOwner(ctx, o, scope)
	})
	return nil
}

func (r *run) syncAssociationOwner(ctx context.Context, o buildium.AssociationOwner, scope map[int]bool) (bool, error) {
	email := normalizeEmail(o.Email)
	key := email
	if key == "" {
		key = "association_owner/" + strconv.Itoa(o.ID)
	}
	res, err := r.svc.contacts.Upsert(ctx, email, associationOwnerFields(o), r.contactOptions())
	r.stats.recordUpsert(entityContact, key, res, err)
	if err != nil {
		return false, err
	}
	if email == "" {
		return false, nil
	}
	from := lifecycle.ObjectRef{Type: r.svc.contactType}
	if res.Record != nil {
		from.ID = res.Record.ID
	}
	wrote := res.Wrote()

	var errs []error
	for _, unitID := range o.UnitIDs() {
		if scope != nil && !scope[unitID] {
			continue
		}
		w, err := r.linkUnit(ctx, from, unitID, r.svc.machine.Types().AssociationOwner)
		wrote = wrote || w
		if err != nil {
			errs = append(errs, err)
		}
	}
	return wrote, errors.Join(errs...)
}

// linkUnit ensures the unit's listing and links from to it.
func (r *run) linkUnit(ctx context.Context, from lifecycle.ObjectRef, unitID, typeID int) (bool, error) {
	listingID, wrote, err := r.units.EnsureListing(ctx, unitID)
	if err != nil {
		return false, err
	}
	w, err := r.link(ctx, from, listingID, typeID)
	return wrote || w, err
}
