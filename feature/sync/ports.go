package sync

import (
	"context"
	"time"

	"lease-sync/core/buildium"
	"lease-sync/core/lifecycle"
	"lease-sync/core/paginate"
	"lease-sync/core/reconcile"
	"lease-sync/core/watermark"

	"go.uber.org/zap"
)

// Source is the part of the source client the flows use.
type Source interface {
	WalkUnits(ctx context.Context, q buildium.UnitQuery, sizer func() int, visit func([]buildium.Unit) (bool, error)) (paginate.Result, error)
	WalkLeases(ctx context.Context, q buildium.LeaseQuery, sizer func() int, visit func([]buildium.Lease) (bool, error)) (paginate.Result, error)
	ListUnits(ctx context.Context, q buildium.UnitQuery) ([]buildium.Unit, error)
	ListLeases(ctx context.Context, q buildium.LeaseQuery) ([]buildium.Lease, error)
	ListTenants(ctx context.Context, q buildium.TenantQuery) ([]buildium.Tenant, error)
	ListRentalOwners(ctx context.Context, q buildium.OwnerQuery) ([]buildium.RentalOwner, error)
	ListAssociationOwners(ctx context.Context, q buildium.OwnerQuery) ([]buildium.AssociationOwner, error)
	GetProperty(ctx context.Context, id int) (*buildium.Property, error)
	GetUnit(ctx context.Context, id int) (*buildium.Unit, error)
	GetLease(ctx context.Context, id int) (*buildium.Lease, error)
	GetTenant(ctx context.Context, id int) (*buildium.Tenant, error)
}

// UnitSyncer makes sure the listing of a unit exists. The tenant and owner
// paths depend on it instead of on the orchestrator.
type UnitSyncer interface {
	// EnsureListing returns the listing id of the unit, creating the listing
	// when missing. The id is empty when a dry run would have created it.
	EnsureListing(ctx context.Context, unitID int) (listingID string, wrote bool, err error)
}

// Recorder receives the stats of every finished run.
type Recorder interface {
	RecordRun(ctx context.Context, stats *Stats) error
}

// WatermarkSeeder provides a persisted watermark to start from when the
// in-memory store has none.
type WatermarkSeeder interface {
	LastWatermark(ctx context.Context, flow string) (time.Time, error)
}

// Deps are the collaborators of the Service.
type Deps struct {
	Source    Source
	Listings  reconcile.Adapter
	Contacts  reconcile.Adapter
	Companies reconcile.Adapter

	Associator lifecycle.Associator
	Types      lifecycle.TypeIDs

	// Watermarks defaults to a fresh store.
	Watermarks *watermark.Store
	Seeder     WatermarkSeeder
	Recorders  []Recorder

	Logger *zap.Logger
}

// objectType returns the target object type an adapter writes.
func objectType(a reconcile.Adapter) string {
	if t, ok := a.(interface{ ObjectType() string }); ok {
		return t.ObjectType()
	}
	return a.Name()
}
