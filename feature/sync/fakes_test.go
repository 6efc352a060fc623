package sync

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/buildium"
	"lease-sync/core/lifecycle"
	"lease-sync/core/paginate"
	"lease-sync/core/reconcile"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTypes = lifecycle.TypeIDs{
	FutureTenant:     11,
	ActiveTenant:     12,
	InactiveTenant:   13,
	Owner:            20,
	AssociationOwner: 21,
	CompanyOwner:     22,
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return epoch.Add(time.Duration(sec) * time.Second)
}

func notFound(what string) error {
	return &apierr.Error{Kind: apierr.KindNotFound, StatusCode: http.StatusNotFound, Message: what + " not found"}
}

// fakeSource serves fixed source data.
type fakeSource struct {
	mu          sync.Mutex
	properties  map[int]buildium.Property
	units       []buildium.Unit
	leases      []buildium.Lease
	tenants     []buildium.Tenant
	owners      []buildium.RentalOwner
	assocOwners []buildium.AssociationOwner

	// ignoreUnitArrays makes unit-filtered lease queries return nothing.
	ignoreUnitArrays bool
	failUnit         map[int]error
	// walkGate, when set, blocks walks until closed.
	walkGate chan struct{}

	unitLimits  []int
	leaseQueries []buildium.LeaseQuery
}

func newFakeSource() *fakeSource {
	return &fakeSource{properties: make(map[int]buildium.Property), failUnit: make(map[int]error)}
}

func (f *fakeSource) addUnit(id, propertyID int, number string) buildium.Unit {
	u := buildium.Unit{
		ID:         id,
		PropertyID: propertyID,
		UnitNumber: number,
		MarketRent: 1000,
		Address:    buildium.Address{AddressLine1: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701"},
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.units = append(f.units, u)
	if _, ok := f.properties[propertyID]; !ok {
		f.properties[propertyID] = buildium.Property{ID: propertyID, Name: "Property " + strconv.Itoa(propertyID)}
	}
	return u
}

func (f *fakeSource) addTenant(id int, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = append(f.tenants, buildium.Tenant{ID: id, FirstName: "T", LastName: strconv.Itoa(id), Email: email})
}

func (f *fakeSource) setLease(l buildium.Lease) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.leases {
		if f.leases[i].ID == l.ID {
			f.leases[i] = l
			f.linkTenants(l)
			return
		}
	}
	f.leases = append(f.leases, l)
	f.linkTenants(l)
}

func (f *fakeSource) linkTenants(l buildium.Lease) {
	for i := range f.tenants {
		for _, lt := range l.Tenants {
			if f.tenants[i].ID == lt.ID && !containsInt(f.tenants[i].LeaseIDs, l.ID) {
				f.tenants[i].LeaseIDs = append(f.tenants[i].LeaseIDs, l.ID)
			}
		}
	}
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func lease(id, unitID, propertyID int, status string, rent float64, updated time.Time, tenants ...int) buildium.Lease {
	l := buildium.Lease{
		ID:             id,
		UnitID:         unitID,
		PropertyID:     propertyID,
		Status:         status,
		LeaseFromDate:  buildium.Date{Time: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		LeaseToDate:    buildium.Date{Time: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
		AccountDetails: buildium.AccountDetails{Rent: rent},
		LastUpdated:    updated,
	}
	for _, t := range tenants {
		l.Tenants = append(l.Tenants, buildium.LeaseTenant{ID: t})
	}
	return l
}

func (f *fakeSource) gate(ctx context.Context) error {
	if f.walkGate == nil {
		return nil
	}
	select {
	case <-f.walkGate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func pageOf[T any](all []T) paginate.PageFunc[T] {
	return func(ctx context.Context, limit, offset int) ([]T, error) {
		if offset >= len(all) {
			return nil, nil
		}
		end := offset + limit
		if end > len(all) {
			end = len(all)
		}
		return all[offset:end], nil
	}
}

func (f *fakeSource) WalkUnits(ctx context.Context, q buildium.UnitQuery, sizer func() int, visit func([]buildium.Unit) (bool, error)) (paginate.Result, error) {
	if err := f.gate(ctx); err != nil {
		return paginate.Result{}, err
	}
	units, _ := f.ListUnits(ctx, q)
	fetcher := paginate.Fetcher{PageSize: DefaultBatchSize, MaxPageSize: buildium.MaxPageSize, Sizer: sizer}
	page := pageOf(units)
	return paginate.Walk(ctx, fetcher, "units", func(ctx context.Context, limit, offset int) ([]buildium.Unit, error) {
		f.mu.Lock()
		f.unitLimits = append(f.unitLimits, limit)
		f.mu.Unlock()
		return page(ctx, limit, offset)
	}, visit)
}

func (f *fakeSource) WalkLeases(ctx context.Context, q buildium.LeaseQuery, sizer func() int, visit func([]buildium.Lease) (bool, error)) (paginate.Result, error) {
	if err := f.gate(ctx); err != nil {
		return paginate.Result{}, err
	}
	leases, _ := f.ListLeases(ctx, q)
	fetcher := paginate.Fetcher{PageSize: DefaultBatchSize, MaxPageSize: buildium.MaxPageSize, Sizer: sizer}
	return paginate.Walk(ctx, fetcher, "leases", pageOf(leases), visit)
}

func (f *fakeSource) ListUnits(ctx context.Context, q buildium.UnitQuery) ([]buildium.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	props := intSet(q.PropertyIDs)
	var out []buildium.Unit
	for _, u := range f.units {
		if props == nil || props[u.PropertyID] {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeSource) ListLeases(ctx context.Context, q buildium.LeaseQuery) ([]buildium.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaseQueries = append(f.leaseQueries, q)
	if len(q.UnitIDs) > 0 && f.ignoreUnitArrays {
		return nil, nil
	}
	units, props := intSet(q.UnitIDs), intSet(q.PropertyIDs)
	var out []buildium.Lease
	for _, l := range f.leases {
		if units != nil && !units[l.UnitID] {
			continue
		}
		if props != nil && !props[l.PropertyID] {
			continue
		}
		if !q.UpdatedFrom.IsZero() && l.LastUpdated.Before(q.UpdatedFrom) {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.Before(out[j].LastUpdated) })
	return out, nil
}

func (f *fakeSource) ListTenants(ctx context.Context, q buildium.TenantQuery) ([]buildium.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]buildium.Tenant(nil), f.tenants...), nil
}

func (f *fakeSource) ListRentalOwners(ctx context.Context, q buildium.OwnerQuery) ([]buildium.RentalOwner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := intSet(q.OwnerIDs)
	var out []buildium.RentalOwner
	for _, o := range f.owners {
		if ids == nil || ids[o.ID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeSource) ListAssociationOwners(ctx context.Context, q buildium.OwnerQuery) ([]buildium.AssociationOwner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]buildium.AssociationOwner(nil), f.assocOwners...), nil
}

func (f *fakeSource) GetProperty(ctx context.Context, id int) (*buildium.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.properties[id]
	if !ok {
		return nil, notFound("property")
	}
	return &p, nil
}

func (f *fakeSource) GetUnit(ctx context.Context, id int) (*buildium.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUnit[id]; err != nil {
		return nil, err
	}
	for _, u := range f.units {
		if u.ID == id {
			u := u
			return &u, nil
		}
	}
	return nil, notFound("unit")
}

func (f *fakeSource) GetLease(ctx context.Context, id int) (*buildium.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.leases {
		if l.ID == id {
			l := l
			return &l, nil
		}
	}
	return nil, notFound("lease")
}

func (f *fakeSource) GetTenant(ctx context.Context, id int) (*buildium.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.ID == id {
			t := t
			return &t, nil
		}
	}
	return nil, notFound("tenant")
}

// memTarget is an in-memory target object type with a natural key. Unique
// types reject duplicate creates with 409.
type memTarget struct {
	name   string
	key    string
	unique bool
	prefix string

	mu      sync.Mutex
	records map[string]*reconcile.Record
	nextID  int

	finds   atomic.Int32
	creates atomic.Int32
	updates atomic.Int32

	findHook func(call int32)
}

func newMemTarget(name, key, prefix string, unique bool) *memTarget {
	return &memTarget{name: name, key: key, prefix: prefix, unique: unique, records: make(map[string]*reconcile.Record)}
}

func (m *memTarget) Name() string        { return m.name }
func (m *memTarget) KeyProperty() string { return m.key }
func (m *memTarget) Unique() bool        { return m.unique }

func (m *memTarget) seed(key string, props reconcile.Fields) *reconcile.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p := props.Clone()
	p[m.key] = key
	rec := &reconcile.Record{ID: fmt.Sprintf("%s%d", m.prefix, m.nextID), Properties: p}
	m.records[key] = rec
	return rec
}

func (m *memTarget) get(key string) *reconcile.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil
	}
	return &reconcile.Record{ID: rec.ID, Properties: rec.Properties.Clone()}
}

func (m *memTarget) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memTarget) Find(ctx context.Context, key string) (*reconcile.Record, error) {
	call := m.finds.Add(1)
	if m.findHook != nil {
		m.findHook(call)
	}
	return m.get(key), nil
}

func (m *memTarget) Create(ctx context.Context, fields reconcile.Fields) (*reconcile.Record, error) {
	m.creates.Add(1)
	key := fields[m.key]
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[key]; exists && m.unique {
		return nil, &apierr.Error{Kind: apierr.KindClient, StatusCode: http.StatusConflict, Message: "duplicate"}
	}
	m.nextID++
	rec := &reconcile.Record{ID: fmt.Sprintf("%s%d", m.prefix, m.nextID), Properties: fields.Clone()}
	m.records[key] = rec
	return &reconcile.Record{ID: rec.ID, Properties: rec.Properties.Clone()}, nil
}

func (m *memTarget) Update(ctx context.Context, id string, fields reconcile.Fields) (*reconcile.Record, error) {
	m.updates.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			for k, v := range fields {
				rec.Properties[k] = v
			}
			return &reconcile.Record{ID: rec.ID}, nil
		}
	}
	return nil, notFound(m.name)
}

// fakeAssociator stores typed links in memory.
type fakeAssociator struct {
	mu    sync.Mutex
	links map[string]map[int]bool
	adds  int
}

func newFakeAssociator() *fakeAssociator {
	return &fakeAssociator{links: make(map[string]map[int]bool)}
}

func linkKey(from lifecycle.ObjectRef, listingID string) string {
	return from.String() + "->" + listingID
}

func (f *fakeAssociator) Types(ctx context.Context, from lifecycle.ObjectRef, listingID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for id := range f.links[linkKey(from, listingID)] {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

func (f *fakeAssociator) Add(ctx context.Context, from lifecycle.ObjectRef, listingID string, typeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds++
	k := linkKey(from, listingID)
	if f.links[k] == nil {
		f.links[k] = make(map[int]bool)
	}
	f.links[k][typeID] = true
	return nil
}

func (f *fakeAssociator) Remove(ctx context.Context, from lifecycle.ObjectRef, listingID string, typeIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range typeIDs {
		delete(f.links[linkKey(from, listingID)], id)
	}
	return nil
}

func (f *fakeAssociator) types(fromType, fromID, listingID string) []int {
	ids, _ := f.Types(context.Background(), lifecycle.ObjectRef{Type: fromType, ID: fromID}, listingID)
	return ids
}

type harness struct {
	source    *fakeSource
	listings  *memTarget
	contacts  *memTarget
	companies *memTarget
	assoc     *fakeAssociator
	svc       *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		source:    newFakeSource(),
		listings:  newMemTarget("listings", "buildium_unit_id", "L", true),
		contacts:  newMemTarget("contacts", "email", "C", false),
		companies: newMemTarget("companies", "buildium_owner_id", "CO", false),
		assoc:     newFakeAssociator(),
	}
	h.svc = h.newService(t)
	return h
}

// newService builds another service over the same source and target.
func (h *harness) newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Deps{
		Source:     h.source,
		Listings:   h.listings,
		Contacts:   h.contacts,
		Companies:  h.companies,
		Associator: h.assoc,
		Types:      testTypes,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return svc
}
