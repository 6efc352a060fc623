package sync

import (
	"context"
	"strconv"
	"sync"

	"lease-sync/core/buildium"

	"golang.org/x/sync/singleflight"
)

// memo caches source lookups for one run. Concurrent lookups of the same id
// share one request; failures are not cached.
type memo[T any] struct {
	mu    sync.Mutex
	items map[int]*T
	group singleflight.Group
}

func newMemo[T any]() *memo[T] {
	return &memo[T]{items: make(map[int]*T)}
}

func (m *memo[T]) get(ctx context.Context, id int, fetch func(context.Context, int) (*T, error)) (*T, error) {
	m.mu.Lock()
	if v, ok := m.items[id]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(strconv.Itoa(id), func() (interface{}, error) {
		item, err := fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		m.put(id, item)
		return item, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

func (m *memo[T]) put(id int, item *T) {
	if item == nil {
		return
	}
	m.mu.Lock()
	m.items[id] = item
	m.mu.Unlock()
}

// sourceMemo holds the per-run memos of single-entity source lookups.
type sourceMemo struct {
	src     Source
	units   *memo[buildium.Unit]
	leases  *memo[buildium.Lease]
	tenants *memo[buildium.Tenant]
	byProp  *memo[[]buildium.Unit]
}

func newSourceMemo(src Source) *sourceMemo {
	return &sourceMemo{
		src:     src,
		units:   newMemo[buildium.Unit](),
		leases:  newMemo[buildium.Lease](),
		tenants: newMemo[buildium.Tenant](),
		byProp:  newMemo[[]buildium.Unit](),
	}
}

func (s *sourceMemo) unit(ctx context.Context, id int) (*buildium.Unit, error) {
	return s.units.get(ctx, id, s.src.GetUnit)
}

func (s *sourceMemo) lease(ctx context.Context, id int) (*buildium.Lease, error) {
	return s.leases.get(ctx, id, s.src.GetLease)
}

func (s *sourceMemo) tenant(ctx context.Context, id int) (*buildium.Tenant, error) {
	return s.tenants.get(ctx, id, s.src.GetTenant)
}

// propertyUnits returns the units of a property.
func (s *sourceMemo) propertyUnits(ctx context.Context, propertyID int) ([]buildium.Unit, error) {
	units, err := s.byProp.get(ctx, propertyID, func(ctx context.Context, id int) (*[]buildium.Unit, error) {
		list, err := s.src.ListUnits(ctx, buildium.UnitQuery{PropertyIDs: []int{id}})
		if err != nil {
			return nil, err
		}
		s.seedUnits(list)
		return &list, nil
	})
	if err != nil {
		return nil, err
	}
	return *units, nil
}

// seedUnits stores units fetched by a list call.
func (s *sourceMemo) seedUnits(units []buildium.Unit) {
	for i := range units {
		u := units[i]
		s.units.put(u.ID, &u)
	}
}

// seedTenants stores tenants fetched by a list call.
func (s *sourceMemo) seedTenants(tenants []buildium.Tenant) {
	for i := range tenants {
		t := tenants[i]
		s.tenants.put(t.ID, &t)
	}
}
