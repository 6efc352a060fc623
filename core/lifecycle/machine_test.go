package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"lease-sync/core/apierr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testTypes = TypeIDs{
	FutureTenant:     11,
	ActiveTenant:     12,
	InactiveTenant:   13,
	Owner:            20,
	AssociationOwner: 21,
	CompanyOwner:     22,
}

type fakeAssociator struct {
	mu        sync.Mutex
	links     map[string]map[int]bool
	adds      int
	removes   int
	removeErr error
	addErr    error
}

func newFakeAssociator() *fakeAssociator {
	return &fakeAssociator{links: make(map[string]map[int]bool)}
}

func (f *fakeAssociator) set(from ObjectRef, listingID string, ids ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[int]bool)
	for _, id := range ids {
		m[id] = true
	}
	f.links[pairKey(from, listingID)] = m
}

func (f *fakeAssociator) Types(ctx context.Context, from ObjectRef, listingID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for id := range f.links[pairKey(from, listingID)] {
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

func (f *fakeAssociator) Add(ctx context.Context, from ObjectRef, listingID string, typeID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.adds++
	k := pairKey(from, listingID)
	if f.links[k] == nil {
		f.links[k] = make(map[int]bool)
	}
	f.links[k][typeID] = true
	return nil
}

func (f *fakeAssociator) Remove(ctx context.Context, from ObjectRef, listingID string, typeIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removes++
	for _, id := range typeIDs {
		delete(f.links[pairKey(from, listingID)], id)
	}
	return nil
}

func (f *fakeAssociator) tenantTypes(from ObjectRef, listingID string) []int {
	got, _ := f.Types(context.Background(), from, listingID)
	var out []int
	for _, id := range got {
		if contains(testTypes.Lifecycle(), id) {
			out = append(out, id)
		}
	}
	return out
}

var contact = ObjectRef{Type: "contacts", ID: "501"}

func TestApply_LifecycleIsMonotonicAcrossRuns(t *testing.T) {
	f := newFakeAssociator()
	m := NewMachine(f, testTypes, zap.NewNop())
	ctx := context.Background()

	steps := []struct {
		status LeaseStatus
		want   int
	}{
		{StatusFuture, testTypes.FutureTenant},
		{StatusActive, testTypes.ActiveTenant},
		{StatusPast, testTypes.InactiveTenant},
	}
	for _, step := range steps {
		tr, err := m.Apply(ctx, contact, "L1", step.status, false)
		require.NoError(t, err)
		assert.True(t, tr.Changed())
		assert.Equal(t, []int{step.want}, f.tenantTypes(contact, "L1"))
	}
}

func TestApply_NoOpWhenAlreadyDesired(t *testing.T) {
	f := newFakeAssociator()
	f.set(contact, "L1", testTypes.ActiveTenant, testTypes.Owner)
	m := NewMachine(f, testTypes, nil)

	tr, err := m.Apply(context.Background(), contact, "L1", StatusActive, false)
	require.NoError(t, err)
	assert.False(t, tr.Changed())
	assert.Zero(t, f.adds)
	assert.Zero(t, f.removes)
}

func TestApply_NeverRemovesOwnerTypes(t *testing.T) {
	f := newFakeAssociator()
	f.set(contact, "L1", testTypes.FutureTenant, testTypes.Owner)
	m := NewMachine(f, testTypes, nil)

	tr, err := m.Apply(context.Background(), contact, "L1", StatusTerminated, false)
	require.NoError(t, err)
	assert.Equal(t, []int{testTypes.FutureTenant}, tr.Removed)

	got, _ := f.Types(context.Background(), contact, "L1")
	assert.ElementsMatch(t, []int{testTypes.InactiveTenant, testTypes.Owner}, got)
}

func TestApply_RepairsBothState(t *testing.T) {
	f := newFakeAssociator()
	f.set(contact, "L1", testTypes.ActiveTenant, testTypes.FutureTenant)
	m := NewMachine(f, testTypes, nil)

	tr, err := m.Apply(context.Background(), contact, "L1", StatusActive, false)
	require.NoError(t, err)
	assert.False(t, tr.Added)
	assert.Equal(t, []int{testTypes.FutureTenant}, tr.Removed)
	assert.Equal(t, []int{testTypes.ActiveTenant}, f.tenantTypes(contact, "L1"))
}

func TestApply_RerunAfterFailedAddRepairs(t *testing.T) {
	f := newFakeAssociator()
	f.set(contact, "L1", testTypes.FutureTenant)
	m := NewMachine(f, testTypes, nil)

	f.addErr = errors.New("connection reset")
	_, err := m.Apply(context.Background(), contact, "L1", StatusActive, false)
	require.Error(t, err)
	assert.Empty(t, f.tenantTypes(contact, "L1"), "crash between remove and add leaves neither")

	f.addErr = nil
	_, err = m.Apply(context.Background(), contact, "L1", StatusActive, false)
	require.NoError(t, err)
	assert.Equal(t, []int{testTypes.ActiveTenant}, f.tenantTypes(contact, "L1"))
}

func TestApply_DryRun(t *testing.T) {
	f := newFakeAssociator()
	f.set(contact, "L1", testTypes.FutureTenant)
	m := NewMachine(f, testTypes, nil)

	tr, err := m.Apply(context.Background(), contact, "L1", StatusActive, true)
	require.NoError(t, err)
	assert.True(t, tr.DryRun)
	assert.True(t, tr.Added)
	assert.Equal(t, []int{testTypes.FutureTenant}, tr.Removed)
	assert.Equal(t, []int{testTypes.FutureTenant}, f.tenantTypes(contact, "L1"))
}

func TestApply_UnknownStatus(t *testing.T) {
	m := NewMachine(newFakeAssociator(), testTypes, nil)
	_, err := m.Apply(context.Background(), contact, "L1", LeaseStatus("Draft"), false)
	assert.Error(t, err)
}

func TestLink_Idempotent(t *testing.T) {
	f := newFakeAssociator()
	m := NewMachine(f, testTypes, nil)
	owner := ObjectRef{Type: "companies", ID: "900"}

	tr, err := m.Link(context.Background(), owner, "L1", testTypes.Owner, false)
	require.NoError(t, err)
	assert.True(t, tr.Added)

	tr, err = m.Link(context.Background(), owner, "L1", testTypes.Owner, false)
	require.NoError(t, err)
	assert.False(t, tr.Changed())
	assert.Equal(t, 1, f.adds)
}

func TestPrecedence(t *testing.T) {
	assert.Equal(t, StatusActive, Precedence(StatusPast, StatusActive, StatusFuture))
	assert.Equal(t, StatusFuture, Precedence(StatusExpired, StatusFuture))
	assert.Equal(t, StatusPast, Precedence(StatusPast))
	assert.Equal(t, LeaseStatus(""), Precedence())
}

func TestParseLeaseStatus(t *testing.T) {
	s, err := ParseLeaseStatus("active")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s)
	_, err = ParseLeaseStatus("pending")
	assert.Error(t, err)
}

func TestTypeIDs_Validate(t *testing.T) {
	assert.NoError(t, testTypes.Validate())

	missing := testTypes
	missing.InactiveTenant = 0
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))

	dup := testTypes
	dup.ActiveTenant = dup.FutureTenant
	assert.Error(t, dup.Validate())

	overlap := testTypes
	overlap.InactiveTenant = overlap.Owner
	assert.Error(t, overlap.Validate())
}

func TestTypeIDs_OwnerTypesOnlyWhereUsed(t *testing.T) {
	tenantsOnly := testTypes
	tenantsOnly.AssociationOwner = 0
	tenantsOnly.CompanyOwner = 0
	assert.NoError(t, tenantsOnly.Validate())

	err := tenantsOnly.ValidateOwners(false)
	require.Error(t, err)
	assert.True(t, apierr.IsConfiguration(err))

	companies := tenantsOnly
	companies.CompanyOwner = 30
	assert.NoError(t, companies.ValidateOwners(false))
	assert.Error(t, companies.ValidateOwners(true))

	companies.AssociationOwner = 31
	assert.NoError(t, companies.ValidateOwners(true))
}
