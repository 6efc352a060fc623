package lifecycle

import (
	"fmt"
	"strings"

	"lease-sync/core/apierr"
)

// LeaseStatus is the source system's lease status.
type LeaseStatus string

const (
	StatusFuture     LeaseStatus = "Future"
	StatusActive     LeaseStatus = "Active"
	StatusPast       LeaseStatus = "Past"
	StatusExpired    LeaseStatus = "Expired"
	StatusTerminated LeaseStatus = "Terminated"
)

// ParseLeaseStatus parses a status case-insensitively.
func ParseLeaseStatus(s string) (LeaseStatus, error) {
	for _, st := range []LeaseStatus{StatusFuture, StatusActive, StatusPast, StatusExpired, StatusTerminated} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lease status %q", s)
}

// State is a tenant lifecycle state.
type State string

const (
	StateFuture   State = "future"
	StateActive   State = "active"
	StateInactive State = "inactive"
)

// StateFor maps a lease status to its lifecycle state.
func StateFor(status LeaseStatus) (State, error) {
	switch status {
	case StatusFuture:
		return StateFuture, nil
	case StatusActive:
		return StateActive, nil
	case StatusPast, StatusExpired, StatusTerminated:
		return StateInactive, nil
	default:
		return "", fmt.Errorf("unknown lease status %q", status)
	}
}

// rank orders statuses for Precedence.
func rank(s LeaseStatus) int {
	switch s {
	case StatusActive:
		return 3
	case StatusFuture:
		return 2
	case StatusPast, StatusExpired, StatusTerminated:
		return 1
	default:
		return 0
	}
}

// Precedence returns the status that governs the association when a tenant
// holds several leases on one unit: Active beats Future beats inactive.
// Unknown statuses are ignored; the result is empty when none is known.
func Precedence(statuses ...LeaseStatus) LeaseStatus {
	var best LeaseStatus
	for _, s := range statuses {
		if rank(s) > rank(best) {
			best = s
		}
	}
	return best
}

// TypeIDs holds the target's numeric association type ids.
type TypeIDs struct {
	FutureTenant     int `mapstructure:"future_tenant" default:"0" json:"future_tenant"`
	ActiveTenant     int `mapstructure:"active_tenant" default:"0" json:"active_tenant"`
	InactiveTenant   int `mapstructure:"inactive_tenant" default:"0" json:"inactive_tenant"`
	Owner            int `mapstructure:"owner" default:"0" json:"owner"`
	AssociationOwner int `mapstructure:"association_owner" default:"0" json:"association_owner"`
	// CompanyOwner links owner companies, since type ids are per object pair.
	CompanyOwner int `mapstructure:"company_owner" default:"0" json:"company_owner"`
}

// For returns the type id of a lifecycle state.
func (t TypeIDs) For(state State) int {
	switch state {
	case StateFuture:
		return t.FutureTenant
	case StateActive:
		return t.ActiveTenant
	default:
		return t.InactiveTenant
	}
}

// Lifecycle returns the tenant lifecycle type ids.
func (t TypeIDs) Lifecycle() []int {
	return []int{t.FutureTenant, t.ActiveTenant, t.InactiveTenant}
}

// Validate checks the type ids every flow links with: the tenant lifecycle
// ids and the property owner id. Lifecycle ids must be distinct from each
// other and from the contact owner ids.
func (t TypeIDs) Validate() error {
	if err := requireIDs(
		typeID{"future tenant", t.FutureTenant},
		typeID{"active tenant", t.ActiveTenant},
		typeID{"inactive tenant", t.InactiveTenant},
		typeID{"owner", t.Owner},
	); err != nil {
		return err
	}
	if t.FutureTenant == t.ActiveTenant || t.FutureTenant == t.InactiveTenant || t.ActiveTenant == t.InactiveTenant {
		return apierr.Configuration("tenant association type ids must be distinct")
	}
	for _, id := range t.Lifecycle() {
		if id == t.Owner || id == t.AssociationOwner {
			return apierr.Configuration("association type id %d is both a tenant and an owner type", id)
		}
	}
	return nil
}

// ValidateOwners checks the extra owner type ids the owner flows link with.
// The association owner id is only needed when association owners are synced.
func (t TypeIDs) ValidateOwners(associationOwners bool) error {
	ids := []typeID{{"company owner", t.CompanyOwner}}
	if associationOwners {
		ids = append(ids, typeID{"association owner", t.AssociationOwner})
	}
	return requireIDs(ids...)
}

type typeID struct {
	name string
	id   int
}

func requireIDs(ids ...typeID) error {
	for _, t := range ids {
		if t.id <= 0 {
			return apierr.Configuration("association type id for %s is not configured", t.name)
		}
	}
	return nil
}

// ObjectRef identifies a target object by type and id.
type ObjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r ObjectRef) String() string {
	return r.Type + "/" + r.ID
}
