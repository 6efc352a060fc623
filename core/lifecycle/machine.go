package lifecycle

import (
	"context"
	"fmt"

	"lease-sync/core/reconcile"

	"go.uber.org/zap"
)

// Associator reads and writes typed associations between an object and a
// listing.
type Associator interface {
	// Types returns the association type ids currently linking from to the
	// listing.
	Types(ctx context.Context, from ObjectRef, listingID string) ([]int, error)

	// Add creates one typed association.
	Add(ctx context.Context, from ObjectRef, listingID string, typeID int) error

	// Remove deletes the given association types.
	Remove(ctx context.Context, from ObjectRef, listingID string, typeIDs []int) error
}

// Transition records what Apply or Link did for one pair.
type Transition struct {
	From      ObjectRef   `json:"from"`
	ListingID string      `json:"listing_id"`
	Status    LeaseStatus `json:"status,omitempty"`
	State     State       `json:"state,omitempty"`
	TypeID    int         `json:"type_id"`
	Before    []int       `json:"before,omitempty"`
	Removed   []int       `json:"removed,omitempty"`
	Added     bool        `json:"added"`
	DryRun    bool        `json:"dry_run,omitempty"`
}

// Changed reports whether the transition wrote (or would write) anything.
func (t Transition) Changed() bool {
	return t.Added || len(t.Removed) > 0
}

// Machine applies lifecycle transitions. Calls for the same (object,
// listing) pair are serialised.
type Machine struct {
	assoc  Associator
	types  TypeIDs
	logger *zap.Logger
	locks  reconcile.KeyLock
}

// NewMachine creates a lifecycle machine.
func NewMachine(assoc Associator, types TypeIDs, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{assoc: assoc, types: types, logger: logger}
}

// Types returns the configured type ids.
func (m *Machine) Types() TypeIDs {
	return m.types
}

func pairKey(from ObjectRef, listingID string) string {
	return from.String() + "->" + listingID
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Apply moves the association between from and the listing to the state
// derived from status.
func (m *Machine) Apply(ctx context.Context, from ObjectRef, listingID string, status LeaseStatus, dryRun bool) (Transition, error) {
	state, err := StateFor(status)
	if err != nil {
		return Transition{}, err
	}
	desired := m.types.For(state)
	tr := Transition{From: from, ListingID: listingID, Status: status, State: state, TypeID: desired, DryRun: dryRun}

	unlock := m.locks.Lock(pairKey(from, listingID))
	defer unlock()

	current, err := m.assoc.Types(ctx, from, listingID)
	if err != nil {
		return tr, fmt.Errorf("read associations %s -> %s: %w", from, listingID, err)
	}
	tr.Before = current

	var stale []int
	for _, id := range m.types.Lifecycle() {
		if id != desired && contains(current, id) {
			stale = append(stale, id)
		}
	}
	present := contains(current, desired)
	if present && len(stale) == 0 {
		return tr, nil
	}

	tr.Removed = stale
	tr.Added = !present
	if dryRun {
		return tr, nil
	}

	if len(stale) > 0 {
		if err := m.assoc.Remove(ctx, from, listingID, stale); err != nil {
			tr.Removed, tr.Added = nil, false
			return tr, fmt.Errorf("remove associations %v %s -> %s: %w", stale, from, listingID, err)
		}
	}
	if !present {
		if err := m.assoc.Add(ctx, from, listingID, desired); err != nil {
			tr.Added = false
			return tr, fmt.Errorf("add association %d %s -> %s: %w", desired, from, listingID, err)
		}
	}

	m.logger.Info("Lifecycle transition",
		zap.String("from", from.String()),
		zap.String("listing_id", listingID),
		zap.String("state", string(state)),
		zap.Ints("removed", stale),
		zap.Bool("added", !present),
	)
	return tr, nil
}

// Link ensures a static association (owner types) exists. It never removes
// anything.
func (m *Machine) Link(ctx context.Context, from ObjectRef, listingID string, typeID int, dryRun bool) (Transition, error) {
	tr := Transition{From: from, ListingID: listingID, TypeID: typeID, DryRun: dryRun}

	unlock := m.locks.Lock(pairKey(from, listingID))
	defer unlock()

	current, err := m.assoc.Types(ctx, from, listingID)
	if err != nil {
		return tr, fmt.Errorf("read associations %s -> %s: %w", from, listingID, err)
	}
	tr.Before = current
	if contains(current, typeID) {
		return tr, nil
	}

	tr.Added = true
	if dryRun {
		return tr, nil
	}
	if err := m.assoc.Add(ctx, from, listingID, typeID); err != nil {
		tr.Added = false
		return tr, fmt.Errorf("add association %d %s -> %s: %w", typeID, from, listingID, err)
	}
	m.logger.Debug("Linked",
		zap.String("from", from.String()),
		zap.String("listing_id", listingID),
		zap.Int("type_id", typeID),
	)
	return tr, nil
}
