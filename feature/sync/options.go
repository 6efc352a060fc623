package sync

import (
	"fmt"

	"lease-sync/core/reconcile"
	"lease-sync/core/watermark"
)

// Flow names a sync flow.
type Flow string

const (
	FlowUnits    Flow = "units"
	FlowLeases   Flow = "leases"
	FlowOwners   Flow = "owners"
	FlowTenant   Flow = "tenant"
	FlowUnit     Flow = "unit"
	FlowProperty Flow = "property"
)

// ParseFlow parses a batch flow name accepted by the trigger endpoint.
func ParseFlow(s string) (Flow, error) {
	switch Flow(s) {
	case FlowUnits, FlowLeases, FlowOwners:
		return Flow(s), nil
	default:
		return "", fmt.Errorf("unknown sync flow %q", s)
	}
}

const (
	// DefaultConcurrency is the number of items processed at once.
	DefaultConcurrency = 4
	// DefaultBatchSize is the minimum page size requested from the source.
	DefaultBatchSize = 100
)

// Options controls one run.
type Options struct {
	// RunID identifies the run. Generated when empty.
	RunID string

	// Limit stops the run after this many items created or updated
	// something. Zero means no limit.
	Limit int

	PropertyIDs []int
	UnitIDs     []int
	OwnerIDs    []int

	DryRun     bool
	Force      bool
	CreateOnly bool

	// Full ignores the lease watermark.
	Full bool

	Concurrency int
	BatchSize   int

	// AssociationOwners includes association owners in the owner flow.
	AssociationOwners bool
}

// Mode returns the reconcile mode selected by the flags.
func (o Options) Mode() (reconcile.Mode, error) {
	switch {
	case o.Force && o.CreateOnly:
		return "", fmt.Errorf("--force and --create-only are mutually exclusive")
	case o.Force:
		return reconcile.ModeForce, nil
	case o.CreateOnly:
		return reconcile.ModeCreateOnly, nil
	default:
		return reconcile.ModeSafeUpdate, nil
	}
}

// WatermarkMode returns the change detection mode.
func (o Options) WatermarkMode() watermark.Mode {
	if o.Full {
		return watermark.Full
	}
	return watermark.Incremental
}

func (o Options) normalized() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	return o
}

func intSet(ids []int) map[int]bool {
	if len(ids) == 0 {
		return nil
	}
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
