package reconcile

import (
	"fmt"
	"time"
)

// Fields is a set of target properties keyed by property name.
type Fields map[string]string

// Clone returns a copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is a target object as seen by the reconciler.
type Record struct {
	// ID is the target system's object id.
	ID string `json:"id"`

	// Properties holds the record's current property values.
	Properties Fields `json:"properties"`

	// UpdatedAt is the target's last modification time, if known.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Outcome is the result class of an upsert.
type Outcome string

const (
	// OutcomeCreated means a new record was (or would be) created.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means an existing record was (or would be) updated.
	OutcomeUpdated Outcome = "updated"
	// OutcomeSkipped means no write was needed.
	OutcomeSkipped Outcome = "skipped"
)

// Reason explains a skipped outcome.
type Reason string

const (
	// ReasonAlreadyExists is returned in create-only mode for existing records.
	ReasonAlreadyExists Reason = "already_exists"
	// ReasonUnchanged means every desired field already matches.
	ReasonUnchanged Reason = "unchanged"
	// ReasonNotModified means the change gate suppressed derived-field updates.
	ReasonNotModified Reason = "not_modified"
	// ReasonMissingKey means the natural key was empty.
	ReasonMissingKey Reason = "missing_key"
)

// Mode selects the update policy.
type Mode string

const (
	// ModeSafeUpdate sends only non-empty differing fields.
	ModeSafeUpdate Mode = "safe-update"
	// ModeCreateOnly never touches existing records.
	ModeCreateOnly Mode = "create-only"
	// ModeForce overwrites every desired field.
	ModeForce Mode = "force"
)

// ParseMode parses a mode name. The empty string selects ModeSafeUpdate.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSafeUpdate:
		return ModeSafeUpdate, nil
	case ModeCreateOnly, ModeForce:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown reconcile mode %q", s)
	}
}

// Change describes one property write.
type Change struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// String renders the change as "field: from -> to".
func (c Change) String() string {
	return fmt.Sprintf("%s: %q -> %q", c.Field, c.From, c.To)
}

// Result is the outcome of one upsert.
type Result struct {
	Outcome Outcome  `json:"outcome"`
	Reason  Reason   `json:"reason,omitempty"`
	Record  *Record  `json:"record,omitempty"`
	Changes []Change `json:"changes,omitempty"`

	// DryRun is set when the outcome was planned but not executed.
	DryRun bool `json:"dry_run,omitempty"`

	// Recovered is set when a duplicate-key rejection was resolved by
	// re-reading the existing record.
	Recovered bool `json:"recovered,omitempty"`
}

// Wrote reports whether the result counts as a successful write.
func (r Result) Wrote() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated
}

// Options controls a single upsert.
type Options struct {
	// Mode selects the update policy. Zero means ModeSafeUpdate.
	Mode Mode

	// DryRun plans the outcome without calling Create or Update.
	DryRun bool

	// Cache, when set, is consulted before lookups and filled after them.
	Cache *Cache

	// Gate, when set, guards fields derived from a sub-entity.
	Gate *ChangeGate

	// Sets lists multi-valued fields. Their desired values are added to the
	// existing set instead of replacing it.
	Sets []string
}
