package reconcile

import (
	"strconv"
	"time"
)

// ChangeGate guards fields derived from a sub-entity, such as the rent and
// dates a listing takes from its active lease. The tracked fields and the
// timestamp property together form the derived set.
type ChangeGate struct {
	// TimestampProperty is the target property holding the sub-entity's
	// modification time as last written.
	TimestampProperty string

	// ModifiedAt is the sub-entity's current modification time.
	ModifiedAt time.Time

	// Tracked lists derived fields whose difference forces an update even
	// when the sub-entity is not newer.
	Tracked []string
}

// FormatStamp renders a time the way gate timestamps are stored.
func FormatStamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseStamp parses a stored stamp. Both RFC 3339 and epoch milliseconds
// are accepted since the target may normalise datetime properties.
func ParseStamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Newer reports whether the sub-entity is newer than the stamp stored on
// existing. A missing or unreadable stamp counts as newer. ModifiedAt is
// compared at the second precision stamps are stored with.
func (g *ChangeGate) Newer(existing Fields) bool {
	stored, ok := ParseStamp(existing[g.TimestampProperty])
	if !ok {
		return true
	}
	return g.ModifiedAt.UTC().Truncate(time.Second).After(stored)
}

func (g *ChangeGate) tracked(field string) bool {
	for _, f := range g.Tracked {
		if f == field {
			return true
		}
	}
	return false
}

func (g *ChangeGate) derived(field string) bool {
	return field == g.TimestampProperty || g.tracked(field)
}

// filter applies the gate to planned changes. It returns the changes to send
// and whether derived changes were suppressed.
func (g *ChangeGate) filter(existing Fields, changes []Change) ([]Change, bool) {
	if g == nil || g.Newer(existing) {
		return changes, false
	}

	trackedDiff := false
	for _, c := range changes {
		if g.tracked(c.Field) {
			trackedDiff = true
			break
		}
	}

	kept := make([]Change, 0, len(changes))
	suppressed := false
	for _, c := range changes {
		switch {
		case c.Field == g.TimestampProperty:
			// Stored stamp is at least as new; never move it backwards.
			suppressed = true
		case !trackedDiff && g.derived(c.Field):
			suppressed = true
		default:
			kept = append(kept, c)
		}
	}
	return kept, suppressed
}
