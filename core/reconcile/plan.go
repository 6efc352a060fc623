package reconcile

import (
	"sort"
	"strings"
)

// SetSeparator joins the values of a multi-valued field.
const SetSeparator = ";"

// planUpdate returns the property writes needed to move existing towards
// desired under mode. Changes are sorted by field name.
func planUpdate(existing, desired Fields, mode Mode) []Change {
	var changes []Change
	for field, want := range desired {
		have := existing[field]
		if have == want {
			continue
		}
		if want == "" && mode != ModeForce {
			// Sparse source payloads never clear target values.
			continue
		}
		changes = append(changes, Change{Field: field, From: have, To: want})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})
	return changes
}

// planCreate returns the fields sent when creating a record: every non-empty
// desired field plus the natural key.
func planCreate(keyProperty, key string, desired Fields) (Fields, []Change) {
	fields := make(Fields, len(desired)+1)
	for field, v := range desired {
		if v != "" {
			fields[field] = v
		}
	}
	fields[keyProperty] = key

	changes := make([]Change, 0, len(fields))
	for field, v := range fields {
		changes = append(changes, Change{Field: field, To: v})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Field < changes[j].Field
	})
	return fields, changes
}

// changeFields converts planned changes into the payload of an update.
func changeFields(changes []Change) Fields {
	out := make(Fields, len(changes))
	for _, c := range changes {
		out[c.Field] = c.To
	}
	return out
}

// merge returns existing with the written fields applied.
func merge(rec *Record, written Fields) *Record {
	out := &Record{ID: rec.ID, UpdatedAt: rec.UpdatedAt, Properties: rec.Properties.Clone()}
	for k, v := range written {
		out.Properties[k] = v
	}
	return out
}

// JoinSet returns the sorted union of multi-valued field values.
func JoinSet(values ...string) string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, SetSeparator) {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			out = append(out, part)
		}
	}
	sort.Strings(out)
	return strings.Join(out, SetSeparator)
}

// unionSets returns desired with each set field widened to include the
// values existing already holds.
func unionSets(existing, desired Fields, sets []string) Fields {
	if len(sets) == 0 {
		return desired
	}
	out := desired.Clone()
	for _, field := range sets {
		if want := desired[field]; want != "" {
			out[field] = JoinSet(existing[field], want)
		}
	}
	return out
}
