package watermark

import (
	"fmt"
	"sync"
	"time"
)

// Mode selects between incremental and full synchronisation.
type Mode string

const (
	// Incremental processes records modified after the watermark.
	Incremental Mode = "incremental"
	// Full processes every record and ignores the watermark.
	Full Mode = "full"
)

// ParseMode parses a mode name; the empty string means Incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", Incremental:
		return Incremental, nil
	case Full:
		return Full, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q", s)
	}
}

// Since returns the lower bound to request from the source for a mode.
// Full mode returns the zero time.
func Since(mark time.Time, mode Mode) time.Time {
	if mode == Full {
		return time.Time{}
	}
	return mark
}

// Filter returns the records modified strictly after mark. In Full mode
// every record is returned. The input slice is not modified.
func Filter[T any](records []T, mark time.Time, mode Mode, modifiedAt func(T) time.Time) []T {
	since := Since(mark, mode)
	out := make([]T, 0, len(records))
	for _, r := range records {
		if since.IsZero() || modifiedAt(r).After(since) {
			out = append(out, r)
		}
	}
	return out
}

// HighWater returns the newest modification time among records.
func HighWater[T any](records []T, modifiedAt func(T) time.Time) time.Time {
	var max time.Time
	for _, r := range records {
		if t := modifiedAt(r); t.After(max) {
			max = t
		}
	}
	return max
}

// Store holds one watermark per flow. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	marks map[string]time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{marks: make(map[string]time.Time)}
}

// Get returns the flow's watermark, zero if none.
func (s *Store) Get(flow string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[flow]
}

// Advance moves the flow's watermark forward to t. Older or equal values are
// ignored so a mark never moves backwards. It reports whether the mark moved.
func (s *Store) Advance(flow string, t time.Time) bool {
	if t.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.After(s.marks[flow]) {
		return false
	}
	s.marks[flow] = t
	return true
}

// Seed sets the initial watermark for a flow if none is held yet.
func (s *Store) Seed(flow string, t time.Time) {
	if t.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.marks[flow]; !ok {
		s.marks[flow] = t
	}
}

// Tracker accumulates the high-water mark of a run and whether it is safe to
// commit. A single failed or unprocessed record blocks the commit.
type Tracker struct {
	mu      sync.Mutex
	high    time.Time
	blocked bool
}

// Observe records a successfully processed record's modification time.
func (t *Tracker) Observe(modified time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if modified.After(t.high) {
		t.high = modified
	}
}

// Block marks the batch as not fully processed.
func (t *Tracker) Block() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked = true
}

// Commit advances the store if nothing blocked the batch. It returns the
// resulting watermark for the flow.
func (t *Tracker) Commit(s *Store, flow string) (time.Time, bool) {
	t.mu.Lock()
	high, blocked := t.high, t.blocked
	t.mu.Unlock()

	if blocked {
		return s.Get(flow), false
	}
	moved := s.Advance(flow, high)
	return s.Get(flow), moved
}
