package sync

import (
	"sync"
	"time"

	"lease-sync/core/apierr"
	"lease-sync/core/lifecycle"
	"lease-sync/core/reconcile"
)

// Counts aggregates outcomes for one entity kind.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

func (c *Counts) add(o Counts) {
	c.Created += o.Created
	c.Updated += o.Updated
	c.Skipped += o.Skipped
	c.Errored += o.Errored
}

// ItemResult records one operation with enough detail to reproduce it.
type ItemResult struct {
	Entity    string      `json:"entity"`
	Key       string      `json:"key"`
	TargetID  string      `json:"target_id,omitempty"`
	Outcome   string      `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`
	ErrorKind apierr.Kind `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Changes   []string    `json:"changes,omitempty"`
	DryRun    bool        `json:"dry_run,omitempty"`
}

const outcomeErrored = "errored"

// Stats is the report of one run.
type Stats struct {
	mu sync.Mutex

	Flow     Flow      `json:"flow"`
	RunID    string    `json:"run_id"`
	Mode     string    `json:"mode"`
	DryRun   bool      `json:"dry_run"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Listings     Counts `json:"listings"`
	Contacts     Counts `json:"contacts"`
	Companies    Counts `json:"companies"`
	Associations Counts `json:"associations"`
	// Sources counts failed source lookups (units, leases, tenants).
	Sources Counts `json:"sources"`

	// Attempted and FailedItems count top-level items (units, leases,
	// owners), not individual operations.
	Attempted   int `json:"attempted"`
	FailedItems int `json:"failed_items"`
	Written     int `json:"written"`

	Stopped      bool `json:"stopped"`
	LimitReached bool `json:"limit_reached"`
	Truncated    bool `json:"truncated"`

	Watermark         time.Time `json:"watermark,omitempty"`
	WatermarkAdvanced bool      `json:"watermark_advanced"`

	Items []ItemResult `json:"items"`
}

func newStats(flow Flow, runID string, mode reconcile.Mode, dryRun bool) *Stats {
	return &Stats{
		Flow:    flow,
		RunID:   runID,
		Mode:    string(mode),
		DryRun:  dryRun,
		Started: time.Now().UTC(),
	}
}

func (s *Stats) counts(entity string) *Counts {
	switch entity {
	case entityListing:
		return &s.Listings
	case entityContact:
		return &s.Contacts
	case entityCompany:
		return &s.Companies
	case entityAssociation:
		return &s.Associations
	default:
		return &s.Sources
	}
}

// recordUpsert records a reconciler result.
func (s *Stats) recordUpsert(entity, key string, res reconcile.Result, err error) {
	item := ItemResult{Entity: entity, Key: key, DryRun: res.DryRun}
	if res.Record != nil {
		item.TargetID = res.Record.ID
	}
	if err != nil {
		item.Outcome = outcomeErrored
		item.ErrorKind = apierr.KindOf(err)
		item.Error = err.Error()
	} else {
		item.Outcome = string(res.Outcome)
		item.Reason = string(res.Reason)
		for _, c := range res.Changes {
			item.Changes = append(item.Changes, c.String())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counts(entity)
	switch {
	case err != nil:
		c.Errored++
	case res.Outcome == reconcile.OutcomeCreated:
		c.Created++
	case res.Outcome == reconcile.OutcomeUpdated:
		c.Updated++
	default:
		c.Skipped++
	}
	s.Items = append(s.Items, item)
}

// recordLink records a lifecycle or owner association transition.
func (s *Stats) recordLink(tr lifecycle.Transition, err error) {
	item := ItemResult{
		Entity:   entityAssociation,
		Key:      tr.From.String() + "->" + tr.ListingID,
		TargetID: tr.ListingID,
		DryRun:   tr.DryRun,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		item.Outcome = outcomeErrored
		item.ErrorKind = apierr.KindOf(err)
		item.Error = err.Error()
		s.Associations.Errored++
	case tr.Added && len(tr.Before) == 0:
		item.Outcome = string(reconcile.OutcomeCreated)
		s.Associations.Created++
	case tr.Changed():
		item.Outcome = string(reconcile.OutcomeUpdated)
		s.Associations.Updated++
	default:
		item.Outcome = string(reconcile.OutcomeSkipped)
		item.Reason = string(reconcile.ReasonUnchanged)
		s.Associations.Skipped++
	}
	if tr.State != "" {
		item.Changes = append(item.Changes, "state: "+string(tr.State))
	}
	s.Items = append(s.Items, item)
}

// recordSkip records an operation that was not attempted.
func (s *Stats) recordSkip(entity, key, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts(entity).Skipped++
	s.Items = append(s.Items, ItemResult{Entity: entity, Key: key, Outcome: string(reconcile.OutcomeSkipped), Reason: reason})
}

// recordError records a failure outside the reconciler, such as a source
// lookup.
func (s *Stats) recordError(entity, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts(entity).Errored++
	s.Items = append(s.Items, ItemResult{
		Entity:    entity,
		Key:       key,
		Outcome:   outcomeErrored,
		ErrorKind: apierr.KindOf(err),
		Error:     err.Error(),
	})
}

func (s *Stats) itemDone(wrote bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempted++
	if err != nil {
		s.FailedItems++
	}
	if wrote {
		s.Written++
	}
}

func (s *Stats) markStopped() {
	s.mu.Lock()
	s.Stopped = true
	s.mu.Unlock()
}

func (s *Stats) markLimitReached() {
	s.mu.Lock()
	s.LimitReached = true
	s.mu.Unlock()
}

func (s *Stats) finish() {
	s.mu.Lock()
	s.Finished = time.Now().UTC()
	s.mu.Unlock()
}

// Totals sums the counts of every entity kind.
func (s *Stats) Totals() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t Counts
	t.add(s.Listings)
	t.add(s.Contacts)
	t.add(s.Companies)
	t.add(s.Associations)
	t.add(s.Sources)
	return t
}

// Errors returns the failed operations.
func (s *Stats) Errors() []ItemResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ItemResult
	for _, it := range s.Items {
		if it.Outcome == outcomeErrored {
			out = append(out, it)
		}
	}
	return out
}

// HasErrors reports whether any operation failed.
func (s *Stats) HasErrors() bool {
	return len(s.Errors()) > 0
}

// Failed reports whether every item of the run errored. A run with some
// errors and some progress is not a failure.
func (s *Stats) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Attempted > 0 && s.FailedItems == s.Attempted
}

// Duration returns how long the run took.
func (s *Stats) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

func (s *Stats) markTruncated() {
	s.mu.Lock()
	s.Truncated = true
	s.mu.Unlock()
}

func (s *Stats) setWatermark(mark time.Time, advanced bool) {
	s.mu.Lock()
	s.Watermark = mark
	s.WatermarkAdvanced = advanced
	s.mu.Unlock()
}
