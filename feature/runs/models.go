package runs

import (
	"time"

	"lease-sync/feature/sync"
)

// Run is one persisted sync run.
type Run struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	RunID      string    `gorm:"size:36;uniqueIndex" json:"run_id"`
	Flow       string    `gorm:"size:32;index" json:"flow"`
	Mode       string    `gorm:"size:32" json:"mode"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `gorm:"index" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`

	Attempted   int `json:"attempted"`
	FailedItems int `json:"failed_items"`
	Written     int `json:"written"`

	Stopped      bool `json:"stopped"`
	LimitReached bool `json:"limit_reached"`
	Truncated    bool `json:"truncated"`
	Failed       bool `json:"failed"`

	Watermark         *time.Time `json:"watermark,omitempty"`
	WatermarkAdvanced bool       `gorm:"index" json:"watermark_advanced"`

	Errors []RunError `gorm:"foreignKey:RunRef;constraint:OnDelete:CASCADE" json:"errors,omitempty"`
}

// TableName overrides the table name used by GORM.
func (Run) TableName() string {
	return "sync_runs"
}

// RunError is one failed item of a run.
type RunError struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	RunRef    uint   `gorm:"index" json:"-"`
	Entity    string `gorm:"size:32" json:"entity"`
	ItemKey   string `gorm:"size:255" json:"key"`
	TargetID  string `gorm:"size:64" json:"target_id,omitempty"`
	ErrorKind string `gorm:"size:32" json:"error_kind,omitempty"`
	Message   string `gorm:"type:text" json:"error"`
}

// TableName overrides the table name used by GORM.
func (RunError) TableName() string {
	return "sync_run_errors"
}

// requiredColumns must exist after migration for the repository to work.
var requiredColumns = []string{
	"run_id", "flow", "mode", "dry_run", "started_at", "finished_at",
	"created", "updated", "skipped", "errored",
	"attempted", "failed_items", "written",
	"watermark", "watermark_advanced",
}

// fromStats converts a finished run report into its row.
func fromStats(s *sync.Stats) Run {
	totals := s.Totals()
	run := Run{
		RunID:             s.RunID,
		Flow:              string(s.Flow),
		Mode:              s.Mode,
		DryRun:            s.DryRun,
		StartedAt:         s.Started.UTC(),
		FinishedAt:        s.Finished.UTC(),
		Created:           totals.Created,
		Updated:           totals.Updated,
		Skipped:           totals.Skipped,
		Errored:           totals.Errored,
		Attempted:         s.Attempted,
		FailedItems:       s.FailedItems,
		Written:           s.Written,
		Stopped:           s.Stopped,
		LimitReached:      s.LimitReached,
		Truncated:         s.Truncated,
		Failed:            s.Failed(),
		WatermarkAdvanced: s.WatermarkAdvanced,
	}
	if !s.Watermark.IsZero() {
		wm := s.Watermark.UTC()
		run.Watermark = &wm
	}
	for _, item := range s.Errors() {
		run.Errors = append(run.Errors, RunError{
			Entity:    item.Entity,
			ItemKey:   item.Key,
			TargetID:  item.TargetID,
			ErrorKind: string(item.ErrorKind),
			Message:   item.Error,
		})
	}
	return run
}
