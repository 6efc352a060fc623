package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lease-sync/core/database"
	"lease-sync/feature/sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// DefaultListLimit is the page size of List when none is given.
	DefaultListLimit = 20
	// MaxListLimit caps the page size of List.
	MaxListLimit = 200
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Repository persists runs through GORM. It implements sync.Recorder and
// sync.WatermarkSeeder.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRepository creates a repository on an open connection.
func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

// Migrate creates or updates the run tables and checks the result.
func (r *Repository) Migrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&Run{}, &RunError{}); err != nil {
		return fmt.Errorf("failed to migrate run tables: %w", err)
	}

	missing, err := database.MissingColumns(db, Run{}.TableName(), requiredColumns)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %s", Run{}.TableName(), strings.Join(missing, ", "))
	}
	return nil
}

// RecordRun stores a finished run and its failed items in one transaction.
func (r *Repository) RecordRun(ctx context.Context, stats *sync.Stats) error {
	run := fromStats(stats)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", stats.RunID, err)
	}
	r.logger.Debug("Run recorded",
		zap.String("run_id", run.RunID),
		zap.Int("errors", len(run.Errors)))
	return nil
}

// List returns the most recent runs, newest first. An empty flow lists all
// flows.
func (r *Repository) List(ctx context.Context, flow string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if flow != "" {
		q = q.Where("flow = ?", flow)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its failed items.
func (r *Repository) Get(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := r.db.WithContext(ctx).Preload("Errors").Where("run_id = ?", runID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return &run, nil
}

// LastWatermark returns the highest watermark a live run of the flow
// committed. It is zero when there is none.
func (r *Repository) LastWatermark(ctx context.Context, flow string) (time.Time, error) {
	var run Run
	err := r.db.WithContext(ctx).
		Where("flow = ? AND watermark_advanced = ? AND dry_run = ?", flow, true, false).
		Where("watermark IS NOT NULL").
		Order("watermark DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last watermark of %s: %w", flow, err)
	}
	if run.Watermark == nil {
		return time.Time{}, nil
	}
	return run.Watermark.UTC(), nil
}
