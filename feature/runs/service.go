package runs

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when the backing store of a query is disabled.
var ErrUnavailable = errors.New("run history is not enabled")

// Service answers run history queries from the repository and the report
// archive. Either may be nil when its backend is disabled.
type Service struct {
	repo     *Repository
	archiver *Archiver
	logger   *zap.Logger
}

// NewService creates a run history service.
func NewService(repo *Repository, archiver *Archiver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, archiver: archiver, logger: logger}
}

// Enabled reports whether any backend is configured.
func (s *Service) Enabled() bool {
	return s.repo != nil || s.archiver != nil
}

// List returns recent runs of a flow.
func (s *Service) List(ctx context.Context, flow string, limit int) ([]Run, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	return s.repo.List(ctx, flow, limit)
}

// Get returns one run with its failed items.
func (s *Service) Get(ctx context.Context, runID string) (*Run, error) {
	if s.repo == nil {
		return nil, ErrUnavailable
	}
	return s.repo.Get(ctx, runID)
}

// Report returns the archived JSON report of a run. The flow is looked up
// in the repository when not given.
func (s *Service) Report(ctx context.Context, flow, runID string) ([]byte, error) {
	if s.archiver == nil {
		return nil, ErrUnavailable
	}
	if flow == "" {
		if s.repo == nil {
			return nil, ErrUnavailable
		}
		run, err := s.repo.Get(ctx, runID)
		if err != nil {
			return nil, err
		}
		flow = run.Flow
	}
	return s.archiver.Fetch(ctx, flow, runID)
}

// Reports lists the archived reports of a flow.
func (s *Service) Reports(ctx context.Context, flow string) ([]ReportInfo, error) {
	if s.archiver == nil {
		return nil, ErrUnavailable
	}
	return s.archiver.List(ctx, flow)
}
