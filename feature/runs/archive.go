package runs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"lease-sync/core/storage"
	"lease-sync/feature/sync"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const reportPrefix = "reports"

// ReportInfo describes one archived report.
type ReportInfo struct {
	Key          string    `json:"key"`
	RunID        string    `json:"run_id"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Archiver uploads run reports to object storage. It implements
// sync.Recorder.
type Archiver struct {
	client storage.Client
	bucket string
	keep   int
	logger *zap.Logger
}

// NewArchiver creates an archiver. When keep is positive, older reports of
// a flow are pruned after every upload.
func NewArchiver(client storage.Client, bucket string, keep int, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{client: client, bucket: bucket, keep: keep, logger: logger}
}

// ReportKey returns the object key of a run report.
func ReportKey(flow, runID string) string {
	return path.Join(reportPrefix, flow, runID+".json")
}

func flowPrefix(flow string) string {
	return path.Join(reportPrefix, flow) + "/"
}

// RecordRun uploads the full report of a finished run.
func (a *Archiver) RecordRun(ctx context.Context, stats *sync.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", stats.RunID, err)
	}

	key := ReportKey(string(stats.Flow), stats.RunID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload report %s: %w", key, err)
	}
	a.logger.Debug("Run report archived", zap.String("key", key), zap.Int("bytes", len(data)))

	if a.keep > 0 {
		if _, err := a.Prune(ctx, string(stats.Flow), a.keep); err != nil {
			a.logger.Warn("Failed to prune reports", zap.String("flow", string(stats.Flow)), zap.Error(err))
		}
	}
	return nil
}

// Fetch returns the raw JSON report of a run.
func (a *Archiver) Fetch(ctx context.Context, flow, runID string) ([]byte, error) {
	key := ReportKey(flow, runID)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, a.fetchError(key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, a.fetchError(key, err)
	}
	return data, nil
}

func (a *Archiver) fetchError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("failed to read report %s: %w", key, err)
}

// List returns the archived reports of a flow, newest first.
func (a *Archiver) List(ctx context.Context, flow string) ([]ReportInfo, error) {
	opts := minio.ListObjectsOptions{
		Prefix:    flowPrefix(flow),
		Recursive: true,
	}

	var reports []ReportInfo
	for obj := range a.client.ListObjects(ctx, a.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list reports of %s: %w", flow, obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		reports = append(reports, ReportInfo{
			Key:          obj.Key,
			RunID:        strings.TrimSuffix(path.Base(obj.Key), ".json"),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].LastModified.After(reports[j].LastModified)
	})
	return reports, nil
}

// Prune removes all but the newest keep reports of a flow and returns how
// many were removed.
func (a *Archiver) Prune(ctx context.Context, flow string, keep int) (int, error) {
	reports, err := a.List(ctx, flow)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(reports) <= keep {
		return 0, nil
	}
	stale := reports[keep:]

	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, r := range stale {
			select {
			case objectsCh <- minio.ObjectInfo{Key: r.Key}:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	var firstErr error
	for rErr := range a.client.RemoveObjects(ctx, a.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("failed to remove %s: %w", rErr.ObjectName, rErr.Err)
		}
	}
	removed := len(stale) - failed
	if firstErr != nil {
		return removed, firstErr
	}

	a.logger.Info("Pruned run reports", zap.String("flow", flow), zap.Int("removed", removed))
	return removed, nil
}
