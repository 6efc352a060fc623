package runs_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"lease-sync/core/storage/mocks"
	"lease-sync/feature/runs"
	"lease-sync/feature/sync"

	"github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func objects(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, info := range infos {
		ch <- info
	}
	close(ch)
	return ch
}

func report(flow, runID string, age time.Duration) minio.ObjectInfo {
	return minio.ObjectInfo{
		Key:          runs.ReportKey(flow, runID),
		Size:         128,
		LastModified: epoch.Add(-age),
	}
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "reports/leases/abc.json", runs.ReportKey("leases", "abc"))
}

func TestArchiver_RecordRun(t *testing.T) {
	mockClient := new(mocks.Client)
	var body []byte
	mockClient.On("PutObject", mock.Anything, "reports", "reports/leases/run-1.json", mock.Anything, mock.Anything,
		mock.MatchedBy(func(opts minio.PutObjectOptions) bool { return opts.ContentType == "application/json" })).
		Run(func(args mock.Arguments) {
			body, _ = io.ReadAll(args.Get(3).(io.Reader))
		}).
		Return(minio.UploadInfo{}, nil)

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	require.NoError(t, archiver.RecordRun(context.Background(), leaseRun("run-1", epoch, epoch, true)))

	var decoded sync.Stats
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, sync.FlowLeases, decoded.Flow)
	assert.Equal(t, 2, decoded.Listings.Created)
	assert.Len(t, decoded.Items, 2)
	mockClient.AssertExpectations(t)
	mockClient.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiver_RecordRunUploadFails(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("PutObject", mock.Anything, "reports", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("access denied"))

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	err := archiver.RecordRun(context.Background(), leaseRun("run-1", epoch, epoch, true))
	assert.ErrorContains(t, err, "access denied")
}

func TestArchiver_RecordRunPrunes(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("PutObject", mock.Anything, "reports", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)
	mockClient.On("ListObjects", mock.Anything, "reports", mock.MatchedBy(func(opts minio.ListObjectsOptions) bool {
		return opts.Prefix == "reports/leases/" && opts.Recursive
	})).Return(objects(
		report("leases", "old", 3*time.Hour),
		report("leases", "new", 0),
		report("leases", "mid", time.Hour),
	))

	var removed []string
	mockClient.On("RemoveObjects", mock.Anything, "reports", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			for obj := range args.Get(2).(<-chan minio.ObjectInfo) {
				removed = append(removed, obj.Key)
			}
		}).
		Return(nil)

	archiver := runs.NewArchiver(mockClient, "reports", 2, zap.NewNop())
	require.NoError(t, archiver.RecordRun(context.Background(), leaseRun("new", epoch, epoch, true)))
	assert.Equal(t, []string{"reports/leases/old.json"}, removed)
}

func TestArchiver_PruneReportsFailures(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "reports", mock.Anything).Return(objects(
		report("units", "a", 0),
		report("units", "b", time.Hour),
		report("units", "c", 2*time.Hour),
	))
	failures := make(chan minio.RemoveObjectError, 1)
	failures <- minio.RemoveObjectError{ObjectName: "reports/units/c.json", Err: errors.New("locked")}
	close(failures)
	mockClient.On("RemoveObjects", mock.Anything, "reports", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			for range args.Get(2).(<-chan minio.ObjectInfo) {
			}
		}).
		Return((<-chan minio.RemoveObjectError)(failures))

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	n, err := archiver.Prune(context.Background(), "units", 1)
	assert.ErrorContains(t, err, "locked")
	assert.Equal(t, 1, n)
}

func TestArchiver_PruneNothingToDo(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "reports", mock.Anything).Return(objects(report("units", "a", 0)))

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	n, err := archiver.Prune(context.Background(), "units", 5)
	require.NoError(t, err)
	assert.Zero(t, n)
	mockClient.AssertNotCalled(t, "RemoveObjects", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiver_List(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "reports", mock.Anything).Return(objects(
		report("owners", "x", time.Hour),
		minio.ObjectInfo{Key: "reports/owners/notes.txt"},
		report("owners", "y", 0),
	))

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	list, err := archiver.List(context.Background(), "owners")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "y", list[0].RunID)
	assert.Equal(t, "x", list[1].RunID)
}

func TestArchiver_ListError(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("ListObjects", mock.Anything, "reports", mock.Anything).
		Return(objects(minio.ObjectInfo{Err: errors.New("bucket gone")}))

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	_, err := archiver.List(context.Background(), "owners")
	assert.ErrorContains(t, err, "bucket gone")
}

func TestArchiver_Fetch(t *testing.T) {
	mockClient := new(mocks.Client)
	mockClient.On("GetObject", mock.Anything, "reports", "reports/leases/run-1.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"run_id":"run-1"}`)), nil)
	mockClient.On("GetObject", mock.Anything, "reports", "reports/leases/gone.json", mock.Anything).
		Return(nil, minio.ErrorResponse{Code: "NoSuchKey"})

	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())

	data, err := archiver.Fetch(context.Background(), "leases", "run-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(data))

	_, err = archiver.Fetch(context.Background(), "leases", "gone")
	assert.ErrorIs(t, err, runs.ErrNotFound)
}
