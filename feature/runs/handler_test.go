package runs_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lease-sync/core/storage/mocks"
	"lease-sync/feature/runs"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T, svc *runs.Service) *fiber.App {
	app := fiber.New()
	feature := runs.NewFeature(svc)
	require.True(t, feature.IsEnabled())
	require.NoError(t, feature.Load(app))
	return app
}

func get(t *testing.T, app *fiber.App, path string) (int, []byte) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHandler_ListAndGet(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.RecordRun(ctx, leaseRun("run-1", epoch, epoch, true)))
	require.NoError(t, repo.RecordRun(ctx, leaseRun("run-2", epoch.Add(time.Minute), epoch, true)))

	app := setupTestApp(t, runs.NewService(repo, nil, zap.NewNop()))

	status, body := get(t, app, "/runs?flow=leases&limit=1")
	assert.Equal(t, fiber.StatusOK, status)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "run-2", list[0]["run_id"])

	status, body = get(t, app, "/runs/run-1")
	assert.Equal(t, fiber.StatusOK, status)
	var run runs.Run
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, "run-1", run.RunID)
	assert.Len(t, run.Errors, 1)

	status, _ = get(t, app, "/runs/missing")
	assert.Equal(t, fiber.StatusNotFound, status)

	// Reports need the archive.
	status, _ = get(t, app, "/runs/run-1/report")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestHandler_Report(t *testing.T) {
	repo := setupRepository(t)
	require.NoError(t, repo.RecordRun(context.Background(), leaseRun("run-1", epoch, epoch, true)))

	mockClient := new(mocks.Client)
	mockClient.On("GetObject", mock.Anything, "reports", "reports/leases/run-1.json", mock.Anything).
		Return(io.NopCloser(strings.NewReader(`{"run_id":"run-1","flow":"leases"}`)), nil)
	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())

	app := setupTestApp(t, runs.NewService(repo, archiver, zap.NewNop()))

	status, body := get(t, app, "/runs/run-1/report")
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"run_id":"run-1","flow":"leases"}`, string(body))

	status, _ = get(t, app, "/runs/unknown/report")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandler_HistoryDisabled(t *testing.T) {
	mockClient := new(mocks.Client)
	archiver := runs.NewArchiver(mockClient, "reports", 0, zap.NewNop())
	app := setupTestApp(t, runs.NewService(nil, archiver, zap.NewNop()))

	status, _ := get(t, app, "/runs")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	// Without a repository the flow cannot be looked up.
	status, _ = get(t, app, "/runs/run-1/report")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestFeature_DisabledWithoutBackends(t *testing.T) {
	assert.False(t, runs.NewFeature(runs.NewService(nil, nil, nil)).IsEnabled())
	assert.Equal(t, "runs", runs.NewFeature(nil).Name())
}
