package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/cluster"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/model"
	"github.com/loopgrid/ringd/internal/nearcache"
	"github.com/loopgrid/ringd/internal/ringbuffer"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/service"
	"github.com/loopgrid/ringd/internal/util/workerpool"
)

func newTestChecker(t *testing.T, pool *workerpool.WorkerPool) *HealthChecker {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.NewMetricsWithRegistry("health-test", prometheus.NewRegistry())

	membership, err := cluster.New(cluster.Config{NodeID: "node-a"}, logger, m)
	require.NoError(t, err)

	clk := clock.NewManual(1_700_000_000_000)
	codec := serialization.NewMsgpackService()
	cache := nearcache.New(nearcache.Config{MaxEntries: 8, Format: serialization.FormatBinary}, codec, clk, nil, logger, m)
	svc, err := service.NewRingbufferService([]ringbuffer.Config{
		{Name: "events", Capacity: 8, InMemoryFormat: serialization.FormatBinary},
	}, codec, clk, cache, time.Hour, logger, m)
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	h := NewHealthChecker(Config{NodeID: "node-a", Interval: time.Hour}, membership, svc, pool, logger, m)
	t.Cleanup(h.Stop)
	return h
}

func checkByName(t *testing.T, status model.HealthStatus, name string) model.Check {
	t.Helper()
	for _, check := range status.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("no check named %q in %+v", name, status.Checks)
	return model.Check{}
}

func TestHealthCheckerStartsHealthy(t *testing.T) {
	h := newTestChecker(t, nil)

	status := h.GetStatus()
	assert.Equal(t, "node-a", status.NodeID)
	assert.Equal(t, model.NodeStatusHealthy, status.Status)
	assert.NotZero(t, status.Timestamp)
	assert.Len(t, status.Checks, 4)

	assert.Equal(t, model.NodeStatusHealthy, checkByName(t, status, "cluster").Status)
	assert.Equal(t, "replication disabled", checkByName(t, status, "replication_backlog").Message)
	assert.Contains(t, checkByName(t, status, "ringbuffers").Message, "serving 1 ringbuffers")
	assert.Equal(t, model.NodeStatusHealthy, checkByName(t, status, "goroutines").Status)
	assert.True(t, h.IsReady())
}

func TestHealthCheckerReportsReplicationBacklog(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Name: "backlog-test", Workers: 1, QueueSize: 4})
	t.Cleanup(func() { pool.Stop(time.Second) })

	h := newTestChecker(t, pool)

	// Park the single worker, then fill the queue to capacity.
	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, pool.TrySubmit(workerpool.Task{ID: "blocker", Fn: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	for i := 0; i < 4; i++ {
		require.True(t, pool.TrySubmit(workerpool.Task{ID: "filler", Fn: func(ctx context.Context) error { return nil }}))
	}

	h.runHealthChecks()
	status := h.GetStatus()
	assert.Equal(t, model.NodeStatusUnhealthy, status.Status)
	assert.Equal(t, model.NodeStatusUnhealthy, checkByName(t, status, "replication_backlog").Status)
	assert.False(t, h.IsReady())

	close(release)
	assert.Eventually(t, func() bool {
		h.runHealthChecks()
		return h.IsReady()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthCheckerReadinessToggle(t *testing.T) {
	h := newTestChecker(t, nil)
	require.True(t, h.IsReady())

	h.SetReadiness(false)
	assert.False(t, h.IsReady())

	rec := httptest.NewRecorder()
	h.ReadyHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SetReadiness(true)
	rec = httptest.NewRecorder()
	h.ReadyHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
}

func TestHealthHandlerServesSnapshot(t *testing.T) {
	h := newTestChecker(t, nil)

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status model.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "node-a", status.NodeID)
	assert.Equal(t, model.NodeStatusHealthy, status.Status)
	assert.Len(t, status.Checks, 4)
}
