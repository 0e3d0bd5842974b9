package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/cluster"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/model"
	"github.com/loopgrid/ringd/internal/service"
	"github.com/loopgrid/ringd/internal/util/workerpool"
)

const goroutineWarnThreshold = 10000

// Config holds configuration for health checks
type Config struct {
	NodeID   string
	Interval time.Duration
}

// HealthChecker periodically probes the node's cluster membership,
// replication backlog and runtime, and publishes the combined status
// through gossip metadata.
type HealthChecker struct {
	cfg             Config
	membership      *cluster.Membership
	buffers         *service.RingbufferService
	replicationPool *workerpool.WorkerPool
	logger          *zap.Logger
	metrics         *metrics.Metrics

	mu          sync.RWMutex
	lastCheck   time.Time
	status      model.NodeStatus
	checks      []model.Check
	readinessOK bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHealthChecker creates the checker and starts its probe loop.
func NewHealthChecker(
	cfg Config,
	membership *cluster.Membership,
	buffers *service.RingbufferService,
	replicationPool *workerpool.WorkerPool,
	logger *zap.Logger,
	m *metrics.Metrics,
) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	h := &HealthChecker{
		cfg:             cfg,
		membership:      membership,
		buffers:         buffers,
		replicationPool: replicationPool,
		logger:          logger,
		metrics:         m,
		status:          model.NodeStatusHealthy,
		readinessOK:     true,
		stopChan:        make(chan struct{}),
	}

	h.runHealthChecks()

	h.wg.Add(1)
	go h.loop()
	return h
}

func (h *HealthChecker) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.runHealthChecks()
		case <-h.stopChan:
			return
		}
	}
}

// runHealthChecks runs all probes and recomputes the overall status.
func (h *HealthChecker) runHealthChecks() {
	checks := []model.Check{
		h.checkCluster(),
		h.checkReplicationBacklog(),
		h.checkRingbuffers(),
		h.checkGoroutines(),
	}

	status := model.NodeStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case model.NodeStatusUnhealthy:
			status = model.NodeStatusUnhealthy
		case model.NodeStatusDegraded:
			if status == model.NodeStatusHealthy {
				status = model.NodeStatusDegraded
			}
		}
	}

	h.mu.Lock()
	previous := h.status
	h.status = status
	h.checks = checks
	h.lastCheck = time.Now()
	h.mu.Unlock()

	if previous != status {
		h.logger.Info("Node health changed",
			zap.String("from", string(previous)),
			zap.String("to", string(status)))
		h.membership.UpdateStatus(status)
	}

	h.logger.Debug("Health check completed", zap.String("status", string(status)))
}

// checkCluster reports how much of the known cluster is healthy.
func (h *HealthChecker) checkCluster() model.Check {
	members := h.membership.Members()
	healthy := 0
	for _, member := range members {
		if member.Status == model.NodeStatusHealthy {
			healthy++
		}
	}

	if healthy < len(members) {
		return model.Check{
			Name:    "cluster",
			Status:  model.NodeStatusDegraded,
			Message: fmt.Sprintf("%d of %d members healthy", healthy, len(members)),
		}
	}
	return model.Check{
		Name:    "cluster",
		Status:  model.NodeStatusHealthy,
		Message: fmt.Sprintf("%d members healthy", len(members)),
	}
}

// checkReplicationBacklog watches the fan-out queue. A full queue means
// async backups and container syncs are being dropped.
func (h *HealthChecker) checkReplicationBacklog() model.Check {
	if h.replicationPool == nil {
		return model.Check{
			Name:    "replication_backlog",
			Status:  model.NodeStatusHealthy,
			Message: "replication disabled",
		}
	}

	stats := h.replicationPool.Stats()
	utilization := stats.QueueUtilization()
	message := fmt.Sprintf("queue %d/%d, completed %d, failed %d, rejected %d",
		stats.QueuedTasks, stats.QueueCapacity, stats.Completed, stats.Failed, stats.Rejected)

	switch {
	case utilization >= 100.0:
		return model.Check{Name: "replication_backlog", Status: model.NodeStatusUnhealthy, Message: message}
	case utilization > 80.0:
		return model.Check{Name: "replication_backlog", Status: model.NodeStatusDegraded, Message: message}
	default:
		return model.Check{Name: "replication_backlog", Status: model.NodeStatusHealthy, Message: message}
	}
}

func (h *HealthChecker) checkRingbuffers() model.Check {
	names := h.buffers.Names()
	return model.Check{
		Name:    "ringbuffers",
		Status:  model.NodeStatusHealthy,
		Message: fmt.Sprintf("serving %d ringbuffers", len(names)),
	}
}

func (h *HealthChecker) checkGoroutines() model.Check {
	n := runtime.NumGoroutine()
	h.metrics.UpdateSystemStats(n)

	if n > goroutineWarnThreshold {
		return model.Check{
			Name:    "goroutines",
			Status:  model.NodeStatusDegraded,
			Message: fmt.Sprintf("goroutine count high: %d", n),
		}
	}
	return model.Check{
		Name:    "goroutines",
		Status:  model.NodeStatusHealthy,
		Message: fmt.Sprintf("%d goroutines", n),
	}
}

// GetStatus returns the current health snapshot.
func (h *HealthChecker) GetStatus() model.HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	checks := make([]model.Check, len(h.checks))
	copy(checks, h.checks)

	return model.HealthStatus{
		NodeID:    h.cfg.NodeID,
		Status:    h.status,
		Timestamp: h.lastCheck.Unix(),
		Checks:    checks,
	}
}

// IsReady returns whether the node should receive traffic. A node is
// not ready while it is unhealthy or once shutdown has begun.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK && h.status != model.NodeStatusUnhealthy
}

// SetReadiness lowers or restores readiness; used during graceful
// shutdown to drain traffic before the listeners close.
func (h *HealthChecker) SetReadiness(ready bool) {
	h.mu.Lock()
	changed := h.readinessOK != ready
	h.readinessOK = ready
	h.mu.Unlock()

	if changed {
		h.logger.Info("Readiness changed", zap.Bool("ready", ready))
	}
}

// HealthHandler serves the full health snapshot.
func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == model.NodeStatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// ReadyHandler serves the readiness probe.
func (h *HealthChecker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	status := h.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ready":  ready,
		"status": status.Status,
	})
}

// Stop stops the probe loop.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.wg.Wait()
}
