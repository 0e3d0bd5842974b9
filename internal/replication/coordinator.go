package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/loopgrid/ringd/internal/cluster"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/model"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/util"
	"github.com/loopgrid/ringd/internal/util/workerpool"
)

// Source exposes the local containers the coordinator replicates outward.
type Source interface {
	// Snapshot streams the named container under its operation lock.
	Snapshot(name string) ([]byte, error)
	// ReplicaCounts lists each local ringbuffer with its total backup count.
	ReplicaCounts() map[string]int
}

// MemberView is the slice of cluster state the coordinator consults.
type MemberView interface {
	SelectBackups(n int) []cluster.Member
}

// Config tunes the outbound fan-out.
type Config struct {
	// SyncTimeout bounds the wait for synchronous backup acknowledgements.
	SyncTimeout time.Duration
	// AsyncWorkers and AsyncQueueSize size the pool that carries
	// asynchronous backups and scheduled container syncs.
	AsyncWorkers   int
	AsyncQueueSize int
}

// Coordinator fans primary appends out to this node's backup members.
// Synchronous backups are awaited before an add is acknowledged;
// asynchronous backups and full container syncs ride the worker pool.
// Backup failures never fail the primary operation: they are recorded and,
// for ordering gaps, repaired with a scheduled full sync.
type Coordinator struct {
	cfg        Config
	membership MemberView
	transport  Transport
	source     Source
	pool       *workerpool.WorkerPool
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	seq     uint64
	stopped bool
}

// NewCoordinator creates the fan-out coordinator and its worker pool.
func NewCoordinator(
	cfg Config,
	membership MemberView,
	transport Transport,
	source Source,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Coordinator {
	pool := workerpool.New(workerpool.Config{
		Name:      "replication",
		Workers:   cfg.AsyncWorkers,
		QueueSize: cfg.AsyncQueueSize,
		Logger:    logger,
	})
	return &Coordinator{
		cfg:        cfg,
		membership: membership,
		transport:  transport,
		source:     source,
		pool:       pool,
		logger:     logger,
		metrics:    m,
	}
}

// Pool exposes the fan-out worker pool for health reporting.
func (c *Coordinator) Pool() *workerpool.WorkerPool {
	return c.pool
}

// ReplicateAppend pushes one applied append to the ringbuffer's backups.
// The first syncCount backups are awaited; the next asyncCount are queued.
// Called after the primary apply, outside the container lock.
func (c *Coordinator) ReplicateAppend(ctx context.Context, name string, seq int64, payload serialization.Data, syncCount, asyncCount int) {
	backups := c.membership.SelectBackups(syncCount + asyncCount)
	if len(backups) == 0 {
		return
	}

	req := model.BackupAppend{Ringbuffer: name, Sequence: seq, Payload: payload}

	syncBackups := backups
	if len(syncBackups) > syncCount {
		syncBackups = backups[:syncCount]
	}
	asyncBackups := backups[len(syncBackups):]

	if len(syncBackups) > 0 {
		c.appendSync(ctx, syncBackups, req)
	}
	for _, member := range asyncBackups {
		c.appendAsync(member, req)
	}
}

func (c *Coordinator) appendSync(ctx context.Context, members []cluster.Member, req model.BackupAppend) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, member := range members {
		member := member
		g.Go(func() error {
			start := time.Now()
			result, err := c.transport.SendAppend(gctx, member.DataAddr, req)
			if err != nil {
				c.logger.Warn("Sync backup append failed",
					zap.String("ringbuffer", req.Ringbuffer),
					zap.Int64("sequence", req.Sequence),
					zap.String("node_id", member.NodeID),
					zap.Error(err))
				c.metrics.RecordReplicationFailure("sync")
				return nil
			}
			c.metrics.RecordReplicationAppend("sync", time.Since(start).Seconds())
			if result.NeedsSync {
				c.ScheduleSync(member, req.Ringbuffer)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Coordinator) appendAsync(member cluster.Member, req model.BackupAppend) {
	task := workerpool.Task{
		ID: c.taskID("append", req.Ringbuffer, member.NodeID),
		Fn: func(ctx context.Context) error {
			start := time.Now()
			result, err := c.transport.SendAppend(ctx, member.DataAddr, req)
			if err != nil {
				c.metrics.RecordReplicationFailure("async")
				return err
			}
			c.metrics.RecordReplicationAppend("async", time.Since(start).Seconds())
			if result.NeedsSync {
				c.ScheduleSync(member, req.Ringbuffer)
			}
			return nil
		},
	}
	if !c.pool.TrySubmit(task) {
		c.logger.Warn("Async backup queue full, scheduling sync instead",
			zap.String("ringbuffer", req.Ringbuffer),
			zap.String("node_id", member.NodeID))
		c.metrics.RecordReplicationFailure("async")
		c.ScheduleSync(member, req.Ringbuffer)
	}
}

// ScheduleSync queues a full container transfer to the member. Used when a
// backup reports an ordering gap, when an async append is dropped, and when
// membership changes reshape the replica set.
func (c *Coordinator) ScheduleSync(member cluster.Member, name string) {
	task := workerpool.Task{
		ID: c.taskID("sync", name, member.NodeID),
		Fn: func(ctx context.Context) error {
			return c.syncTo(ctx, member, name)
		},
	}
	if !c.pool.TrySubmit(task) {
		c.logger.Error("Dropped container sync, queue full",
			zap.String("ringbuffer", name),
			zap.String("node_id", member.NodeID))
		c.metrics.RecordReplicationFailure("sync")
	}
}

func (c *Coordinator) syncTo(ctx context.Context, member cluster.Member, name string) error {
	start := time.Now()
	payload, err := c.source.Snapshot(name)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", name, err)
	}

	req := model.SyncRequest{
		Ringbuffer: name,
		Payload:    payload,
		Checksum:   util.ComputeChecksum(payload),
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SyncTimeout)
	defer cancel()
	result, err := c.transport.SendSync(ctx, member.DataAddr, req)
	if err != nil {
		c.metrics.RecordReplicationFailure("sync")
		return err
	}
	if !result.Applied {
		c.metrics.RecordReplicationFailure("sync")
		return fmt.Errorf("peer %s did not apply sync for %s", member.NodeID, name)
	}

	c.metrics.RecordFullSync(time.Since(start).Seconds())
	c.logger.Info("Container sync delivered",
		zap.String("ringbuffer", name),
		zap.String("node_id", member.NodeID),
		zap.Int("bytes", len(payload)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// MemberJoined implements cluster.Events. A joining member that falls into
// a ringbuffer's replica set receives a full sync so it can take appends
// in order from there on.
func (c *Coordinator) MemberJoined(member cluster.Member) {
	if member.DataAddr == "" {
		c.logger.Warn("Joined member has no data address, skipping resync",
			zap.String("node_id", member.NodeID))
		return
	}
	for name, total := range c.source.ReplicaCounts() {
		for _, backup := range c.membership.SelectBackups(total) {
			if backup.NodeID == member.NodeID {
				c.ScheduleSync(member, name)
				break
			}
		}
	}
}

// MemberLeft implements cluster.Events. A departure shifts the replica
// set, so every ringbuffer is resynced to its current backups.
func (c *Coordinator) MemberLeft(member cluster.Member) {
	c.logger.Info("Member left, resyncing replica sets",
		zap.String("node_id", member.NodeID))
	for name, total := range c.source.ReplicaCounts() {
		for _, backup := range c.membership.SelectBackups(total) {
			c.ScheduleSync(backup, name)
		}
	}
}

func (c *Coordinator) taskID(kind, name, nodeID string) string {
	c.mu.Lock()
	c.seq++
	n := c.seq
	c.mu.Unlock()
	return fmt.Sprintf("%s-%s-%s-%d", kind, name, nodeID, n)
}

// Stop drains the fan-out pool.
func (c *Coordinator) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()
	return c.pool.Stop(timeout)
}
