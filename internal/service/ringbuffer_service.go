package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/nearcache"
	"github.com/loopgrid/ringd/internal/ringbuffer"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/validation"
)

// Replicator pushes applied appends to backup members.
type Replicator interface {
	ReplicateAppend(ctx context.Context, name string, seq int64, payload serialization.Data, syncCount, asyncCount int)
}

// containerEntry pairs a container with the mutex that serializes all
// operations on it. Containers do no internal locking.
type containerEntry struct {
	mu        sync.Mutex
	container *ringbuffer.Container
}

// RingbufferService is the main orchestration layer for ringbuffer
// operations. It owns the configured containers, serializes access per
// container, feeds the near cache, runs the expiration cleanup loop, and
// hands applied appends to the replicator.
type RingbufferService struct {
	codec     serialization.Service
	clock     clock.Clock
	nearCache *nearcache.Cache
	validator *validation.Validator
	logger    *zap.Logger
	metrics   *metrics.Metrics

	containers map[string]*containerEntry

	replicatorMu sync.RWMutex
	replicator   Replicator

	cleanupInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup
}

// NewRingbufferService builds the containers defined in configuration and
// starts the expiration cleanup loop when any of them carries a TTL.
func NewRingbufferService(
	defs []ringbuffer.Config,
	codec serialization.Service,
	clk clock.Clock,
	nearCache *nearcache.Cache,
	cleanupInterval time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) (*RingbufferService, error) {
	s := &RingbufferService{
		codec:           codec,
		clock:           clk,
		nearCache:       nearCache,
		validator:       validation.NewValidator(),
		logger:          logger,
		metrics:         m,
		containers:      make(map[string]*containerEntry, len(defs)),
		cleanupInterval: cleanupInterval,
		stopChan:        make(chan struct{}),
	}

	needsCleanup := false
	for _, def := range defs {
		if _, exists := s.containers[def.Name]; exists {
			return nil, errors.InvalidArgument("duplicate ringbuffer definition", nil).
				WithDetail("name", def.Name)
		}
		c, err := ringbuffer.NewContainer(def, codec, clk)
		if err != nil {
			return nil, err
		}
		s.containers[def.Name] = &containerEntry{container: c}
		if c.HasExpirationPolicy() {
			needsCleanup = true
		}
		logger.Info("Ringbuffer created",
			zap.String("name", def.Name),
			zap.Int32("capacity", def.Capacity),
			zap.String("in_memory_format", string(def.InMemoryFormat)),
			zap.Int64("ttl_seconds", def.TimeToLiveSeconds),
			zap.Int("backup_count", def.BackupCount),
			zap.Int("async_backup_count", def.AsyncBackupCount))
	}

	if needsCleanup && cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	return s, nil
}

// SetReplicator sets the replicator (called after initialization to avoid
// a circular dependency with the fan-out coordinator).
func (s *RingbufferService) SetReplicator(r Replicator) {
	s.replicatorMu.Lock()
	defer s.replicatorMu.Unlock()
	s.replicator = r
}

// Add appends a payload to the named ringbuffer and returns the assigned
// sequence. The append is replicated to backups after the local apply.
func (s *RingbufferService) Add(ctx context.Context, name string, payload []byte) (int64, error) {
	startTime := time.Now()

	if err := s.validator.ValidateAdd(name, payload); err != nil {
		s.logger.Warn("Add validation failed",
			zap.String("ringbuffer", name),
			zap.Error(err))
		return 0, err
	}

	entry, err := s.entry(name)
	if err != nil {
		return 0, err
	}

	entry.mu.Lock()
	c := entry.container
	sizeBefore := c.Size()
	seq, err := c.Add(payload)
	if err != nil {
		entry.mu.Unlock()
		return 0, err
	}
	evicted := sizeBefore == c.Capacity()
	head, tail, size := c.HeadSequence(), c.TailSequence(), c.Size()
	cfg := c.Config()
	entry.mu.Unlock()

	if evicted {
		s.metrics.RecordEviction(name)
		s.nearCache.InvalidateBelow(name, head)
	}
	s.metrics.RecordAdd(name, time.Since(startTime).Seconds(), len(payload))
	s.metrics.UpdateRingbufferState(name, size, head, tail)

	if r := s.getReplicator(); r != nil && cfg.TotalBackupCount() > 0 {
		r.ReplicateAppend(ctx, name, seq, payload, cfg.BackupCount, cfg.AsyncBackupCount)
	}

	s.logger.Debug("Add completed",
		zap.String("ringbuffer", name),
		zap.Int64("sequence", seq),
		zap.Duration("latency", time.Since(startTime)))

	return seq, nil
}

// ReadOne returns the payload at the sequence, serving from the near cache
// when possible.
func (s *RingbufferService) ReadOne(ctx context.Context, name string, seq int64) (serialization.Data, error) {
	startTime := time.Now()

	if data, found := s.nearCache.Get(name, seq); found {
		s.metrics.RecordRead(name, time.Since(startTime).Seconds())
		return data, nil
	}

	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	data, err := entry.container.ReadOne(seq)
	entry.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.nearCache.Put(name, seq, data)
	s.metrics.RecordRead(name, time.Since(startTime).Seconds())

	s.logger.Debug("Read completed",
		zap.String("ringbuffer", name),
		zap.Int64("sequence", seq),
		zap.Duration("latency", time.Since(startTime)))

	return data, nil
}

// ReadMany returns up to maxCount payloads starting at start.
func (s *RingbufferService) ReadMany(ctx context.Context, name string, start int64, maxCount int) (ringbuffer.ReadResult, error) {
	startTime := time.Now()

	if err := s.validator.ValidateReadCount(maxCount); err != nil {
		return ringbuffer.ReadResult{}, err
	}

	entry, err := s.entry(name)
	if err != nil {
		return ringbuffer.ReadResult{}, err
	}

	entry.mu.Lock()
	result, err := entry.container.ReadMany(start, maxCount)
	entry.mu.Unlock()
	if err != nil {
		return ringbuffer.ReadResult{}, err
	}

	s.metrics.RecordRead(name, time.Since(startTime).Seconds())
	return result, nil
}

// Info returns a snapshot of the ringbuffer's bounds and configuration.
func (s *RingbufferService) Info(name string) (*RingbufferInfo, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	c := entry.container
	cfg := c.Config()
	return &RingbufferInfo{
		Name:              cfg.Name,
		Capacity:          c.Capacity(),
		Size:              c.Size(),
		HeadSequence:      c.HeadSequence(),
		TailSequence:      c.TailSequence(),
		RemainingCapacity: c.RemainingCapacity(),
		InMemoryFormat:    string(cfg.InMemoryFormat),
		TimeToLiveSeconds: cfg.TimeToLiveSeconds,
		BackupCount:       cfg.BackupCount,
		AsyncBackupCount:  cfg.AsyncBackupCount,
	}, nil
}

// Names returns the configured ringbuffer names in sorted order.
func (s *RingbufferService) Names() []string {
	names := make([]string, 0, len(s.containers))
	for name := range s.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs fn while holding the named container's operation lock. It
// backs the replication applier; cache entries invalidated by head or tail
// movement are swept afterwards.
func (s *RingbufferService) Execute(name string, fn func(*ringbuffer.Container) error) error {
	entry, err := s.entry(name)
	if err != nil {
		return err
	}

	entry.mu.Lock()
	c := entry.container
	headBefore, tailBefore := c.HeadSequence(), c.TailSequence()
	fnErr := fn(c)
	head, tail, size := c.HeadSequence(), c.TailSequence(), c.Size()
	entry.mu.Unlock()

	if fnErr != nil {
		return fnErr
	}

	if tail < tailBefore {
		// Only a full state install can move the tail backwards.
		s.nearCache.InvalidateRingbuffer(name)
	} else if head > headBefore {
		s.nearCache.InvalidateBelow(name, head)
	}
	s.metrics.UpdateRingbufferState(name, size, head, tail)
	return nil
}

// Snapshot streams the named container for a full backup sync.
func (s *RingbufferService) Snapshot(name string) ([]byte, error) {
	entry, err := s.entry(name)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	w := serialization.NewWriter()
	if err := entry.container.WriteTo(w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// ReplicaCounts lists each ringbuffer with its total backup count.
func (s *RingbufferService) ReplicaCounts() map[string]int {
	counts := make(map[string]int, len(s.containers))
	for name, entry := range s.containers {
		counts[name] = entry.container.Config().TotalBackupCount()
	}
	return counts
}

// cleanupLoop periodically removes expired items from TTL-enabled
// ringbuffers.
func (s *RingbufferService) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanupPass()
		case <-s.stopChan:
			return
		}
	}
}

// runCleanupPass expires items across all containers using the service
// clock.
func (s *RingbufferService) runCleanupPass() {
	nowMs := s.clock.NowMs()
	for _, name := range s.Names() {
		entry := s.containers[name]

		entry.mu.Lock()
		c := entry.container
		if !c.HasExpirationPolicy() {
			entry.mu.Unlock()
			continue
		}
		removed := c.CleanupExpired(nowMs)
		head, tail, size := c.HeadSequence(), c.TailSequence(), c.Size()
		entry.mu.Unlock()

		if removed == 0 {
			continue
		}
		s.metrics.RecordExpired(name, removed)
		s.nearCache.InvalidateBelow(name, head)
		s.metrics.UpdateRingbufferState(name, size, head, tail)
		s.logger.Debug("Expired items removed",
			zap.String("ringbuffer", name),
			zap.Int64("removed", removed),
			zap.Int64("head_sequence", head))
	}
}

// Stop stops the cleanup loop.
func (s *RingbufferService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *RingbufferService) entry(name string) (*containerEntry, error) {
	entry, found := s.containers[name]
	if !found {
		return nil, errors.RingbufferNotFound(name)
	}
	return entry, nil
}

func (s *RingbufferService) getReplicator() Replicator {
	s.replicatorMu.RLock()
	defer s.replicatorMu.RUnlock()
	return s.replicator
}

// RingbufferInfo describes a ringbuffer's bounds and configuration.
type RingbufferInfo struct {
	Name              string `json:"name"`
	Capacity          int64  `json:"capacity"`
	Size              int64  `json:"size"`
	HeadSequence      int64  `json:"head_sequence"`
	TailSequence      int64  `json:"tail_sequence"`
	RemainingCapacity int64  `json:"remaining_capacity"`
	InMemoryFormat    string `json:"in_memory_format"`
	TimeToLiveSeconds int64  `json:"time_to_live_seconds"`
	BackupCount       int    `json:"backup_count"`
	AsyncBackupCount  int    `json:"async_backup_count"`
}
