// Package workerpool provides the bounded task executor behind asynchronous
// backup replication and near cache maintenance.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of work. The ID only serves logging.
type Task struct {
	ID string
	Fn func(context.Context) error
}

// WorkerPool executes queued tasks on a fixed set of goroutines. Shutdown
// stops new submissions immediately but drains tasks already accepted, so
// an acknowledged async backup is never silently dropped.
type WorkerPool struct {
	name      string
	workers   int
	queue     chan Task
	logger    *zap.Logger
	wg        sync.WaitGroup
	stopOnce  sync.Once
	quit      chan struct{}
	active    int32
	completed uint64
	failed    uint64
	rejected  uint64
}

// Config holds worker pool configuration
type Config struct {
	Name      string
	Workers   int
	QueueSize int
	Logger    *zap.Logger
}

// New creates and starts a worker pool
func New(cfg Config) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &WorkerPool{
		name:    cfg.Name,
		workers: cfg.Workers,
		queue:   make(chan Task, cfg.QueueSize),
		logger:  cfg.Logger,
		quit:    make(chan struct{}),
	}

	for i := 0; i < pool.workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		zap.String("name", pool.name),
		zap.Int("workers", pool.workers),
		zap.Int("queue_size", cfg.QueueSize))

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			// Drain whatever was accepted before shutdown.
			for {
				select {
				case task := <-p.queue:
					p.run(id, task)
				default:
					return
				}
			}
		case task := <-p.queue:
			p.run(id, task)
		}
	}
}

func (p *WorkerPool) run(workerID int, task Task) {
	atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)

	start := time.Now()
	err := p.safeExecute(task)
	duration := time.Since(start)

	if err != nil {
		atomic.AddUint64(&p.failed, 1)
		p.logger.Error("Task failed",
			zap.String("pool", p.name),
			zap.Int("worker_id", workerID),
			zap.String("task_id", task.ID),
			zap.Duration("duration", duration),
			zap.Error(err))
		return
	}
	atomic.AddUint64(&p.completed, 1)
	p.logger.Debug("Task completed",
		zap.String("pool", p.name),
		zap.Int("worker_id", workerID),
		zap.String("task_id", task.ID),
		zap.Duration("duration", duration))
}

func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()
	return task.Fn(context.Background())
}

// TrySubmit enqueues a task without blocking. Returns false when the queue
// is full or the pool is stopped.
func (p *WorkerPool) TrySubmit(task Task) bool {
	select {
	case <-p.quit:
		atomic.AddUint64(&p.rejected, 1)
		return false
	default:
	}

	select {
	case p.queue <- task:
		return true
	default:
		atomic.AddUint64(&p.rejected, 1)
		return false
	}
}

// Submit enqueues a task, blocking until accepted, the context is canceled,
// or the pool is stopped.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	select {
	case <-p.quit:
		atomic.AddUint64(&p.rejected, 1)
		return fmt.Errorf("worker pool '%s' is stopped", p.name)
	case <-ctx.Done():
		atomic.AddUint64(&p.rejected, 1)
		return ctx.Err()
	case p.queue <- task:
		return nil
	}
}

// Stop shuts the pool down, waiting up to timeout for workers to drain the
// queue and finish.
func (p *WorkerPool) Stop(timeout time.Duration) error {
	var err error
	p.stopOnce.Do(func() {
		p.logger.Info("Stopping worker pool", zap.String("name", p.name))
		close(p.quit)

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("Worker pool stopped", zap.String("name", p.name))
		case <-time.After(timeout):
			err = fmt.Errorf("worker pool '%s' stop timeout after %v", p.name, timeout)
			p.logger.Warn("Worker pool stop timeout", zap.String("name", p.name))
		}
	})
	return err
}

// Stats represents a point-in-time view of the pool
type Stats struct {
	Name          string
	Workers       int
	ActiveWorkers int
	QueuedTasks   int
	QueueCapacity int
	Completed     uint64
	Failed        uint64
	Rejected      uint64
}

// Stats returns current worker pool statistics
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Name:          p.name,
		Workers:       p.workers,
		ActiveWorkers: int(atomic.LoadInt32(&p.active)),
		QueuedTasks:   len(p.queue),
		QueueCapacity: cap(p.queue),
		Completed:     atomic.LoadUint64(&p.completed),
		Failed:        atomic.LoadUint64(&p.failed),
		Rejected:      atomic.LoadUint64(&p.rejected),
	}
}

// QueueUtilization returns the queue fill level as a percentage
func (s Stats) QueueUtilization() float64 {
	if s.QueueCapacity == 0 {
		return 0
	}
	return (float64(s.QueuedTasks) / float64(s.QueueCapacity)) * 100.0
}
