package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrPoolClosed = errors.New("worker pool shut down")
	ErrQueueFull  = errors.New("worker pool queue full")
)

// PanicError is returned by Run when the task panicked
type PanicError struct {
	Task  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Run executes fn synchronously with a timeout. A panic is recovered and
// returned as *PanicError.
func Run(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) (err error) {
	ctx := parentCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: taskName, Value: r, Stack: debug.Stack()}
		}
	}()

	return fn(ctx)
}

// SafeGo executes fn in a goroutine with panic recovery and a timeout.
// Failures are logged, never propagated.
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes.
func SafeGo(parentCtx context.Context, log logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		if err := Run(parentCtx, timeout, taskName, fn); err != nil {
			logFailure(log, taskName, err)
		}
	}()
}

func logFailure(log logrus.FieldLogger, taskName string, err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("task", taskName)

	var pe *PanicError
	if errors.As(err, &pe) {
		entry.WithField("panic", fmt.Sprint(pe.Value)).
			WithField("stack", string(pe.Stack)).
			Error("Recovered panic in background task")
		return
	}
	entry.WithError(err).Error("Background task failed")
}

// PoolConfig configures a WorkerPool
type PoolConfig struct {
	Workers   int
	QueueSize int
	TaskName  string
	// Timeout bounds each task; zero means no per-task timeout
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

// WorkerPool manages a pool of workers that process tasks from a channel.
// Provides graceful shutdown that drains queued tasks.
type WorkerPool struct {
	cfg    PoolConfig
	workCh chan func(context.Context) error
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed and sends on workCh
	closed bool
}

// NewWorkerPool starts cfg.Workers workers
func NewWorkerPool(ctx context.Context, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		cfg:    cfg,
		workCh: make(chan func(context.Context) error, cfg.QueueSize),
		doneCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.worker()
			}()
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues a task, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// TrySubmit queues a task without blocking
func (p *WorkerPool) TrySubmit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting work and waits up to timeout for queued tasks
// to finish. Tasks still running afterwards see their context cancelled.
// A repeated call waits under the same bound for workers still running.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	if timeout < 0 {
		timeout = 0
	}

	p.mu.Lock()
	first := !p.closed
	if first {
		p.closed = true
		close(p.workCh)
	}
	p.mu.Unlock()

	err := p.wait(timeout)
	if first {
		p.cancel()
	}
	return err
}

func (p *WorkerPool) wait(timeout time.Duration) error {
	select {
	case <-p.doneCh:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.doneCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("worker pool %s shutdown timed out after %v", p.cfg.TaskName, timeout)
	}
}

func (p *WorkerPool) worker() {
	for fn := range p.workCh {
		if err := Run(p.ctx, p.cfg.Timeout, p.cfg.TaskName, fn); err != nil {
			logFailure(p.cfg.Logger, p.cfg.TaskName, err)
		}
	}
}
