// Package worker runs best-effort background jobs. Failures and drops are
// logged and counted but never reported back to the submitter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"learnpulse_backend/pkg/logger"
	"learnpulse_backend/pkg/monitoring"

	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

// Runner accepts fire-and-forget jobs. Submit must never block the caller.
type Runner interface {
	Submit(name string, job Job) bool
}

type task struct {
	name string
	job  Job
}

type Queue struct {
	tasks   chan task
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewQueue(workers, size int, timeout time.Duration) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Queue{
		tasks:   make(chan task, size),
		workers: workers,
		timeout: timeout,
	}
}

func (q *Queue) Start() {
	logger.Log.Info("Starting background worker pool", zap.Int("workers", q.workers), zap.Int("queue_size", cap(q.tasks)))
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.loop(i + 1)
	}
}

// Submit enqueues job, or drops it when the queue is full or shut down.
func (q *Queue) Submit(name string, job Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		drop(name, "queue closed")
		return false
	}
	select {
	case q.tasks <- task{name: name, job: job}:
		return true
	default:
		drop(name, "queue full")
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish, or for
// ctx to expire.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) loop(workerID int) {
	defer q.wg.Done()
	for t := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		execute(ctx, t.name, t.job, zap.Int("worker_id", workerID))
		cancel()
	}
}

// Inline runs every job synchronously on the caller's goroutine.
type Inline struct {
	Timeout time.Duration
}

func (i Inline) Submit(name string, job Job) bool {
	ctx := context.Background()
	if i.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}
	execute(ctx, name, job)
	return true
}

var ErrPanic = errors.New("job panicked")

func execute(ctx context.Context, name string, job Job, fields ...zap.Field) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		status := "ok"
		if err != nil {
			status = "error"
			if errors.Is(err, ErrPanic) {
				status = "panic"
			}
			logger.Log.Error("Background job failed",
				append(fields, zap.String("job", name), zap.Error(err))...)
		}
		monitoring.ObserveJob(name, status, time.Since(start))
	}()
	return job(ctx)
}

func drop(name, reason string) {
	monitoring.JobDropped.WithLabelValues(name).Inc()
	logger.Log.Warn("Background job dropped", zap.String("job", name), zap.String("reason", reason))
}
