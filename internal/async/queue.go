package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/markbunyevacz/lambda-extractor/internal/pipeline"
)

// BackpressureMode decides what Enqueue does on a full queue.
type BackpressureMode int

const (
	// Block waits until a worker frees a slot.
	Block BackpressureMode = iota
	// Reject fails fast with ErrQueueFull.
	Reject
)

var (
	ErrQueueFull = errors.New("task queue full")
	ErrShutdown  = errors.New("queue is shutting down")
)

// Queue is a bounded worker pool over the extraction pipeline. Each task runs
// its stages sequentially inside one worker under a per-task timeout.
type Queue struct {
	proc    *pipeline.Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration
	mode    BackpressureMode
	sink    func(context.Context, pipeline.Task, error)

	ch   chan pipeline.Task
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan pipeline.Task, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithBackpressure(m BackpressureMode) Option {
	return func(q *Queue) { q.mode = m }
}

// WithResultSink registers a callback invoked after each task with the
// pipeline error (nil on success). The result itself is already committed to
// the idempotency log; the sink exists for downstream handoff.
func WithResultSink(fn func(context.Context, pipeline.Task, error)) Option {
	return func(q *Queue) { q.sink = fn }
}

func NewQueue(proc *pipeline.Processor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		ch:      make(chan pipeline.Task, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for task := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					_, err := q.proc.Process(ctx, task)
					if q.sink != nil {
						q.sink(ctx, task, err)
					}
					cancel()

					switch {
					case err == nil:
						q.logger.Info("task processed", "worker_id", workerID, "task_id", task.ID, "file", task.Doc.Filename)
					case pipeline.IsCancelled(err):
						q.logger.Warn("task cancelled", "worker_id", workerID, "task_id", task.ID, "file", task.Doc.Filename)
					default:
						q.logger.Error("task failed", "worker_id", workerID, "task_id", task.ID, "file", task.Doc.Filename, "error", err)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a task, honoring the configured backpressure mode.
func (q *Queue) Enqueue(ctx context.Context, task pipeline.Task) error {
	// The mutex is held across the send so Shutdown cannot close the channel
	// under us; workers drain the channel independently, so a blocked send
	// still makes progress.
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrShutdown
	}

	select {
	case q.ch <- task:
		q.logger.Debug("task queued", "task_id", task.ID, "file", task.Doc.Filename)
		return nil
	default:
	}

	if q.mode == Reject {
		q.logger.Warn("queue full, rejecting", "task_id", task.ID, "file", task.Doc.Filename)
		return ErrQueueFull
	}

	q.logger.Warn("queue full, applying backpressure", "task_id", task.ID, "file", task.Doc.Filename)
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops intake, drains workers and waits up to ctx.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
