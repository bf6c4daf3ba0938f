package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/confidence"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/experts"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
	"github.com/markbunyevacz/lambda-extractor/internal/idempotency"
	"github.com/markbunyevacz/lambda-extractor/internal/pipeline"
)

type slowText struct {
	delay time.Duration
	runs  atomic.Int64
}

func (s *slowText) Extract(ctx context.Context, _ document.Document) (extract.TextResult, error) {
	s.runs.Add(1)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return extract.TextResult{}, ctx.Err()
	}
	return extract.TextResult{Text: "text", Method: "pdftotext-layout"}, nil
}

type noTables struct{}

func (noTables) Extract(context.Context, document.Document, string, map[string]float64) extract.TableResult {
	return extract.TableResult{Degraded: true}
}

type okAnalyzer struct{}

func (okAnalyzer) Analyze(context.Context, analysis.Request) (analysis.StructuredResult, error) {
	return analysis.StructuredResult{
		Data: map[string]any{
			"identification":           map[string]any{"name": "X"},
			"technical_specifications": map[string]any{},
		},
		Confidence: 0.9,
	}, nil
}

func newQueueProcessor(text extract.TextExtractor) *pipeline.Processor {
	return pipeline.NewProcessor(
		nil,
		idempotency.NewLog(idempotency.NewMemoryStore(), idempotency.Config{}, nil),
		experts.NewRegistry(nil, 0.2, nil),
		text, noTables{}, okAnalyzer{},
		confidence.NewAggregator(confidence.Config{}),
	)
}

func task(n int) pipeline.Task {
	return pipeline.Task{
		ID: uuid.New(),
		Doc: document.Document{
			Bytes:       []byte{byte(n)},
			Filename:    fmt.Sprintf("doc-%d.pdf", n),
			Fingerprint: fmt.Sprintf("fp-%d", n),
		},
		SubmittedAt: time.Now(),
	}
}

func TestQueueProcessesAllTasks(t *testing.T) {
	var (
		mu   sync.Mutex
		done = map[string]bool{}
	)
	q := NewQueue(newQueueProcessor(&slowText{delay: time.Millisecond}), nil,
		WithWorkers(3),
		WithQueueSize(16),
		WithResultSink(func(_ context.Context, tk pipeline.Task, err error) {
			mu.Lock()
			defer mu.Unlock()
			done[tk.Doc.Fingerprint] = err == nil
		}),
	)

	const n = 12
	for i := 0; i < n; i++ {
		if err := q.Enqueue(context.Background(), task(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(done) != n {
		t.Fatalf("sink saw %d tasks, want %d", len(done), n)
	}
	for fp, ok := range done {
		if !ok {
			t.Errorf("task %s reported failure", fp)
		}
	}
}

func TestQueueRejectWhenFull(t *testing.T) {
	text := &slowText{delay: time.Second}
	q := NewQueue(newQueueProcessor(text), nil,
		WithWorkers(1),
		WithQueueSize(1),
		WithBackpressure(Reject),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		q.Shutdown(ctx)
	}()

	// Saturate: one task in the worker, one in the buffer.
	rejected := false
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(context.Background(), task(i)); errors.Is(err, ErrQueueFull) {
			rejected = true
			break
		}
	}
	if !rejected {
		t.Error("Enqueue never returned ErrQueueFull with a saturated queue")
	}
}

func TestQueueBlockModeHonorsContext(t *testing.T) {
	q := NewQueue(newQueueProcessor(&slowText{delay: time.Second}), nil,
		WithWorkers(1),
		WithQueueSize(1),
		WithBackpressure(Block),
	)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		q.Shutdown(ctx)
	}()

	// Fill the pool and buffer.
	_ = q.Enqueue(context.Background(), task(0))
	_ = q.Enqueue(context.Background(), task(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, task(2))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("blocked Enqueue error = %v, want context.DeadlineExceeded", err)
	}
}

func TestQueueEnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(newQueueProcessor(&slowText{delay: time.Millisecond}), nil, WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if err := q.Enqueue(context.Background(), task(0)); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Enqueue after Shutdown error = %v, want ErrShutdown", err)
	}
	// Shutdown is idempotent.
	q.Shutdown(ctx)
}

func TestQueueTaskTimeoutCancelsPipeline(t *testing.T) {
	text := &slowText{delay: 10 * time.Second}
	var failures atomic.Int64
	q := NewQueue(newQueueProcessor(text), nil,
		WithWorkers(1),
		WithTaskTimeout(30*time.Millisecond),
		WithResultSink(func(_ context.Context, _ pipeline.Task, err error) {
			if err != nil {
				failures.Add(1)
			}
		}),
	)

	if err := q.Enqueue(context.Background(), task(0)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if failures.Load() != 1 {
		t.Errorf("failures = %d, want 1 (task timed out)", failures.Load())
	}
}
