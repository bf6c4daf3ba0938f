package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/markbunyevacz/lambda-extractor/internal/analysis"
	"github.com/markbunyevacz/lambda-extractor/internal/common"
	"github.com/markbunyevacz/lambda-extractor/internal/confidence"
	"github.com/markbunyevacz/lambda-extractor/internal/document"
	"github.com/markbunyevacz/lambda-extractor/internal/experts"
	"github.com/markbunyevacz/lambda-extractor/internal/extract"
	"github.com/markbunyevacz/lambda-extractor/internal/idempotency"
	"github.com/markbunyevacz/lambda-extractor/internal/textextract"
)

// Task is one submission: a document plus optional routing hints. Consumed
// once; the fingerprint decides whether it actually runs.
type Task struct {
	ID               uuid.UUID
	Doc              document.Document
	ManufacturerHint string
	DocTypeHint      string
	SubmittedAt      time.Time
}

// Analyzer is the analysis service seam (stubbed in tests).
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.StructuredResult, error)
}

// Processor runs the fixed stage order for one task:
// idempotency check -> expert routing -> text -> tables -> analysis ->
// aggregation -> commit -> expert feedback.
type Processor struct {
	Logger     *slog.Logger
	Idem       *idempotency.Log
	Experts    *experts.Registry
	Text       extract.TextExtractor
	Tables     extract.TableExtractor
	Analysis   Analyzer
	Aggregator *confidence.Aggregator
}

func NewProcessor(
	logger *slog.Logger,
	idem *idempotency.Log,
	registry *experts.Registry,
	text extract.TextExtractor,
	tables extract.TableExtractor,
	analyzer Analyzer,
	agg *confidence.Aggregator,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if agg == nil {
		agg = confidence.NewAggregator(confidence.Config{})
	}
	return &Processor{
		Logger:     logger,
		Idem:       idem,
		Experts:    registry,
		Text:       text,
		Tables:     tables,
		Analysis:   analyzer,
		Aggregator: agg,
	}
}

// Process executes the pipeline. The returned error is non-nil only for
// storage failures and cancellation; every extraction-level failure is folded
// into the Result's typed error so a batch is never aborted by one bad
// document.
func (p *Processor) Process(ctx context.Context, task Task) (extract.Result, error) {
	start := time.Now()
	fp := task.Doc.Fingerprint
	res := extract.Result{Fingerprint: fp}

	// 1) Idempotency: claim the fingerprint or short-circuit.
	outcome, err := p.Idem.CheckAndReserve(ctx, fp)
	if err != nil {
		res.Error = &extract.ResultError{Kind: extract.KindStorageError, Message: err.Error()}
		return res, err
	}
	if outcome.AlreadyProcessed {
		return p.duplicateResult(fp, outcome.PriorResult), nil
	}
	if outcome.Processing {
		res.Duplicate = true
		res.Error = &extract.ResultError{
			Kind:    extract.KindDuplicateDocument,
			Message: "another submission is processing this document",
		}
		return res, nil
	}

	// From here we own the reservation; release it on any path that does not
	// commit, including cancellation, so the document stays processable.
	committed := false
	defer func() {
		if !committed {
			relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if rerr := p.Idem.Release(relCtx, fp); rerr != nil {
				p.Logger.Error("pipeline.release.failed", "fingerprint", fp, "error", rerr)
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 2) Expert routing: total, never fails.
	expert := p.Experts.SelectExpert(experts.Hints{
		Manufacturer: task.ManufacturerHint,
		DocType:      task.DocTypeHint,
	})
	res.ExpertID = expert.ID

	p.Logger.Info("pipeline.start",
		"task_id", task.ID, "file", task.Doc.Filename,
		"fingerprint", fp, "expert", expert.ID, "pages", task.Doc.Pages,
	)

	// 3) Text chain: the only fatal extraction stage.
	textRes, err := p.Text.Extract(ctx, task.Doc)
	res.TextAttempts = textRes.Attempts
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Error = &extract.ResultError{Kind: extract.KindExtractionFailure, Message: err.Error()}
		p.commit(ctx, fp, &res, &committed)
		p.Experts.Observe(expert.ID, 0, time.Since(start))
		return res, nil
	}
	res.MethodUsed = textRes.Method
	res.TextLength = len(textRes.Text)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 4) Table engine: degradation is non-fatal.
	tableRes := p.Tables.Extract(ctx, task.Doc, textRes.LayoutText, expert.BackendWeights)
	res.TableAttempts = tableRes.Attempts
	res.TableMethodUsed = tableRes.Method
	res.TablesFound = len(tableRes.Tables)
	if tableRes.Degraded {
		p.Logger.Warn("pipeline.tables.degraded", "task_id", task.ID, "file", task.Doc.Filename)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 5) Analysis: retries happen inside; a terminal failure degrades to a
	// minimal-confidence result instead of aborting the task. The task id
	// doubles as the correlation id for the analysis logs.
	aiRes, aiErr := p.Analysis.Analyze(common.WithRequestID(ctx, task.ID.String()), analysis.Request{
		Text:       textRes.Text,
		Tables:     tableRes.Tables,
		Filename:   task.Doc.Filename,
		TemplateID: expert.PromptTemplate,
	})
	if aiErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Dispatched call may still finish server-side; its result is
			// discarded and nothing is committed.
			return res, ctxErr
		}
		res.Error = &extract.ResultError{Kind: extract.KindAnalysisError, Message: aiErr.Error()}
		aiRes = analysis.StructuredResult{Err: aiErr.Error()}
	} else if aiRes.Err != "" && res.Error == nil {
		res.Error = &extract.ResultError{Kind: extract.KindAnalysisError, Message: aiRes.Err}
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}

	// 6) Aggregation.
	scores := p.Aggregator.Aggregate(textRes, tableRes, aiRes)
	res.ConfidenceScore = scores.Confidence
	res.DataCompleteness = scores.DataCompleteness
	res.StructureQuality = scores.StructureQuality
	res.FieldConfidences = scores.FieldConfidences
	res.ExtractedData = aiRes.Data
	res.Success = aiRes.OK()

	// Table degradation stays visible on the record even when the task
	// otherwise succeeds; a worse error already set wins.
	if tableRes.Degraded && res.Error == nil {
		res.Error = &extract.ResultError{
			Kind:    extract.KindTableExtractionDegraded,
			Message: "no table backend produced tables",
		}
	}

	// 7) Commit, then feed the composite score back to the router.
	p.commit(ctx, fp, &res, &committed)
	p.Experts.Observe(expert.ID, scores.Confidence, time.Since(start))

	p.Logger.Info("pipeline.done",
		"task_id", task.ID, "file", task.Doc.Filename,
		"success", res.Success, "confidence", res.ConfidenceScore,
		"completeness", res.DataCompleteness, "structure", res.StructureQuality,
		"text_method", res.MethodUsed, "table_method", res.TableMethodUsed,
		"tables", res.TablesFound, "elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// commit writes the final result under the reservation. Failure downgrades
// the result with a StorageError annotation but does not panic the worker.
func (p *Processor) commit(ctx context.Context, fp string, res *extract.Result, committed *bool) {
	payload, err := json.Marshal(res)
	if err != nil {
		p.Logger.Error("pipeline.commit.marshal_failed", "fingerprint", fp, "error", err)
		return
	}
	if err := p.Idem.Commit(ctx, fp, payload); err != nil {
		p.Logger.Error("pipeline.commit.failed", "fingerprint", fp, "error", err)
		res.Error = &extract.ResultError{Kind: extract.KindStorageError, Message: err.Error()}
		res.Success = false
		return
	}
	*committed = true
}

// duplicateResult rehydrates the prior committed result when possible and
// tags it as a duplicate short-circuit — a normal outcome, not an error.
func (p *Processor) duplicateResult(fp string, prior *idempotency.Record) extract.Result {
	res := extract.Result{Fingerprint: fp, Duplicate: true}
	if prior != nil && len(prior.ResultJSON) > 0 {
		if err := json.Unmarshal(prior.ResultJSON, &res); err != nil {
			p.Logger.Warn("pipeline.duplicate.decode_failed", "fingerprint", fp, "error", err)
		}
		res.Duplicate = true
	}
	res.Success = false
	res.Error = &extract.ResultError{
		Kind:    extract.KindDuplicateDocument,
		Message: "document already processed; prior result attached",
	}
	return res
}

// IsCancelled reports whether err is a task cancellation rather than a
// pipeline failure.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var _ extract.TextExtractor = (*textextract.Chain)(nil)
