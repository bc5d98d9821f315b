package annotate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
	"github.com/JakeFAU/reliefweb-corpus/internal/staleness"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// DefaultTextField is the record field tagged when none is configured.
const DefaultTextField = "body"

// ErrInvalidConfig reports unusable batcher options.
var ErrInvalidConfig = errors.New("invalid annotate config")

// Store is the slice of storage.Store the batcher reads and writes.
type Store interface {
	ChangedSince(ctx context.Context) ([]staleness.Row, error)
	SourceTexts(ctx context.Context, ids []string, field string) (map[string]string, error)
	UpsertAnnotations(ctx context.Context, docs []storage.AnnotatedDocument) (int, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run ids.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Options bound one annotation run.
type Options struct {
	BatchSize  int
	MaxBatches int
	// TextField names the record field to tag.
	TextField string
	// ParseHTML strips markup from the text before tagging.
	ParseHTML bool
}

func (o Options) validate() error {
	switch {
	case o.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be > 0", ErrInvalidConfig)
	case o.MaxBatches <= 0:
		return fmt.Errorf("%w: max batches must be > 0", ErrInvalidConfig)
	}
	return nil
}

// StopReason explains why a run ended. The zero value means it has not.
type StopReason string

const (
	StopNone       StopReason = ""
	StopDrained    StopReason = "drained"
	StopMaxBatches StopReason = "max_batches"
)

// BatchReport describes one processed batch.
type BatchReport struct {
	// Run is the 1-based batch number within the run.
	Run      int
	Due      int
	Selected int
	Written  int
	// Empty counts records whose rendering had no lines.
	Empty int
	// Missing counts due records without source text.
	Missing int
	Tokens  int
	Elapsed time.Duration
}

// TokensPerSecond is the tagging throughput of the batch.
func (r BatchReport) TokensPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Tokens) / r.Elapsed.Seconds()
}

// Step is the outcome of one iteration: either a processed batch or a stop.
type Step struct {
	Stop   StopReason
	Report BatchReport
}

// Continue reports whether the iterator may be advanced again.
func (s Step) Continue() bool { return s.Stop == StopNone }

// Summary aggregates a finished run.
type Summary struct {
	RunID   uuid.UUID
	Batches int
	Written int
	Tokens  int
	Stop    StopReason
}

// Deps groups the collaborators of a Batcher.
type Deps struct {
	Store   Store
	Tagger  Tagger
	Tagset  Tagset
	Clock   Clock
	IDs     IDGenerator
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Batcher annotates due records in bounded batches.
type Batcher struct {
	deps      Deps
	formatter *Formatter
}

// NewBatcher validates deps. Emitter and Logger are optional.
func NewBatcher(deps Deps) (*Batcher, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Tagger == nil:
		return nil, fmt.Errorf("tagger is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Batcher{deps: deps, formatter: NewFormatter(deps.Tagset, deps.Logger)}, nil
}

// Iterator yields one batch per Next call until the due set is drained or
// the batch ceiling is reached. Records are attempted at most once per
// iterator, so a record that renders empty is not retried forever.
type Iterator struct {
	b         *Batcher
	opts      Options
	field     string
	runID     uuid.UUID
	logger    *zap.Logger
	runs      int
	attempted map[string]struct{}
	stopped   StopReason
}

// Iterator starts a run. Options are validated here.
func (b *Batcher) Iterator(opts Options) (*Iterator, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	runID, err := b.deps.IDs.NewRunID()
	if err != nil {
		return nil, err
	}
	field := opts.TextField
	if field == "" {
		field = DefaultTextField
	}
	return &Iterator{
		b:         b,
		opts:      opts,
		field:     storage.NormalizeFieldName(field),
		runID:     runID,
		logger:    b.deps.Logger.With(zap.String("run_id", runID.String())),
		attempted: make(map[string]struct{}),
	}, nil
}

// RunID identifies the iterator's run.
func (it *Iterator) RunID() uuid.UUID { return it.runID }

// Next processes the next batch. Once a stop is returned every later call
// returns the same stop.
func (it *Iterator) Next(ctx context.Context) (Step, error) {
	if it.stopped != StopNone {
		return Step{Stop: it.stopped}, nil
	}
	if it.runs >= it.opts.MaxBatches {
		it.stopped = StopMaxBatches
		return Step{Stop: it.stopped}, nil
	}
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}

	started := it.b.deps.Clock.Now()
	rows, err := it.b.deps.Store.ChangedSince(ctx)
	if err != nil {
		return Step{}, fmt.Errorf("compute due set: %w", err)
	}
	due := it.pending(staleness.DueRows(rows))
	if len(due) == 0 {
		it.stopped = StopDrained
		return Step{Stop: it.stopped}, nil
	}

	selected := due
	if len(selected) > it.opts.BatchSize {
		selected = selected[:it.opts.BatchSize]
	}
	for _, id := range selected {
		it.attempted[id] = struct{}{}
	}
	it.runs++
	report := BatchReport{Run: it.runs, Due: len(due), Selected: len(selected)}

	texts, err := it.b.deps.Store.SourceTexts(ctx, selected, it.field)
	if err != nil {
		return Step{}, fmt.Errorf("load source texts: %w", err)
	}

	docs := make([]storage.AnnotatedDocument, 0, len(selected))
	for _, id := range selected {
		text, ok := texts[id]
		if !ok {
			report.Missing++
			it.logger.Warn("no source text", zap.String("record_id", id), zap.String("field", it.field))
			continue
		}
		lines, tokens, err := it.render(ctx, id, text)
		if err != nil {
			return Step{}, err
		}
		if len(lines) == 0 {
			report.Empty++
			it.logger.Warn("empty annotation skipped", zap.String("record_id", id))
			continue
		}
		report.Tokens += tokens
		docs = append(docs, storage.AnnotatedDocument{
			ID:        id,
			CreatedAt: it.b.deps.Clock.Now(),
			Content:   lines,
		})
	}

	if len(docs) > 0 {
		written, err := it.b.deps.Store.UpsertAnnotations(ctx, docs)
		if err != nil {
			return Step{}, fmt.Errorf("write batch %d: %w", report.Run, err)
		}
		report.Written = written
	}
	report.Elapsed = nonNegative(it.b.deps.Clock.Now().Sub(started))

	it.logger.Info("batch annotated",
		zap.Int("run", report.Run),
		zap.Int("records", report.Selected),
		zap.Int("written", report.Written),
		zap.Int("tokens", report.Tokens),
		zap.Float64("tokens_per_second", report.TokensPerSecond()),
	)
	it.b.emit(it.runID, progress.Event{
		Stage:  progress.StageBatchDone,
		Count:  report.Written,
		Total:  report.Due,
		Tokens: report.Tokens,
		Dur:    report.Elapsed,
	})
	return Step{Report: report}, nil
}

// pending keeps the due ids this iterator has not attempted yet.
func (it *Iterator) pending(due []string) []string {
	out := due[:0]
	for _, id := range due {
		if _, seen := it.attempted[id]; !seen {
			out = append(out, id)
		}
	}
	return out
}

func (it *Iterator) render(ctx context.Context, id, text string) ([]string, int, error) {
	if it.opts.ParseHTML {
		extracted, err := ExtractText(text)
		if err != nil {
			it.logger.Warn("html extraction failed", zap.String("record_id", id), zap.Error(err))
			return nil, 0, nil
		}
		text = extracted
	} else {
		text = NormalizeText(text)
	}
	if text == "" {
		return nil, 0, nil
	}
	sentences, err := it.b.deps.Tagger.Tag(ctx, text)
	if err != nil {
		return nil, 0, fmt.Errorf("tag record %s: %w", id, err)
	}
	lines, tokens := it.b.formatter.Format(id, sentences)
	return lines, tokens, nil
}

// Run drives an Iterator to completion. A fatal error aborts the run;
// batches already written stay written.
func (b *Batcher) Run(ctx context.Context, opts Options) (Summary, error) {
	it, err := b.Iterator(opts)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{RunID: it.RunID()}
	started := b.deps.Clock.Now()
	b.emit(sum.RunID, progress.Event{Stage: progress.StageAnnotateStart})
	it.logger.Info("annotation started",
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("max_batches", opts.MaxBatches),
		zap.String("field", it.field),
	)

	for {
		step, err := it.Next(ctx)
		if err != nil {
			it.logger.Error("annotation failed", zap.Error(err))
			b.emit(sum.RunID, progress.Event{
				Stage: progress.StageAnnotateError,
				Count: sum.Written,
				Dur:   nonNegative(b.deps.Clock.Now().Sub(started)),
				Note:  err.Error(),
			})
			return sum, err
		}
		if !step.Continue() {
			sum.Stop = step.Stop
			break
		}
		sum.Batches++
		sum.Written += step.Report.Written
		sum.Tokens += step.Report.Tokens
	}

	elapsed := nonNegative(b.deps.Clock.Now().Sub(started))
	b.emit(sum.RunID, progress.Event{
		Stage:  progress.StageAnnotateDone,
		Count:  sum.Written,
		Tokens: sum.Tokens,
		Dur:    elapsed,
		Note:   string(sum.Stop),
	})
	it.logger.Info("annotation finished",
		zap.String("stop", string(sum.Stop)),
		zap.Int("batches", sum.Batches),
		zap.Int("written", sum.Written),
		zap.Int("tokens", sum.Tokens),
		zap.Duration("elapsed", elapsed),
	)
	return sum, nil
}

func (b *Batcher) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = b.deps.Clock.Now()
	b.deps.Emitter.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
