package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// Options bound one run.
type Options struct {
	// PageLimit overrides the query's limit when positive.
	PageLimit int
	// MaxCalls is the call ceiling for the run; it must be positive.
	MaxCalls int
}

// Result summarises a finished run.
type Result struct {
	RunID uuid.UUID
	Mode  source.Mode
	// Since is the newest stored change time an incremental run started
	// from; zero for full runs and empty stores.
	Since   time.Time
	Final   State
	Records int
}

// Stop reports why the run ended.
func (r Result) Stop() StopReason { return r.Final.Stop }

// Deps groups the collaborators of an Engine.
type Deps struct {
	Fetcher Fetcher
	Store   Store
	Hasher  Hasher
	Clock   Clock
	Sleeper Sleeper
	IDs     IDGenerator
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Engine runs the pagination state machine against the upstream API.
type Engine struct {
	deps  Deps
	quota QuotaTable
}

// NewEngine validates deps. Emitter and Logger are optional.
func NewEngine(deps Deps, quota QuotaTable) (*Engine, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.Sleeper == nil:
		return nil, fmt.Errorf("sleeper is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Engine{deps: deps, quota: quota}, nil
}

// Run harvests pages for q until the results are exhausted, the quota table
// halts the run, or opts.MaxCalls calls have been issued. Every page is
// stored, together with its call record, before the next request. A fatal
// error aborts the run; pages already stored stay stored.
func (e *Engine) Run(ctx context.Context, q source.Query, opts Options) (Result, error) {
	if opts.MaxCalls <= 0 {
		return Result{}, &source.ConfigurationError{Reason: "max calls must be > 0"}
	}
	if opts.PageLimit < 0 {
		return Result{}, &source.ConfigurationError{Reason: "page limit must be >= 0"}
	}
	runID, err := e.deps.IDs.NewRunID()
	if err != nil {
		return Result{}, err
	}
	res := Result{RunID: runID, Mode: q.Mode(), Final: NewState()}
	logger := e.deps.Logger.With(zap.String("run_id", runID.String()), zap.Stringer("mode", q.Mode()))

	params := q.Params()
	if q.Mode() == source.ModeIncremental {
		latest, ok, err := e.deps.Store.MaxChangedAt(ctx)
		if err != nil {
			return res, fmt.Errorf("read newest change time: %w", err)
		}
		if ok {
			params = q.Since(latest)
			res.Since = latest
		}
	}
	if opts.PageLimit > 0 {
		params.Limit = opts.PageLimit
	}

	started := e.deps.Clock.Now()
	e.emit(runID, progress.Event{Stage: progress.StageCrawlStart})
	logger.Info("crawl started",
		zap.Int("page_limit", params.Limit),
		zap.Int("max_calls", opts.MaxCalls),
		zap.Time("since", res.Since),
	)

	state := NewState()
	for {
		state = state.Next(e.quota, opts.MaxCalls)
		if state.Phase == PhaseQuotaWait {
			logger.Debug("quota wait", zap.Int("call_index", state.CallCount), zap.Duration("wait", state.Wait))
			e.emit(runID, progress.Event{Stage: progress.StageQuotaWait, Dur: state.Wait, Offset: state.Offset})
			if err := e.deps.Sleeper.Sleep(ctx, state.Wait); err != nil {
				res.Final = state
				return res, e.fail(runID, logger, started, fmt.Errorf("quota wait: %w", err))
			}
			state = state.Resume()
		}
		if state.Terminal() {
			break
		}
		params.Offset = state.Offset
		n, resp, err := e.page(ctx, params, q.ChangedField())
		if err != nil {
			res.Final = state
			return res, e.fail(runID, logger, started, err)
		}
		res.Records += n
		state = state.Receive(resp.Count, resp.TotalCount)
		logger.Debug("page stored",
			zap.Int("offset", params.Offset),
			zap.Int("count", resp.Count),
			zap.Int("total_count", resp.TotalCount),
			zap.Int64("took", resp.Took),
		)
		e.emit(runID, progress.Event{
			Stage:  progress.StageCrawlPage,
			Offset: params.Offset,
			Count:  resp.Count,
			Total:  resp.TotalCount,
		})
	}

	res.Final = state
	elapsed := e.deps.Clock.Now().Sub(started)
	e.emit(runID, progress.Event{
		Stage: progress.StageCrawlDone,
		Count: res.Records,
		Dur:   nonNegative(elapsed),
		Note:  string(state.Stop),
	})
	logger.Info("crawl finished",
		zap.String("stop", string(state.Stop)),
		zap.Int("calls", state.CallCount),
		zap.Int("offset", state.Offset),
		zap.Int("records", res.Records),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// page fetches one page and stores it with its call record.
func (e *Engine) page(ctx context.Context, params source.Params, changedField string) (int, source.Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return 0, source.Response{}, fmt.Errorf("encode params: %w", err)
	}
	hash, err := e.deps.Hasher.Hash(body)
	if err != nil {
		return 0, source.Response{}, fmt.Errorf("hash params: %w", err)
	}
	issued := e.deps.Clock.Now()
	resp, err := e.deps.Fetcher.Fetch(ctx, params)
	if err != nil {
		return 0, source.Response{}, fmt.Errorf("fetch offset %d: %w", params.Offset, err)
	}
	records, err := RecordsFromResponse(resp, changedField, e.deps.Clock.Now(), hash)
	if err != nil {
		return 0, resp, err
	}
	call := storage.CallRecord{
		ParamsHash:  hash,
		Params:      body,
		IssuedAt:    issued,
		ResultCount: resp.Count,
		TotalCount:  resp.TotalCount,
	}
	if err := e.deps.Store.StorePage(ctx, records, call); err != nil {
		return 0, resp, fmt.Errorf("store page at offset %d: %w", params.Offset, err)
	}
	return len(records), resp, nil
}

func (e *Engine) fail(runID uuid.UUID, logger *zap.Logger, started time.Time, err error) error {
	logger.Error("crawl failed", zap.Error(err))
	e.emit(runID, progress.Event{
		Stage: progress.StageCrawlError,
		Dur:   nonNegative(e.deps.Clock.Now().Sub(started)),
		Note:  err.Error(),
	})
	return err
}

func (e *Engine) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = e.deps.Clock.Now()
	e.deps.Emitter.Emit(evt)
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
