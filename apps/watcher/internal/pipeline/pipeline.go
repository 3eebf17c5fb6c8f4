// Package pipeline runs one checkpointed scan of the chain: load the registry
// and cursor, walk bounded block ranges through fetch, normalize, evaluate,
// persist and commit, then dispatch the alerts that were found.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"transferwatch/apps/watcher/internal/cursor"
	"transferwatch/apps/watcher/internal/metrics"
	"transferwatch/apps/watcher/internal/model"
	"transferwatch/apps/watcher/internal/normalizer"
	"transferwatch/apps/watcher/internal/notify"
	"transferwatch/apps/watcher/internal/persistence"
	"transferwatch/apps/watcher/internal/registry"
	"transferwatch/apps/watcher/internal/scheduler"
	"transferwatch/apps/watcher/internal/source"
	"transferwatch/apps/watcher/internal/threshold"
)

type State string

const (
	StateIdle         State = "idle"
	StateLoadRegistry State = "load_registry"
	StateLoadCursor   State = "load_cursor"
	StateHead         State = "head"
	StateScan         State = "scan"
	StateDispatch     State = "dispatch"
)

const (
	OutcomeCompleted = "completed"
	OutcomeUpToDate  = "up_to_date"
	OutcomeSkipped   = "skipped"
	// OutcomeDegraded is a finished scan that ran without the tracking registry.
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

type Options struct {
	ChainID        string
	MaxBlockSpan   uint64
	FinalityOffset uint64
}

type Components struct {
	Registry   registry.Source
	Cursor     *cursor.Manager
	Source     source.Source
	Normalizer *normalizer.Normalizer
	Evaluator  *threshold.Evaluator
	Writer     *persistence.Writer
	Dispatcher *notify.Dispatcher
}

// Report describes one Run.
type Report struct {
	ChainID         string
	Outcome         string
	StartBlock      uint64
	TargetBlock     uint64
	LastCommitted   uint64
	RangesPlanned   uint64
	RangesCommitted int
	Events          int
	Records         int
	Candidates      []model.AlertCandidate
	RegistryErr     error
	Dispatch        notify.Result
	Duration        time.Duration
}

type Pipeline struct {
	opts   Options
	c      Components
	logger *zap.Logger
	state  atomic.Value
}

func New(opts Options, c Components, logger *zap.Logger) *Pipeline {
	p := &Pipeline{opts: opts, c: c, logger: logger.With(zap.String("chain_id", opts.ChainID))}
	p.state.Store(StateIdle)
	return p
}

// State is the step the pipeline is currently in.
func (p *Pipeline) State() State {
	return p.state.Load().(State)
}

func (p *Pipeline) enter(s State) {
	p.state.Store(s)
}

// Run performs one scan. The checkpoint only ever moves to the end of a range
// whose records are all persisted. A fetch or persistence failure stops the
// scan, but alerts from the ranges completed before it are still dispatched.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	report := Report{ChainID: p.opts.ChainID}
	defer func() {
		p.enter(StateIdle)
		report.Duration = time.Since(started)
		metrics.RunsTotal.WithLabelValues(p.opts.ChainID, report.Outcome).Inc()
		metrics.RunDuration.WithLabelValues(p.opts.ChainID).Observe(report.Duration.Seconds())
	}()

	p.enter(StateLoadRegistry)
	// a registry failure degrades to an empty tracked set and the scan goes on
	tracked, regErr := registry.Load(ctx, p.c.Registry, p.logger)
	report.RegistryErr = regErr

	p.enter(StateLoadCursor)
	last, err := p.c.Cursor.Load(ctx, p.opts.ChainID)
	if err != nil {
		report.Outcome = OutcomeFailed
		return report, err
	}
	report.LastCommitted = last

	p.enter(StateHead)
	head, err := p.c.Source.Head(ctx)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(p.opts.ChainID).Inc()
		report.Outcome = OutcomeFailed
		return report, fmt.Errorf("query chain head: %w", err)
	}
	target := uint64(0)
	if head > p.opts.FinalityOffset {
		target = head - p.opts.FinalityOffset
	}
	report.StartBlock = last + 1
	report.TargetBlock = target

	if last >= target {
		p.logger.Debug("Checkpoint is at head", zap.Uint64("checkpoint", last), zap.Uint64("head", target))
		report.Outcome = OutcomeUpToDate
		return report, nil
	}

	report.RangesPlanned = scheduler.Count(last+1, target, p.opts.MaxBlockSpan)
	p.logger.Info("Starting scan",
		zap.Uint64("start", last+1),
		zap.Uint64("end", target),
		zap.Uint64("ranges", report.RangesPlanned),
		zap.Int("wallets", len(tracked.Wallets)))

	p.enter(StateScan)
	filter := source.NewFilter(tracked)
	var scanErr error
	var commitErrs []error
	scanned := model.BlockRange{Start: last + 1, End: last}

	for r := range scheduler.Ranges(last+1, target, p.opts.MaxBlockSpan) {
		if err := ctx.Err(); err != nil {
			scanErr = err
			break
		}

		candidates, err := p.scanRange(ctx, r, filter, tracked, &report)
		if err != nil {
			var commitErr *model.CommitError
			if !errors.As(err, &commitErr) {
				scanErr = err
				break
			}
			commitErrs = append(commitErrs, err)
		} else {
			report.RangesCommitted++
			report.LastCommitted = r.End
			metrics.RangesScanned.WithLabelValues(p.opts.ChainID).Inc()
			metrics.CheckpointBlock.WithLabelValues(p.opts.ChainID).Set(float64(r.End))
		}
		scanned.End = r.End
		report.Candidates = append(report.Candidates, candidates...)
	}

	if len(report.Candidates) > 0 {
		p.enter(StateDispatch)
		metrics.AlertCandidates.WithLabelValues(p.opts.ChainID).Add(float64(len(report.Candidates)))
		report.Dispatch = p.c.Dispatcher.Dispatch(ctx, report.Candidates, notify.Summary{ChainID: p.opts.ChainID, Range: scanned})
	}

	runErr := errors.Join(append([]error{scanErr}, commitErrs...)...)
	if runErr != nil {
		report.Outcome = OutcomeFailed
		p.logger.Error("Scan stopped",
			zap.Uint64("checkpoint", report.LastCommitted),
			zap.Int("ranges_committed", report.RangesCommitted),
			zap.Error(runErr))
		return report, runErr
	}

	if regErr != nil {
		report.Outcome = OutcomeDegraded
		p.logger.Warn("Scan complete without tracking registry",
			zap.Uint64("checkpoint", report.LastCommitted),
			zap.Error(regErr))
		return report, nil
	}

	report.Outcome = OutcomeCompleted
	p.logger.Info("Scan complete",
		zap.Uint64("checkpoint", report.LastCommitted),
		zap.Int("ranges", report.RangesCommitted),
		zap.Int("records", report.Records),
		zap.Int("alerts", len(report.Candidates)))
	return report, nil
}

// scanRange is Fetch -> Normalize -> Evaluate -> Persist -> Commit for one
// range. Candidates are returned once the range's records are persisted, even
// if the commit itself fails.
func (p *Pipeline) scanRange(ctx context.Context, r model.BlockRange, filter source.Filter, tracked model.TrackedSet, report *Report) ([]model.AlertCandidate, error) {
	p.logger.Info("Scanning block range for events", zap.Uint64("start", r.Start), zap.Uint64("end", r.End), zap.Uint64("count", r.Len()))

	events, err := p.c.Source.Fetch(ctx, r, filter)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(p.opts.ChainID).Inc()
		return nil, &model.FetchError{Range: r, Err: err}
	}
	report.Events += len(events)
	metrics.EventsFetched.WithLabelValues(p.opts.ChainID).Add(float64(len(events)))

	records, stats := p.c.Normalizer.NormalizeAll(events, tracked)
	p.countDropped(stats)

	candidates := p.c.Evaluator.EvaluateAll(records, tracked)

	outcome, err := p.c.Writer.StoreAll(ctx, r, records)
	if err != nil {
		metrics.ChunkFailures.WithLabelValues(p.opts.ChainID).Add(float64(outcome.FailedChunks))
		return nil, err
	}
	report.Records += len(records)
	metrics.RecordsPersisted.WithLabelValues(p.opts.ChainID).Add(float64(len(records)))

	if len(records) > 0 {
		p.logger.Info("Stored transfers",
			zap.String("range", r.String()),
			zap.Int("records", len(records)),
			zap.Int("alerts", len(candidates)))
	}

	if err := p.c.Cursor.Commit(ctx, p.opts.ChainID, r.End); err != nil {
		return candidates, err
	}
	return candidates, nil
}

func (p *Pipeline) countDropped(stats normalizer.Stats) {
	dropped := metrics.EventsDropped
	if stats.NotTracked > 0 {
		dropped.WithLabelValues(p.opts.ChainID, "not_tracked").Add(float64(stats.NotTracked))
	}
	if stats.Malformed > 0 {
		dropped.WithLabelValues(p.opts.ChainID, "malformed").Add(float64(stats.Malformed))
	}
	if stats.Duplicates > 0 {
		dropped.WithLabelValues(p.opts.ChainID, "duplicate").Add(float64(stats.Duplicates))
	}
}
