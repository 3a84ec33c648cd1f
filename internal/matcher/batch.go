// Package matcher runs matching jobs end to end: engine call, report and
// optional persistence of the run.
package matcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crossref-matcher/internal/audit"
	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/report"
)

// BatchProcessor drives an engine and records what it did.
type BatchProcessor struct {
	engine  *match.Engine
	tracker *audit.Tracker
	logger  *zap.Logger
}

// Job describes one matching request. Either Sources/Targets (value mode) or
// SourceRecords/TargetRecords (identifier mode) are used.
type Job struct {
	Label     string
	Threshold float64

	Sources []any
	Targets []any

	SourceRecords []match.Record
	TargetRecords []match.Record

	// Save persists the run when the processor has a tracker.
	Save bool
}

// Outcome is the result of a job. Run is nil when nothing was persisted.
type Outcome struct {
	Run     *audit.Run
	Results []match.MatchResult
	Report  report.Report
}

// NewBatchProcessor creates a processor. tracker may be nil.
func NewBatchProcessor(engine *match.Engine, tracker *audit.Tracker, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = debug.L()
	}
	return &BatchProcessor{engine: engine, tracker: tracker, logger: logger}
}

// Engine returns the underlying engine.
func (bp *BatchProcessor) Engine() *match.Engine {
	return bp.engine
}

// Tracker returns the audit tracker, or nil.
func (bp *BatchProcessor) Tracker() *audit.Tracker {
	return bp.tracker
}

// ProcessValues matches job.Sources against job.Targets.
func (bp *BatchProcessor) ProcessValues(ctx context.Context, job Job) (*Outcome, error) {
	return bp.process(ctx, job, audit.ModeValues, func() ([]match.MatchResult, error) {
		return bp.engine.FindBestMatches(ctx, job.Sources, job.Targets, job.Threshold)
	})
}

// ProcessIdentifiers matches job.SourceRecords against job.TargetRecords by
// identifier.
func (bp *BatchProcessor) ProcessIdentifiers(ctx context.Context, job Job) (*Outcome, error) {
	return bp.process(ctx, job, audit.ModeIdentifiers, func() ([]match.MatchResult, error) {
		return bp.engine.MatchIdentifiers(ctx, job.SourceRecords, job.TargetRecords, job.Threshold)
	})
}

func (bp *BatchProcessor) process(ctx context.Context, job Job, mode string, run func() ([]match.MatchResult, error)) (*Outcome, error) {
	debugOn := bp.engine.Config().Debug
	debug.DebugHeader(debugOn)
	defer debug.DebugFooter(debugOn)
	defer debug.DebugTiming(debugOn, mode+" job")()

	before := bp.engine.Stats()
	start := time.Now()

	results, err := run()
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	out := &Outcome{
		Results: results,
		Report:  report.Summarize(results, elapsed, statsDelta(before, bp.engine.Stats())),
	}
	debug.DebugOutput(debugOn, "%s job %q: %d results in %s", mode, job.Label, len(results), elapsed)

	if job.Save && bp.tracker != nil {
		r := &audit.Run{
			Label:     job.Label,
			Mode:      mode,
			Threshold: job.Threshold,
			Config:    bp.engine.Config(),
			Report:    out.Report,
		}
		if err := bp.tracker.SaveRun(ctx, r, results); err != nil {
			return nil, fmt.Errorf("failed to save run: %w", err)
		}
		out.Run = r
	}

	bp.logger.Info("job finished",
		zap.String("mode", mode),
		zap.String("label", job.Label),
		zap.Int("results", out.Report.Total),
		zap.Int("matched", out.Report.Matched),
		zap.Int("needs_review", out.Report.NeedsReview),
		zap.Duration("took", elapsed))
	return out, nil
}

// statsDelta returns the counters accumulated between two snapshots. A cache
// cleared in between resets the baseline.
func statsDelta(before, after match.Stats) match.Stats {
	d := after
	if after.CacheHits < before.CacheHits || after.CacheMisses < before.CacheMisses {
		before.CacheHits, before.CacheMisses = 0, 0
	}
	d.Comparisons = after.Comparisons - before.Comparisons
	d.CacheHits = after.CacheHits - before.CacheHits
	d.CacheMisses = after.CacheMisses - before.CacheMisses
	d.CacheHitRate = 0
	if lookups := d.CacheHits + d.CacheMisses; lookups > 0 {
		d.CacheHitRate = float64(d.CacheHits) / float64(lookups)
	}
	return d
}
