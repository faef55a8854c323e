// Package pipeline chains catalog snapshot, batch propagation, candidate
// scoring, pool selection with coverage convergence, and handover event
// detection into a single run producing one self-contained result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/coverage"
	"github.com/signalsfoundry/constellation-handover/detection"
	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/internal/observability"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/selection"
	"github.com/signalsfoundry/constellation-handover/timegrid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/signalsfoundry/constellation-handover/pipeline"

// defaultScoringWindow bounds the scoring pass when no orbital period can be
// derived from the snapshot.
const defaultScoringWindow = 2 * time.Hour

// Options configure a Pipeline.
type Options struct {
	Catalog    *catalog.Catalog
	Propagator *orbit.Propagator
	Logger     logging.Logger
	Metrics    *observability.PipelineCollector

	// Workers bounds the propagation fan-out. Zero picks a sensible width.
	Workers int
}

// Pipeline runs the selection-and-detection flow end to end against a shared
// element catalog. Safe for concurrent use.
type Pipeline struct {
	cat     *catalog.Catalog
	prop    *orbit.Propagator
	log     logging.Logger
	metrics *observability.PipelineCollector
	tracer  trace.Tracer
	workers int
}

// New builds a Pipeline. Catalog and Propagator are required; a nil logger
// drops logs and nil metrics skip instrumentation.
func New(opts Options) (*Pipeline, error) {
	if opts.Catalog == nil {
		return nil, errors.New("pipeline: catalog is required")
	}
	if opts.Propagator == nil {
		return nil, errors.New("pipeline: propagator is required")
	}
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	return &Pipeline{
		cat:     opts.Catalog,
		prop:    opts.Propagator,
		log:     log,
		metrics: opts.Metrics,
		tracer:  otel.Tracer(tracerName),
		workers: opts.Workers,
	}, nil
}

// RunRequest parameterizes one pipeline run. Zero fields fall back to
// defaults.
type RunRequest struct {
	// Constellations lists the tags to process. Empty means every
	// constellation present in the catalog.
	Constellations []string

	// Start anchors the run window; zero means now.
	Start time.Time

	// Window and Cadence shape the validation and detection grid.
	Window  time.Duration
	Cadence time.Duration

	// ScoringWindow bounds the scoring pass. Zero derives one orbital
	// period from each constellation's snapshot.
	ScoringWindow time.Duration

	// ScoringCadence steps the scoring grid. Zero reuses Cadence.
	ScoringCadence time.Duration

	// MaxElementAge drops elements older than this at Start before any
	// propagation happens.
	MaxElementAge time.Duration

	Selector  selection.SelectorOptions
	Coverage  coverage.Options
	Detection detection.Config

	// EventKinds to detect. Empty means A4, A5 and D2.
	EventKinds []model.EventKind

	// ServingID forces the serving satellite; zero auto-picks per pool.
	ServingID uint32

	TimelineBucket time.Duration
}

func (r RunRequest) normalized() RunRequest {
	if r.Start.IsZero() {
		r.Start = time.Now().UTC()
	} else {
		r.Start = r.Start.UTC()
	}
	if r.Window <= 0 {
		r.Window = coverage.DefaultWindow
	}
	if r.Cadence <= 0 {
		r.Cadence = coverage.DefaultCadence
	}
	if r.ScoringCadence <= 0 {
		r.ScoringCadence = r.Cadence
	}
	if r.MaxElementAge <= 0 {
		r.MaxElementAge = orbit.DefaultMaxElementAge
	}
	if len(r.EventKinds) == 0 {
		r.EventKinds = []model.EventKind{model.EventA4, model.EventA5, model.EventD2}
	}
	if r.Detection == (detection.Config{}) {
		r.Detection = detection.DefaultConfig()
	}
	if r.TimelineBucket <= 0 {
		r.TimelineBucket = detection.DefaultTimelineBucket
	}
	if r.Coverage.Start.IsZero() {
		r.Coverage.Start = r.Start
	}
	if r.Coverage.Window <= 0 {
		r.Coverage.Window = r.Window
	}
	if r.Coverage.Cadence <= 0 {
		r.Coverage.Cadence = r.Cadence
	}
	return r
}

// RunStats aggregates counters across every phase of one run.
type RunStats struct {
	Started time.Time
	Elapsed time.Duration

	// Phases maps phase name to accumulated duration.
	Phases map[string]time.Duration

	Elements     int
	StaleSkipped int

	Propagated          int
	PropagationFailures int

	Scored        int
	ScoreFailures int

	Pairs          int
	PairFailures   int
	MissingSamples int
}

// RunResult is the complete outcome of one run. Per-constellation outputs are
// keyed by constellation tag. The pipeline never persists it.
type RunResult struct {
	RunID string

	Pools   map[string]model.SelectionPool
	Reports map[string]coverage.CoverageReport

	// Table holds the full-window series for every selected member.
	Table *orbit.StateTable

	Events   []model.HandoverEventRecord
	Timeline []detection.TimelineBucket

	Stats    RunStats
	Warnings []string
}

// Run executes the full pipeline. Partial failures inside a phase surface as
// Warnings and the run continues; the returned error is reserved for
// cancellation, an unusable catalog, and runs where no constellation
// produced a pool.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	req = req.normalized()
	if req.Coverage.Workers == 0 {
		req.Coverage.Workers = p.workers
	}

	ctx, runID := logging.EnsureRunID(ctx)
	log := p.log.With(logging.String("run_id", runID))

	ctx, span := p.tracer.Start(ctx, "pipeline/run",
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	res := &RunResult{
		RunID:   runID,
		Pools:   map[string]model.SelectionPool{},
		Reports: map[string]coverage.CoverageReport{},
		Stats: RunStats{
			Started: time.Now().UTC(),
			Phases:  map[string]time.Duration{},
		},
	}

	snapshot, err := p.snapshot(ctx, req, res, log)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	tags := make([]string, 0, len(snapshot))
	for tag := range snapshot {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		if err := p.selectConstellation(ctx, req, res, log, tag, snapshot[tag]); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	if len(res.Pools) == 0 {
		err := errors.New("pipeline: no constellation produced a pool")
		span.RecordError(err)
		return nil, err
	}

	if err := p.propagateWindow(ctx, req, res); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := p.detect(ctx, req, res, log); err != nil {
		span.RecordError(err)
		return nil, err
	}
	p.assemble(ctx, req, res)

	res.Stats.Elapsed = time.Since(res.Stats.Started)
	log.Info(ctx, "pipeline run complete",
		logging.Int("pools", len(res.Pools)),
		logging.Int("events", len(res.Events)),
		logging.Int("warnings", len(res.Warnings)),
		logging.Duration("elapsed", res.Stats.Elapsed),
	)
	return res, nil
}

// startPhase opens a phase span; the returned done func records the duration
// into stats and metrics and closes the span.
func (p *Pipeline) startPhase(ctx context.Context, stats *RunStats, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := p.tracer.Start(ctx, "pipeline/"+name, trace.WithAttributes(attrs...))
	begin := time.Now()
	return ctx, func(err error) {
		d := time.Since(begin)
		stats.Phases[name] += d
		p.metrics.ObservePhase(name, d)
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// snapshot collects the per-constellation element sets the run works from,
// dropping elements older than MaxElementAge at the run start.
func (p *Pipeline) snapshot(ctx context.Context, req RunRequest, res *RunResult, log logging.Logger) (map[string][]model.OrbitalElementSet, error) {
	ctx, done := p.startPhase(ctx, &res.Stats, "snapshot")

	var sets []model.OrbitalElementSet
	if len(req.Constellations) == 0 {
		sets = p.cat.All()
	} else {
		for _, tag := range req.Constellations {
			sets = append(sets, p.cat.Constellation(tag)...)
		}
	}

	snapshot := make(map[string][]model.OrbitalElementSet)
	for _, set := range sets {
		if age := req.Start.Sub(set.Epoch); age > req.MaxElementAge {
			res.Stats.StaleSkipped++
			log.Debug(ctx, "skipping stale elements",
				logging.Int("satellite", int(set.SatelliteID)),
				logging.Duration("age", age),
			)
			continue
		}
		snapshot[set.Constellation] = append(snapshot[set.Constellation], set)
		res.Stats.Elements++
	}

	if res.Stats.StaleSkipped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"snapshot: skipped %d element sets older than %s",
			res.Stats.StaleSkipped, req.MaxElementAge))
	}
	if res.Stats.Elements == 0 {
		err := errors.New("pipeline: catalog holds no usable elements")
		done(err)
		return nil, err
	}
	done(nil)
	return snapshot, nil
}

// selectConstellation takes one constellation from snapshot to converged
// pool: scoring-window propagation, scoring, then select/validate/adjust. A
// constellation that cannot produce a pool is skipped with a warning.
func (p *Pipeline) selectConstellation(ctx context.Context, req RunRequest, res *RunResult, log logging.Logger, tag string, sets []model.OrbitalElementSet) error {
	attrs := attribute.String("constellation", tag)

	phaseCtx, done := p.startPhase(ctx, &res.Stats, "propagate_scoring", attrs)
	grid, err := timegrid.ForWindow(req.Start, p.scoringWindow(req, sets), req.ScoringCadence)
	if err != nil {
		done(err)
		return fmt.Errorf("pipeline: scoring grid for %s: %w", tag, err)
	}
	table, batch, err := orbit.BatchPropagate(phaseCtx, p.prop, sets, grid, p.workers)
	p.recordBatch(res, batch)
	if err != nil {
		done(err)
		return err
	}
	done(nil)

	phaseCtx, done = p.startPhase(ctx, &res.Stats, "score", attrs)
	candidates, scoreStats, err := selection.ScoreAll(phaseCtx, table, sets, selection.ScoreOptions{
		At:            req.Start,
		Window:        grid.Window(),
		Cadence:       req.ScoringCadence,
		MaxElementAge: req.MaxElementAge,
		Thresholds:    thresholdsFrom(req.Detection),
	})
	res.Stats.Scored += scoreStats.Scored
	res.Stats.ScoreFailures += len(scoreStats.Failed)
	if err != nil {
		done(err)
		return err
	}
	if len(scoreStats.Failed) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"%s: %d of %d candidates failed scoring",
			tag, len(scoreStats.Failed), scoreStats.Candidates))
	}
	done(nil)

	phaseCtx, done = p.startPhase(ctx, &res.Stats, "converge", attrs)
	pool, report, err := coverage.Converge(phaseCtx, candidates, req.Selector, p.prop, p.cat, req.Coverage)
	if err != nil {
		var convErr *coverage.ConvergenceError
		switch {
		case phaseCtx.Err() != nil:
			done(err)
			return err
		case errors.As(err, &convErr):
			// The last pool is still the best available; keep it.
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", tag, convErr))
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: selection failed: %v", tag, err))
			log.Warn(ctx, "constellation skipped",
				logging.String("constellation", tag),
				logging.String("error", err.Error()),
			)
			done(err)
			return nil
		}
	}
	res.Pools[tag] = pool
	res.Reports[tag] = report
	p.metrics.SetPool(tag, pool.Size())
	p.metrics.SetVisible(tag, report.VisibleMin, report.VisibleMean)
	log.Info(ctx, "pool selected",
		logging.String("constellation", tag),
		logging.Int("members", pool.Size()),
		logging.Int("round", pool.Round),
		logging.Any("passed", report.Passed),
	)
	done(nil)
	return nil
}

// propagateWindow recomputes the full-window series for the union of all
// selected members, the table detection runs against.
func (p *Pipeline) propagateWindow(ctx context.Context, req RunRequest, res *RunResult) error {
	ctx, done := p.startPhase(ctx, &res.Stats, "propagate_window")

	var sets []model.OrbitalElementSet
	seen := map[uint32]bool{}
	for _, tag := range sortedTags(res.Pools) {
		for _, member := range res.Pools[tag].Members {
			if seen[member.SatelliteID] {
				continue
			}
			seen[member.SatelliteID] = true
			if set, ok := p.cat.Active(member.SatelliteID); ok {
				sets = append(sets, set)
			}
		}
	}

	grid, err := timegrid.ForWindow(req.Start, req.Window, req.Cadence)
	if err != nil {
		done(err)
		return fmt.Errorf("pipeline: window grid: %w", err)
	}
	table, batch, err := orbit.BatchPropagate(ctx, p.prop, sets, grid, p.workers)
	p.recordBatch(res, batch)
	if err != nil {
		done(err)
		return err
	}
	if len(batch.Excluded) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"window propagation: %d pool members produced no samples", len(batch.Excluded)))
	}
	res.Table = table
	done(nil)
	return nil
}

// detect pairs every pool against its serving satellite and runs all pairs
// through the detector in one pass, so the merged record timeline is ordered
// once.
func (p *Pipeline) detect(ctx context.Context, req RunRequest, res *RunResult, log logging.Logger) error {
	ctx, done := p.startPhase(ctx, &res.Stats, "detect")

	var pairs []detection.Pair
	for _, tag := range sortedTags(res.Pools) {
		poolPairs, serving := detection.BuildPairs(res.Table, res.Pools[tag], req.EventKinds, req.ServingID)
		if len(poolPairs) == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no detectable pairs", tag))
			continue
		}
		log.Debug(ctx, "detection pairs built",
			logging.String("constellation", tag),
			logging.Int("serving", int(serving)),
			logging.Int("pairs", len(poolPairs)),
		)
		pairs = append(pairs, poolPairs...)
	}

	records, stats, err := detection.New(req.Detection, log).Detect(ctx, res.Table, pairs)
	res.Stats.Pairs = stats.Pairs
	res.Stats.PairFailures = len(stats.Failures)
	res.Stats.MissingSamples = stats.MissingSamples
	p.metrics.AddMissingSamples(stats.MissingSamples)
	if err != nil {
		done(err)
		return err
	}
	if len(stats.Failures) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"detection: %d of %d pairs failed", len(stats.Failures), stats.Pairs))
	}
	res.Events = records
	done(nil)
	return nil
}

// assemble derives the bucketed timeline and event metrics from the merged
// records.
func (p *Pipeline) assemble(ctx context.Context, req RunRequest, res *RunResult) {
	_, done := p.startPhase(ctx, &res.Stats, "assemble")
	res.Timeline = detection.Summarize(res.Events, req.TimelineBucket)
	counts := map[model.EventKind]int{}
	for _, rec := range res.Events {
		counts[rec.Kind]++
	}
	for kind, n := range counts {
		p.metrics.AddEvents(kind.String(), n)
	}
	done(nil)
}

func (p *Pipeline) recordBatch(res *RunResult, batch orbit.BatchStats) {
	res.Stats.Propagated += batch.Included
	res.Stats.PropagationFailures += len(batch.Failures)
	p.metrics.AddPropagated(batch.Included)
	for _, err := range batch.Failures {
		p.metrics.AddPropagationFailures(failureReason(err), 1)
	}
}

// scoringWindow picks the scoring pass length: the longest orbital period in
// the snapshot, so every candidate can complete at least one pass.
func (p *Pipeline) scoringWindow(req RunRequest, sets []model.OrbitalElementSet) time.Duration {
	if req.ScoringWindow > 0 {
		return req.ScoringWindow
	}
	longest := time.Duration(0)
	for _, set := range sets {
		if period := set.OrbitalPeriod(); period > longest {
			longest = period
		}
	}
	if longest <= 0 {
		return defaultScoringWindow
	}
	return longest
}

// thresholdsFrom aligns the scorer's event-potential flags with the detector
// configuration in effect for the run.
func thresholdsFrom(cfg detection.Config) selection.EventThresholds {
	return selection.EventThresholds{
		A4ThresholdDBm:  cfg.A4.ThresholdDBm,
		A4HysteresisDB:  cfg.A4.HysteresisDB,
		A5Threshold1DBm: cfg.A5.Threshold1DBm,
		A5HysteresisDB:  cfg.A5.HysteresisDB,
		D2Threshold1M:   cfg.D2.Threshold1M,
		D2Threshold2M:   cfg.D2.Threshold2M,
		D2HysteresisM:   cfg.D2.HysteresisM,
	}
}

// failureReason maps a propagation error onto a bounded metric label.
func failureReason(err error) string {
	var stale *orbit.StaleElementsError
	if errors.As(err, &stale) {
		return "stale_elements"
	}
	var prop *orbit.PropagationError
	if errors.As(err, &prop) {
		return "propagation"
	}
	return "other"
}

func sortedTags(pools map[string]model.SelectionPool) []string {
	tags := make([]string, 0, len(pools))
	for tag := range pools {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
