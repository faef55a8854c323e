package coverage

import (
	"context"
	"fmt"
	"math"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/selection"
)

// Adjustment factors. Relaxing admits more candidates per plane and denser
// rise phasing; tightening does the opposite.
const (
	relaxIntervalFactor   = 0.8
	relaxTargetFactor     = 1.25
	tightenIntervalFactor = 1.2
	tightenTargetFactor   = 0.85
)

// ConvergenceError reports an adjustment loop that exhausted its round budget
// without producing a passing report. The caller still receives the last pool
// and report alongside it.
type ConvergenceError struct {
	Rounds     int
	LastReport CoverageReport
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("coverage did not converge after %d adjustment rounds (last: min %d, mean %.2f, reasons %v)",
		e.Rounds, e.LastReport.VisibleMin, e.LastReport.VisibleMean, e.LastReport.Reasons)
}

// Adjust derives new selector options from a failing report. It is a pure
// function: a mean below the band relaxes the spacing constraints and grows
// the target, a mean above tightens and shrinks, and an in-band mean leaves
// the options untouched. Target growth is capped at MaxTarget, shrinkage
// floored at MinTarget.
func Adjust(opts selection.SelectorOptions, report CoverageReport) selection.SelectorOptions {
	opts = opts.Normalized()

	switch {
	case report.VisibleMean < report.Criteria.BandMin:
		opts.MinPlaneIntervalDeg *= relaxIntervalFactor
		opts.MinRiseIntervalS *= relaxIntervalFactor
		grown := int(math.Ceil(float64(opts.TargetCount) * relaxTargetFactor))
		if grown > opts.MaxTarget {
			grown = opts.MaxTarget
		}
		opts.TargetCount = grown
	case report.VisibleMean > report.Criteria.BandMax:
		opts.MinPlaneIntervalDeg *= tightenIntervalFactor
		opts.MinRiseIntervalS *= tightenIntervalFactor
		shrunk := int(math.Floor(float64(opts.TargetCount) * tightenTargetFactor))
		if shrunk < opts.MinTarget {
			shrunk = opts.MinTarget
		}
		opts.TargetCount = shrunk
	}
	return opts
}

// Converge runs the select, validate, adjust loop until a report passes or
// the round budget is spent. Every round re-selects from the full candidate
// list; pools are replaced wholesale, never patched, so phase constraints
// cannot be violated by incremental edits.
//
// On exhaustion the last pool and report are returned together with a
// *ConvergenceError so the caller can decide whether to run degraded.
func Converge(ctx context.Context, candidates []selection.SelectionCandidate, selOpts selection.SelectorOptions, prop *orbit.Propagator, cat *catalog.Catalog, opts Options) (model.SelectionPool, CoverageReport, error) {
	opts = opts.normalized()
	selOpts = selOpts.Normalized()

	pool, report, err := selectAndValidate(ctx, candidates, selOpts, prop, cat, opts, 0)
	if err != nil {
		return pool, report, err
	}
	if report.Passed {
		return pool, report, nil
	}

	for round := 1; round <= opts.MaxAdjustRounds; round++ {
		selOpts = Adjust(selOpts, report)
		pool, report, err = selectAndValidate(ctx, candidates, selOpts, prop, cat, opts, round)
		if err != nil {
			return pool, report, err
		}
		if report.Passed {
			return pool, report, nil
		}
	}
	return pool, report, &ConvergenceError{Rounds: opts.MaxAdjustRounds, LastReport: report}
}

func selectAndValidate(ctx context.Context, candidates []selection.SelectionCandidate, selOpts selection.SelectorOptions, prop *orbit.Propagator, cat *catalog.Catalog, opts Options, round int) (model.SelectionPool, CoverageReport, error) {
	pool, err := selection.Select(candidates, selOpts)
	if err != nil {
		return model.SelectionPool{}, CoverageReport{}, fmt.Errorf("coverage round %d: %w", round, err)
	}
	pool.Round = round

	report, err := Validate(ctx, pool, prop, cat, opts)
	if err != nil {
		return pool, report, fmt.Errorf("coverage round %d: %w", round, err)
	}
	return pool, report, nil
}
