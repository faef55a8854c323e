package coverage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/timegrid"
)

// Validation defaults. A full orbital ground-track cycle needs roughly a day.
const (
	DefaultWindow          = 24 * time.Hour
	DefaultCadence         = 30 * time.Second
	DefaultMaxAdjustRounds = 3
)

// Options shape one validation run. Zero fields fall back to defaults.
type Options struct {
	// Start anchors the validation window; zero means now.
	Start   time.Time
	Window  time.Duration
	Cadence time.Duration

	Criteria Criteria
	Tiers    []Tier

	// MaxAdjustRounds bounds the Converge feedback loop.
	MaxAdjustRounds int

	// Workers bounds the propagation fan-out; zero picks a sensible width.
	Workers int
}

func (o Options) normalized() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Cadence <= 0 {
		o.Cadence = DefaultCadence
	}
	if o.Criteria.VisibleFloor <= 0 {
		o.Criteria.VisibleFloor = DefaultCriteria.VisibleFloor
	}
	if o.Criteria.BandMin <= 0 {
		o.Criteria.BandMin = DefaultCriteria.BandMin
	}
	if o.Criteria.BandMax <= 0 {
		o.Criteria.BandMax = DefaultCriteria.BandMax
	}
	if o.Criteria.BelowTargetCap <= 0 {
		o.Criteria.BelowTargetCap = DefaultCriteria.BelowTargetCap
	}
	if o.Criteria.InBandFloor <= 0 {
		o.Criteria.InBandFloor = DefaultCriteria.InBandFloor
	}
	if len(o.Tiers) == 0 {
		o.Tiers = DefaultTiers
	}
	if o.MaxAdjustRounds <= 0 {
		o.MaxAdjustRounds = DefaultMaxAdjustRounds
	}
	return o
}

// Validate propagates every pool member across the validation window and
// judges the per-sample visible counts against the pass criteria. Members
// whose elements are missing from the catalog, or that fail propagation at
// every sample, are reported as missing and contribute zero visibility.
//
// Cancellation is honoured at sample boundaries through the batch
// propagation path.
func Validate(ctx context.Context, pool model.SelectionPool, prop *orbit.Propagator, cat *catalog.Catalog, opts Options) (CoverageReport, error) {
	opts = opts.normalized()
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}

	grid, err := timegrid.ForWindow(opts.Start, opts.Window, opts.Cadence)
	if err != nil {
		return CoverageReport{}, fmt.Errorf("coverage: %w", err)
	}

	sets := make([]model.OrbitalElementSet, 0, pool.Size())
	for _, m := range pool.Members {
		if set, ok := cat.Active(m.SatelliteID); ok {
			sets = append(sets, set)
		}
	}

	table, _, err := orbit.BatchPropagate(ctx, prop, sets, grid, opts.Workers)
	if err != nil {
		return CoverageReport{}, err
	}
	return ValidateTable(table, pool, opts), nil
}

// ValidateTable judges an already-propagated table. Carried-forward stale
// samples count as not visible: coverage claims are only made on fresh
// kinematics.
func ValidateTable(table *orbit.StateTable, pool model.SelectionPool, opts Options) CoverageReport {
	opts = opts.normalized()
	grid := table.Grid()

	report := CoverageReport{
		Constellation: pool.Constellation,
		Start:         grid.Start,
		Window:        grid.Window(),
		Cadence:       grid.Cadence,
		Samples:       grid.Count,
		Criteria:      opts.Criteria,
	}

	for _, m := range pool.Members {
		if !table.Has(m.SatelliteID) {
			report.MissingMembers = append(report.MissingMembers, m.SatelliteID)
		}
	}
	sort.Slice(report.MissingMembers, func(i, j int) bool {
		return report.MissingMembers[i] < report.MissingMembers[j]
	})

	if grid.Count == 0 {
		report.Reasons = append(report.Reasons, "no samples in window")
		return report
	}
	if pool.Size() == 0 {
		report.Reasons = append(report.Reasons, "empty pool")
		return report
	}

	counts := make([]int, grid.Count)
	tierCounts := make([][]int, len(opts.Tiers))
	for ti := range tierCounts {
		tierCounts[ti] = make([]int, grid.Count)
	}

	for _, m := range pool.Members {
		for i := 0; i < grid.Count; i++ {
			st, ok := table.Sample(m.SatelliteID, i)
			if !ok || st.Stale {
				continue
			}
			if st.Visible {
				counts[i]++
			}
			for ti, tier := range opts.Tiers {
				if st.ElevationDeg >= tier.MinElevationDeg {
					tierCounts[ti][i]++
				}
			}
		}
	}

	report.VisibleMin, report.VisibleMean, report.VisibleMax, report.VisibleStd = summarize(counts)

	below, inBand := 0, 0
	for _, n := range counts {
		c := float64(n)
		if c < opts.Criteria.BandMin {
			below++
		}
		if c >= opts.Criteria.BandMin && c <= opts.Criteria.BandMax {
			inBand++
		}
	}
	report.BelowTargetFraction = float64(below) / float64(grid.Count)
	report.InBandFraction = float64(inBand) / float64(grid.Count)

	for ti, tier := range opts.Tiers {
		tmin, tmean, tmax, _ := summarize(tierCounts[ti])
		report.Tiers = append(report.Tiers, TierStat{
			Tier: tier,
			Min:  tmin,
			Mean: tmean,
			Max:  tmax,
		})
	}

	report.Reasons = judge(report)
	report.Passed = len(report.Reasons) == 0
	return report
}

func judge(r CoverageReport) []string {
	var reasons []string
	c := r.Criteria
	if r.VisibleMin < c.VisibleFloor {
		reasons = append(reasons, fmt.Sprintf("minimum visible %d below floor %d", r.VisibleMin, c.VisibleFloor))
	}
	if r.VisibleMean < c.BandMin {
		reasons = append(reasons, fmt.Sprintf("mean visible %.2f below band [%g, %g]", r.VisibleMean, c.BandMin, c.BandMax))
	} else if r.VisibleMean > c.BandMax {
		reasons = append(reasons, fmt.Sprintf("mean visible %.2f above band [%g, %g]", r.VisibleMean, c.BandMin, c.BandMax))
	}
	if r.BelowTargetFraction >= c.BelowTargetCap {
		reasons = append(reasons, fmt.Sprintf("below-target fraction %.3f at or over cap %.3f", r.BelowTargetFraction, c.BelowTargetCap))
	}
	if r.InBandFraction <= c.InBandFloor {
		reasons = append(reasons, fmt.Sprintf("in-band fraction %.3f at or under floor %.3f", r.InBandFraction, c.InBandFloor))
	}
	return reasons
}

func summarize(counts []int) (min int, mean float64, max int, std float64) {
	if len(counts) == 0 {
		return 0, 0, 0, 0
	}
	min, max = counts[0], counts[0]
	sum := 0
	for _, n := range counts {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
		sum += n
	}
	mean = float64(sum) / float64(len(counts))

	var sq float64
	for _, n := range counts {
		d := float64(n) - mean
		sq += d * d
	}
	std = math.Sqrt(sq / float64(len(counts)))
	return min, mean, max, std
}
