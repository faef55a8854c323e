package selection

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
)

// Composite score weights. They sum to 1.
const (
	WeightPeakElevation = 0.30
	WeightDuration      = 0.25
	WeightPassFrequency = 0.20
	WeightSignal        = 0.15
	WeightFreshness     = 0.10
)

// Signal-quality normalization band for the mean visible RSRP, in dBm.
const (
	signalFloorDBm = -140.0
	signalCeilDBm  = -80.0
)

// eventMarginDB widens the nominal thresholds when flagging event potential:
// a candidate within this margin of a band can plausibly cross it during the
// full window.
const eventMarginDB = 10.0

const maxScoreWorkers = 16

// EventThresholds carries the nominal per-kind thresholds the scorer flags
// event potential against. These mirror the detector defaults.
type EventThresholds struct {
	A4ThresholdDBm float64
	A4HysteresisDB float64

	A5Threshold1DBm float64
	A5HysteresisDB  float64

	D2Threshold1M float64
	D2Threshold2M float64
	D2HysteresisM float64
}

// DefaultEventThresholds returns the nominal thresholds used when none are
// configured.
func DefaultEventThresholds() EventThresholds {
	return EventThresholds{
		A4ThresholdDBm:  -106,
		A4HysteresisDB:  2,
		A5Threshold1DBm: -106,
		A5HysteresisDB:  2,
		D2Threshold1M:   1_500_000,
		D2Threshold2M:   1_200_000,
		D2HysteresisM:   50_000,
	}
}

// EventPotential flags which event kinds a candidate could plausibly trigger
// under the nominal thresholds.
type EventPotential struct {
	// A4: the peak RSRP comes close enough to the A4 band to cross it.
	A4 bool
	// A5Serving: some visible RSRP is low enough to cross into the A5
	// serving-cell band.
	A5Serving bool
	// D2: the reference distance range spans both D2 thresholds.
	D2 bool
}

// Any reports whether at least one kind is flagged.
func (p EventPotential) Any() bool { return p.A4 || p.A5Serving || p.D2 }

// ScoreTerms are the normalized [0,1] components of the composite score.
type ScoreTerms struct {
	PeakElevation float64
	Duration      float64
	PassFrequency float64
	Signal        float64
	Freshness     float64
}

// SelectionCandidate is one scored satellite: its plane bucket, composite
// score, per-term breakdown, event potential, and the next time it rises
// above the visibility minimum (zero when it never rises in the window).
// Candidates are recomputed per selection run, never mutated.
type SelectionCandidate struct {
	Elements  model.OrbitalElementSet
	PlaneKey  string
	Score     float64
	Terms     ScoreTerms
	Potential EventPotential
	NextRise  time.Time
}

// ScoreOptions parameterizes scoring for one constellation.
type ScoreOptions struct {
	// At is the scoring instant for the freshness term. Zero means the
	// first sample timestamp.
	At time.Time

	// Window and Cadence describe the series lattice. Zero values are
	// derived from the series timestamps.
	Window  time.Duration
	Cadence time.Duration

	// OrbitalPeriod sets the expected pass period. Zero falls back to the
	// element set's mean motion.
	OrbitalPeriod time.Duration

	// MaxElementAge bounds the freshness term. Zero means the propagation
	// default.
	MaxElementAge time.Duration

	Thresholds EventThresholds
}

func (o ScoreOptions) withDefaults(set model.OrbitalElementSet, series []model.PropagatedState) ScoreOptions {
	if len(series) > 0 {
		if o.At.IsZero() {
			o.At = series[0].At
		}
		if o.Window <= 0 {
			o.Window = series[len(series)-1].At.Sub(series[0].At)
		}
		if o.Cadence <= 0 && len(series) > 1 {
			o.Cadence = series[1].At.Sub(series[0].At)
		}
	}
	if o.Cadence <= 0 {
		o.Cadence = 30 * time.Second
	}
	if o.Window <= 0 {
		o.Window = o.Cadence
	}
	if o.OrbitalPeriod <= 0 {
		o.OrbitalPeriod = set.OrbitalPeriod()
	}
	if o.OrbitalPeriod <= 0 {
		o.OrbitalPeriod = o.Window
	}
	if o.MaxElementAge <= 0 {
		o.MaxElementAge = orbit.DefaultMaxElementAge
	}
	if o.Thresholds == (EventThresholds{}) {
		o.Thresholds = DefaultEventThresholds()
	}
	return o
}

// Score rates one satellite from its propagated series. Carried-forward
// stale samples are ignored; a series with no usable samples fails with
// *InsufficientSamplesError. Pure function of its inputs.
func Score(set model.OrbitalElementSet, series []model.PropagatedState, opts ScoreOptions) (SelectionCandidate, error) {
	opts = opts.withDefaults(set, series)

	usable := series[:0:0]
	for _, st := range series {
		if !st.Stale {
			usable = append(usable, st)
		}
	}
	if len(usable) == 0 {
		want := int(opts.Window/opts.Cadence) + 1
		return SelectionCandidate{}, &InsufficientSamplesError{
			SatelliteID: set.SatelliteID,
			Want:        want,
			Got:         0,
		}
	}

	var (
		peakEl       = -90.0
		visibleCount int
		passes       int
		nextRise     time.Time

		sumRSRP    float64
		rsrpCount  int
		peakRSRP   = math.Inf(-1)
		lowRSRP    = math.Inf(1)
		minDist    = math.Inf(1)
		maxDist    = math.Inf(-1)
		prevVisible bool
	)

	for i, st := range usable {
		if st.ElevationDeg > peakEl {
			peakEl = st.ElevationDeg
		}
		if st.Visible {
			visibleCount++
			if i == 0 || !prevVisible {
				passes++
				if i > 0 && nextRise.IsZero() {
					nextRise = st.At
				}
			}
			if !math.IsInf(st.RSRPDBm, 0) && !math.IsNaN(st.RSRPDBm) {
				sumRSRP += st.RSRPDBm
				rsrpCount++
				if st.RSRPDBm > peakRSRP {
					peakRSRP = st.RSRPDBm
				}
				if st.RSRPDBm < lowRSRP {
					lowRSRP = st.RSRPDBm
				}
			}
			if st.MRLDistanceM < minDist {
				minDist = st.MRLDistanceM
			}
			if st.MRLDistanceM > maxDist {
				maxDist = st.MRLDistanceM
			}
		}
		prevVisible = st.Visible
	}

	terms := ScoreTerms{
		PeakElevation: clamp01(peakEl / 90),
		Duration:      clamp01(float64(visibleCount) * opts.Cadence.Seconds() / opts.Window.Seconds()),
		PassFrequency: clamp01(float64(passes) / expectedPasses(opts.Window, opts.OrbitalPeriod)),
		Freshness:     clamp01(1 - float64(set.Age(opts.At))/float64(opts.MaxElementAge)),
	}
	if rsrpCount > 0 {
		mean := sumRSRP / float64(rsrpCount)
		terms.Signal = clamp01((mean - signalFloorDBm) / (signalCeilDBm - signalFloorDBm))
	}

	score := WeightPeakElevation*terms.PeakElevation +
		WeightDuration*terms.Duration +
		WeightPassFrequency*terms.PassFrequency +
		WeightSignal*terms.Signal +
		WeightFreshness*terms.Freshness

	t := opts.Thresholds
	potential := EventPotential{}
	if rsrpCount > 0 {
		potential.A4 = peakRSRP >= t.A4ThresholdDBm-t.A4HysteresisDB-eventMarginDB
		potential.A5Serving = lowRSRP <= t.A5Threshold1DBm+t.A5HysteresisDB+eventMarginDB
	}
	if visibleCount > 0 {
		potential.D2 = minDist <= t.D2Threshold2M-t.D2HysteresisM &&
			maxDist >= t.D2Threshold1M+t.D2HysteresisM
	}

	return SelectionCandidate{
		Elements:  set,
		PlaneKey:  PlaneKeyFor(set),
		Score:     score,
		Terms:     terms,
		Potential: potential,
		NextRise:  nextRise,
	}, nil
}

// expectedPasses is how many visibility passes the window should offer a
// satellite with the given orbital period, at least one.
func expectedPasses(window, period time.Duration) float64 {
	if period <= 0 || window <= period {
		return 1
	}
	return math.Ceil(float64(window) / float64(period))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ScoreStats summarizes a batch scoring run.
type ScoreStats struct {
	Candidates int
	Scored     int
	// Failed records the scoring error per satellite that produced no
	// candidate.
	Failed  map[uint32]error
	Elapsed time.Duration
}

// ScoreAll scores every element set against its series in the table using a
// bounded worker pool. Per-candidate failures are isolated into stats; the
// result is ordered by score descending, satellite id ascending. The only
// error returned is ctx cancellation.
func ScoreAll(ctx context.Context, table *orbit.StateTable, sets []model.OrbitalElementSet, opts ScoreOptions) ([]SelectionCandidate, ScoreStats, error) {
	start := time.Now()
	stats := ScoreStats{Candidates: len(sets), Failed: map[uint32]error{}}

	if len(sets) == 0 {
		stats.Elapsed = time.Since(start)
		return nil, stats, nil
	}

	if opts.Window <= 0 {
		opts.Window = table.Grid().Window()
	}
	if opts.Cadence <= 0 {
		opts.Cadence = table.Grid().Cadence
	}

	workers := runtime.GOMAXPROCS(0)
	if workers > maxScoreWorkers {
		workers = maxScoreWorkers
	}
	if workers > len(sets) {
		workers = len(sets)
	}

	type result struct {
		id   uint32
		cand SelectionCandidate
		err  error
	}

	jobs := make(chan model.OrbitalElementSet, workers*2)
	results := make(chan result, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for set := range jobs {
				cand, err := Score(set, table.Series(set.SatelliteID), opts)
				results <- result{id: set.SatelliteID, cand: cand, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, set := range sets {
			select {
			case jobs <- set:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var candidates []SelectionCandidate
	for res := range results {
		if res.err != nil {
			stats.Failed[res.id] = res.err
			continue
		}
		stats.Scored++
		candidates = append(candidates, res.cand)
	}

	sortCandidates(candidates)
	stats.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return candidates, stats, nil
}

// sortCandidates orders by score descending with ascending satellite id as
// the tie-break, the ordering every selection stage relies on.
func sortCandidates(cands []SelectionCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Elements.SatelliteID < cands[j].Elements.SatelliteID
	})
}
