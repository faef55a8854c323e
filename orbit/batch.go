package orbit

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/timegrid"
)

const maxBatchWorkers = 16

// BatchStats summarizes a batch propagation run.
type BatchStats struct {
	// Satellites is the number of element sets attempted.
	Satellites int
	// Included counts satellites that produced at least one usable sample.
	Included int
	// Fresh counts directly propagated samples.
	Fresh int
	// Carried counts samples filled by carrying the previous valid state
	// forward flagged Stale.
	Carried int
	// Missing counts samples with no state available at all.
	Missing int
	// Excluded lists satellites that produced zero usable samples.
	Excluded []uint32
	// Failures records the first error seen per failing satellite, including
	// satellites that still produced usable samples.
	Failures map[uint32]error
	// Elapsed is wall-clock time for the whole batch.
	Elapsed time.Duration
}

// StateTable is the time-indexed propagation result: one row per
// (satellite, grid sample). Accessors return copies; the table itself is
// immutable after construction and safe for concurrent reads.
type StateTable struct {
	grid   timegrid.Grid
	order  []uint32
	series map[uint32]satSeries
}

type satSeries struct {
	states []model.PropagatedState
	ok     []bool
}

// NewStateTable assembles a table from grid-aligned series, for callers that
// obtain states outside BatchPropagate. A sample is present when its
// timestamp is non-zero; slices shorter than the grid leave the tail missing.
// Satellites without a single present sample are dropped.
func NewStateTable(grid timegrid.Grid, series map[uint32][]model.PropagatedState) *StateTable {
	tb := &StateTable{grid: grid, series: make(map[uint32]satSeries, len(series))}
	for id, states := range series {
		s := satSeries{
			states: make([]model.PropagatedState, grid.Count),
			ok:     make([]bool, grid.Count),
		}
		present := false
		for i := 0; i < grid.Count && i < len(states); i++ {
			if states[i].At.IsZero() {
				continue
			}
			s.states[i] = states[i]
			s.ok[i] = true
			present = true
		}
		if !present {
			continue
		}
		tb.series[id] = s
		tb.order = append(tb.order, id)
	}
	sort.Slice(tb.order, func(i, j int) bool { return tb.order[i] < tb.order[j] })
	return tb
}

// Grid returns the sampling lattice the table was built over.
func (tb *StateTable) Grid() timegrid.Grid { return tb.grid }

// Satellites returns the included satellite ids in ascending order.
func (tb *StateTable) Satellites() []uint32 {
	out := make([]uint32, len(tb.order))
	copy(out, tb.order)
	return out
}

// Has reports whether the satellite produced any usable samples.
func (tb *StateTable) Has(id uint32) bool {
	_, ok := tb.series[id]
	return ok
}

// Sample returns the state at grid index i for the satellite. The second
// return is false when the sample is missing (no state could be produced
// and none was available to carry forward).
func (tb *StateTable) Sample(id uint32, i int) (model.PropagatedState, bool) {
	s, ok := tb.series[id]
	if !ok || i < 0 || i >= len(s.states) || !s.ok[i] {
		return model.PropagatedState{}, false
	}
	return s.states[i], true
}

// Series returns the satellite's present samples in time order. Carried
// samples are included and keep their Stale flag; missing samples are
// omitted, so consumers must read timestamps rather than assume the grid
// cadence between consecutive entries.
func (tb *StateTable) Series(id uint32) []model.PropagatedState {
	s, ok := tb.series[id]
	if !ok {
		return nil
	}
	out := make([]model.PropagatedState, 0, len(s.states))
	for i, st := range s.states {
		if s.ok[i] {
			out = append(out, st)
		}
	}
	return out
}

// At returns the present samples for every satellite at grid time t, ordered
// by satellite id. A nil slice means t is off the grid.
func (tb *StateTable) At(t time.Time) []model.PropagatedState {
	i := tb.grid.Index(t)
	if i < 0 {
		return nil
	}
	out := make([]model.PropagatedState, 0, len(tb.order))
	for _, id := range tb.order {
		if st, ok := tb.Sample(id, i); ok {
			out = append(out, st)
		}
	}
	return out
}

// BatchPropagate computes the full state series for every element set over
// the grid using a bounded worker pool. One satellite failing never aborts
// the batch: staleness and propagation failures are recorded in BatchStats,
// the most recent valid state in the run is carried forward flagged Stale,
// and satellites with no usable samples are excluded from the table.
//
// workers <= 0 selects GOMAXPROCS capped at 16. The only error returned is
// ctx cancellation, checked at sample boundaries.
func BatchPropagate(ctx context.Context, p *Propagator, sets []model.OrbitalElementSet, grid timegrid.Grid, workers int) (*StateTable, BatchStats, error) {
	start := time.Now()
	stats := BatchStats{Satellites: len(sets), Failures: map[uint32]error{}}
	table := &StateTable{grid: grid, series: make(map[uint32]satSeries, len(sets))}

	if len(sets) == 0 || grid.Count == 0 {
		stats.Elapsed = time.Since(start)
		return table, stats, nil
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > maxBatchWorkers {
		workers = maxBatchWorkers
	}
	if workers > len(sets) {
		workers = len(sets)
	}

	jobs := make(chan model.OrbitalElementSet, workers*2)
	results := make(chan satResult, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for set := range jobs {
				results <- p.propagateSeries(ctx, set, grid)
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

	for res := range results {
		stats.Fresh += res.fresh
		stats.Carried += res.carried
		stats.Missing += res.missing
		if res.firstErr != nil {
			stats.Failures[res.id] = res.firstErr
		}
		if res.fresh+res.carried == 0 {
			stats.Excluded = append(stats.Excluded, res.id)
			continue
		}
		stats.Included++
		table.series[res.id] = satSeries{states: res.states, ok: res.ok}
		table.order = append(table.order, res.id)
	}

	sort.Slice(table.order, func(i, j int) bool { return table.order[i] < table.order[j] })
	sort.Slice(stats.Excluded, func(i, j int) bool { return stats.Excluded[i] < stats.Excluded[j] })
	stats.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return table, stats, nil
}

type satResult struct {
	id       uint32
	states   []model.PropagatedState
	ok       []bool
	fresh    int
	carried  int
	missing  int
	firstErr error
}

// propagateSeries computes one satellite's series over the grid, carrying
// the last valid state forward on failures.
func (p *Propagator) propagateSeries(ctx context.Context, set model.OrbitalElementSet, grid timegrid.Grid) satResult {
	res := satResult{
		id:     set.SatelliteID,
		states: make([]model.PropagatedState, grid.Count),
		ok:     make([]bool, grid.Count),
	}

	haveLast := false
	var last model.PropagatedState

	for i := 0; i < grid.Count; i++ {
		if ctx.Err() != nil {
			return res
		}
		t := grid.At(i)
		st, err := p.Propagate(set, t)
		if err != nil {
			if res.firstErr == nil {
				res.firstErr = err
			}
			if haveLast {
				carriedState := last
				carriedState.At = t
				carriedState.Stale = true
				res.states[i] = carriedState
				res.ok[i] = true
				res.carried++
			} else {
				res.missing++
			}
			continue
		}
		res.states[i] = st
		res.ok[i] = true
		res.fresh++
		last = st
		haveLast = true
	}
	return res
}
