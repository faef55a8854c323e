package detection

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
)

const maxDetectWorkers = 16

// Pair names one (serving, candidate, kind) detection subject.
type Pair struct {
	ServingID   uint32
	CandidateID uint32
	Kind        model.EventKind
}

func (p Pair) String() string {
	return fmt.Sprintf("%d->%d/%s", p.ServingID, p.CandidateID, p.Kind)
}

// BuildPairs pairs a serving satellite with every other pool member for each
// requested kind, in ascending candidate order. A zero servingID picks the
// member with the greatest total visible time in the table, ties broken by
// ascending id.
func BuildPairs(table *orbit.StateTable, pool model.SelectionPool, kinds []model.EventKind, servingID uint32) ([]Pair, uint32) {
	if servingID == 0 {
		servingID = defaultServing(table, pool)
	}
	if servingID == 0 || len(kinds) == 0 {
		return nil, servingID
	}

	ids := pool.MemberIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pairs := make([]Pair, 0, len(ids)*len(kinds))
	for _, id := range ids {
		if id == servingID {
			continue
		}
		for _, kind := range kinds {
			pairs = append(pairs, Pair{ServingID: servingID, CandidateID: id, Kind: kind})
		}
	}
	return pairs, servingID
}

func defaultServing(table *orbit.StateTable, pool model.SelectionPool) uint32 {
	ids := pool.MemberIDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	grid := table.Grid()
	best, bestVisible := uint32(0), -1
	for _, id := range ids {
		visible := 0
		for i := 0; i < grid.Count; i++ {
			if st, ok := table.Sample(id, i); ok && !st.Stale && st.Visible {
				visible++
			}
		}
		if visible > bestVisible {
			best, bestVisible = id, visible
		}
	}
	return best
}

// Detector evaluates handover trigger conditions across propagated series.
// Safe for concurrent use.
type Detector struct {
	cfg Config
	log logging.Logger
}

// New builds a Detector. A nil logger drops the missing-sample warnings.
func New(cfg Config, log logging.Logger) *Detector {
	if log == nil {
		log = logging.Noop()
	}
	return &Detector{cfg: cfg, log: log}
}

// DetectStats summarizes one detection run.
type DetectStats struct {
	Pairs          int
	Records        int
	MissingSamples int
	Failures       map[Pair]error
	Elapsed        time.Duration
}

// Detect runs every pair's trigger machine across the table on a bounded
// worker pool. Pair failures are isolated into stats; the merged records are
// ordered by start time, then serving, candidate and kind, so identical
// inputs produce an identical timeline. The only error returned is ctx
// cancellation.
func (d *Detector) Detect(ctx context.Context, table *orbit.StateTable, pairs []Pair) ([]model.HandoverEventRecord, DetectStats, error) {
	start := time.Now()
	stats := DetectStats{Pairs: len(pairs), Failures: map[Pair]error{}}

	if len(pairs) == 0 {
		stats.Elapsed = time.Since(start)
		return nil, stats, nil
	}

	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > maxDetectWorkers {
		workers = maxDetectWorkers
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	type result struct {
		pair    Pair
		records []model.HandoverEventRecord
		missing int
		err     error
	}

	jobs := make(chan Pair, workers*2)
	results := make(chan result, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range jobs {
				records, missing, err := d.runPair(ctx, table, pair)
				results <- result{pair: pair, records: records, missing: missing, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, pair := range pairs {
			select {
			case jobs <- pair:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var records []model.HandoverEventRecord
	for res := range results {
		if res.err != nil {
			stats.Failures[res.pair] = res.err
			continue
		}
		stats.MissingSamples += res.missing
		records = append(records, res.records...)
	}

	sortRecords(records)
	stats.Records = len(records)
	stats.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	return records, stats, nil
}

// runPair walks one pair across the grid. Samples missing or carried forward
// on either side of the pair are skipped and counted; the machine sees only
// fresh kinematics.
func (d *Detector) runPair(ctx context.Context, table *orbit.StateTable, pair Pair) ([]model.HandoverEventRecord, int, error) {
	cond, err := d.cfg.conditionsFor(pair.Kind)
	if err != nil {
		return nil, 0, err
	}
	if !table.Has(pair.ServingID) {
		return nil, 0, fmt.Errorf("detection: serving %d has no propagated series", pair.ServingID)
	}
	if !table.Has(pair.CandidateID) {
		return nil, 0, fmt.Errorf("detection: candidate %d has no propagated series", pair.CandidateID)
	}

	grid := table.Grid()
	ps := newPairState(pair, cond, grid)

	missing := 0
	for i := 0; i < grid.Count; i++ {
		at := grid.At(i)
		serving, sok := table.Sample(pair.ServingID, i)
		cand, cok := table.Sample(pair.CandidateID, i)
		if !sok || !cok || serving.Stale || cand.Stale {
			missing++
			d.log.Warn(ctx, "missing sample skipped",
				logging.String("pair", pair.String()),
				logging.String("at", at.Format(time.RFC3339)))
			continue
		}
		ps.observe(serving, cand, at)
	}
	return ps.finish(grid.End()), missing, nil
}

func sortRecords(records []model.HandoverEventRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if a.ServingID != b.ServingID {
			return a.ServingID < b.ServingID
		}
		if a.CandidateID != b.CandidateID {
			return a.CandidateID < b.CandidateID
		}
		return a.Kind < b.Kind
	})
}
