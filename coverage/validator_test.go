package coverage

import (
	"context"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-handover/catalog"
	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/orbit"
	"github.com/signalsfoundry/constellation-handover/timegrid"
)

var covStart = time.Date(2024, time.April, 9, 12, 0, 0, 0, time.UTC)

// Synthetic TLE pair for the propagation-backed tests.
const (
	covISSLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	covISSLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func covGrid(t *testing.T, window, cadence time.Duration) timegrid.Grid {
	t.Helper()
	grid, err := timegrid.ForWindow(covStart, window, cadence)
	if err != nil {
		t.Fatalf("ForWindow: %v", err)
	}
	return grid
}

// flatSeries holds one satellite at a constant elevation for every sample.
func flatSeries(id uint32, grid timegrid.Grid, elevationDeg float64) []model.PropagatedState {
	series := make([]model.PropagatedState, grid.Count)
	for i := range series {
		series[i] = model.PropagatedState{
			SatelliteID:  id,
			At:           grid.At(i),
			ElevationDeg: elevationDeg,
			Visible:      elevationDeg >= 10,
		}
	}
	return series
}

func poolOf(ids ...uint32) model.SelectionPool {
	pool := model.SelectionPool{Constellation: model.ConstellationStarlink}
	for _, id := range ids {
		pool.Members = append(pool.Members, model.PoolMember{SatelliteID: id})
	}
	return pool
}

func TestValidateTable_ConstantVisiblePasses(t *testing.T) {
	grid := covGrid(t, time.Hour, 30*time.Second)

	series := map[uint32][]model.PropagatedState{}
	ids := make([]uint32, 0, 12)
	for id := uint32(1); id <= 10; id++ {
		series[id] = flatSeries(id, grid, 45)
		ids = append(ids, id)
	}
	// Two members stay below the horizon the whole window.
	for id := uint32(11); id <= 12; id++ {
		series[id] = flatSeries(id, grid, 2)
		ids = append(ids, id)
	}

	table := orbit.NewStateTable(grid, series)
	report := ValidateTable(table, poolOf(ids...), Options{})

	if report.VisibleMin != 10 || report.VisibleMax != 10 {
		t.Fatalf("constant count: want min=max=10, got %d/%d", report.VisibleMin, report.VisibleMax)
	}
	if report.VisibleMean != 10 {
		t.Fatalf("mean: want 10, got %v", report.VisibleMean)
	}
	if report.VisibleStd != 0 {
		t.Fatalf("std of a constant series should be 0, got %v", report.VisibleStd)
	}
	if report.BelowTargetFraction != 0 {
		t.Fatalf("below-target fraction: want 0, got %v", report.BelowTargetFraction)
	}
	if report.InBandFraction != 1.0 {
		t.Fatalf("in-band fraction: want 1.0, got %v", report.InBandFraction)
	}
	if !report.Passed || len(report.Reasons) != 0 {
		t.Fatalf("report should pass: passed=%v reasons=%v", report.Passed, report.Reasons)
	}
	if report.Samples != grid.Count {
		t.Fatalf("samples: want %d, got %d", grid.Count, report.Samples)
	}
}

func TestValidateTable_FailsWithReasons(t *testing.T) {
	grid := covGrid(t, 10*time.Minute, 30*time.Second)

	series := map[uint32][]model.PropagatedState{}
	for id := uint32(1); id <= 4; id++ {
		series[id] = flatSeries(id, grid, 45)
	}
	table := orbit.NewStateTable(grid, series)

	report := ValidateTable(table, poolOf(1, 2, 3, 4), Options{})
	if report.Passed {
		t.Fatalf("four visible members cannot pass the default criteria")
	}
	// Floor, mean band, below-target cap and in-band floor all fail.
	if len(report.Reasons) != 4 {
		t.Fatalf("want 4 failure reasons, got %v", report.Reasons)
	}
	if report.BelowTargetFraction != 1.0 {
		t.Fatalf("every sample is below target, got fraction %v", report.BelowTargetFraction)
	}
	if report.InBandFraction != 0 {
		t.Fatalf("no sample is in band, got fraction %v", report.InBandFraction)
	}
}

func TestValidateTable_TierCounts(t *testing.T) {
	grid := covGrid(t, 5*time.Minute, 30*time.Second)

	table := orbit.NewStateTable(grid, map[uint32][]model.PropagatedState{
		1: flatSeries(1, grid, 20),
		2: flatSeries(2, grid, 12),
		3: flatSeries(3, grid, 8),
		4: flatSeries(4, grid, 3),
	})
	report := ValidateTable(table, poolOf(1, 2, 3, 4), Options{})

	if len(report.Tiers) != len(DefaultTiers) {
		t.Fatalf("want %d tier stats, got %d", len(DefaultTiers), len(report.Tiers))
	}
	wantMeans := []float64{1, 2, 3} // handover >=15, tracking >=10, prediction >=5
	for i, want := range wantMeans {
		ts := report.Tiers[i]
		if ts.Mean != want || ts.Min != int(want) || ts.Max != int(want) {
			t.Fatalf("tier %s: want constant %v, got min=%d mean=%v max=%d",
				ts.Tier.Name, want, ts.Min, ts.Mean, ts.Max)
		}
	}
}

func TestValidateTable_StaleAndMissing(t *testing.T) {
	grid := covGrid(t, 5*time.Minute, 30*time.Second)

	stale := flatSeries(1, grid, 45)
	for i := range stale {
		stale[i].Stale = true
	}
	table := orbit.NewStateTable(grid, map[uint32][]model.PropagatedState{1: stale})

	report := ValidateTable(table, poolOf(1, 7), Options{})
	if report.VisibleMax != 0 {
		t.Fatalf("stale samples must not count as visible, got max %d", report.VisibleMax)
	}
	if len(report.MissingMembers) != 1 || report.MissingMembers[0] != 7 {
		t.Fatalf("member without propagation should be reported missing, got %v", report.MissingMembers)
	}
}

func TestValidateTable_EmptyPool(t *testing.T) {
	grid := covGrid(t, 5*time.Minute, 30*time.Second)
	table := orbit.NewStateTable(grid, nil)

	report := ValidateTable(table, model.SelectionPool{}, Options{})
	if report.Passed {
		t.Fatalf("empty pool cannot pass")
	}
	if len(report.Reasons) == 0 {
		t.Fatalf("empty pool needs a failure reason")
	}
}

func TestValidate_PropagatesPoolMembers(t *testing.T) {
	cat := catalog.New()
	cat.Upsert(model.OrbitalElementSet{
		SatelliteID:      25544,
		Constellation:    model.ConstellationStarlink,
		Epoch:            covStart,
		Line1:            covISSLine1,
		Line2:            covISSLine2,
		InclinationDeg:   51.64,
		RAANDeg:          100.0,
		MeanMotionRevDay: 15.5,
	})

	prop := orbit.NewPropagator(orbit.Options{
		Observer: model.GeodeticPoint{LatDeg: 24.9441667, LonDeg: 121.3713889, AltM: 35},
	})

	pool := poolOf(25544, 99999) // 99999 has no catalogued elements
	report, err := Validate(context.Background(), pool, prop, cat, Options{
		Start:   covStart,
		Window:  10 * time.Minute,
		Cadence: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if report.Samples != 21 {
		t.Fatalf("want 21 samples, got %d", report.Samples)
	}
	if len(report.MissingMembers) != 1 || report.MissingMembers[0] != 99999 {
		t.Fatalf("uncatalogued member should be missing, got %v", report.MissingMembers)
	}
	if report.Constellation != model.ConstellationStarlink {
		t.Fatalf("report should carry the pool constellation, got %q", report.Constellation)
	}
}
