package timegrid

import (
	"fmt"
	"time"
)

// Grid is a fixed-cadence sample lattice over a simulation window. It is the
// single home for window/cadence arithmetic so the validator, the detector,
// and the propagation batches all agree on which timestamps exist.
type Grid struct {
	Start   time.Time
	Cadence time.Duration
	Count   int
}

// ForWindow builds a grid covering [start, start+window] inclusive of the
// start sample. A window that is not a whole multiple of cadence is truncated
// to the last full step.
func ForWindow(start time.Time, window, cadence time.Duration) (Grid, error) {
	if cadence <= 0 {
		return Grid{}, fmt.Errorf("timegrid: cadence must be positive, got %s", cadence)
	}
	if window < 0 {
		return Grid{}, fmt.Errorf("timegrid: window must be non-negative, got %s", window)
	}
	return Grid{
		Start:   start.UTC(),
		Cadence: cadence,
		Count:   int(window/cadence) + 1,
	}, nil
}

// End returns the timestamp of the last sample.
func (g Grid) End() time.Time {
	if g.Count <= 0 {
		return g.Start
	}
	return g.Start.Add(time.Duration(g.Count-1) * g.Cadence)
}

// Window returns the span covered by the grid from Start to End.
func (g Grid) Window() time.Duration {
	return g.End().Sub(g.Start)
}

// At returns the timestamp of sample i. It does not range-check.
func (g Grid) At(i int) time.Time {
	return g.Start.Add(time.Duration(i) * g.Cadence)
}

// Times materialises every sample timestamp in order.
func (g Grid) Times() []time.Time {
	times := make([]time.Time, 0, g.Count)
	for i := 0; i < g.Count; i++ {
		times = append(times, g.At(i))
	}
	return times
}

// Index returns the sample index for t, or -1 if t is off the lattice or
// outside the grid.
func (g Grid) Index(t time.Time) int {
	if g.Cadence <= 0 || g.Count <= 0 {
		return -1
	}
	d := t.Sub(g.Start)
	if d < 0 || d%g.Cadence != 0 {
		return -1
	}
	i := int(d / g.Cadence)
	if i >= g.Count {
		return -1
	}
	return i
}

// SamplesFor translates a duration into the number of consecutive samples it
// spans at the grid cadence, rounding up with a minimum of one. This is the
// translation used for time-to-trigger dwell windows: the duration is
// interpreted in simulated time against the grid, never in wall-clock time.
func (g Grid) SamplesFor(d time.Duration) int {
	if g.Cadence <= 0 || d <= 0 {
		return 1
	}
	n := int((d + g.Cadence - 1) / g.Cadence)
	if n < 1 {
		n = 1
	}
	return n
}
