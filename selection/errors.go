package selection

import "fmt"

// InsufficientSamplesError reports a scoring window with no usable samples
// for a satellite. It is surfaced per candidate, never aborts a batch.
type InsufficientSamplesError struct {
	SatelliteID uint32
	Want        int
	Got         int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient samples for satellite %d: want %d, got %d",
		e.SatelliteID, e.Want, e.Got)
}

// UnderCoverageError reports a selection run that could not reach the minimum
// pool size from the available candidates.
type UnderCoverageError struct {
	Constellation string
	Got           int
	MinTarget     int
	Planes        int
	Candidates    int
}

func (e *UnderCoverageError) Error() string {
	return fmt.Sprintf("under coverage for %s: selected %d of minimum %d (from %d candidates across %d planes)",
		e.Constellation, e.Got, e.MinTarget, e.Candidates, e.Planes)
}
