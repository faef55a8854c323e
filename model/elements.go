package model

import "time"

// Constellation tags with built-in selection profiles. Other tags are
// accepted and fall back to generic profile values.
const (
	ConstellationStarlink = "starlink"
	ConstellationOneWeb   = "oneweb"
)

// OrbitalElementSet holds one satellite's orbital elements at a single epoch.
// Sets are immutable: when a newer epoch arrives for the same satellite the
// catalog supersedes the old set rather than mutating it.
type OrbitalElementSet struct {
	SatelliteID   uint32 // NORAD catalog number
	Name          string
	Constellation string

	Epoch time.Time

	// TLE lines drive SGP4 propagation.
	Line1 string
	Line2 string

	// Keplerian summary parsed from the TLE, used for orbital-plane grouping
	// and phase constraints without re-parsing lines.
	InclinationDeg   float64
	RAANDeg          float64
	Eccentricity     float64
	ArgPerigeeDeg    float64
	MeanAnomalyDeg   float64
	MeanMotionRevDay float64
}

// Age returns how old the element epoch is at time t. Negative when the
// epoch lies in the future.
func (e OrbitalElementSet) Age(t time.Time) time.Duration {
	return t.Sub(e.Epoch)
}

// OrbitalPeriod derives the orbital period from mean motion. Zero mean
// motion yields zero.
func (e OrbitalElementSet) OrbitalPeriod() time.Duration {
	if e.MeanMotionRevDay <= 0 {
		return 0
	}
	return time.Duration(float64(24*time.Hour) / e.MeanMotionRevDay)
}
