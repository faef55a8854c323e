package model

import "time"

// ECEF is an Earth-centred Earth-fixed vector. Positions are kilometres,
// velocities kilometres per second.
type ECEF struct {
	X, Y, Z float64
}

// GeodeticPoint is a position on or above the WGS-84 ellipsoid.
type GeodeticPoint struct {
	LatDeg float64
	LonDeg float64
	AltM   float64
}

// PropagatedState is one satellite's derived state at one timestamp:
// kinematics, observer-relative look angles, the moving reference location,
// and link estimates. It is produced on demand and never treated as a source
// of truth.
type PropagatedState struct {
	SatelliteID uint32
	At          time.Time

	Position ECEF // km
	Velocity ECEF // km/s
	Subpoint GeodeticPoint

	ElevationDeg float64
	AzimuthDeg   float64
	RangeKm      float64

	// MRL is the moving reference location: the ground nadir point directly
	// beneath the satellite. MRLDistanceM is the great-circle distance from
	// the configured reference point to the MRL, in metres.
	MRL          GeodeticPoint
	MRLDistanceM float64

	RSRPDBm        float64
	DopplerShiftHz float64

	// Visible reports elevation at or above the constellation's minimum.
	Visible bool
	// Stale marks a state carried forward from the last valid propagation
	// after the element set aged out mid-window.
	Stale bool
}
