package selection

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Orbital-plane discretization. Satellites whose inclination rounds to the
// same 2 degree step and whose RAAN rounds to the same 5 degree step are
// treated as sharing a plane.
const (
	inclinationStepDeg = 2.0
	raanStepDeg        = 5.0
)

// PlaneKeyFor buckets an element set into its discretized orbital plane.
func PlaneKeyFor(set model.OrbitalElementSet) string {
	incl := math.Round(set.InclinationDeg/inclinationStepDeg) * inclinationStepDeg
	raan := math.Round(set.RAANDeg/raanStepDeg) * raanStepDeg
	raan = math.Mod(raan+360, 360)
	return fmt.Sprintf("i%.0f-r%.0f", incl, raan)
}

// circularDeltaDeg returns the distance between two angles on a 360 degree
// circle, in [0, 180].
func circularDeltaDeg(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

// anomalyClear reports whether the candidate's mean anomaly keeps at least
// minDeg of circular separation from every already-kept member of its plane.
func anomalyClear(kept []SelectionCandidate, c SelectionCandidate, minDeg float64) bool {
	for _, k := range kept {
		if circularDeltaDeg(k.Elements.MeanAnomalyDeg, c.Elements.MeanAnomalyDeg) < minDeg {
			return false
		}
	}
	return true
}
