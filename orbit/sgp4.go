package orbit

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Orbital radius sanity band in km from the geocentre. SGP4 outputs outside
// this band are treated as propagation failures.
const (
	minOrbitRadiusKm = 6400.0
	maxOrbitRadiusKm = 60000.0
)

// newSGP4 parses and validates TLE lines before handing them to go-satellite.
// The library aborts the process on malformed input, so lines are checked
// here first.
func newSGP4(set model.OrbitalElementSet) (satellite.Satellite, error) {
	if err := validateTLELines(set.Line1, set.Line2); err != nil {
		return satellite.Satellite{}, fmt.Errorf("invalid TLE for satellite %d: %w", set.SatelliteID, err)
	}

	sat := satellite.TLEToSat(set.Line1, set.Line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return satellite.Satellite{}, fmt.Errorf("sgp4 init failed for satellite %d: code=%d %s",
			set.SatelliteID, sat.Error, sat.ErrorStr)
	}
	return sat, nil
}

// validateTLELines performs basic format validation on TLE lines.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got %q", line2[0])
	}
	return nil
}

// propagateECEF runs SGP4 for time t and rotates the TEME output into ECEF
// using GMST for the same instant. Position km, velocity km/s.
func propagateECEF(sat satellite.Satellite, id uint32, t time.Time) (Vec3, Vec3, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	posECI, velECI := satellite.Propagate(sat, year, int(month), day, hour, minute, sec)

	if anyNaNInf(posECI.X, posECI.Y, posECI.Z, velECI.X, velECI.Y, velECI.Z) {
		return Vec3{}, Vec3{}, &PropagationError{SatelliteID: id, At: t, Reason: "sgp4 output is NaN/Inf"}
	}

	mag := math.Sqrt(posECI.X*posECI.X + posECI.Y*posECI.Y + posECI.Z*posECI.Z)
	if mag < minOrbitRadiusKm || mag > maxOrbitRadiusKm {
		return Vec3{}, Vec3{}, &PropagationError{
			SatelliteID: id,
			At:          t,
			Reason:      fmt.Sprintf("implausible orbit radius %.1f km", mag),
		}
	}

	jd := satellite.JDay(year, int(month), day, hour, minute, sec)
	gmst := satellite.ThetaG_JD(jd)

	posECEF := satellite.ECIToECEF(posECI, gmst)

	// go-satellite has no velocity transform; rotate the velocity vector by
	// GMST and subtract the frame rotation term (ω × r) to express it in the
	// rotating ECEF frame.
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)
	vRot := Vec3{
		X: velECI.X*cosG + velECI.Y*sinG,
		Y: -velECI.X*sinG + velECI.Y*cosG,
		Z: velECI.Z,
	}
	pos := Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	velECEF := Vec3{
		X: vRot.X + omegaEarth*pos.Y,
		Y: vRot.Y - omegaEarth*pos.X,
		Z: vRot.Z,
	}

	return pos, velECEF, nil
}

func anyNaNInf(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
