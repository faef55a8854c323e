package orbit

import (
	"math"
	"testing"

	"github.com/signalsfoundry/constellation-handover/model"
)

func TestGeodeticECEF_RoundTrip(t *testing.T) {
	points := []model.GeodeticPoint{
		{LatDeg: 24.9441667, LonDeg: 121.3713889, AltM: 35},
		{LatDeg: 0, LonDeg: 0, AltM: 0},
		{LatDeg: -33.8688, LonDeg: 151.2093, AltM: 58},
		{LatDeg: 78.2232, LonDeg: 15.6267, AltM: 10},
	}

	for _, p := range points {
		got := ecefToGeodetic(NewObserver(p).ECEF())
		if math.Abs(got.LatDeg-p.LatDeg) > 1e-6 {
			t.Fatalf("latitude round trip for %+v: got %.8f", p, got.LatDeg)
		}
		if math.Abs(got.LonDeg-p.LonDeg) > 1e-6 {
			t.Fatalf("longitude round trip for %+v: got %.8f", p, got.LonDeg)
		}
		if math.Abs(got.AltM-p.AltM) > 0.1 {
			t.Fatalf("altitude round trip for %+v: got %.3f m", p, got.AltM)
		}
	}
}

func TestLookAngles_ZenithSatellite(t *testing.T) {
	// On the equator the geodetic normal is radial, so scaling the observer
	// position outward puts the satellite exactly at zenith.
	obs := NewObserver(model.GeodeticPoint{LatDeg: 0, LonDeg: 121.3714})
	r := obs.ECEF()
	scale := (r.Norm() + 550) / r.Norm()
	sat := Vec3{X: r.X * scale, Y: r.Y * scale, Z: r.Z * scale}

	_, el, rng := lookAngles(obs, sat)
	if el < 89.9 {
		t.Fatalf("expected zenith elevation, got %.3f deg", el)
	}
	if math.Abs(rng-550) > 0.01 {
		t.Fatalf("expected 550 km range, got %.3f km", rng)
	}
}

func TestLookAngles_CardinalAzimuths(t *testing.T) {
	obs := NewObserver(model.GeodeticPoint{LatDeg: 0, LonDeg: 0})
	r := obs.ECEF()

	// From the equator at longitude 0, +Z is due north and +Y due east.
	north := Vec3{X: r.X, Y: r.Y, Z: r.Z + 1000}
	az, el, _ := lookAngles(obs, north)
	if az > 0.001 && az < 359.999 {
		t.Fatalf("expected northward azimuth, got %.4f deg", az)
	}
	if math.Abs(el) > 1e-9 {
		t.Fatalf("expected horizon elevation for tangent target, got %.6f deg", el)
	}

	east := Vec3{X: r.X, Y: r.Y + 1000, Z: r.Z}
	az, _, _ = lookAngles(obs, east)
	if math.Abs(az-90) > 0.001 {
		t.Fatalf("expected eastward azimuth, got %.4f deg", az)
	}
}

func TestLookAngles_AntipodalBelowHorizon(t *testing.T) {
	obs := NewObserver(model.GeodeticPoint{LatDeg: 24.9442, LonDeg: 121.3714, AltM: 35})
	r := obs.ECEF()
	sat := Vec3{X: -r.X * 1.2, Y: -r.Y * 1.2, Z: -r.Z * 1.2}

	if _, el, _ := lookAngles(obs, sat); el >= 0 {
		t.Fatalf("satellite on the far side of Earth should be below horizon, got %.3f deg", el)
	}
}
