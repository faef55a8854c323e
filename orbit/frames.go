package orbit

import (
	"math"

	"github.com/signalsfoundry/constellation-handover/model"
)

// WGS-84 ellipsoid parameters (kilometres).
const (
	wgs84AKm = 6378.137
	wgs84F   = 1.0 / 298.257223563
	wgs84E2  = wgs84F * (2 - wgs84F)
)

// Observer is a fixed ground point with its ECEF position precomputed so it
// can be reused across many satellite lookups.
type Observer struct {
	LatDeg, LonDeg float64
	AltM           float64

	latRad, lonRad float64
	ecef           Vec3 // km
}

// NewObserver precomputes the ECEF position of a geodetic point.
func NewObserver(p model.GeodeticPoint) Observer {
	lat := p.LatDeg * math.Pi / 180
	lon := p.LonDeg * math.Pi / 180
	altKm := p.AltM / 1000.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Observer{
		LatDeg: p.LatDeg,
		LonDeg: p.LonDeg,
		AltM:   p.AltM,
		latRad: lat,
		lonRad: lon,
		ecef: Vec3{
			X: (n + altKm) * cosLat * math.Cos(lon),
			Y: (n + altKm) * cosLat * math.Sin(lon),
			Z: (n*(1-wgs84E2) + altKm) * sinLat,
		},
	}
}

// ECEF returns the observer position in ECEF kilometres.
func (o Observer) ECEF() Vec3 { return o.ecef }

// Geodetic returns the observer as a geodetic point.
func (o Observer) Geodetic() model.GeodeticPoint {
	return model.GeodeticPoint{LatDeg: o.LatDeg, LonDeg: o.LonDeg, AltM: o.AltM}
}

// ecefToGeodetic converts an ECEF position (km) to geodetic coordinates using
// the iterative Bowring method, which converges in a few iterations for Earth
// orbits.
func ecefToGeodetic(pos Vec3) model.GeodeticPoint {
	lon := math.Atan2(pos.Y, pos.X)
	p := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y)

	lat := math.Atan2(pos.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(pos.Z+wgs84E2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84AKm / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var altKm float64
	if math.Abs(cosLat) > 1e-10 {
		altKm = p/cosLat - n
	} else {
		altKm = math.Abs(pos.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return model.GeodeticPoint{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltM:   altKm * 1000.0,
	}
}

// lookAngles computes azimuth, elevation (degrees) and range (km) from the
// observer to a satellite in ECEF km, via the SEZ topocentric rotation
// (Vallado section 4.4). Azimuth is measured clockwise from North.
func lookAngles(obs Observer, sat Vec3) (azDeg, elDeg, rangeKm float64) {
	r := sat.Sub(obs.ecef)

	sinLat := math.Sin(obs.latRad)
	cosLat := math.Cos(obs.latRad)
	sinLon := math.Sin(obs.lonRad)
	cosLon := math.Cos(obs.lonRad)

	south := sinLat*cosLon*r.X + sinLat*sinLon*r.Y - cosLat*r.Z
	east := -sinLon*r.X + cosLon*r.Y
	zenith := cosLat*cosLon*r.X + cosLat*sinLon*r.Y + sinLat*r.Z

	rangeKm = math.Sqrt(south*south + east*east + zenith*zenith)
	if rangeKm == 0 {
		return 0, 90, 0
	}

	el := math.Asin(zenith / rangeKm)

	az := math.Atan2(east, -south)
	if az < 0 {
		az += 2 * math.Pi
	}

	return az * 180 / math.Pi, el * 180 / math.Pi, rangeKm
}
