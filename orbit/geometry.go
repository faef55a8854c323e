package orbit

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances
// (kilometres).
const EarthRadiusKm = 6371.0

// omegaEarth is Earth's rotation rate in rad/s (IAU value).
const omegaEarth = 7.292115146706979e-5

// speedOfLightKmS is the propagation speed used for Doppler, in km/s.
const speedOfLightKmS = 299792.458

// Vec3 is an ECEF-style vector in kilometres (or km/s for velocities).
type Vec3 struct {
	X, Y, Z float64
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// HaversineM returns the great-circle distance in metres between two
// latitude/longitude points, using the mean Earth radius.
func HaversineM(lat1Deg, lon1Deg, lat2Deg, lon2Deg float64) float64 {
	lat1 := lat1Deg * math.Pi / 180
	lon1 := lon1Deg * math.Pi / 180
	lat2 := lat2Deg * math.Pi / 180
	lon2 := lon2Deg * math.Pi / 180

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c * 1000.0
}

// earthRotationVelocity returns the ECEF velocity (km/s) of a fixed ground
// point due to Earth's rotation: tangent to the circle of latitude, eastward.
func earthRotationVelocity(latDeg, lonDeg float64) Vec3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180

	r := EarthRadiusKm * math.Cos(lat)
	v := r * omegaEarth

	return Vec3{
		X: -v * math.Sin(lon),
		Y: v * math.Cos(lon),
		Z: 0,
	}
}
