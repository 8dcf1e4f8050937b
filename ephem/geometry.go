package ephem

import "math"

// Vec3 is an ECEF vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// ElevationDegrees returns the elevation of the spacecraft above the
// station's geometric horizon, in degrees, with the local vertical taken as
// the station's geocentric position. A station cannot have received a frame
// from a spacecraft below its horizon, so a negative elevation at ERT means
// the ephemeris or the station's path assignment is wrong and the light time
// derived from them would be too.
func ElevationDegrees(station, spacecraft Vec3) float64 {
	r := station.Norm()
	los := spacecraft.Sub(station)
	if r == 0 || los.Norm() == 0 {
		return 90
	}
	up := station.Scale(1 / r)
	vertical := los.Dot(up)
	horizontal := los.Sub(up.Scale(vertical)).Norm()
	return math.Atan2(vertical, horizontal) * 180 / math.Pi
}
