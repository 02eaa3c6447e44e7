package sweep

import "math"

// SphericalToCartesian converts distance (meters), azimuth (degrees) and
// elevation (degrees) into Cartesian sensor-frame coordinates.
// Coordinate convention: X=right, Y=forward, Z=up. Azimuth is measured from
// +Y toward +X, so atan2(x, y) recovers it.
func SphericalToCartesian(distance, azimuthDeg, elevationDeg float64) (x, y, z float64) {
	azimuthRad := azimuthDeg * math.Pi / 180.0
	elevationRad := elevationDeg * math.Pi / 180.0

	cosElevation := math.Cos(elevationRad)
	sinElevation := math.Sin(elevationRad)
	cosAzimuth := math.Cos(azimuthRad)
	sinAzimuth := math.Sin(azimuthRad)

	x = distance * cosElevation * sinAzimuth
	y = distance * cosElevation * cosAzimuth
	z = distance * sinElevation
	return
}
