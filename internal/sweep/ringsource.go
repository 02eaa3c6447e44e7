package sweep

import "math"

// ringSource maps a point to its scan line. The second return is false when
// the point lands outside [0, rings) and must be dropped.
type ringSource interface {
	rowFor(p Point) (int, bool)
}

// fieldRingSource trusts the sensor-provided ring index.
type fieldRingSource struct {
	rings int
}

func (s fieldRingSource) rowFor(p Point) (int, bool) {
	r := int(p.Ring)
	if r < 0 || r >= s.rings {
		return 0, false
	}
	return r, true
}

// elevationRingSource buckets the computed vertical angle. Angles below the
// bottom ring drop the point rather than folding into ring 0.
type elevationRingSource struct {
	rings     int
	bottomDeg float64
	resDeg    float64
}

func (s elevationRingSource) rowFor(p Point) (int, bool) {
	vertical := math.Atan2(float64(p.Z), math.Hypot(float64(p.X), float64(p.Y))) * 180.0 / math.Pi
	f := (vertical + s.bottomDeg) / s.resDeg
	if f < 0 {
		return 0, false
	}
	r := int(f)
	if r >= s.rings {
		return 0, false
	}
	return r, true
}

func newRingSource(p SegmenterParams) ringSource {
	if p.UseRingField {
		return fieldRingSource{rings: p.Rings}
	}
	return elevationRingSource{
		rings:     p.Rings,
		bottomDeg: p.BottomAngleDeg,
		resDeg:    p.VerticalResDeg,
	}
}
