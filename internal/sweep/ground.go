package sweep

import "math"

// groundInclinationTolerance is how far (degrees) the inclination between an
// adjacent-ring point pair may deviate from the mount angle and still count
// as ground.
const groundInclinationTolerance = 10.0

// removeGround classifies ground cells from adjacent-ring geometry, excludes
// them and every empty cell from component labeling, then collects the ground
// cloud from the lower rings.
func (s *Segmenter) removeGround(counts *SweepCounts) {
	p := s.params
	bins := p.AzimuthBins

	for i := 0; i < p.GroundRings; i++ {
		for j := 0; j < bins; j++ {
			lower := i*bins + j
			upper := (i+1)*bins + j

			// Intensity -1 is the unfilled sentinel; filled cells encode
			// ring + col/10000 which is never negative.
			if s.fullCloud[lower].Intensity == -1 || s.fullCloud[upper].Intensity == -1 {
				s.groundGrid[lower] = -1
				continue
			}

			dx := float64(s.fullCloud[upper].X - s.fullCloud[lower].X)
			dy := float64(s.fullCloud[upper].Y - s.fullCloud[lower].Y)
			dz := float64(s.fullCloud[upper].Z - s.fullCloud[lower].Z)

			angle := math.Atan2(dz, math.Hypot(dx, dy)) * 180.0 / math.Pi

			if math.Abs(angle-p.MountAngleDeg) <= groundInclinationTolerance {
				s.groundGrid[lower] = 1
				s.groundGrid[upper] = 1
			}
		}
	}

	// Ground cells and cells with no return are off-limits to the labeler.
	for idx := 0; idx < s.cells; idx++ {
		if s.groundGrid[idx] == 1 || s.rangeGrid[idx] == rangeUnset {
			s.labelGrid[idx] = -1
		}
	}

	for i := 0; i <= p.GroundRings; i++ {
		for j := 0; j < bins; j++ {
			if s.groundGrid[i*bins+j] == 1 {
				s.groundCloud = append(s.groundCloud, s.fullCloud[i*bins+j])
			}
		}
	}
	counts.GroundPoints = len(s.groundCloud)
}
