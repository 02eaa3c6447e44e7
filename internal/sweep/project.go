package sweep

import (
	"fmt"
	"math"
)

// validateOrientation derives the sweep's angular span from its first and
// last points. One rotation must span strictly more than pi and strictly less
// than 3*pi; anything else means the sweep boundaries are corrupt and the
// sweep is abandoned before projection.
func (s *Segmenter) validateOrientation(points []Point) error {
	first := points[0]
	last := points[len(points)-1]

	start := math.Atan2(float64(first.X), float64(first.Y))
	end := math.Atan2(float64(last.X), float64(last.Y)) + 2*math.Pi
	diff := end - start

	if diff <= math.Pi || diff >= 3*math.Pi {
		return fmt.Errorf("orientation diff %.4f rad: %w", diff, ErrMalformedOrientation)
	}

	s.info.StartOrientation = start
	s.info.EndOrientation = end
	s.info.OrientationDiff = diff
	return nil
}

// project rasterizes the sweep into the range grid and the two full-size
// cloud buffers. Cell collisions keep the last write. Points outside the grid
// or closer than MinimumRange are dropped without error.
func (s *Segmenter) project(points []Point, counts *SweepCounts) {
	bins := s.params.AzimuthBins
	halfBins := bins / 2

	for _, p := range points {
		row, ok := s.rows.rowFor(p)
		if !ok {
			counts.DroppedPoints++
			continue
		}

		horizonDeg := math.Atan2(float64(p.X), float64(p.Y)) * 180.0 / math.Pi

		col := -int(math.Round((horizonDeg-90.0)/s.params.HorizontalResDeg)) + halfBins
		if col >= bins {
			col -= bins
		}
		if col < 0 || col >= bins {
			counts.DroppedPoints++
			continue
		}

		rng := math.Sqrt(float64(p.X)*float64(p.X) + float64(p.Y)*float64(p.Y) + float64(p.Z)*float64(p.Z))
		if rng < s.params.MinimumRange {
			counts.DroppedPoints++
			continue
		}

		idx := row*bins + col
		s.rangeGrid[idx] = float32(rng)

		p.Intensity = float32(row) + float32(col)/10000.0
		s.fullCloud[idx] = p

		p.Intensity = float32(rng)
		s.fullInfoCloud[idx] = p

		counts.ProjectedPoints++
	}
}
