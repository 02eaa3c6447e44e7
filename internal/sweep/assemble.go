package sweep

// ringMargin is the per-ring edge allowance reserved in the segmented cloud
// index spans; neighbor-context feature extraction must never cross a ring
// boundary.
const ringMargin = 5

// downsampleStride thins dense ground and outlier columns to every fifth.
const downsampleStride = 5

// assemble linearizes accepted and ground cells into the segmented cloud and
// its aligned metadata, ring by ring, then fills the debug clouds. Ground
// columns away from the image edges are downsampled; edge columns survive so
// wraparound continuity holds for feature extraction.
func (s *Segmenter) assemble(counts *SweepCounts) {
	p := s.params
	bins := p.AzimuthBins

	for row := 0; row < p.Rings; row++ {
		s.info.StartRingIndex[row] = int32(len(s.segmentedCloud) - 1 + ringMargin)

		for col := 0; col < bins; col++ {
			idx := row*bins + col
			label := s.labelGrid[idx]
			isGround := s.groundGrid[idx] == 1

			if label <= 0 && !isGround {
				continue
			}
			if label == labelInvalid {
				if row > p.GroundRings && col%downsampleStride == 0 {
					s.outlierCloud = append(s.outlierCloud, s.fullCloud[idx])
				}
				continue
			}
			if isGround && col%downsampleStride != 0 && col > ringMargin && col < bins-ringMargin {
				continue
			}

			s.info.GroundFlag = append(s.info.GroundFlag, isGround)
			s.info.ColumnIndex = append(s.info.ColumnIndex, int32(col))
			s.info.Range = append(s.info.Range, s.rangeGrid[idx])
			s.segmentedCloud = append(s.segmentedCloud, s.fullCloud[idx])
		}

		end := len(s.segmentedCloud) - 1 - ringMargin
		if end < 0 {
			end = 0
		}
		s.info.EndRingIndex[row] = int32(end)
	}

	for idx := 0; idx < s.cells; idx++ {
		if label := s.labelGrid[idx]; label > 0 && label != labelInvalid {
			pt := s.fullCloud[idx]
			pt.Intensity = float32(label)
			s.pureSegmentCloud = append(s.pureSegmentCloud, pt)
		}
	}

	counts.SegmentedPoints = len(s.segmentedCloud)
	counts.OutlierPoints = len(s.outlierCloud)
}
