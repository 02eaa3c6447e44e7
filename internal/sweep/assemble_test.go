package sweep

import "testing"

func TestAssemble_RingIndexMargins(t *testing.T) {
	s := makeTestSegmenter(t, SegmenterParams{})
	bins := s.params.AzimuthBins

	// 40 accepted cells in ring 8
	for c := 100; c < 140; c++ {
		setCell(s, 8, c, Point{X: float32(c), Y: 8}, 10)
		s.labelGrid[8*bins+c] = 1
	}

	var counts SweepCounts
	s.assemble(&counts)

	if got := s.info.StartRingIndex[8]; got != 4 {
		t.Errorf("ring 8: expected start index 4, got %d", got)
	}
	if got := s.info.EndRingIndex[8]; got != 34 {
		t.Errorf("ring 8: expected end index 34, got %d", got)
	}
	// rings after the filled one inherit the running length
	if got := s.info.StartRingIndex[9]; got != 44 {
		t.Errorf("ring 9: expected start index 44, got %d", got)
	}
	if got := s.info.EndRingIndex[9]; got != 34 {
		t.Errorf("ring 9: expected end index 34, got %d", got)
	}
	// empty leading rings clamp the end index at zero
	if got := s.info.StartRingIndex[0]; got != 4 {
		t.Errorf("ring 0: expected start index 4, got %d", got)
	}
	if got := s.info.EndRingIndex[0]; got != 0 {
		t.Errorf("ring 0: expected end index clamped to 0, got %d", got)
	}
	if counts.SegmentedPoints != 40 {
		t.Errorf("Expected 40 segmented points, got %d", counts.SegmentedPoints)
	}
}

func TestAssemble_GroundDownsampling(t *testing.T) {
	s := makeTestSegmenter(t, SegmenterParams{})
	bins := s.params.AzimuthBins

	// a full ring of ground: kept at every fifth column plus both edges
	for c := 0; c < bins; c++ {
		setCell(s, 2, c, Point{X: float32(c), Y: 2}, 10)
		s.groundGrid[2*bins+c] = 1
		s.labelGrid[2*bins+c] = -1
	}

	var counts SweepCounts
	s.assemble(&counts)

	want := 0
	for c := 0; c < bins; c++ {
		if c%5 == 0 || c <= 5 || c >= bins-5 {
			want++
		}
	}
	if counts.SegmentedPoints != want {
		t.Fatalf("Expected %d downsampled ground points, got %d", want, counts.SegmentedPoints)
	}
	for i := range s.info.GroundFlag {
		if !s.info.GroundFlag[i] {
			t.Fatalf("entry %d: expected ground flag set", i)
		}
	}
	// edge columns survive for wraparound continuity
	if s.info.ColumnIndex[0] != 0 || s.info.ColumnIndex[1] != 1 {
		t.Errorf("Expected leading edge columns kept, got %d, %d",
			s.info.ColumnIndex[0], s.info.ColumnIndex[1])
	}
	last := s.info.ColumnIndex[len(s.info.ColumnIndex)-1]
	if last != int32(bins-1) {
		t.Errorf("Expected trailing edge column kept, got %d", last)
	}
}

func TestAssemble_OutlierStream(t *testing.T) {
	s := makeTestSegmenter(t, SegmenterParams{})
	bins := s.params.AzimuthBins
	g := s.params.GroundRings

	// invalid above the ground rings on a fifth column: emitted
	setCell(s, g+3, 20, Point{X: 20, Y: 1}, 10)
	s.labelGrid[(g+3)*bins+20] = labelInvalid
	// invalid above the ground rings off-stride: dropped
	setCell(s, g+3, 21, Point{X: 21, Y: 1}, 10)
	s.labelGrid[(g+3)*bins+21] = labelInvalid
	// invalid inside the ground rings: dropped
	setCell(s, g-1, 25, Point{X: 25, Y: 1}, 10)
	s.labelGrid[(g-1)*bins+25] = labelInvalid

	var counts SweepCounts
	s.assemble(&counts)

	if counts.OutlierPoints != 1 {
		t.Fatalf("Expected 1 outlier point, got %d", counts.OutlierPoints)
	}
	if counts.SegmentedPoints != 0 {
		t.Errorf("Expected invalid cells absent from segmented cloud, got %d", counts.SegmentedPoints)
	}
	if got := s.outlierCloud[0].X; got != 20 {
		t.Errorf("Expected the column-20 cell in the outlier cloud, got X=%v", got)
	}
}

func TestAssemble_PureCloudCarriesLabels(t *testing.T) {
	s := makeTestSegmenter(t, SegmenterParams{})
	bins := s.params.AzimuthBins

	setCell(s, 8, 30, Point{X: 30, Y: 8}, 10)
	s.labelGrid[8*bins+30] = 1
	setCell(s, 9, 31, Point{X: 31, Y: 9}, 12)
	s.labelGrid[9*bins+31] = 2
	// ground never reaches the pure cloud
	setCell(s, 2, 32, Point{X: 32, Y: 2}, 9)
	s.groundGrid[2*bins+32] = 1
	s.labelGrid[2*bins+32] = -1

	var counts SweepCounts
	s.assemble(&counts)

	if len(s.pureSegmentCloud) != 2 {
		t.Fatalf("Expected 2 pure segment points, got %d", len(s.pureSegmentCloud))
	}
	if s.pureSegmentCloud[0].Intensity != 1 || s.pureSegmentCloud[1].Intensity != 2 {
		t.Errorf("Expected label intensities 1 and 2, got %v and %v",
			s.pureSegmentCloud[0].Intensity, s.pureSegmentCloud[1].Intensity)
	}
}

func TestAssemble_MetadataAlignment(t *testing.T) {
	s := makeTestSegmenter(t, SegmenterParams{})
	bins := s.params.AzimuthBins

	setCell(s, 8, 30, Point{X: 30, Y: 8}, 10)
	s.labelGrid[8*bins+30] = 1
	setCell(s, 2, 35, Point{X: 35, Y: 2}, 7.5)
	s.groundGrid[2*bins+35] = 1
	s.labelGrid[2*bins+35] = -1

	var counts SweepCounts
	s.assemble(&counts)

	n := len(s.segmentedCloud)
	if n != 2 {
		t.Fatalf("Expected 2 segmented points, got %d", n)
	}
	if len(s.info.GroundFlag) != n || len(s.info.ColumnIndex) != n || len(s.info.Range) != n {
		t.Fatalf("Expected metadata aligned to cloud, got %d/%d/%d for %d points",
			len(s.info.GroundFlag), len(s.info.ColumnIndex), len(s.info.Range), n)
	}
	// row-major: the ground cell in ring 2 assembles before the segment in ring 8
	if !s.info.GroundFlag[0] || s.info.GroundFlag[1] {
		t.Errorf("Expected ground flags [true false], got [%v %v]",
			s.info.GroundFlag[0], s.info.GroundFlag[1])
	}
	if s.info.ColumnIndex[0] != 35 || s.info.ColumnIndex[1] != 30 {
		t.Errorf("Expected columns [35 30], got [%d %d]",
			s.info.ColumnIndex[0], s.info.ColumnIndex[1])
	}
	if s.info.Range[0] != 7.5 || s.info.Range[1] != 10 {
		t.Errorf("Expected ranges [7.5 10], got [%v %v]",
			s.info.Range[0], s.info.Range[1])
	}
}
