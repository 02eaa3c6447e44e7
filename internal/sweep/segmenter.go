package sweep

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// labelInvalid marks cells of rejected segments. Rejected cells are never
// revisited by the labeler and never receive a real segment id.
const labelInvalid = 999999

// rangeUnset fills empty range grid cells. Any real return sits far below it.
const rangeUnset = float32(math.MaxFloat32)

// SegmenterStats are cumulative totals since construction.
type SegmenterStats struct {
	SweepsProcessed uint64 `json:"sweeps_processed"`
	SweepsSkipped   uint64 `json:"sweeps_skipped"` // malformed orientation
	PointsIn        uint64 `json:"points_in"`
	PointsProjected uint64 `json:"points_projected"`
	GroundPoints    uint64 `json:"ground_points"`
	SegmentsFound   uint64 `json:"segments_found"`
	SegmentedPoints uint64 `json:"segmented_points"`
	OutlierPoints   uint64 `json:"outlier_points"`

	LastSweepAt  time.Time     `json:"last_sweep_at"`
	LastDuration time.Duration `json:"last_duration_ns"`
}

// Segmenter projects one sweep at a time into a ring x azimuth range image,
// marks ground cells, labels connected components and assembles the output
// clouds. Every scratch grid is allocated once at construction and cleared in
// place between sweeps, so Process must not be called concurrently. Stats is
// safe to call from other goroutines.
type Segmenter struct {
	params SegmenterParams
	rows   ringSource
	cells  int // Rings * AzimuthBins

	// Scratch grids, row-major ring*AzimuthBins + col.
	rangeGrid  []float32 // rangeUnset where no return landed
	groundGrid []int8    // 0=undecided, 1=ground, -1=no usable pair
	labelGrid  []int32   // 0=unassigned, -1=excluded, labelInvalid=rejected, else segment id

	fullCloud     []Point // grid order; intensity = ring + col/10000
	fullInfoCloud []Point // grid order; intensity = range

	groundCloud      []Point
	segmentedCloud   []Point
	pureSegmentCloud []Point
	outlierCloud     []Point

	info    SegmentationInfo
	labeler *componentLabeler

	mu     sync.Mutex // protects totals
	totals SegmenterStats
}

// NewSegmenter allocates a Segmenter for the given geometry. Zero-valued
// fields of params are filled from DefaultSegmenterParams before validation.
func NewSegmenter(params SegmenterParams) (*Segmenter, error) {
	params = params.fillDefaults()
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("segmenter params: %w", err)
	}

	cells := params.Rings * params.AzimuthBins
	s := &Segmenter{
		params: params,
		rows:   newRingSource(params),
		cells:  cells,

		rangeGrid:  make([]float32, cells),
		groundGrid: make([]int8, cells),
		labelGrid:  make([]int32, cells),

		fullCloud:     make([]Point, cells),
		fullInfoCloud: make([]Point, cells),

		groundCloud:      make([]Point, 0, cells),
		segmentedCloud:   make([]Point, 0, cells),
		pureSegmentCloud: make([]Point, 0, cells),
		outlierCloud:     make([]Point, 0, cells),

		info: SegmentationInfo{
			StartRingIndex: make([]int32, params.Rings),
			EndRingIndex:   make([]int32, params.Rings),
			GroundFlag:     make([]bool, 0, cells),
			ColumnIndex:    make([]int32, 0, cells),
			Range:          make([]float32, 0, cells),
		},

		labeler: newComponentLabeler(params),
	}
	s.reset()
	return s, nil
}

// Params returns the fixed configuration the Segmenter was built with.
func (s *Segmenter) Params() SegmenterParams { return s.params }

// Stats returns a snapshot of the cumulative totals.
func (s *Segmenter) Stats() SegmenterStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// reset clears every scratch grid and output buffer in place. Runs at the
// start of each Process call so the previous output stays readable until the
// next sweep begins.
func (s *Segmenter) reset() {
	for i := range s.rangeGrid {
		s.rangeGrid[i] = rangeUnset
	}
	for i := range s.groundGrid {
		s.groundGrid[i] = 0
	}
	for i := range s.labelGrid {
		s.labelGrid[i] = 0
	}
	for i := range s.fullCloud {
		s.fullCloud[i] = undefinedPoint
		s.fullInfoCloud[i] = undefinedPoint
	}

	s.groundCloud = s.groundCloud[:0]
	s.segmentedCloud = s.segmentedCloud[:0]
	s.pureSegmentCloud = s.pureSegmentCloud[:0]
	s.outlierCloud = s.outlierCloud[:0]

	s.info.StartOrientation = 0
	s.info.EndOrientation = 0
	s.info.OrientationDiff = 0
	for i := range s.info.StartRingIndex {
		s.info.StartRingIndex[i] = 0
		s.info.EndRingIndex[i] = 0
	}
	s.info.GroundFlag = s.info.GroundFlag[:0]
	s.info.ColumnIndex = s.info.ColumnIndex[:0]
	s.info.Range = s.info.Range[:0]

	s.labeler.reset()
}

// Process runs the per-sweep sequence: reset, orientation validation,
// projection, ground removal, component labeling, assembly. On a malformed
// orientation the sweep is abandoned with ErrMalformedOrientation and no
// output. An empty sweep is not an error; it produces empty clouds.
//
// The returned output aliases the Segmenter's reusable buffers and is only
// valid until the next Process call. Use Clone to retain it longer.
func (s *Segmenter) Process(raw *Sweep) (*SegmentationOutput, error) {
	started := time.Now()
	s.reset()

	counts := SweepCounts{InputPoints: len(raw.Points)}

	if len(raw.Points) > 0 {
		if err := s.validateOrientation(raw.Points); err != nil {
			s.mu.Lock()
			s.totals.SweepsSkipped++
			s.mu.Unlock()
			return nil, err
		}
		s.project(raw.Points, &counts)
	}

	s.removeGround(&counts)
	s.segment(&counts)
	s.assemble(&counts)

	counts.Duration = time.Since(started)

	out := &SegmentationOutput{
		Seq:   raw.Seq,
		Stamp: raw.Stamp,
		Frame: FrameID,

		FullCloud:        s.fullCloud,
		FullInfoCloud:    s.fullInfoCloud,
		GroundCloud:      s.groundCloud,
		SegmentedCloud:   s.segmentedCloud,
		PureSegmentCloud: s.pureSegmentCloud,
		OutlierCloud:     s.outlierCloud,

		Info:   s.info,
		Counts: counts,
	}

	s.mu.Lock()
	s.totals.SweepsProcessed++
	s.totals.PointsIn += uint64(counts.InputPoints)
	s.totals.PointsProjected += uint64(counts.ProjectedPoints)
	s.totals.GroundPoints += uint64(counts.GroundPoints)
	s.totals.SegmentsFound += uint64(counts.SegmentCount)
	s.totals.SegmentedPoints += uint64(counts.SegmentedPoints)
	s.totals.OutlierPoints += uint64(counts.OutlierPoints)
	s.totals.LastSweepAt = started
	s.totals.LastDuration = counts.Duration
	s.mu.Unlock()

	return out, nil
}
