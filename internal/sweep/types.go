package sweep

import (
	"math"
	"time"
)

// FrameID is the sensor-fixed frame tag carried by every emitted cloud.
const FrameID = "base_link"

// Point is one LiDAR return in sensor-frame Cartesian coordinates
// (X=right, Y=forward, Z=up). Ring is the 0-based scan line the return
// came from, or -1 when the source does not report one.
type Point struct {
	X         float32
	Y         float32
	Z         float32
	Intensity float32
	Ring      int16
}

// undefinedPoint fills grid cells that received no return this sweep.
// Intensity -1 is the cheap unfilled test used by the ground and assembly
// stages; coordinates are NaN so stray consumers fail loudly.
var undefinedPoint = Point{
	X:         float32(math.NaN()),
	Y:         float32(math.NaN()),
	Z:         float32(math.NaN()),
	Intensity: -1,
	Ring:      -1,
}

// Sweep is one full rotation of returns in arrival order.
type Sweep struct {
	Seq    uint64
	Stamp  time.Time
	Points []Point
}

// SegmentationInfo describes one segmented cloud: the sweep's angular span,
// a per-ring index window into the segmented cloud, and per-point
// provenance aligned index-for-index with the segmented cloud.
//
// StartRingIndex/EndRingIndex bracket each ring's points with a 5-point
// margin on both sides so neighbor-context feature extraction never crosses
// a ring boundary.
type SegmentationInfo struct {
	StartOrientation float64
	EndOrientation   float64
	OrientationDiff  float64

	StartRingIndex []int32
	EndRingIndex   []int32

	GroundFlag  []bool
	ColumnIndex []int32
	Range       []float32
}

// SweepCounts breaks down what happened to one sweep's input points.
type SweepCounts struct {
	InputPoints     int
	ProjectedPoints int
	DroppedPoints   int
	GroundPoints    int
	SegmentCount    int
	SegmentedPoints int
	OutlierPoints   int
	Duration        time.Duration
}

// SegmentationOutput bundles the six per-sweep clouds and their metadata.
//
// All slices alias the Segmenter's reusable buffers and are only valid
// until the next Process call; asynchronous consumers must copy what they
// keep. FullCloud and FullInfoCloud are full grid rasterizations of
// Rings*AzimuthBins cells including undefinedPoint placeholders; the other
// clouds are dense.
type SegmentationOutput struct {
	Seq   uint64
	Stamp time.Time
	Frame string

	FullCloud        []Point
	FullInfoCloud    []Point
	GroundCloud      []Point
	SegmentedCloud   []Point
	PureSegmentCloud []Point
	OutlierCloud     []Point

	Info   SegmentationInfo
	Counts SweepCounts
}

// Clone deep-copies an output so it can outlive the Segmenter's buffers.
func (o *SegmentationOutput) Clone() *SegmentationOutput {
	if o == nil {
		return nil
	}
	c := *o
	c.FullCloud = append([]Point(nil), o.FullCloud...)
	c.FullInfoCloud = append([]Point(nil), o.FullInfoCloud...)
	c.GroundCloud = append([]Point(nil), o.GroundCloud...)
	c.SegmentedCloud = append([]Point(nil), o.SegmentedCloud...)
	c.PureSegmentCloud = append([]Point(nil), o.PureSegmentCloud...)
	c.OutlierCloud = append([]Point(nil), o.OutlierCloud...)
	c.Info.StartRingIndex = append([]int32(nil), o.Info.StartRingIndex...)
	c.Info.EndRingIndex = append([]int32(nil), o.Info.EndRingIndex...)
	c.Info.GroundFlag = append([]bool(nil), o.Info.GroundFlag...)
	c.Info.ColumnIndex = append([]int32(nil), o.Info.ColumnIndex...)
	c.Info.Range = append([]float32(nil), o.Info.Range...)
	return &c
}
