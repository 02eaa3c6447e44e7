package sweep

import (
	"math"
	"sync"
	"time"
)

// Global registry for SweepBuilder instances keyed by sensor ID.
var (
	sbRegistry   = map[string]*SweepBuilder{}
	sbRegistryMu = &sync.RWMutex{}
)

// RegisterSweepBuilder registers a SweepBuilder for a sensor ID.
func RegisterSweepBuilder(sensorID string, sb *SweepBuilder) {
	if sensorID == "" || sb == nil {
		return
	}
	sbRegistryMu.Lock()
	defer sbRegistryMu.Unlock()
	sbRegistry[sensorID] = sb
}

// GetSweepBuilder returns a registered SweepBuilder or nil.
func GetSweepBuilder(sensorID string) *SweepBuilder {
	sbRegistryMu.RLock()
	defer sbRegistryMu.RUnlock()
	return sbRegistry[sensorID]
}

// Rotation detection constants.
const (
	// MinSweepCoverage is the azimuth span (degrees) a rotation must cover
	// before a wrap may complete it.
	MinSweepCoverage = 340.0

	// DefaultMinSweepPoints is the default point count a rotation needs
	// before a wrap may complete it.
	DefaultMinSweepPoints = 1000
)

// SweepBuilderStats is a snapshot of builder progress.
type SweepBuilderStats struct {
	SweepsBuilt     uint64  `json:"sweeps_built"`
	SweepsDropped   uint64  `json:"sweeps_dropped"` // evicted by a fresher sweep
	PointsIn        uint64  `json:"points_in"`
	CurrentPoints   int     `json:"current_points"`
	LastAzimuth     float64 `json:"last_azimuth"`
	AzimuthCoverage float64 `json:"azimuth_coverage"`
}

// SweepBuilderConfig configures a SweepBuilder.
type SweepBuilderConfig struct {
	SensorID string

	// SweepCallback receives each completed rotation. Callbacks run one at
	// a time on a single worker goroutine.
	SweepCallback func(*Sweep)

	// MinSweepPoints gates rotation completion (default: DefaultMinSweepPoints).
	MinSweepPoints int
}

// SweepBuilder accumulates incoming point batches into whole rotations using
// azimuth wrap detection, then hands each completed sweep to the callback
// worker. The hand-off queue holds a single sweep and evicts the waiting one
// when a fresher rotation completes first; the sensor has no backpressure, so
// processing the newest rotation beats processing every rotation late.
type SweepBuilder struct {
	sensorID       string
	sweepCallback  func(*Sweep)
	minSweepPoints int

	sweepCh   chan *Sweep   // depth-1 hand-off to the callback worker
	sweepDone chan struct{} // closed when the callback worker exits

	mu           sync.Mutex // protect concurrent access
	current      []Point
	sweepStamp   time.Time
	lastAzimuth  float64 // previous azimuth to detect wrap; -1 until first point
	minAzimuth   float64
	maxAzimuth   float64
	sweepCounter uint64

	sweepsBuilt   uint64
	sweepsDropped uint64
	pointsIn      uint64
}

// NewSweepBuilder creates a SweepBuilder and starts its callback worker. The
// builder is registered under its sensor ID.
func NewSweepBuilder(config SweepBuilderConfig) *SweepBuilder {
	if config.MinSweepPoints == 0 {
		config.MinSweepPoints = DefaultMinSweepPoints
	}

	sb := &SweepBuilder{
		sensorID:       config.SensorID,
		sweepCallback:  config.SweepCallback,
		minSweepPoints: config.MinSweepPoints,
		lastAzimuth:    -1.0, // invalid initial value to detect first point
		minAzimuth:     360.0,
	}

	if sb.sweepCallback != nil {
		sb.sweepCh = make(chan *Sweep, 1)
		sb.sweepDone = make(chan struct{})
		go sb.sweepCallbackWorker()
	}

	RegisterSweepBuilder(config.SensorID, sb)
	return sb
}

// sweepCallbackWorker runs completed sweeps through the callback one at a
// time, so segmentation and persistence never run concurrently.
func (sb *SweepBuilder) sweepCallbackWorker() {
	defer close(sb.sweepDone)
	for sw := range sb.sweepCh {
		sb.sweepCallback(sw)
	}
}

// Close shuts down the callback worker and waits for it to drain. Must be
// called when the SweepBuilder is no longer needed to avoid goroutine leaks.
func (sb *SweepBuilder) Close() {
	if sb.sweepCh != nil {
		close(sb.sweepCh)
		<-sb.sweepDone
	}
}

// Reset discards the rotation in progress. Call when switching data sources
// (e.g. live to replay) so stale points do not contaminate the new stream.
func (sb *SweepBuilder) Reset() {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	sb.current = nil
	sb.lastAzimuth = -1.0
	sb.minAzimuth = 360.0
	sb.maxAzimuth = 0.0
	Diagf("SweepBuilder reset: discarded in-progress rotation for sensor=%s", sb.sensorID)
}

// Stats returns a snapshot of builder progress.
func (sb *SweepBuilder) Stats() SweepBuilderStats {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	cov := sb.maxAzimuth - sb.minAzimuth
	if cov < 0 {
		cov = 0
	}
	return SweepBuilderStats{
		SweepsBuilt:     sb.sweepsBuilt,
		SweepsDropped:   sb.sweepsDropped,
		PointsIn:        sb.pointsIn,
		CurrentPoints:   len(sb.current),
		LastAzimuth:     sb.lastAzimuth,
		AzimuthCoverage: cov,
	}
}

// AddPoints feeds a batch of points into the rotation in progress. stamp is
// the capture time of the batch; the stamp of the batch that opens a rotation
// becomes the sweep header timestamp.
func (sb *SweepBuilder) AddPoints(points []Point, stamp time.Time) {
	if len(points) == 0 {
		return
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.pointsIn += uint64(len(points))

	for _, p := range points {
		az := pointAzimuthDeg(p)

		if sb.shouldCompleteSweep(az) {
			sb.dispatchCurrentSweep()
		}

		if sb.current == nil {
			sb.current = make([]Point, 0, 30000) // pre-allocate for a full rotation
			sb.sweepStamp = stamp
			sb.minAzimuth = 360.0
			sb.maxAzimuth = 0.0
		}

		sb.current = append(sb.current, p)
		if az < sb.minAzimuth {
			sb.minAzimuth = az
		}
		if az > sb.maxAzimuth {
			sb.maxAzimuth = az
		}
		sb.lastAzimuth = az
	}
}

// shouldCompleteSweep determines whether the rotation in progress ends at
// this azimuth. Requires the crossing from high to low azimuth plus enough
// points and coverage, so partial packets never trigger false completions.
// Caller holds mu.
func (sb *SweepBuilder) shouldCompleteSweep(azimuth float64) bool {
	if sb.lastAzimuth < 0 || sb.current == nil {
		return false
	}
	if len(sb.current) < sb.minSweepPoints {
		return false
	}
	cov := sb.maxAzimuth - sb.minAzimuth
	if cov < MinSweepCoverage {
		return false
	}

	// Wrap crossing (360 -> 0) or a large negative jump, which indicates a
	// rotation boundary even when values skip the crossing band.
	if sb.lastAzimuth > 350.0 && azimuth < 10.0 {
		return true
	}
	if sb.lastAzimuth-azimuth > 180.0 {
		return true
	}
	return false
}

// dispatchCurrentSweep hands the finished rotation to the callback worker.
// If an earlier sweep is still waiting it is evicted so the freshest rotation
// runs next. Caller holds mu.
func (sb *SweepBuilder) dispatchCurrentSweep() {
	if sb.current == nil {
		return
	}

	sb.sweepCounter++
	sw := &Sweep{
		Seq:    sb.sweepCounter,
		Stamp:  sb.sweepStamp,
		Points: sb.current,
	}
	sb.current = nil
	sb.sweepsBuilt++

	Tracef("sweep %d complete: %d points, coverage %.1f deg",
		sw.Seq, len(sw.Points), sb.maxAzimuth-sb.minAzimuth)

	if sb.sweepCh == nil {
		return
	}
	select {
	case sb.sweepCh <- sw:
	default:
		select {
		case old := <-sb.sweepCh:
			sb.sweepsDropped++
			Diagf("sweep %d evicted: sweep %d completed before it ran", old.Seq, sw.Seq)
		default:
		}
		select {
		case sb.sweepCh <- sw:
		default:
		}
	}
}

// pointAzimuthDeg recovers a point's azimuth in [0, 360).
func pointAzimuthDeg(p Point) float64 {
	deg := math.Atan2(float64(p.X), float64(p.Y)) * 180.0 / math.Pi
	if deg < 0 {
		deg += 360.0
	}
	return deg
}
