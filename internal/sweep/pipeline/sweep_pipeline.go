package pipeline

import (
	"reflect"
	"time"

	"github.com/banshee-data/sweepsegment/internal/sweep"
	"github.com/banshee-data/sweepsegment/internal/sweep/store"
)

// Plotter samples each sweep's output for offline plot generation. Declared
// here so the pipeline does not import the monitor package.
type Plotter interface {
	Sample(out *sweep.SegmentationOutput)
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
// This handles the Go interface nil pitfall where interface{} != nil but the
// underlying value is nil.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// SegmentationPipelineConfig holds dependencies for the sweep pipeline
// callback.
type SegmentationPipelineConfig struct {
	SensorID  string
	Segmenter *sweep.Segmenter

	// DB, when non-nil together with RunID, receives one sweep_stats row
	// per processed sweep.
	DB    *store.SweepDB
	RunID string

	// Plotter, when non-nil, receives every output for sample collection.
	Plotter Plotter
}

// NewSweepCallback creates a SweepBuilder callback that runs each completed
// rotation through the full segmentation pipeline: projection, ground
// extraction, component labeling, snapshot publication and persistence.
//
// The Segmenter is registered under SensorID so the monitor can reach live
// params and totals. The builder delivers sweeps one at a time on its worker
// goroutine, which satisfies the Segmenter's single-caller contract and
// makes the plain closure counters below safe.
func (cfg *SegmentationPipelineConfig) NewSweepCallback() func(*sweep.Sweep) {
	sweep.RegisterSegmenter(cfg.SensorID, cfg.Segmenter)

	var processed uint64

	return func(sw *sweep.Sweep) {
		if sw == nil || len(sw.Points) == 0 {
			return
		}
		if cfg.Segmenter == nil {
			return
		}

		tracef("[Pipeline] Sweep %d arrived: %d points, stamp %s",
			sw.Seq, len(sw.Points), sw.Stamp.Format(time.RFC3339Nano))

		// Stage 1: Project and segment.
		out, err := cfg.Segmenter.Process(sw)
		if err != nil {
			// A malformed sweep is skipped, not fatal: the next rotation
			// arrives in under a second.
			opsf("[Pipeline] Sweep %d skipped: %v", sw.Seq, err)
			return
		}

		// Stage 2: Per-sweep accounting.
		c := out.Counts
		tracef("[Pipeline] Sweep %d: %d in, %d projected, %d ground, %d segments (%d pts), %d outliers in %v",
			sw.Seq, c.InputPoints, c.ProjectedPoints, c.GroundPoints,
			c.SegmentCount, c.SegmentedPoints, c.OutlierPoints,
			c.Duration.Round(time.Microsecond))
		processed++
		if processed%100 == 0 {
			diagf("[Pipeline] %d sweeps segmented for sensor %s", processed, cfg.SensorID)
		}

		// Stage 3: Publish the latest output for the monitor's debug pages.
		// StoreLatestOutput deep-copies, so the Segmenter is free to reuse
		// its buffers on the next sweep.
		sweep.StoreLatestOutput(cfg.SensorID, out)

		// Stage 4: Persist per-sweep counts.
		if cfg.DB != nil && cfg.RunID != "" {
			stat := store.SweepStat{
				RunID:           cfg.RunID,
				Seq:             out.Seq,
				Stamp:           out.Stamp,
				InputPoints:     c.InputPoints,
				ProjectedPoints: c.ProjectedPoints,
				GroundPoints:    c.GroundPoints,
				SegmentCount:    c.SegmentCount,
				SegmentedPoints: c.SegmentedPoints,
				OutlierPoints:   c.OutlierPoints,
				Duration:        c.Duration,
			}
			if err := cfg.DB.RecordSweepStat(stat); err != nil {
				opsf("[Pipeline] Failed to record stats for sweep %d: %v", sw.Seq, err)
			}
		}

		// Stage 5: Plot sampling.
		if !isNilInterface(cfg.Plotter) {
			cfg.Plotter.Sample(out)
		}
	}
}
