package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sweepsegment/internal/security"
	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// SweepPlotter records per-sweep segmentation counts over a run for offline
// visualization. The pipeline feeds it one Sample per processed sweep;
// GeneratePlots() afterwards writes PNG time series into the output
// directory.
type SweepPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	sensorID  string

	samples  []SweepSample
	sweepIdx int
}

// SweepSample is one sweep's counts as captured for plotting.
type SweepSample struct {
	SweepIdx  int
	Stamp     time.Time
	Projected int
	Ground    int
	Segments  int
	Segmented int
	Outliers  int
	Duration  time.Duration
}

// plotPalette colors the count series in a fixed order.
var plotPalette = []color.Color{
	color.RGBA{R: 66, G: 133, B: 244, A: 255},
	color.RGBA{R: 52, G: 168, B: 83, A: 255},
	color.RGBA{R: 234, G: 67, B: 53, A: 255},
	color.RGBA{R: 251, G: 188, B: 4, A: 255},
}

// NewSweepPlotter creates a plotter for the given sensor.
func NewSweepPlotter(sensorID string) *SweepPlotter {
	return &SweepPlotter{sensorID: sensorID}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/transit-001/20260107_173129")
func (sp *SweepPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	sp.outputDir = outputDir
	sp.enabled = true
	sp.samples = nil
	sp.sweepIdx = 0
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (sp *SweepPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (sp *SweepPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// Sample records one processed sweep's counts. Called by the pipeline once
// per sweep; ignored while the plotter is stopped.
func (sp *SweepPlotter) Sample(out *sweep.SegmentationOutput) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.enabled || out == nil {
		return
	}

	sp.sweepIdx++
	c := out.Counts
	sp.samples = append(sp.samples, SweepSample{
		SweepIdx:  sp.sweepIdx,
		Stamp:     out.Stamp,
		Projected: c.ProjectedPoints,
		Ground:    c.GroundPoints,
		Segments:  c.SegmentCount,
		Segmented: c.SegmentedPoints,
		Outliers:  c.OutlierPoints,
		Duration:  c.Duration,
	})
}

// GeneratePlots creates PNG time series of the recorded counts.
// Returns the number of plots generated and any error.
func (sp *SweepPlotter) GeneratePlots() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	if len(sp.samples) == 0 {
		return 0, nil
	}

	written := 0
	if err := sp.generatePointsPlot(); err != nil {
		return written, err
	}
	written++

	if err := sp.generateSegmentsPlot(); err != nil {
		return written, err
	}
	written++

	if err := sp.generateDurationPlot(); err != nil {
		return written, err
	}
	written++

	return written, nil
}

// generatePointsPlot draws the per-sweep cloud sizes as one line per cloud.
func (sp *SweepPlotter) generatePointsPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Points per Sweep", sp.sensorID)
	p.X.Label.Text = "Sweep"
	p.Y.Label.Text = "Points"

	series := []struct {
		name  string
		value func(SweepSample) float64
	}{
		{"projected", func(s SweepSample) float64 { return float64(s.Projected) }},
		{"ground", func(s SweepSample) float64 { return float64(s.Ground) }},
		{"segmented", func(s SweepSample) float64 { return float64(s.Segmented) }},
		{"outliers", func(s SweepSample) float64 { return float64(s.Outliers) }},
	}

	for i, sr := range series {
		pts := make(plotter.XYs, 0, len(sp.samples))
		for _, s := range sp.samples {
			pts = append(pts, plotter.XY{X: float64(s.SweepIdx), Y: sr.value(s)})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotPalette[i%len(plotPalette)]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(sr.name, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(sp.outputDir, "sweep_points.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save points plot: %w", err)
	}
	return nil
}

// generateSegmentsPlot draws the segment count found in each sweep.
func (sp *SweepPlotter) generateSegmentsPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Segments per Sweep", sp.sensorID)
	p.X.Label.Text = "Sweep"
	p.Y.Label.Text = "Segments"

	pts := make(plotter.XYs, 0, len(sp.samples))
	for _, s := range sp.samples {
		pts = append(pts, plotter.XY{X: float64(s.SweepIdx), Y: float64(s.Segments)})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotPalette[0]
	line.Width = vg.Points(1)
	p.Add(line)

	file := filepath.Join(sp.outputDir, "sweep_segments.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save segments plot: %w", err)
	}
	return nil
}

// generateDurationPlot draws per-sweep processing time in milliseconds.
func (sp *SweepPlotter) generateDurationPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Processing Time per Sweep", sp.sensorID)
	p.X.Label.Text = "Sweep"
	p.Y.Label.Text = "Milliseconds"

	pts := make(plotter.XYs, 0, len(sp.samples))
	for _, s := range sp.samples {
		ms := float64(s.Duration) / float64(time.Millisecond)
		pts = append(pts, plotter.XY{X: float64(s.SweepIdx), Y: ms})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = plotPalette[2]
	line.Width = vg.Points(1)
	p.Add(line)

	file := filepath.Join(sp.outputDir, "sweep_duration.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save duration plot: %w", err)
	}
	return nil
}

// GetOutputDir returns the current output directory for plots.
func (sp *SweepPlotter) GetOutputDir() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.outputDir
}

// GetSampleCount returns the number of sweeps recorded so far.
func (sp *SweepPlotter) GetSampleCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.samples)
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
// For PCAP files: <baseDir>/<pcap_basename>/<timestamp>
// For live data: <baseDir>/live_<timestamp>
func MakePlotOutputDir(baseDir, pcapFile string) string {
	ts := FormatTimestamp(time.Now())
	if pcapFile != "" {
		// Use PCAP basename without extension
		base := filepath.Base(pcapFile)
		ext := filepath.Ext(base)
		name := security.SanitizeFilename(base[:len(base)-len(ext)])
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
