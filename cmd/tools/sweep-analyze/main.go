// Command sweep-analyze replays a pcap capture of rotating-lidar packets
// through the full segmentation pipeline offline and prints a summary:
// packet and sweep counts, ground and cluster totals, per-sweep latency.
// It can also record the run to sqlite for later comparison and render
// per-sweep count plots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sweepsegment/internal/config"
	"github.com/banshee-data/sweepsegment/internal/security"
	"github.com/banshee-data/sweepsegment/internal/sweep"
	"github.com/banshee-data/sweepsegment/internal/sweep/monitor"
	"github.com/banshee-data/sweepsegment/internal/sweep/network"
	"github.com/banshee-data/sweepsegment/internal/sweep/parse"
	"github.com/banshee-data/sweepsegment/internal/sweep/pipeline"
	"github.com/banshee-data/sweepsegment/internal/sweep/store"
	"github.com/banshee-data/sweepsegment/internal/version"
)

// analyzeConfig holds configuration for one analysis pass.
type analyzeConfig struct {
	PCAPFile   string
	OutputDir  string
	SensorID   string
	UDPPort    int
	DBPath     string
	TuningPath string
	Plots      bool
	ExportJSON bool
	Verbose    bool
}

// analysisResult is the aggregate outcome of replaying one capture.
type analysisResult struct {
	PCAPFile         string        `json:"pcap_file"`
	SensorID         string        `json:"sensor_id"`
	ToolVersion      string        `json:"tool_version"`
	RunID            string        `json:"run_id,omitempty"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	ReplayDuration   time.Duration `json:"replay_duration_ns"`

	Packets         int64 `json:"packets"`
	PacketBytes     int64 `json:"packet_bytes"`
	RejectedPackets int64 `json:"rejected_packets"`
	PointsParsed    int64 `json:"points_parsed"`

	Sweeps          uint64 `json:"sweeps"`
	SweepsSkipped   uint64 `json:"sweeps_skipped"`
	PointsIn        uint64 `json:"points_in"`
	PointsProjected uint64 `json:"points_projected"`
	GroundPoints    uint64 `json:"ground_points"`
	SegmentsFound   uint64 `json:"segments_found"`
	SegmentedPoints uint64 `json:"segmented_points"`
	OutlierPoints   uint64 `json:"outlier_points"`

	MeanSweepMs float64 `json:"mean_sweep_ms"`
	P95SweepMs  float64 `json:"p95_sweep_ms"`
	MaxSweepMs  float64 `json:"max_sweep_ms"`

	LastSweepSegments *monitor.SegmentSizeSummary `json:"last_sweep_segment_sizes,omitempty"`
	PlotsGenerated    int                         `json:"plots_generated,omitempty"`
	PlotDir           string                      `json:"plot_dir,omitempty"`
}

// sampleCollector records each processed sweep's counts and forwards the
// output to the plot sampler when plotting is enabled. The pipeline invokes
// Sample from its single callback worker, so no locking is needed.
type sampleCollector struct {
	plotter *monitor.SweepPlotter
	counts  []sweep.SweepCounts
}

func (c *sampleCollector) Sample(out *sweep.SegmentationOutput) {
	c.counts = append(c.counts, out.Counts)
	if c.plotter != nil {
		c.plotter.Sample(out)
	}
}

func main() {
	cfg := parseFlags()

	if cfg.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: pcap file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(cfg.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: pcap file not found: %s\n", cfg.PCAPFile)
		os.Exit(1)
	}
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	w := sweep.LogWriters{Ops: os.Stderr}
	if cfg.Verbose {
		w.Diag = os.Stderr
	}
	sweep.SetLogWriters(w)

	result, err := analyzePCAP(cfg)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	printSummary(result)

	if cfg.ExportJSON {
		if err := exportJSON(cfg, result); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
	}
}

func parseFlags() analyzeConfig {
	cfg := analyzeConfig{}

	flag.StringVar(&cfg.PCAPFile, "pcap", "", "Path to pcap file (required)")
	flag.StringVar(&cfg.OutputDir, "output", ".", "Output directory for results")
	flag.StringVar(&cfg.SensorID, "sensor", "velodyne-vlp16", "Sensor ID")
	flag.IntVar(&cfg.UDPPort, "port", 2368, "UDP port carrying sensor data in the capture")
	flag.StringVar(&cfg.DBPath, "db", "", "SQLite database path (optional, records the run)")
	flag.StringVar(&cfg.TuningPath, "tuning", "", "Tuning config JSON (default: built-in VLP-16 profile)")
	flag.BoolVar(&cfg.Plots, "plots", false, "Render per-sweep count plots")
	flag.BoolVar(&cfg.ExportJSON, "json", true, "Export the summary to JSON")
	flag.BoolVar(&cfg.Verbose, "v", false, "Verbose output")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Offline sweep segmentation over a pcap capture:\n")
		fmt.Fprintf(os.Stderr, "  1. Parse UDP packets into ranged points\n")
		fmt.Fprintf(os.Stderr, "  2. Assemble points into whole rotations\n")
		fmt.Fprintf(os.Stderr, "  3. Project each rotation into a ring x azimuth range image\n")
		fmt.Fprintf(os.Stderr, "  4. Mark ground, label connected components, collect clusters\n")
		fmt.Fprintf(os.Stderr, "  5. Print aggregate statistics (and optionally plots, JSON, sqlite)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pcap capture.pcap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pcap capture.pcap -plots -db runs.db -output ./results\n", os.Args[0])
	}

	flag.Parse()
	return cfg
}

func analyzePCAP(cfg analyzeConfig) (*analysisResult, error) {
	startTime := time.Now()

	tuning, err := loadTuning(cfg.TuningPath)
	if err != nil {
		return nil, err
	}
	params := sweep.SegmenterParamsFromTuning(tuning)

	parserConfig, err := parse.LoadVLP16Config()
	if err != nil {
		return nil, fmt.Errorf("load sensor configuration: %w", err)
	}
	if err := parserConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor configuration: %w", err)
	}
	parser := parse.NewVLP16Parser(*parserConfig)
	parse.ConfigureTimestampMode(parser)

	if err := sweep.ValidateRingSupport(params, parser.ProvidesRing()); err != nil {
		return nil, err
	}

	segmenter, err := sweep.NewSegmenter(params)
	if err != nil {
		return nil, fmt.Errorf("create segmenter: %w", err)
	}

	result := &analysisResult{
		PCAPFile:    cfg.PCAPFile,
		SensorID:    cfg.SensorID,
		ToolVersion: version.String(),
	}

	// Optional run record.
	var db *store.SweepDB
	if cfg.DBPath != "" {
		db, err = store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sweep database: %w", err)
		}
		defer db.Close()

		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode segmenter params: %w", err)
		}
		result.RunID, err = db.StartRun(cfg.SensorID, "pcap:"+cfg.PCAPFile, paramsJSON)
		if err != nil {
			return nil, fmt.Errorf("start run record: %w", err)
		}
	}

	// Optional plots.
	collector := &sampleCollector{}
	if cfg.Plots {
		plotter := monitor.NewSweepPlotter(cfg.SensorID)
		result.PlotDir = monitor.MakePlotOutputDir(filepath.Join(cfg.OutputDir, "plots"), cfg.PCAPFile)
		if err := plotter.Start(result.PlotDir); err != nil {
			return nil, fmt.Errorf("start plotter: %w", err)
		}
		collector.plotter = plotter
	}

	pipelineConfig := &pipeline.SegmentationPipelineConfig{
		SensorID:  cfg.SensorID,
		Segmenter: segmenter,
		DB:        db,
		RunID:     result.RunID,
		Plotter:   collector,
	}
	builder := sweep.NewSweepBuilder(sweep.SweepBuilderConfig{
		SensorID:       cfg.SensorID,
		SweepCallback:  pipelineConfig.NewSweepCallback(),
		MinSweepPoints: tuning.GetMinSweepPoints(),
	})

	stats := monitor.NewPacketStats()

	// Ctrl-C stops the replay but still prints what was gathered.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	replayErr := network.ReplayPCAPFile(ctx, cfg.PCAPFile, cfg.UDPPort, parser, builder, stats)
	if replayErr != nil && !errors.Is(replayErr, context.Canceled) {
		builder.Close()
		return nil, replayErr
	}
	if replayErr != nil {
		fmt.Fprintln(os.Stderr, "Replay interrupted, summarising partial results")
	}

	// Drain the callback worker before reading totals.
	builder.Close()

	if db != nil && result.RunID != "" {
		if err := db.CompleteRun(result.RunID); err != nil {
			log.Printf("Warning: failed to complete run %s: %v", result.RunID, err)
		}
	}

	packets, bytes, rejected, points, duration := stats.GetAndReset()
	result.Packets = packets
	result.PacketBytes = bytes
	result.RejectedPackets = rejected
	result.PointsParsed = points
	result.ReplayDuration = duration

	totals := segmenter.Stats()
	result.Sweeps = totals.SweepsProcessed
	result.SweepsSkipped = totals.SweepsSkipped
	result.PointsIn = totals.PointsIn
	result.PointsProjected = totals.PointsProjected
	result.GroundPoints = totals.GroundPoints
	result.SegmentsFound = totals.SegmentsFound
	result.SegmentedPoints = totals.SegmentedPoints
	result.OutlierPoints = totals.OutlierPoints

	result.MeanSweepMs, result.P95SweepMs, result.MaxSweepMs = latencyStats(collector.counts)

	// The pipeline stores a deep copy of each output, so the last sweep's
	// clouds survive the segmenter's buffer reuse.
	result.LastSweepSegments = monitor.SummarizeSegmentSizes(sweep.LatestOutput(cfg.SensorID))

	if collector.plotter != nil {
		n, err := collector.plotter.GeneratePlots()
		if err != nil {
			log.Printf("Warning: plot generation failed: %v", err)
		}
		result.PlotsGenerated = n
	}

	result.ProcessingTimeMs = time.Since(startTime).Milliseconds()
	return result, nil
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// latencyStats computes mean, p95 and max per-sweep processing time in
// milliseconds.
func latencyStats(counts []sweep.SweepCounts) (mean, p95, max float64) {
	if len(counts) == 0 {
		return 0, 0, 0
	}
	ms := make([]float64, len(counts))
	for i, c := range counts {
		ms[i] = float64(c.Duration.Microseconds()) / 1000.0
	}
	sort.Float64s(ms)
	mean = stat.Mean(ms, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, ms, nil)
	max = ms[len(ms)-1]
	return mean, p95, max
}

func percent(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

func printSummary(r *analysisResult) {
	fmt.Println("\n========== Sweep Segmentation Summary ==========")
	fmt.Printf("File: %s\n", r.PCAPFile)
	fmt.Printf("Sensor: %s\n", r.SensorID)
	if r.RunID != "" {
		fmt.Printf("Run: %s\n", r.RunID)
	}
	fmt.Printf("Processing time: %d ms\n", r.ProcessingTimeMs)
	fmt.Println()
	fmt.Printf("Packets: %d (%.1f MB), %d rejected\n",
		r.Packets, float64(r.PacketBytes)/(1024*1024), r.RejectedPackets)
	fmt.Printf("Points parsed: %d\n", r.PointsParsed)
	fmt.Println()
	fmt.Printf("Sweeps: %d processed, %d skipped\n", r.Sweeps, r.SweepsSkipped)
	fmt.Printf("Projection: %d in, %d placed (%.1f%%)\n",
		r.PointsIn, r.PointsProjected, percent(r.PointsProjected, r.PointsIn))
	fmt.Printf("Ground: %d points (%.1f%% of projected)\n",
		r.GroundPoints, percent(r.GroundPoints, r.PointsProjected))
	fmt.Printf("Clusters: %d segments, %d segmented points, %d outliers\n",
		r.SegmentsFound, r.SegmentedPoints, r.OutlierPoints)
	if r.Sweeps > 0 {
		fmt.Printf("Per-sweep latency: mean %.2f ms, p95 %.2f ms, max %.2f ms\n",
			r.MeanSweepMs, r.P95SweepMs, r.MaxSweepMs)
	}
	if s := r.LastSweepSegments; s != nil {
		fmt.Println("\nLast sweep segment sizes:")
		fmt.Printf("  %d segments, min %d, median %.0f, max %d points (mean %.1f ± %.1f)\n",
			s.Segments, s.MinPoints, s.MedianPoints, s.MaxPoints, s.MeanPoints, s.StddevPoints)
	}
	if r.PlotsGenerated > 0 {
		fmt.Printf("\nPlots: %d written to %s\n", r.PlotsGenerated, r.PlotDir)
	}
	fmt.Println("================================================")
}

func exportJSON(cfg analyzeConfig, result *analysisResult) error {
	baseName := security.SanitizeFilename(strings.TrimSuffix(filepath.Base(cfg.PCAPFile), filepath.Ext(cfg.PCAPFile)))
	jsonPath := filepath.Join(cfg.OutputDir, baseName+"_analysis.json")

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("JSON marshal: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	fmt.Printf("JSON results: %s\n", jsonPath)
	return nil
}
