package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sweepsegment/internal/httputil"
	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// echartsAssetsPrefix serves the echarts runtime for the debug charts, so
// they render without bundling any JS into the binary.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the shared color ramp for value-mapped scatter charts.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// maxPointsParam reads the max_points query parameter with a default of 8000.
func maxPointsParam(r *http.Request) int {
	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}
	return maxPoints
}

// handleSegmentsPolar renders a top-down scatter (HTML) of the latest sweep's
// segment clusters using go-echarts, colored by segment id.
// This is a debugging-only endpoint (no auth) to eyeball cluster quality
// without an external viewer.
// Query params:
//   - sensor_id (optional; defaults to configured sensor)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleSegmentsPolar(w http.ResponseWriter, r *http.Request) {
	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = ws.sensorID
	}

	out := sweep.LatestOutput(sensorID)
	if out == nil {
		httputil.NotFound(w, "no segmentation output for sensor")
		return
	}
	cloud := out.PureSegmentCloud
	if len(cloud) == 0 {
		httputil.NotFound(w, "latest sweep has no segments")
		return
	}

	maxPoints := maxPointsParam(r)

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(cloud) > maxPoints {
		stride = int(math.Ceil(float64(len(cloud)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(cloud)/stride+1)
	maxAbs := 0.0
	maxSeg := float64(0)
	for i := 0; i < len(cloud); i += stride {
		p := cloud[i]
		x := float64(p.X)
		y := float64(p.Y)
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}

		// Intensity carries the 1-based segment id in this cloud.
		segID := float64(p.Intensity)
		if segID > maxSeg {
			maxSeg = segID
		}

		data = append(data, opts.ScatterData{Value: []interface{}{x, y, segID}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	if maxSeg == 0 {
		maxSeg = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sweep Segments (top-down)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Segment Clusters", Subtitle: fmt.Sprintf("sensor=%s seq=%d segments=%d points=%d stride=%d", sensorID, out.Seq, out.Counts.SegmentCount, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSeg),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)

	scatter.AddSeries("segments", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCloudsPolar renders the latest sweep's ground, segmented, and outlier
// clouds as a layered top-down scatter so their spatial split is visible at a
// glance.
// Query params:
//   - sensor_id (optional; defaults to configured sensor)
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleCloudsPolar(w http.ResponseWriter, r *http.Request) {
	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = ws.sensorID
	}

	out := sweep.LatestOutput(sensorID)
	if out == nil {
		httputil.NotFound(w, "no segmentation output for sensor")
		return
	}

	total := len(out.GroundCloud) + len(out.PureSegmentCloud) + len(out.OutlierCloud)
	if total == 0 {
		httputil.NotFound(w, "latest sweep has no cloud points")
		return
	}

	maxPoints := maxPointsParam(r)

	// One stride across all three clouds keeps their relative densities honest.
	stride := 1
	if total > maxPoints {
		stride = int(math.Ceil(float64(total) / float64(maxPoints)))
	}

	maxAbs := 0.0
	series := func(cloud []sweep.Point) []opts.ScatterData {
		data := make([]opts.ScatterData, 0, len(cloud)/stride+1)
		for i := 0; i < len(cloud); i += stride {
			x := float64(cloud[i].X)
			y := float64(cloud[i].Y)
			if math.Abs(x) > maxAbs {
				maxAbs = math.Abs(x)
			}
			if math.Abs(y) > maxAbs {
				maxAbs = math.Abs(y)
			}
			data = append(data, opts.ScatterData{Value: []interface{}{x, y}})
		}
		return data
	}

	groundPts := series(out.GroundCloud)
	segmentPts := series(out.PureSegmentCloud)
	outlierPts := series(out.OutlierCloud)

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	subtitle := fmt.Sprintf(
		"sensor=%s seq=%d ts=%s ground=%d segmented=%d outliers=%d stride=%d",
		sensorID,
		out.Seq,
		out.Stamp.UTC().Format(time.RFC3339),
		out.Counts.GroundPoints,
		len(out.PureSegmentCloud),
		out.Counts.OutlierPoints,
		stride,
	)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sweep Clouds (top-down)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Ground / Segmented / Outlier", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("ground", groundPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("segmented", segmentPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))
	scatter.AddSeries("outliers", outlierPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ffb300"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render clouds chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
