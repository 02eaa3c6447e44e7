package monitor

import (
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// chartOutput builds a segmentation output with three segment clusters, a
// ground plane, and a few outliers, then stores it for the given sensor.
func chartOutput(t *testing.T, sensorID string) *sweep.SegmentationOutput {
	t.Helper()

	out := &sweep.SegmentationOutput{
		Seq:   42,
		Stamp: time.Unix(1700000000, 0),
		Frame: sweep.FrameID,
	}

	// Three clusters at different bearings; Intensity carries the segment id.
	for seg := 1; seg <= 3; seg++ {
		center := float64(seg) * 2.0 * math.Pi / 3.0
		for i := 0; i < 40; i++ {
			angle := center + float64(i)*0.004
			out.PureSegmentCloud = append(out.PureSegmentCloud, sweep.Point{
				X:         float32(8.0 * math.Cos(angle)),
				Y:         float32(8.0 * math.Sin(angle)),
				Z:         0.5,
				Intensity: float32(seg),
				Ring:      int16(i % 16),
			})
		}
	}

	for i := 0; i < 60; i++ {
		angle := float64(i) * 0.1
		out.GroundCloud = append(out.GroundCloud, sweep.Point{
			X:         float32(4.0 * math.Cos(angle)),
			Y:         float32(4.0 * math.Sin(angle)),
			Z:         -1.2,
			Intensity: 20,
			Ring:      int16(i % 7),
		})
	}

	for i := 0; i < 10; i++ {
		out.OutlierCloud = append(out.OutlierCloud, sweep.Point{
			X:         float32(12 + i),
			Y:         float32(-3 - i),
			Z:         1.0,
			Intensity: 5,
			Ring:      int16(i % 16),
		})
	}

	out.Counts = sweep.SweepCounts{
		InputPoints:     28800,
		ProjectedPoints: 190,
		GroundPoints:    60,
		SegmentCount:    3,
		SegmentedPoints: 120,
		OutlierPoints:   10,
	}

	sweep.StoreLatestOutput(sensorID, out)
	return out
}

func chartServer(sensorID string) *WebServer {
	return NewWebServer(WebServerConfig{
		Address:  ":0",
		Stats:    NewPacketStats(),
		UDPPort:  2368,
		SensorID: sensorID,
	})
}

func TestWebServer_HandleSegmentsPolar(t *testing.T) {
	sensorID := "chart-segments-" + time.Now().Format("150405")
	chartOutput(t, sensorID)

	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/segments/polar", nil)
	rec := httptest.NewRecorder()

	server.handleSegmentsPolar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}

	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML content type, got %s", rec.Header().Get("Content-Type"))
	}

	body := rec.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("Rendered chart should reference the echarts runtime")
	}
	if !strings.Contains(body, "Segment Clusters") {
		t.Error("Rendered chart should carry the segments title")
	}
	if !strings.Contains(body, "segments=3") {
		t.Error("Chart subtitle should report the segment count")
	}
}

func TestWebServer_HandleSegmentsPolar_NoOutput(t *testing.T) {
	sensorID := "chart-missing-" + time.Now().Format("150405")
	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/segments/polar", nil)
	rec := httptest.NewRecorder()

	server.handleSegmentsPolar(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without stored output, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "no segmentation output") {
		t.Errorf("expected missing-output error, got: %s", rec.Body.String())
	}
}

func TestWebServer_HandleSegmentsPolar_NoSegments(t *testing.T) {
	sensorID := "chart-nosegs-" + time.Now().Format("150405")

	// Ground-only output: projection ran but nothing clustered.
	out := &sweep.SegmentationOutput{Seq: 7, Stamp: time.Unix(1700000000, 0), Frame: sweep.FrameID}
	for i := 0; i < 20; i++ {
		out.GroundCloud = append(out.GroundCloud, sweep.Point{X: float32(i), Y: 1, Z: -1.2})
	}
	sweep.StoreLatestOutput(sensorID, out)

	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/segments/polar", nil)
	rec := httptest.NewRecorder()

	server.handleSegmentsPolar(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for segment-free sweep, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "no segments") {
		t.Errorf("expected no-segments error, got: %s", rec.Body.String())
	}
}

func TestWebServer_HandleSegmentsPolar_SensorIDOverride(t *testing.T) {
	sensorID := "chart-override-" + time.Now().Format("150405")
	chartOutput(t, sensorID)

	// Configured sensor has no output; query param selects the one that does.
	server := chartServer("chart-override-other")

	req := httptest.NewRequest(http.MethodGet, "/debug/segments/polar?sensor_id="+sensorID, nil)
	rec := httptest.NewRecorder()

	server.handleSegmentsPolar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK with sensor_id override, got %d", rec.Code)
	}
}

func TestWebServer_HandleCloudsPolar(t *testing.T) {
	sensorID := "chart-clouds-" + time.Now().Format("150405")
	chartOutput(t, sensorID)

	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/clouds/polar", nil)
	rec := httptest.NewRecorder()

	server.handleCloudsPolar(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}

	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML content type, got %s", rec.Header().Get("Content-Type"))
	}

	body := rec.Body.String()
	if !strings.Contains(body, "echarts") {
		t.Error("Rendered chart should reference the echarts runtime")
	}
	for _, series := range []string{"ground", "segmented", "outliers"} {
		if !strings.Contains(body, series) {
			t.Errorf("Rendered chart should contain the %q series", series)
		}
	}
}

func TestWebServer_HandleCloudsPolar_NoPoints(t *testing.T) {
	sensorID := "chart-empty-" + time.Now().Format("150405")

	// Stored output with all clouds empty.
	sweep.StoreLatestOutput(sensorID, &sweep.SegmentationOutput{Seq: 1, Stamp: time.Unix(1700000000, 0)})

	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/clouds/polar", nil)
	rec := httptest.NewRecorder()

	server.handleCloudsPolar(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty clouds, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "no cloud points") {
		t.Errorf("expected no-points error, got: %s", rec.Body.String())
	}
}

func TestWebServer_HandleCloudsPolar_NoOutput(t *testing.T) {
	sensorID := "chart-clouds-missing-" + time.Now().Format("150405")
	server := chartServer(sensorID)

	req := httptest.NewRequest(http.MethodGet, "/debug/clouds/polar", nil)
	rec := httptest.NewRecorder()

	server.handleCloudsPolar(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without stored output, got %d", rec.Code)
	}
}

func TestMaxPointsParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 8000},
		{"max_points=500", 500},
		{"max_points=50000", 50000},
		{"max_points=50", 8000},     // below minimum
		{"max_points=100", 8000},    // at the exclusive minimum
		{"max_points=99999", 8000},  // above maximum
		{"max_points=potato", 8000}, // not a number
	}

	for _, tt := range tests {
		url := "/debug/segments/polar"
		if tt.query != "" {
			url += "?" + tt.query
		}
		req := httptest.NewRequest(http.MethodGet, url, nil)
		if got := maxPointsParam(req); got != tt.want {
			t.Errorf("maxPointsParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func BenchmarkWebServer_HandleSegmentsPolar(b *testing.B) {
	sensorID := fmt.Sprintf("chart-bench-%d", time.Now().UnixNano())

	out := &sweep.SegmentationOutput{Seq: 1, Stamp: time.Now(), Frame: sweep.FrameID}
	for seg := 1; seg <= 8; seg++ {
		for i := 0; i < 200; i++ {
			out.PureSegmentCloud = append(out.PureSegmentCloud, sweep.Point{
				X:         float32(seg) + float32(i)*0.01,
				Y:         float32(i) * 0.02,
				Intensity: float32(seg),
			})
		}
	}
	out.Counts.SegmentCount = 8
	sweep.StoreLatestOutput(sensorID, out)

	server := chartServer(sensorID)
	req := httptest.NewRequest(http.MethodGet, "/debug/segments/polar", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		server.handleSegmentsPolar(rec, req)
	}
}
