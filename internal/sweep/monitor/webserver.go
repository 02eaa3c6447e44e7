package monitor

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/sweepsegment/internal/httputil"
	"github.com/banshee-data/sweepsegment/internal/sweep"
	"github.com/banshee-data/sweepsegment/internal/sweep/store"
	"github.com/banshee-data/sweepsegment/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring a segmentation daemon.
// It provides endpoints for health checks, live statistics, run history,
// and debug charts of the most recently segmented sweep.
type WebServer struct {
	address  string
	stats    *PacketStats
	server   *http.Server
	udpPort  int
	pcapFile string
	db       *store.SweepDB
	sensorID string
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address string
	Stats   *PacketStats
	UDPPort int
	// PcapFile labels the status page when replaying a capture instead of
	// listening live.
	PcapFile string
	DB       *store.SweepDB
	SensorID string
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		stats:    config.Stats,
		udpPort:  config.UDPPort,
		pcapFile: config.PcapFile,
		db:       config.DB,
		sensorID: config.SensorID,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/api/params", ws.handleParams)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/sweeps", ws.handleSweeps)
	mux.HandleFunc("/debug/segments/polar", ws.handleSegmentsPolar)
	mux.HandleFunc("/debug/clouds/polar", ws.handleCloudsPolar)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "sweepsegment", "version": "%s", "timestamp": "%s"}`,
		version.Version, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	// Determine the ingest source label
	source := fmt.Sprintf("udp :%d", ws.udpPort)
	if ws.pcapFile != "" {
		source = "pcap " + ws.pcapFile
	}

	uptime := "n/a"
	var snapshot *StatsSnapshot
	if ws.stats != nil {
		uptime = ws.stats.GetUptime().Round(time.Second).String()
		snapshot = ws.stats.GetLatestSnapshot()
	}

	var segStats *sweep.SegmenterStats
	if seg := sweep.GetSegmenter(ws.sensorID); seg != nil {
		s := seg.Stats()
		segStats = &s
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		SensorID    string
		HTTPAddress string
		Source      string
		Uptime      string
		Stats       *StatsSnapshot
		Seg         *sweep.SegmenterStats
	}{
		SensorID:    ws.sensorID,
		HTTPAddress: ws.address,
		Source:      source,
		Uptime:      uptime,
		Stats:       snapshot,
		Seg:         segStats,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// handleStats returns a JSON roll-up of ingest, builder, and segmenter
// statistics for one sensor.
// Query params:
//
//	sensor_id (optional; defaults to configured sensor)
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = ws.sensorID
	}

	resp := struct {
		SensorID      string                   `json:"sensor_id"`
		UptimeSeconds float64                  `json:"uptime_seconds"`
		Ingest        *StatsSnapshot           `json:"ingest,omitempty"`
		Builder       *sweep.SweepBuilderStats `json:"builder,omitempty"`
		Segmenter     *sweep.SegmenterStats    `json:"segmenter,omitempty"`
		Segments      *SegmentSizeSummary      `json:"segments,omitempty"`
	}{SensorID: sensorID}

	if ws.stats != nil {
		resp.UptimeSeconds = ws.stats.GetUptime().Seconds()
		resp.Ingest = ws.stats.GetLatestSnapshot()
	}
	if sb := sweep.GetSweepBuilder(sensorID); sb != nil {
		s := sb.Stats()
		resp.Builder = &s
	}
	if seg := sweep.GetSegmenter(sensorID); seg != nil {
		s := seg.Stats()
		resp.Segmenter = &s
	}
	resp.Segments = SummarizeSegmentSizes(sweep.LatestOutput(sensorID))

	httputil.WriteJSONOK(w, resp)
}

// handleParams returns the live segmentation parameters for one sensor.
// Query params:
//
//	sensor_id (optional; defaults to configured sensor)
func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = ws.sensorID
	}

	seg := sweep.GetSegmenter(sensorID)
	if seg == nil {
		httputil.NotFound(w, fmt.Sprintf("no segmenter for sensor '%s'", sensorID))
		return
	}

	httputil.WriteJSONOK(w, seg.Params())
}

// handleRuns returns a JSON array of recent ingest runs.
// Query params:
//
//	limit (optional, default 20, max 100)
func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for run lookup")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	runs, err := ws.db.ListRuns(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list runs: %v", err))
		return
	}

	httputil.WriteJSONOK(w, runs)
}

// handleSweeps returns a JSON array of per-sweep statistics for one run.
// Query params:
//
//	run_id (required)
//	limit (optional, default 1000, max 10000)
func (ws *WebServer) handleSweeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.db == nil {
		httputil.InternalServerError(w, "no database configured for sweep lookup")
		return
	}

	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "missing 'run_id' parameter")
		return
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		fmt.Sscanf(l, "%d", &limit)
	}

	stats, err := ws.db.RunSweepStats(runID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("run sweep stats: %v", err))
		return
	}

	httputil.WriteJSONOK(w, stats)
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
