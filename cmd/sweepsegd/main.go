// Command sweepsegd ingests rotating-lidar packets, segments each completed
// sweep into ground and obstacle clusters, and serves a monitoring UI with
// live statistics and debug charts. Packets arrive over UDP from a live
// sensor or from a replayed pcap capture; results are persisted per run to
// sqlite.
//
// Database migrations are exposed as a subcommand:
//
//	sweepsegd -db sweep.db migrate up|down|version|force <v>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/banshee-data/sweepsegment/internal/config"
	"github.com/banshee-data/sweepsegment/internal/sweep"
	"github.com/banshee-data/sweepsegment/internal/sweep/monitor"
	"github.com/banshee-data/sweepsegment/internal/sweep/network"
	"github.com/banshee-data/sweepsegment/internal/sweep/parse"
	"github.com/banshee-data/sweepsegment/internal/sweep/pipeline"
	"github.com/banshee-data/sweepsegment/internal/sweep/store"
	"github.com/banshee-data/sweepsegment/internal/version"
)

var (
	listen        = flag.String("listen", ":8081", "HTTP listen address for the monitor")
	udpPort       = flag.Int("udp-port", 2368, "UDP port to listen for sensor packets")
	udpAddress    = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	pcapFile      = flag.String("pcap", "", "Replay a pcap capture instead of listening for live packets")
	dbFile        = flag.String("db", "sweep.db", "Path to the SQLite database file (empty disables persistence)")
	sensorID      = flag.String("sensor", "velodyne-vlp16", "Sensor ID used for registries and run records")
	tuningPath    = flag.String("tuning", "", "Path to a tuning config JSON (default: built-in VLP-16 profile)")
	rcvBuf        = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes")
	migrationsDir = flag.String("migrations", "internal/sweep/store/migrations", "Migrations directory for the migrate subcommand")
	verbose       = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace         = flag.Bool("trace", false, "Enable per-sweep trace logging (implies -verbose)")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("sweepsegd %s\n", version.String())
		return
	}

	configureLogging()

	if flag.NArg() > 0 {
		runSubcommand(flag.Args())
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	log.Printf("sweepsegd %s starting", version.String())

	// Construct UDP listen address
	var udpListenAddr string
	if *udpAddress == "" {
		udpListenAddr = fmt.Sprintf(":%d", *udpPort)
	} else {
		udpListenAddr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
	}

	tuning := loadTuning()
	params := sweep.SegmenterParamsFromTuning(tuning)

	// Packet parser with the embedded laser calibration table.
	parserConfig, err := parse.LoadVLP16Config()
	if err != nil {
		log.Fatalf("Failed to load sensor configuration: %v", err)
	}
	if err := parserConfig.Validate(); err != nil {
		log.Fatalf("Invalid sensor configuration: %v", err)
	}
	parser := parse.NewVLP16Parser(*parserConfig)
	parse.ConfigureTimestampMode(parser)

	// Refuse to start with a ring-dependent projection the parser cannot feed.
	if err := sweep.ValidateRingSupport(params, parser.ProvidesRing()); err != nil {
		log.Fatalf("Segmentation params incompatible with packet source: %v", err)
	}

	segmenter, err := sweep.NewSegmenter(params)
	if err != nil {
		log.Fatalf("Failed to create segmenter: %v", err)
	}

	// Initialize database and open a run row for this ingest session.
	var db *store.SweepDB
	var runID string
	if *dbFile != "" {
		db, err = store.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open sweep database: %v", err)
		}
		defer db.Close()

		paramsJSON, err := json.Marshal(params)
		if err != nil {
			log.Fatalf("Failed to encode segmenter params: %v", err)
		}
		runID, err = db.StartRun(*sensorID, runSource(), paramsJSON)
		if err != nil {
			log.Fatalf("Failed to start run record: %v", err)
		}
		log.Printf("Started run %s for sensor %s", runID, *sensorID)
	} else {
		log.Print("Persistence disabled (empty -db)")
	}

	stats := monitor.NewPacketStats()

	pipelineConfig := &pipeline.SegmentationPipelineConfig{
		SensorID:  *sensorID,
		Segmenter: segmenter,
		DB:        db,
		RunID:     runID,
	}
	builder := sweep.NewSweepBuilder(sweep.SweepBuilderConfig{
		SensorID:       *sensorID,
		SweepCallback:  pipelineConfig.NewSweepCallback(),
		MinSweepPoints: tuning.GetMinSweepPoints(),
	})
	sweep.RegisterSweepBuilder(*sensorID, builder)

	// Create a wait group for the ingest and monitor routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ingest routine: pcap replay or live UDP listener.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *pcapFile != "" {
			if err := network.ReplayPCAPFile(ctx, *pcapFile, *udpPort, parser, builder, stats); err != nil && err != context.Canceled {
				log.Printf("pcap replay error: %v", err)
			}
			// Keep the monitor up after replay so the last sweep's debug
			// charts stay inspectable until the process is interrupted.
			log.Print("pcap replay finished; monitor remains available")
			return
		}

		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address:     udpListenAddr,
			RcvBuf:      *rcvBuf,
			LogInterval: tuning.GetStatsInterval(),
			Stats:       stats,
			Parser:      parser,
			Builder:     builder,
		})
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()

	// Monitor HTTP server routine.
	wg.Add(1)
	go func() {
		defer wg.Done()
		server := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  *listen,
			Stats:    stats,
			UDPPort:  *udpPort,
			PcapFile: *pcapFile,
			DB:       db,
			SensorID: *sensorID,
		})
		if err := server.Start(ctx); err != nil && err != http.ErrServerClosed {
			log.Printf("Monitor server error: %v", err)
		}
		log.Print("Monitor server routine stopped")
	}()

	// Wait for all goroutines to finish, then drain the callback worker
	// before closing out the run so the final sweep's stats row lands.
	wg.Wait()
	builder.Close()

	if db != nil && runID != "" {
		if err := db.CompleteRun(runID); err != nil {
			log.Printf("Failed to complete run %s: %v", runID, err)
		} else {
			log.Printf("Completed run %s", runID)
		}
	}

	log.Print("Graceful shutdown complete")
}

// configureLogging wires the segmentation log streams to stderr according to
// the verbosity flags. Ops-level output is always on.
func configureLogging() {
	if *trace {
		*verbose = true
	}
	w := sweep.LogWriters{Ops: os.Stderr}
	if *verbose {
		w.Diag = os.Stderr
	}
	if *trace {
		w.Trace = os.Stderr
	}
	sweep.SetLogWriters(w)
}

// loadTuning returns the tuning overlay from -tuning, or the built-in
// defaults when the flag is empty.
func loadTuning() *config.TuningConfig {
	if *tuningPath == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*tuningPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config %s: %v", *tuningPath, err)
	}
	log.Printf("Loaded tuning config from %s", *tuningPath)
	return cfg
}

// runSource labels the run record with where packets came from.
func runSource() string {
	if *pcapFile != "" {
		return "pcap:" + *pcapFile
	}
	return fmt.Sprintf("udp:%d", *udpPort)
}

// runSubcommand dispatches non-flag arguments. Only the migrate subcommand
// is recognized.
func runSubcommand(args []string) {
	if args[0] != "migrate" {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		printMigrateUsage()
		os.Exit(1)
	}
	if len(args) < 2 {
		printMigrateUsage()
		os.Exit(1)
	}
	if *dbFile == "" {
		log.Fatal("migrate requires -db")
	}

	db, err := store.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open sweep database: %v", err)
	}
	defer db.Close()

	switch args[1] {
	case "up":
		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Print("Migrations applied")
	case "down":
		if err := db.MigrateDown(*migrationsDir); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		log.Print("Rolled back one migration")
	case "version":
		v, dirty, err := db.MigrateVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("migrate version: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", v, dirty)
	case "force":
		if len(args) < 3 {
			log.Fatal("migrate force requires a version argument")
		}
		v, err := strconv.Atoi(args[2])
		if err != nil {
			log.Fatalf("Invalid version %q: %v", args[2], err)
		}
		if err := db.MigrateForce(*migrationsDir, v); err != nil {
			log.Fatalf("migrate force: %v", err)
		}
		log.Printf("Forced migration version to %d", v)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate action: %s\n\n", args[1])
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Fprintln(os.Stderr, `Usage: sweepsegd [flags] migrate <action>

Actions:
  up         Apply all pending migrations
  down       Roll back the most recent migration
  version    Print the current migration version and dirty state
  force <v>  Force the migration version (recovery from a dirty state)`)
}
