// Package store persists segmentation runs and per-sweep statistics to
// sqlite. One run row is created per ingest session (live listen or pcap
// replay); each processed sweep appends a stats row, so runs can be compared
// after parameter changes.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/sweepsegment/internal/monitoring"
)

// schema.sql holds the baseline DDL for the run and sweep statistics tables.
//
//go:embed schema.sql
var schemaSQL string

// baselineVersion is the migration version the embedded schema corresponds
// to. Bump together with migrations/.
const baselineVersion = 1

// logf tags store diagnostics before they reach the shared monitoring sink.
var logf = monitoring.Prefixed("[SweepDB]")

// pragmas applied on open. WAL keeps the monitor's reads from blocking the
// pipeline's writes.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// SweepDB wraps the sqlite database holding run and sweep statistics.
type SweepDB struct {
	*sql.DB
}

// Open opens the sweep database at path, creating it if needed, and applies
// the baseline schema. A fresh database is baselined at the schema's
// migration version so later MigrateUp calls only run genuinely new
// migrations.
func Open(path string) (*SweepDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %v", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply baseline schema: %v", err)
	}

	sdb := &SweepDB{db}
	if err := sdb.ensureBaseline(); err != nil {
		db.Close()
		return nil, err
	}

	logf("database ready at %s", path)
	return sdb, nil
}

// ensureBaseline records baselineVersion in schema_migrations when the table
// is empty, so golang-migrate treats the embedded schema as already applied.
func (db *SweepDB) ensureBaseline() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER NOT NULL,
			dirty INTEGER NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS version_unique ON schema_migrations (version);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema_migrations table: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("failed to check existing migrations: %v", err)
	}
	if count > 0 {
		return nil
	}

	_, err = db.Exec("INSERT INTO schema_migrations (version, dirty) VALUES (?, 0)", baselineVersion)
	if err != nil {
		return fmt.Errorf("failed to baseline schema version: %v", err)
	}
	logf("baselined fresh database at schema version %d", baselineVersion)
	return nil
}

// RunRecord is one ingest session: a live listen or a pcap replay.
type RunRecord struct {
	RunID       string          `json:"run_id"`
	SensorID    string          `json:"sensor_id"`
	Source      string          `json:"source"`
	ParamsJSON  json.RawMessage `json:"params_json,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	SweepCount  int             `json:"sweep_count"`
}

// SweepStat is one processed sweep's statistics row.
type SweepStat struct {
	ID              int64         `json:"id"`
	RunID           string        `json:"run_id"`
	Seq             uint64        `json:"seq"`
	Stamp           time.Time     `json:"stamp"`
	InputPoints     int           `json:"input_points"`
	ProjectedPoints int           `json:"projected_points"`
	GroundPoints    int           `json:"ground_points"`
	SegmentCount    int           `json:"segment_count"`
	SegmentedPoints int           `json:"segmented_points"`
	OutlierPoints   int           `json:"outlier_points"`
	Duration        time.Duration `json:"duration_ns"`
}

// StartRun inserts a run row and returns its generated id.
func (db *SweepDB) StartRun(sensorID, source string, paramsJSON json.RawMessage) (string, error) {
	runID := uuid.New().String()
	err := retryOnBusy(func() error {
		_, err := db.Exec(`
			INSERT INTO sweep_runs (run_id, sensor_id, source, params_json, started_at)
			VALUES (?, ?, ?, ?, ?)`,
			runID, sensorID, source, nullJSON(paramsJSON),
			time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("inserting run for sensor %s: %w", sensorID, err)
	}
	return runID, nil
}

// CompleteRun stamps the run finished and records its final sweep count.
func (db *SweepDB) CompleteRun(runID string) error {
	query := `
		UPDATE sweep_runs
		SET completed_at = ?,
		    sweep_count = (SELECT COUNT(*) FROM sweep_stats WHERE run_id = ?)
		WHERE run_id = ?
	`
	err := retryOnBusy(func() error {
		_, err := db.Exec(query, time.Now().UTC().Format(time.RFC3339), runID, runID)
		return err
	})
	if err != nil {
		return fmt.Errorf("completing run %s: %w", runID, err)
	}
	return nil
}

// RecordSweepStat appends one sweep's statistics to its run.
func (db *SweepDB) RecordSweepStat(stat SweepStat) error {
	query := `
		INSERT INTO sweep_stats (
			run_id, seq, stamp_ns, input_points, projected_points,
			ground_points, segment_count, segmented_points, outlier_points,
			duration_us
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := retryOnBusy(func() error {
		_, err := db.Exec(query,
			stat.RunID, stat.Seq, stat.Stamp.UnixNano(),
			stat.InputPoints, stat.ProjectedPoints,
			stat.GroundPoints, stat.SegmentCount, stat.SegmentedPoints, stat.OutlierPoints,
			stat.Duration.Microseconds(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording sweep %d for run %s: %w", stat.Seq, stat.RunID, err)
	}
	return nil
}

// GetRun returns a single run record, or nil when the id is unknown.
func (db *SweepDB) GetRun(runID string) (*RunRecord, error) {
	query := `
		SELECT run_id, sensor_id, source, params_json, started_at, completed_at, sweep_count
		FROM sweep_runs
		WHERE run_id = ?
	`
	var rec RunRecord
	var paramsJSON, startedAt, completedAt sql.NullString

	err := db.QueryRow(query, runID).Scan(
		&rec.RunID, &rec.SensorID, &rec.Source,
		&paramsJSON, &startedAt, &completedAt, &rec.SweepCount,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}

	rec.ParamsJSON = jsonOrNil(paramsJSON)
	if startedAt.Valid {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", runID, err)
		}
		rec.StartedAt = t
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at for run %s: %w", runID, err)
		}
		rec.CompletedAt = &t
	}
	return &rec, nil
}

// ListRuns returns recent runs, newest first. The rowid tie-break keeps the
// order stable when several runs start within the same second.
func (db *SweepDB) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT run_id, sensor_id, source, params_json, started_at, completed_at, sweep_count
		FROM sweep_runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var paramsJSON, startedAt, completedAt sql.NullString

		if err := rows.Scan(&rec.RunID, &rec.SensorID, &rec.Source,
			&paramsJSON, &startedAt, &completedAt, &rec.SweepCount); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}

		rec.ParamsJSON = jsonOrNil(paramsJSON)
		if startedAt.Valid {
			t, err := time.Parse(time.RFC3339, startedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing started_at for run row: %w", err)
			}
			rec.StartedAt = t
		}
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339, completedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing completed_at for run row: %w", err)
			}
			rec.CompletedAt = &t
		}

		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// RunSweepStats returns a run's per-sweep statistics in sweep order.
func (db *SweepDB) RunSweepStats(runID string, limit int) ([]SweepStat, error) {
	if limit <= 0 {
		limit = 1000
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT id, run_id, seq, stamp_ns, input_points, projected_points,
		       ground_points, segment_count, segmented_points, outlier_points,
		       duration_us
		FROM sweep_stats
		WHERE run_id = ?
		ORDER BY seq ASC
		LIMIT ?
	`
	rows, err := db.Query(query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sweep stats for run %s: %w", runID, err)
	}
	defer rows.Close()

	var stats []SweepStat
	for rows.Next() {
		var stat SweepStat
		var stampNs, durationUs int64

		if err := rows.Scan(&stat.ID, &stat.RunID, &stat.Seq, &stampNs,
			&stat.InputPoints, &stat.ProjectedPoints,
			&stat.GroundPoints, &stat.SegmentCount, &stat.SegmentedPoints,
			&stat.OutlierPoints, &durationUs); err != nil {
			return nil, fmt.Errorf("scanning sweep stat row: %w", err)
		}

		stat.Stamp = time.Unix(0, stampNs).UTC()
		stat.Duration = time.Duration(durationUs) * time.Microsecond
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// isSQLiteBusy reports whether err is a transient SQLITE_BUSY/locked error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs fn, retrying with exponential backoff while sqlite
// reports the database busy. Gives up after five attempts and returns the
// last error.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 5
	delay := 10 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err = fn()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return err
}

// nullJSON returns a sql-friendly value for a JSON blob, treating nil or
// empty as NULL.
func nullJSON(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	return &s
}

// jsonOrNil converts a sql.NullString to json.RawMessage, returning nil for
// NULL values.
func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
