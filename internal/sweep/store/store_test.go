package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sweepsegment/internal/monitoring"
)

func TestMain(m *testing.M) {
	// Keep database chatter out of test output.
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func openTestDB(t *testing.T) *SweepDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sweep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_PragmasApplied(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestOpen_SchemaApplied(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name IN ('sweep_runs', 'sweep_stats')
	`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStartRunAndGetRun(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	params := json.RawMessage(`{"rings":16,"azimuth_bins":1800}`)
	runID, err := db.StartRun("velodyne-0", "udp::2368", params)
	require.NoError(t, err)
	assert.Len(t, runID, 36) // uuid string form

	rec, err := db.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, runID, rec.RunID)
	assert.Equal(t, "velodyne-0", rec.SensorID)
	assert.Equal(t, "udp::2368", rec.Source)
	assert.JSONEq(t, string(params), string(rec.ParamsJSON))
	assert.WithinDuration(t, time.Now(), rec.StartedAt, 5*time.Second)
	assert.Nil(t, rec.CompletedAt)
	assert.Equal(t, 0, rec.SweepCount)
}

func TestGetRun_Unknown(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	rec, err := db.GetRun("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecordSweepStatsRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	runID, err := db.StartRun("velodyne-0", "pcap:drive.pcap", nil)
	require.NoError(t, err)

	stamp := time.Date(2025, 6, 1, 12, 30, 0, 500000000, time.UTC)
	for seq := uint64(1); seq <= 3; seq++ {
		err := db.RecordSweepStat(SweepStat{
			RunID:           runID,
			Seq:             seq,
			Stamp:           stamp.Add(time.Duration(seq) * 100 * time.Millisecond),
			InputPoints:     28000,
			ProjectedPoints: 27500,
			GroundPoints:    9000,
			SegmentCount:    14,
			SegmentedPoints: 12000,
			OutlierPoints:   800,
			Duration:        12340 * time.Microsecond,
		})
		require.NoError(t, err)
	}

	stats, err := db.RunSweepStats(runID, 0)
	require.NoError(t, err)
	require.Len(t, stats, 3)

	// Sweep order, full field round-trip.
	assert.Equal(t, uint64(1), stats[0].Seq)
	assert.Equal(t, uint64(3), stats[2].Seq)
	assert.True(t, stats[0].Stamp.Equal(stamp.Add(100*time.Millisecond)))
	assert.Equal(t, 28000, stats[0].InputPoints)
	assert.Equal(t, 27500, stats[0].ProjectedPoints)
	assert.Equal(t, 9000, stats[0].GroundPoints)
	assert.Equal(t, 14, stats[0].SegmentCount)
	assert.Equal(t, 12000, stats[0].SegmentedPoints)
	assert.Equal(t, 800, stats[0].OutlierPoints)
	assert.Equal(t, 12340*time.Microsecond, stats[0].Duration)
}

func TestRecordSweepStat_RequiresRun(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	err := db.RecordSweepStat(SweepStat{RunID: "no-such-run", Seq: 1, Stamp: time.Now()})
	assert.Error(t, err)
}

func TestCompleteRun(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	runID, err := db.StartRun("velodyne-0", "udp::2368", nil)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 2; seq++ {
		require.NoError(t, db.RecordSweepStat(SweepStat{RunID: runID, Seq: seq, Stamp: time.Now()}))
	}
	require.NoError(t, db.CompleteRun(runID))

	rec, err := db.GetRun(runID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.SweepCount)
	require.NotNil(t, rec.CompletedAt)
	assert.WithinDuration(t, time.Now(), *rec.CompletedAt, 5*time.Second)
}

func TestListRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.StartRun("velodyne-0", "udp::2368", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := db.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].RunID)
	assert.Equal(t, ids[0], runs[2].RunID)
}

func TestListRuns_LimitClamp(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	for i := 0; i < 5; i++ {
		_, err := db.StartRun("velodyne-0", "udp::2368", nil)
		require.NoError(t, err)
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunSweepStats_UnknownRun(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	stats, err := db.RunSweepStats("no-such-run", 0)
	require.NoError(t, err)
	assert.Empty(t, stats)
}
