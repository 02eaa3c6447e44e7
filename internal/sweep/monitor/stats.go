package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current ingest statistics
type StatsSnapshot struct {
	PacketsPerSec float64   `json:"packets_per_sec"`
	MBPerSec      float64   `json:"mb_per_sec"`
	PointsPerSec  float64   `json:"points_per_sec"`
	RejectedCount int64     `json:"rejected_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// PacketStats tracks packet statistics with thread-safe operations.
// It implements the network package's stats interface, so a UDP listener
// or pcap replay can feed it directly.
type PacketStats struct {
	mu             sync.Mutex
	packetCount    int64
	byteCount      int64
	rejectedCount  int64
	pointCount     int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		startTime: now,
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped increments the count of packets the parser rejected
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectedCount++
}

// AddPoints increments parsed point count
func (ps *PacketStats) AddPoints(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.pointCount += int64(count)
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() (packets int64, bytes int64, rejected int64, points int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	packets = ps.packetCount
	bytes = ps.byteCount
	rejected = ps.rejectedCount
	points = ps.pointCount

	ps.packetCount = 0
	ps.byteCount = 0
	ps.rejectedCount = 0
	ps.pointCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics and stores a snapshot for the web
// interface. Rates cover the interval since the previous call.
func (ps *PacketStats) LogStats() {
	packets, bytes, rejected, points, duration := ps.GetAndReset()
	if packets > 0 || rejected > 0 {
		packetsPerSec := float64(packets) / duration.Seconds()
		mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
		pointsPerSec := float64(points) / duration.Seconds()

		// Store snapshot for web interface
		ps.mu.Lock()
		ps.latestSnapshot = &StatsSnapshot{
			PacketsPerSec: packetsPerSec,
			MBPerSec:      mbPerSec,
			PointsPerSec:  pointsPerSec,
			RejectedCount: rejected,
			Timestamp:     time.Now(),
		}
		ps.mu.Unlock()

		var logMsg string
		if points > 0 {
			logMsg = fmt.Sprintf("Sweep ingest (/sec): %.2f MB, %.1f packets, %s points",
				mbPerSec, packetsPerSec, FormatWithCommas(int64(pointsPerSec)))
		} else {
			logMsg = fmt.Sprintf("Sweep ingest (/sec): %.2f MB, %.1f packets",
				mbPerSec, packetsPerSec)
		}

		if rejected > 0 {
			logMsg += fmt.Sprintf(", %d rejected by parser", rejected)
		}

		log.Print(logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for web interface
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
