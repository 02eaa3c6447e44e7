package parse

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// createTestPacket builds a synthetic single-return packet. Block azimuths
// start at startUnits and advance 40 units (0.40°) per block; every channel
// reports a 10 m return at reflectivity 100.
func createTestPacket(startUnits int) []byte {
	packet := make([]byte, PACKET_SIZE)

	offset := 0
	for block := 0; block < BLOCKS_PER_PACKET; block++ {
		// Block flag (0xFFEE) - appears as 0xEEFF in little-endian
		binary.LittleEndian.PutUint16(packet[offset:offset+2], 0xEEFF)
		offset += 2

		azimuth := (startUnits + block*40) % ROTATION_MAX_UNITS
		binary.LittleEndian.PutUint16(packet[offset:offset+2], uint16(azimuth))
		offset += 2

		for channel := 0; channel < CHANNELS_PER_BLOCK; channel++ {
			binary.LittleEndian.PutUint16(packet[offset:offset+2], 5000) // 10 m in 2mm units
			offset += 2
			packet[offset] = 100
			offset++
		}
	}

	binary.LittleEndian.PutUint32(packet[TAIL_START:TAIL_START+4], 271005) // Timestamp μs
	packet[TAIL_START+4] = RETURN_MODE_STRONGEST
	packet[TAIL_START+5] = PRODUCT_ID_VLP16

	return packet
}

// emptyPacket builds a valid packet frame with zero distances everywhere.
func emptyPacket() []byte {
	packet := make([]byte, PACKET_SIZE)
	for block := 0; block < BLOCKS_PER_PACKET; block++ {
		binary.LittleEndian.PutUint16(packet[block*BLOCK_SIZE:block*BLOCK_SIZE+2], 0xEEFF)
	}
	packet[TAIL_START+4] = RETURN_MODE_STRONGEST
	packet[TAIL_START+5] = PRODUCT_ID_VLP16
	return packet
}

func setBlockAzimuth(packet []byte, block int, units uint16) {
	binary.LittleEndian.PutUint16(packet[block*BLOCK_SIZE+2:block*BLOCK_SIZE+4], units)
}

func setChannel(packet []byte, block, channel int, distance uint16, reflectivity uint8) {
	offset := block*BLOCK_SIZE + BLOCK_FLAG_SIZE + AZIMUTH_SIZE + channel*BYTES_PER_CHANNEL
	binary.LittleEndian.PutUint16(packet[offset:offset+2], distance)
	packet[offset+2] = reflectivity
}

// recoveredAzimuth inverts the spherical transform to read an emitted point's
// azimuth back in degrees.
func recoveredAzimuth(pt sweep.Point) float64 {
	az := math.Atan2(float64(pt.X), float64(pt.Y)) * 180.0 / math.Pi
	if az < 0 {
		az += 360
	}
	return az
}

// TestPacketParsingWithMockData tests basic packet parsing with generated data
func TestPacketParsingWithMockData(t *testing.T) {
	packet := createTestPacket(0)

	config, err := LoadVLP16Config()
	if err != nil {
		t.Fatalf("Failed to load embedded config: %v", err)
	}

	parser := NewVLP16Parser(*config)
	if !parser.ProvidesRing() {
		t.Error("Expected parser to provide ring indices")
	}

	points, stamp, err := parser.ParsePacket(packet)
	if err != nil {
		t.Fatalf("Failed to parse packet: %v", err)
	}

	if len(points) != BLOCKS_PER_PACKET*CHANNELS_PER_BLOCK {
		t.Errorf("Expected %d points, got %d", BLOCKS_PER_PACKET*CHANNELS_PER_BLOCK, len(points))
	}

	if stamp.IsZero() {
		t.Error("Expected a non-zero packet time")
	}

	// First point is laser 0 at azimuth 0: forward along +Y, below the
	// horizontal plane (-15°).
	first := points[0]
	if first.Ring != 0 {
		t.Errorf("Expected ring 0 for laser 0, got %d", first.Ring)
	}
	if first.Intensity != 100 {
		t.Errorf("Expected intensity 100, got %f", first.Intensity)
	}
	if first.Z >= 0 {
		t.Errorf("Expected laser 0 (-15°) below horizon, got z=%f", first.Z)
	}
	if first.Y <= 0 {
		t.Errorf("Expected forward return at azimuth 0, got y=%f", first.Y)
	}

	dist := math.Sqrt(float64(first.X*first.X + first.Y*first.Y + first.Z*first.Z))
	if math.Abs(dist-10.0) > 0.02 {
		t.Errorf("Expected ~10 m range, got %f", dist)
	}

	// A full packet touches every laser, so all 16 rings must appear.
	var seen [LASERS_PER_SEQUENCE]bool
	for _, pt := range points {
		if pt.Ring < 0 || pt.Ring >= LASERS_PER_SEQUENCE {
			t.Fatalf("Ring %d out of range", pt.Ring)
		}
		seen[pt.Ring] = true
	}
	for ring, ok := range seen {
		if !ok {
			t.Errorf("Ring %d missing from parsed packet", ring)
		}
	}
}

// TestRingOrderMapping verifies the interleaved laser ids map to
// elevation-ordered rings.
func TestRingOrderMapping(t *testing.T) {
	parser := NewVLP16Parser(*DefaultVLP16Config())

	// Even lasers cover -15°..-1° (rings 0-7), odd lasers +1°..+15° (8-15).
	expected := map[int]int16{
		0: 0, 2: 1, 4: 2, 6: 3, 8: 4, 10: 5, 12: 6, 14: 7,
		1: 8, 3: 9, 5: 10, 7: 11, 9: 12, 11: 13, 13: 14, 15: 15,
	}
	for laser, want := range expected {
		if got := parser.rings[laser]; got != want {
			t.Errorf("Laser %d: expected ring %d, got %d", laser, want, got)
		}
	}
}

// TestAzimuthInterpolationAcrossSequences checks that the second firing
// sequence in a block is shifted toward the next block's azimuth.
func TestAzimuthInterpolationAcrossSequences(t *testing.T) {
	// Two returns from laser 0, one in each firing sequence of block 0. With
	// a 1.00° gap to the next block, the second sequence fires exactly half
	// a block later, so its azimuth advances by half the gap.
	packet := emptyPacket()
	setBlockAzimuth(packet, 0, 0)
	setBlockAzimuth(packet, 1, 100)     // 1.00°
	setChannel(packet, 0, 0, 5000, 80)  // laser 0, first sequence
	setChannel(packet, 0, 16, 5000, 80) // laser 0, second sequence

	parser := NewVLP16Parser(*DefaultVLP16Config())
	points, _, err := parser.ParsePacket(packet)
	if err != nil {
		t.Fatalf("Failed to parse packet: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 points, got %d", len(points))
	}

	az0 := recoveredAzimuth(points[0])
	az1 := recoveredAzimuth(points[1])

	if math.Abs(az0) > 0.001 {
		t.Errorf("First sequence: expected azimuth 0.00°, got %f", az0)
	}
	if math.Abs(az1-0.5) > 0.001 {
		t.Errorf("Second sequence: expected azimuth 0.50°, got %f", az1)
	}
}

// TestDualReturnAzimuthStep checks the two-block rotation step in dual mode.
func TestDualReturnAzimuthStep(t *testing.T) {
	// Dual-return packets repeat each firing in consecutive blocks at one
	// azimuth; the pairs here read 0.00°, 0.40°, 0.80°, ... The
	// second-sequence interpolation must use the two-block step (0.40°),
	// not the zero gap to the repeated neighbor block.
	packet := emptyPacket()
	for block := 0; block < BLOCKS_PER_PACKET; block++ {
		setBlockAzimuth(packet, block, uint16((block/2)*40))
	}
	packet[TAIL_START+4] = RETURN_MODE_DUAL
	setChannel(packet, 0, 16, 5000, 80) // laser 0, second sequence

	parser := NewVLP16Parser(*DefaultVLP16Config())
	points, _, err := parser.ParsePacket(packet)
	if err != nil {
		t.Fatalf("Failed to parse packet: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}

	az := recoveredAzimuth(points[0])
	if math.Abs(az-0.2) > 0.001 {
		t.Errorf("Expected azimuth 0.20° (half the 0.40° pair step), got %f", az)
	}
}

// TestPacketSizeValidation rejects anything that is not a 1206-byte payload
func TestPacketSizeValidation(t *testing.T) {
	parser := NewVLP16Parser(*DefaultVLP16Config())

	for _, size := range []int{0, 512, PACKET_SIZE - 1, PACKET_SIZE + 1} {
		if _, _, err := parser.ParsePacket(make([]byte, size)); err == nil {
			t.Errorf("Expected error for %d-byte packet, got none", size)
		}
	}
}

// TestBlockFlagValidation rejects packets with a corrupted block flag
func TestBlockFlagValidation(t *testing.T) {
	packet := createTestPacket(0)
	binary.LittleEndian.PutUint16(packet[3*BLOCK_SIZE:3*BLOCK_SIZE+2], 0x1234)

	parser := NewVLP16Parser(*DefaultVLP16Config())
	if _, _, err := parser.ParsePacket(packet); err == nil {
		t.Error("Expected error for corrupt block flag, got none")
	}
}

// TestTailParsing tests the 6-byte tail structure
func TestTailParsing(t *testing.T) {
	tailData := make([]byte, TAIL_SIZE)
	binary.LittleEndian.PutUint32(tailData[0:4], 1800000000) // 30 minutes past the hour
	tailData[4] = RETURN_MODE_LAST
	tailData[5] = PRODUCT_ID_VLP16

	parser := NewVLP16Parser(*DefaultVLP16Config())
	tail, err := parser.parseTail(tailData)
	if err != nil {
		t.Fatalf("Failed to parse tail: %v", err)
	}

	if tail.Timestamp != 1800000000 {
		t.Errorf("Expected Timestamp 1800000000, got %d", tail.Timestamp)
	}
	if tail.ReturnMode != RETURN_MODE_LAST {
		t.Errorf("Expected ReturnMode 0x%02x, got 0x%02x", RETURN_MODE_LAST, tail.ReturnMode)
	}
	if tail.ProductID != PRODUCT_ID_VLP16 {
		t.Errorf("Expected ProductID 0x%02x, got 0x%02x", PRODUCT_ID_VLP16, tail.ProductID)
	}

	if _, err := parser.parseTail(tailData[:4]); err == nil {
		t.Error("Expected error for short tail, got none")
	}
}

// TestTopOfHourTimestampMode reconstructs wall-clock time from the sensor's
// microseconds-past-the-hour counter, including hour rollover on both sides.
func TestTopOfHourTimestampMode(t *testing.T) {
	parser := NewVLP16Parser(*DefaultVLP16Config())
	parser.SetTimestampMode(TimestampModeTopOfHour)

	cases := []struct {
		name string
		now  time.Time
		usec uint32
		want time.Time
	}{
		{
			name: "mid hour",
			now:  time.Date(2025, 6, 1, 12, 40, 0, 0, time.UTC),
			usec: 30 * 60 * 1e6,
			want: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		},
		{
			name: "packet from previous hour",
			now:  time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
			usec: 59*60*1e6 + 30*1e6,
			want: time.Date(2025, 6, 1, 11, 59, 30, 0, time.UTC),
		},
		{
			name: "sensor clock rolled over first",
			now:  time.Date(2025, 6, 1, 12, 59, 50, 0, time.UTC),
			usec: 12 * 1e6,
			want: time.Date(2025, 6, 1, 13, 0, 12, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		got := parser.packetTime(&PacketTail{Timestamp: tc.usec}, tc.now)
		if !got.Equal(tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

// TestSystemTimestampMode checks the default passthrough mode
func TestSystemTimestampMode(t *testing.T) {
	parser := NewVLP16Parser(*DefaultVLP16Config())

	now := time.Date(2025, 6, 1, 12, 40, 0, 0, time.UTC)
	got := parser.packetTime(&PacketTail{Timestamp: 99}, now)
	if !got.Equal(now) {
		t.Errorf("Expected system time %v, got %v", now, got)
	}
}

// BenchmarkParsePacket benchmarks packet parsing performance
func BenchmarkParsePacket(b *testing.B) {
	packet := createTestPacket(0)
	parser := NewVLP16Parser(*DefaultVLP16Config())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, err := parser.ParsePacket(packet)
		if err != nil {
			b.Fatalf("Failed to parse packet: %v", err)
		}
	}
}
