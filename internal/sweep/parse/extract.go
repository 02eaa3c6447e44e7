package parse

import (
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/sweepsegment/internal/sweep"
)

/*
Velodyne VLP-16 LiDAR Packet Parser

The VLP-16 streams fixed-format 1206-byte UDP payloads containing distance
measurements from 16 laser channels organized into 12 data blocks per packet,
producing up to 384 3D points per packet.

PACKET STRUCTURE (1206 bytes total):
├── Data Blocks (1200 bytes) - 12 blocks × 100 bytes each, starting at offset 0
│   └── Each block: 2-byte flag (0xFFEE) + 2-byte azimuth + 32 channels × 3 bytes (distance + reflectivity)
│       The 32 channel records are two consecutive firing sequences of the 16 lasers, in firing order
└── Tail (6 bytes) - 4-byte microsecond timestamp + return mode byte + product ID byte

PARSER ARCHITECTURE:
1. Packet validation (size check)
2. Tail parsing (timestamp, return mode, product ID)
3. Data block parsing with flag validation (12 iterations)
4. Per-point azimuth interpolation from firing timing
5. Coordinate transformation (spherical → Cartesian) with ring assignment

FIRING TIMING:
One laser firing takes 2.304 μs; a full 16-laser sequence plus recharge takes
55.296 μs, so a block spans 110.592 μs. The sensor reports one azimuth per
block, sampled at the start of the first sequence. Individual returns get
their azimuth interpolated toward the next block's azimuth using these
timings, matching the interpolation in Velodyne's own sample code.

DUAL RETURN MODE:
When the return mode byte reads 0x39 the sensor transmits each firing twice
(strongest and last return) in consecutive blocks sharing one azimuth. The
rotation step is then measured two blocks apart and both returns are emitted;
the downstream grid projection collapses duplicates last-write-wins.

DATA RATES (from the VLP-16 user manual):
- 754 data packets/s in single return mode (1508 in dual)
- ~300,000 points/s
- 0.4° azimuth advance per block at 600 RPM
*/

// Velodyne VLP-16 packet structure constants
// These define the fixed format of UDP data packets sent by VLP-16 sensors
const (
	PACKET_SIZE         = 1206                                                                      // UDP data packet payload size in bytes
	BLOCKS_PER_PACKET   = 12                                                                        // Number of data blocks per packet
	CHANNELS_PER_BLOCK  = 32                                                                        // Channel records per block (two 16-laser firing sequences)
	LASERS_PER_SEQUENCE = 16                                                                        // Laser channels fired per sequence (the sensor's 16 lasers)
	BYTES_PER_CHANNEL   = 3                                                                         // Channel data size: 2 bytes distance + 1 byte reflectivity
	BLOCK_FLAG_SIZE     = 2                                                                         // Block flag size (0xFFEE marker)
	AZIMUTH_SIZE        = 2                                                                         // Azimuth field size in each data block (2 bytes, little-endian)
	BLOCK_SIZE          = BLOCK_FLAG_SIZE + AZIMUTH_SIZE + (CHANNELS_PER_BLOCK * BYTES_PER_CHANNEL) // 100 bytes total per block
	RANGING_DATA_SIZE   = BLOCKS_PER_PACKET * BLOCK_SIZE                                            // 1200 bytes total for all blocks
	TAIL_START          = RANGING_DATA_SIZE                                                         // Fixed tail offset after 12 × 100-byte blocks
	TAIL_SIZE           = 6                                                                         // 4-byte timestamp + 2 factory bytes

	// Physical measurement conversion constants
	DISTANCE_RESOLUTION = 0.002 // Distance unit: 2mm per LSB (converts raw values to meters)
	AZIMUTH_RESOLUTION  = 0.01  // Azimuth unit: 0.01 degrees per LSB (converts raw values to degrees)
	ROTATION_MAX_UNITS  = 36000 // Maximum azimuth value representing 360.00 degrees

	// Firing timing constants in microseconds, from the VLP-16 user manual
	SINGLE_FIRING_USEC = 2.304             // One laser firing
	SEQUENCE_USEC      = 55.296            // 16 firings + recharge
	BLOCK_USEC         = 2 * SEQUENCE_USEC // Two firing sequences per block

	// Factory byte values (packet tail)
	RETURN_MODE_STRONGEST = 0x37 // Strongest return only
	RETURN_MODE_LAST      = 0x38 // Last return only
	RETURN_MODE_DUAL      = 0x39 // Strongest and last return, paired blocks
	PRODUCT_ID_VLP16      = 0x22 // VLP-16 / Puck LITE product ID
)

// VLP16Config holds the per-laser geometry table embedded in the binary.
// The VLP-16 ships no per-unit calibration file; this table is the factory
// geometry shared by every unit and is what assigns rings and elevations.
type VLP16Config struct {
	LaserAngles [LASERS_PER_SEQUENCE]LaserAngle // Per-laser elevation and lens offset
}

// LaserAngle describes one laser channel's fixed mounting geometry.
type LaserAngle struct {
	Laser          int     // Laser channel id (0-15, firing order)
	Elevation      float64 // Vertical angle in degrees (relative to horizontal plane)
	VerticalOffset float64 // Lens vertical offset in millimeters, applied to z
}

// DataBlock represents one of 12 data blocks within a packet
// Each block carries two full firing sequences at a single reported azimuth
type DataBlock struct {
	Azimuth  uint16                          // Raw azimuth angle in 0.01-degree units
	Channels [CHANNELS_PER_BLOCK]ChannelData // Two 16-laser sequences in firing order
}

// ChannelData represents the raw measurement from a single laser firing
type ChannelData struct {
	Distance     uint16 // Raw distance in 2mm units (0 = no return)
	Reflectivity uint8  // Laser return intensity value (0-255)
}

// PacketTail represents the 6-byte tail at the end of each data packet
type PacketTail struct {
	Timestamp  uint32 // Microseconds since the top of the hour (sensor clock)
	ReturnMode uint8  // 0x37 Strongest, 0x38 Last, 0x39 Dual
	ProductID  uint8  // 0x22 for VLP-16
}

// TimestampMode defines how packet timestamps should be interpreted
type TimestampMode int

const (
	TimestampModeSystemTime TimestampMode = iota // Use system reception time (default)
	TimestampModeTopOfHour                       // Reconstruct from the sensor's microseconds-past-the-hour clock
)

// VLP16Parser converts raw VLP-16 UDP payloads into Cartesian points with
// elevation-ordered ring assignments.
type VLP16Parser struct {
	config        VLP16Config                // Laser geometry table
	rings         [LASERS_PER_SEQUENCE]int16 // Laser id → elevation-ordered ring index
	timestampMode TimestampMode              // How to interpret the tail timestamp
	packetCount   int                        // Counter for debugging purposes
	warnedProduct bool                       // One-shot flag for unexpected product id logging
	debug         bool                       // Enable debug logging
	debugPackets  int                        // Number of initial packets to debug log
}

// NewVLP16Parser creates a parser instance with the provided geometry table.
// Rings are assigned bottom to top by elevation, so the table must pass
// Validate before use.
func NewVLP16Parser(config VLP16Config) *VLP16Parser {
	return &VLP16Parser{
		config:       config,
		rings:        config.ringOrder(),
		debugPackets: 10, // Default to 10 initial packets for debug logging
	}
}

// SetTimestampMode configures how the parser interprets packet timestamps
func (p *VLP16Parser) SetTimestampMode(mode TimestampMode) {
	p.timestampMode = mode
}

// SetDebug enables or disables debug logging
func (p *VLP16Parser) SetDebug(enabled bool) {
	p.debug = enabled
}

// SetDebugPackets sets the number of initial packets to debug log
func (p *VLP16Parser) SetDebugPackets(count int) {
	p.debugPackets = count
}

// ProvidesRing reports that parsed points carry a sensor-native ring index.
func (p *VLP16Parser) ProvidesRing() bool {
	return true
}

// ParsePacket parses a complete UDP payload from a VLP-16 sensor into a slice
// of Cartesian points plus the packet's resolved wall-clock time.
// The payload must be exactly 1206 bytes; position packets and truncated reads
// are rejected. Returns up to 384 points (12 blocks × 32 channels, excluding
// zero-distance returns).
func (p *VLP16Parser) ParsePacket(data []byte) ([]sweep.Point, time.Time, error) {
	// Increment packet counter for debugging
	p.packetCount++

	if len(data) != PACKET_SIZE {
		return nil, time.Time{}, fmt.Errorf("invalid packet size: expected %d, got %d", PACKET_SIZE, len(data))
	}

	tail, err := p.parseTail(data[TAIL_START : TAIL_START+TAIL_SIZE])
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse tail: %v", err)
	}

	if tail.ProductID != PRODUCT_ID_VLP16 && !p.warnedProduct {
		log.Printf("Unexpected product ID 0x%02x (expected 0x%02x for VLP-16); parsing anyway", tail.ProductID, PRODUCT_ID_VLP16)
		p.warnedProduct = true
	}

	// Debug packet tail fields if enabled (first few packets only)
	if p.debug && p.packetCount <= p.debugPackets {
		log.Printf("Packet %d tail: Timestamp=%d μs, ReturnMode=0x%02x, ProductID=0x%02x",
			p.packetCount, tail.Timestamp, tail.ReturnMode, tail.ProductID)
	}

	// Parse all 12 blocks up front: azimuth interpolation needs the next
	// block's azimuth before any of this block's points can be generated.
	var blocks [BLOCKS_PER_PACKET]*DataBlock
	dataOffset := 0
	for blockIdx := 0; blockIdx < BLOCKS_PER_PACKET; blockIdx++ {
		block, err := p.parseDataBlock(data[dataOffset : dataOffset+BLOCK_SIZE])
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to parse block %d: %v", blockIdx, err)
		}
		blocks[blockIdx] = block
		dataOffset += BLOCK_SIZE
	}

	// In dual-return mode consecutive blocks repeat one firing's azimuth, so
	// the rotation step is measured two blocks apart.
	step := 1
	if tail.ReturnMode == RETURN_MODE_DUAL {
		step = 2
	}

	points := make([]sweep.Point, 0, BLOCKS_PER_PACKET*CHANNELS_PER_BLOCK)
	var lastGap float64
	for blockIdx := 0; blockIdx < BLOCKS_PER_PACKET; blockIdx++ {
		// Trailing blocks have no successor in this packet; reuse the most
		// recent gap, which is within 0.01° at any sane rotation speed.
		gap := lastGap
		if blockIdx+step < BLOCKS_PER_PACKET {
			diff := (int(blocks[blockIdx+step].Azimuth) - int(blocks[blockIdx].Azimuth) + ROTATION_MAX_UNITS) % ROTATION_MAX_UNITS
			gap = float64(diff) * AZIMUTH_RESOLUTION
			lastGap = gap
		}
		points = append(points, p.blockToPoints(blocks[blockIdx], gap)...)
	}

	return points, p.packetTime(tail, time.Now()), nil
}

// parseDataBlock parses a single 100-byte data block
// Block format: 2 bytes flag (0xFFEE) + 2 bytes azimuth + (32 × 3 bytes channel data)
func (p *VLP16Parser) parseDataBlock(data []byte) (*DataBlock, error) {
	if len(data) < BLOCK_SIZE {
		return nil, fmt.Errorf("insufficient data for block: expected %d bytes, got %d", BLOCK_SIZE, len(data))
	}

	// Validate block flag (0xFFEE)
	flag := binary.LittleEndian.Uint16(data[0:2])
	if flag != 0xEEFF { // 0xFFEE appears as 0xEEFF in little-endian
		return nil, fmt.Errorf("invalid block flag: expected 0xEEFF, got 0x%04X", flag)
	}

	block := &DataBlock{
		Azimuth: binary.LittleEndian.Uint16(data[2:4]), // Raw azimuth in 0.01-degree units (after flag)
	}
	if block.Azimuth >= ROTATION_MAX_UNITS {
		return nil, fmt.Errorf("azimuth %d out of range (max %d)", block.Azimuth, ROTATION_MAX_UNITS-1)
	}

	// Parse measurement data for all 32 channel records (after flag + azimuth)
	channelOffset := BLOCK_FLAG_SIZE + AZIMUTH_SIZE
	for i := 0; i < CHANNELS_PER_BLOCK; i++ {
		block.Channels[i] = ChannelData{
			Distance:     binary.LittleEndian.Uint16(data[channelOffset : channelOffset+2]),
			Reflectivity: data[channelOffset+2],
		}
		channelOffset += BYTES_PER_CHANNEL
	}

	return block, nil
}

// parseTail parses the 6-byte packet tail: the sensor's microsecond timestamp
// plus the two factory bytes identifying return mode and product.
func (p *VLP16Parser) parseTail(data []byte) (*PacketTail, error) {
	if len(data) != TAIL_SIZE {
		return nil, fmt.Errorf("invalid tail size: expected %d, got %d", TAIL_SIZE, len(data))
	}

	return &PacketTail{
		Timestamp:  binary.LittleEndian.Uint32(data[0:4]), // Bytes 0-3, little-endian
		ReturnMode: data[4],
		ProductID:  data[5],
	}, nil
}

// packetTime resolves the wall-clock time for a packet under the configured
// timestamp mode. now is injected so the top-of-hour reconstruction stays
// testable.
func (p *VLP16Parser) packetTime(tail *PacketTail, now time.Time) time.Time {
	switch p.timestampMode {
	case TimestampModeTopOfHour:
		// The sensor clock counts microseconds past the hour. The sensor and
		// host clocks can sit on opposite sides of an hour rollover, so shift
		// by one hour when the reconstruction lands more than 30 minutes from
		// the host clock.
		hour := now.UTC().Truncate(time.Hour)
		t := hour.Add(time.Duration(tail.Timestamp) * time.Microsecond)
		if t.Sub(now) > 30*time.Minute {
			t = t.Add(-time.Hour)
		} else if now.Sub(t) > 30*time.Minute {
			t = t.Add(time.Hour)
		}
		return t
	case TimestampModeSystemTime:
		fallthrough
	default:
		return now
	}
}

// blockToPoints converts one block's raw measurements into Cartesian points.
// gapDeg is the azimuth advance to the next firing block; per-laser azimuths
// are interpolated across it using the firing timings. Each block can produce
// up to 32 points, excluding zero-distance returns.
func (p *VLP16Parser) blockToPoints(block *DataBlock, gapDeg float64) []sweep.Point {
	// Pre-allocate slice with capacity for maximum possible points
	points := make([]sweep.Point, 0, CHANNELS_PER_BLOCK)

	baseAzimuth := float64(block.Azimuth) * AZIMUTH_RESOLUTION

	for channelIdx := 0; channelIdx < CHANNELS_PER_BLOCK; channelIdx++ {
		channelData := block.Channels[channelIdx]

		// Skip invalid measurements - distance of 0 means no laser return
		if channelData.Distance == 0 {
			continue
		}

		// Channel records arrive in firing order: lasers 0-15, then 0-15 again
		laser := channelIdx % LASERS_PER_SEQUENCE
		sequence := channelIdx / LASERS_PER_SEQUENCE

		// Interpolate this firing's azimuth between block azimuths using its
		// time offset within the block
		fireOffset := SINGLE_FIRING_USEC*float64(laser) + SEQUENCE_USEC*float64(sequence)
		azimuth := baseAzimuth + gapDeg*(fireOffset/BLOCK_USEC)
		if azimuth >= 360 {
			azimuth -= 360
		}

		// Convert raw distance measurement to meters using 2mm resolution
		distance := float64(channelData.Distance) * DISTANCE_RESOLUTION

		angles := p.config.LaserAngles[laser]

		// Convert spherical coordinates to Cartesian (X=right, Y=forward, Z=up)
		// and apply the lens vertical offset
		x, y, z := sweep.SphericalToCartesian(distance, azimuth, angles.Elevation)
		z += angles.VerticalOffset / 1000.0

		points = append(points, sweep.Point{
			X:         float32(x),
			Y:         float32(y),
			Z:         float32(z),
			Intensity: float32(channelData.Reflectivity),
			Ring:      p.rings[laser],
		})
	}

	return points
}
