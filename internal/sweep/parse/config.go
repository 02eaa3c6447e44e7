package parse

import (
	"embed"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
)

//go:embed sensor_configs/*.csv
var embeddedConfigs embed.FS

// LoadVLP16Config loads the laser geometry table from embedded CSV files
func LoadVLP16Config() (*VLP16Config, error) {
	return LoadEmbeddedVLP16Config()
}

// LoadEmbeddedVLP16Config loads the laser geometry table from embedded CSV files only
func LoadEmbeddedVLP16Config() (*VLP16Config, error) {
	config := &VLP16Config{}

	if err := loadEmbeddedLaserAngles(config); err != nil {
		return nil, fmt.Errorf("failed to load embedded laser angles: %v", err)
	}

	return config, nil
}

// loadEmbeddedLaserAngles loads laser geometry data from embedded CSV
func loadEmbeddedLaserAngles(config *VLP16Config) error {
	file, err := embeddedConfigs.Open("sensor_configs/VLP16_Laser_Angles.csv")
	if err != nil {
		return fmt.Errorf("failed to open embedded laser angle file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read embedded CSV: %v", err)
	}

	return parseLaserAngles(records, config)
}

// parseLaserAngles parses laser geometry records into the config table.
// Every laser id 0-15 must appear exactly once.
func parseLaserAngles(records [][]string, config *VLP16Config) error {
	// Skip header row
	if len(records) < 2 {
		return fmt.Errorf("insufficient data in laser angle file")
	}

	// Validate header
	header := records[0]
	if len(header) != 3 ||
		strings.ToLower(header[0]) != "laser" ||
		strings.ToLower(header[1]) != "elevation" ||
		!strings.Contains(strings.ToLower(header[2]), "vertical") {
		return fmt.Errorf("invalid header in laser angle file, expected: Laser,Elevation,VerticalOffset(mm)")
	}

	// Parse data rows
	var seen [LASERS_PER_SEQUENCE]bool
	for i, record := range records[1:] {
		if len(record) != 3 {
			return fmt.Errorf("invalid record at line %d: expected 3 fields", i+2)
		}

		laser, err := strconv.Atoi(record[0])
		if err != nil {
			return fmt.Errorf("invalid laser id at line %d: %v", i+2, err)
		}

		elevation, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return fmt.Errorf("invalid elevation at line %d: %v", i+2, err)
		}

		offset, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return fmt.Errorf("invalid vertical offset at line %d: %v", i+2, err)
		}

		// Validate laser id range (0-15)
		if laser < 0 || laser >= LASERS_PER_SEQUENCE {
			return fmt.Errorf("laser id %d out of range (0-%d) at line %d", laser, LASERS_PER_SEQUENCE-1, i+2)
		}
		if seen[laser] {
			return fmt.Errorf("duplicate laser id %d at line %d", laser, i+2)
		}
		seen[laser] = true

		config.LaserAngles[laser] = LaserAngle{
			Laser:          laser,
			Elevation:      elevation,
			VerticalOffset: offset,
		}
	}

	for laser, ok := range seen {
		if !ok {
			return fmt.Errorf("missing laser id %d in laser angle file", laser)
		}
	}

	return nil
}

// DefaultVLP16Config returns the factory geometry from the embedded CSV
func DefaultVLP16Config() *VLP16Config {
	config, err := LoadEmbeddedVLP16Config()
	if err != nil {
		// Return empty config if embedded loading fails (shouldn't happen in normal operation)
		return &VLP16Config{}
	}
	return config
}

// Validate checks the geometry table is usable for ring assignment
func (config *VLP16Config) Validate() error {
	// Elevations must be pairwise distinct or the ring order is undefined
	elevations := make(map[float64]int, LASERS_PER_SEQUENCE)
	for i := 0; i < LASERS_PER_SEQUENCE; i++ {
		e := config.LaserAngles[i].Elevation
		if prev, dup := elevations[e]; dup {
			return fmt.Errorf("lasers %d and %d share elevation %.2f", prev, i, e)
		}
		elevations[e] = i
	}
	return nil
}

// ringOrder maps laser id to ring index, ordering rings bottom to top by
// elevation. The VLP-16 interleaves its lasers (-15°, +1°, -13°, +3°, ...),
// so laser id order is not elevation order.
func (config *VLP16Config) ringOrder() [LASERS_PER_SEQUENCE]int16 {
	order := make([]int, LASERS_PER_SEQUENCE)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return config.LaserAngles[order[a]].Elevation < config.LaserAngles[order[b]].Elevation
	})

	var rings [LASERS_PER_SEQUENCE]int16
	for rank, laser := range order {
		rings[laser] = int16(rank)
	}
	return rings
}

// ConfigureTimestampMode configures the parser's timestamp mode based on the
// SWEEP_TIMESTAMP_MODE environment variable. Valid values are: "system",
// "sensor". If not set or invalid, defaults to "system" mode.
func ConfigureTimestampMode(parser *VLP16Parser) {
	timestampMode := os.Getenv("SWEEP_TIMESTAMP_MODE")
	switch timestampMode {
	case "system":
		parser.SetTimestampMode(TimestampModeSystemTime)
		log.Println("LiDAR timestamp mode: System time")
	case "sensor":
		parser.SetTimestampMode(TimestampModeTopOfHour)
		log.Println("LiDAR timestamp mode: Sensor top-of-hour (requires GPS-disciplined sensor clock)")
	default:
		parser.SetTimestampMode(TimestampModeSystemTime)
		log.Println("LiDAR timestamp mode: System time (default)")
	}
}
