package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Field names follow the segmenter's parameter names, so a saved
// /api/params response is a usable starting point for a config file.
// All angles are degrees; the bridge into segmenter params converts
// thresholds that the pipeline consumes in radians.
type TuningConfig struct {
	// Projection geometry
	Rings            *int     `json:"rings,omitempty"`
	AzimuthBins      *int     `json:"azimuth_bins,omitempty"`
	BottomAngleDeg   *float64 `json:"bottom_angle_deg,omitempty"`
	VerticalResDeg   *float64 `json:"vertical_res_deg,omitempty"`
	HorizontalResDeg *float64 `json:"horizontal_res_deg,omitempty"`
	MountAngleDeg    *float64 `json:"mount_angle_deg,omitempty"`
	MinimumRange     *float64 `json:"minimum_range,omitempty"`
	UseRingField     *bool    `json:"use_ring_field,omitempty"`

	// Ground and segmentation thresholds
	GroundRings     *int     `json:"ground_rings,omitempty"`
	SegmentThetaDeg *float64 `json:"segment_theta_deg,omitempty"`
	MinValidPoints  *int     `json:"min_valid_points,omitempty"`
	MinValidLines   *int     `json:"min_valid_lines,omitempty"`

	// Sweep builder params
	MinSweepPoints *int `json:"min_sweep_points,omitempty"`

	// Ingest params
	StatsInterval *string `json:"stats_interval,omitempty"` // duration string like "60s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/sweep/monitor/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Rings != nil && *c.Rings <= 0 {
		return fmt.Errorf("rings must be positive, got %d", *c.Rings)
	}

	if c.AzimuthBins != nil && *c.AzimuthBins <= 0 {
		return fmt.Errorf("azimuth_bins must be positive, got %d", *c.AzimuthBins)
	}

	if c.VerticalResDeg != nil && *c.VerticalResDeg <= 0 {
		return fmt.Errorf("vertical_res_deg must be positive, got %f", *c.VerticalResDeg)
	}

	if c.HorizontalResDeg != nil && *c.HorizontalResDeg <= 0 {
		return fmt.Errorf("horizontal_res_deg must be positive, got %f", *c.HorizontalResDeg)
	}

	if c.MinimumRange != nil && *c.MinimumRange < 0 {
		return fmt.Errorf("minimum_range must be non-negative, got %f", *c.MinimumRange)
	}

	if c.GroundRings != nil && *c.GroundRings < 0 {
		return fmt.Errorf("ground_rings must be non-negative, got %d", *c.GroundRings)
	}

	// Validate SegmentThetaDeg stays a usable surface angle if set
	if c.SegmentThetaDeg != nil {
		if *c.SegmentThetaDeg <= 0 || *c.SegmentThetaDeg >= 180 {
			return fmt.Errorf("segment_theta_deg must be between 0 and 180, got %f", *c.SegmentThetaDeg)
		}
	}

	if c.MinValidPoints != nil && *c.MinValidPoints <= 0 {
		return fmt.Errorf("min_valid_points must be positive, got %d", *c.MinValidPoints)
	}

	if c.MinValidLines != nil && *c.MinValidLines <= 0 {
		return fmt.Errorf("min_valid_lines must be positive, got %d", *c.MinValidLines)
	}

	if c.MinSweepPoints != nil && *c.MinSweepPoints < 0 {
		return fmt.Errorf("min_sweep_points must be non-negative, got %d", *c.MinSweepPoints)
	}

	// Validate StatsInterval can be parsed if set
	if c.StatsInterval != nil && *c.StatsInterval != "" {
		if _, err := time.ParseDuration(*c.StatsInterval); err != nil {
			return fmt.Errorf("invalid stats_interval '%s': %w", *c.StatsInterval, err)
		}
	}

	return nil
}

// GetRings returns the rings value or the default.
func (c *TuningConfig) GetRings() int {
	if c.Rings == nil {
		return 16 // default
	}
	return *c.Rings
}

// GetAzimuthBins returns the azimuth_bins value or the default.
func (c *TuningConfig) GetAzimuthBins() int {
	if c.AzimuthBins == nil {
		return 1800 // default
	}
	return *c.AzimuthBins
}

// GetBottomAngleDeg returns the bottom_angle_deg value or the default.
func (c *TuningConfig) GetBottomAngleDeg() float64 {
	if c.BottomAngleDeg == nil {
		return 15.1 // default
	}
	return *c.BottomAngleDeg
}

// GetVerticalResDeg returns the vertical_res_deg value or the default.
func (c *TuningConfig) GetVerticalResDeg() float64 {
	if c.VerticalResDeg == nil {
		return 2.0 // default
	}
	return *c.VerticalResDeg
}

// GetHorizontalResDeg returns the horizontal_res_deg value or the default.
func (c *TuningConfig) GetHorizontalResDeg() float64 {
	if c.HorizontalResDeg == nil {
		return 0.2 // default
	}
	return *c.HorizontalResDeg
}

// GetMountAngleDeg returns the mount_angle_deg value or the default.
func (c *TuningConfig) GetMountAngleDeg() float64 {
	if c.MountAngleDeg == nil {
		return 0.0 // default: sensor level with the ground plane
	}
	return *c.MountAngleDeg
}

// GetMinimumRange returns the minimum_range value or the default.
func (c *TuningConfig) GetMinimumRange() float64 {
	if c.MinimumRange == nil {
		return 1.0 // default
	}
	return *c.MinimumRange
}

// GetUseRingField returns the use_ring_field value or the default.
func (c *TuningConfig) GetUseRingField() bool {
	if c.UseRingField == nil {
		return true // default: VLP-16 packets carry the laser index
	}
	return *c.UseRingField
}

// GetGroundRings returns the ground_rings value or the default.
func (c *TuningConfig) GetGroundRings() int {
	if c.GroundRings == nil {
		return 7 // default
	}
	return *c.GroundRings
}

// GetSegmentThetaDeg returns the segment_theta_deg value or the default.
func (c *TuningConfig) GetSegmentThetaDeg() float64 {
	if c.SegmentThetaDeg == nil {
		return 60.0 // default
	}
	return *c.SegmentThetaDeg
}

// GetMinValidPoints returns the min_valid_points value or the default.
func (c *TuningConfig) GetMinValidPoints() int {
	if c.MinValidPoints == nil {
		return 5 // default
	}
	return *c.MinValidPoints
}

// GetMinValidLines returns the min_valid_lines value or the default.
func (c *TuningConfig) GetMinValidLines() int {
	if c.MinValidLines == nil {
		return 3 // default
	}
	return *c.MinValidLines
}

// GetMinSweepPoints returns the min_sweep_points value or the default.
func (c *TuningConfig) GetMinSweepPoints() int {
	if c.MinSweepPoints == nil {
		return 1000 // default
	}
	return *c.MinSweepPoints
}

// GetStatsInterval parses and returns the StatsInterval as a time.Duration.
func (c *TuningConfig) GetStatsInterval() time.Duration {
	if c.StatsInterval == nil || *c.StatsInterval == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StatsInterval)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}
