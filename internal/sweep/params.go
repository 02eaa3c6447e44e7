package sweep

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors surfaced by the segmentation pipeline.
var (
	// ErrMalformedOrientation reports a sweep whose start/end angular span
	// cannot belong to a single rotation. The sweep is skipped; the next
	// sweep is unaffected.
	ErrMalformedOrientation = errors.New("sweep orientation span outside (pi, 3pi)")

	// ErrMissingRing reports a configuration that requests the sensor ring
	// field from a source that does not supply one. This is detected at
	// startup wiring, never mid-stream.
	ErrMissingRing = errors.New("ring field requested but source provides none")
)

// SegmenterParams fixes the sensor geometry and segmentation thresholds for
// the lifetime of a Segmenter. Zero fields are filled from
// DefaultSegmenterParams by NewSegmenter.
type SegmenterParams struct {
	Rings       int `json:"rings"`        // scan lines, e.g. 16
	AzimuthBins int `json:"azimuth_bins"` // columns per rotation, e.g. 1800

	BottomAngleDeg   float64 `json:"bottom_angle_deg"`   // vertical angle of ring 0 below horizontal, e.g. 15.1
	VerticalResDeg   float64 `json:"vertical_res_deg"`   // degrees between adjacent rings, e.g. 2.0
	HorizontalResDeg float64 `json:"horizontal_res_deg"` // degrees between adjacent columns, e.g. 0.2

	MountAngleDeg float64 `json:"mount_angle_deg"` // sensor pitch relative to the ground plane
	MinimumRange  float64 `json:"minimum_range"`   // returns closer than this are discarded, meters

	// GroundRings is how many ring pairs (i, i+1) are inspected for ground;
	// rows 0..GroundRings can be marked. Must stay below Rings.
	GroundRings int `json:"ground_rings"`

	// HorizontalAlpha and VerticalAlpha are the angular separations
	// (radians) used by the smoothness test for column-wise and row-wise
	// neighbor steps. They default to the projection resolutions.
	HorizontalAlpha float64 `json:"horizontal_alpha"`
	VerticalAlpha   float64 `json:"vertical_alpha"`

	// SegmentTheta is the smoothness admission threshold in radians; a
	// neighbor joins a segment when the surface angle between the two
	// returns exceeds it.
	SegmentTheta float64 `json:"segment_theta"`

	MinValidPoints int `json:"min_valid_points"` // minimum cells for a small segment to survive
	MinValidLines  int `json:"min_valid_lines"`  // minimum distinct rows for a small segment to survive

	// UseRingField selects the sensor-native ring index over bucketing the
	// computed vertical angle.
	UseRingField bool `json:"use_ring_field"`
}

// DefaultSegmenterParams returns the VLP-16 profile: 16 rings over a 30
// degree vertical field of view, 0.2 degree columns at 10 Hz.
func DefaultSegmenterParams() SegmenterParams {
	return SegmenterParams{
		Rings:            16,
		AzimuthBins:      1800,
		BottomAngleDeg:   15.1,
		VerticalResDeg:   2.0,
		HorizontalResDeg: 0.2,
		MountAngleDeg:    0.0,
		MinimumRange:     1.0,
		GroundRings:      7,
		HorizontalAlpha:  0.2 * math.Pi / 180.0,
		VerticalAlpha:    2.0 * math.Pi / 180.0,
		SegmentTheta:     60.0 * math.Pi / 180.0,
		MinValidPoints:   5,
		MinValidLines:    3,
	}
}

// fillDefaults replaces zero-valued fields with the defaults. Booleans are
// left alone; UseRingField false is a valid choice.
func (p SegmenterParams) fillDefaults() SegmenterParams {
	d := DefaultSegmenterParams()
	if p.Rings == 0 {
		p.Rings = d.Rings
	}
	if p.AzimuthBins == 0 {
		p.AzimuthBins = d.AzimuthBins
	}
	if p.BottomAngleDeg == 0 {
		p.BottomAngleDeg = d.BottomAngleDeg
	}
	if p.VerticalResDeg == 0 {
		p.VerticalResDeg = d.VerticalResDeg
	}
	if p.HorizontalResDeg == 0 {
		p.HorizontalResDeg = d.HorizontalResDeg
	}
	if p.MinimumRange == 0 {
		p.MinimumRange = d.MinimumRange
	}
	if p.GroundRings == 0 {
		p.GroundRings = d.GroundRings
	}
	if p.HorizontalAlpha == 0 {
		p.HorizontalAlpha = p.HorizontalResDeg * math.Pi / 180.0
	}
	if p.VerticalAlpha == 0 {
		p.VerticalAlpha = p.VerticalResDeg * math.Pi / 180.0
	}
	if p.SegmentTheta == 0 {
		p.SegmentTheta = d.SegmentTheta
	}
	if p.MinValidPoints == 0 {
		p.MinValidPoints = d.MinValidPoints
	}
	if p.MinValidLines == 0 {
		p.MinValidLines = d.MinValidLines
	}
	return p
}

// Validate rejects configurations the pipeline cannot run with. Violations
// are startup errors; they never occur mid-stream.
func (p SegmenterParams) Validate() error {
	if p.Rings <= 0 || p.AzimuthBins <= 0 {
		return fmt.Errorf("invalid grid dimensions %dx%d", p.Rings, p.AzimuthBins)
	}
	if p.VerticalResDeg <= 0 || p.HorizontalResDeg <= 0 {
		return fmt.Errorf("invalid angular resolution %.3f/%.3f deg", p.VerticalResDeg, p.HorizontalResDeg)
	}
	if p.GroundRings < 0 || p.GroundRings >= p.Rings {
		return fmt.Errorf("ground rings %d outside [0, %d)", p.GroundRings, p.Rings)
	}
	if p.HorizontalAlpha <= 0 || p.VerticalAlpha <= 0 {
		return fmt.Errorf("invalid smoothness alphas %.5f/%.5f rad", p.HorizontalAlpha, p.VerticalAlpha)
	}
	if p.SegmentTheta <= 0 || p.SegmentTheta >= math.Pi {
		return fmt.Errorf("segment theta %.4f rad outside (0, pi)", p.SegmentTheta)
	}
	if p.MinValidPoints <= 0 || p.MinValidLines <= 0 {
		return fmt.Errorf("invalid segment minimums points=%d lines=%d", p.MinValidPoints, p.MinValidLines)
	}
	if p.MinimumRange < 0 {
		return fmt.Errorf("negative minimum range %.3f", p.MinimumRange)
	}
	return nil
}

// ValidateRingSupport cross-checks the configured ring strategy against a
// source's declared capability. Call during startup wiring, before any
// sweep is ingested.
func ValidateRingSupport(p SegmenterParams, sourceProvidesRing bool) error {
	if p.UseRingField && !sourceProvidesRing {
		return ErrMissingRing
	}
	return nil
}
