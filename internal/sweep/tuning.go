package sweep

import (
	"math"

	"github.com/banshee-data/sweepsegment/internal/config"
)

// SegmenterParamsFromTuning builds SegmenterParams from a loaded TuningConfig.
// Use this in production code where the TuningConfig is already loaded.
// The config carries angles in degrees; the smoothness threshold is converted
// to radians here. The smoothness alphas are left zero for NewSegmenter to
// derive from the projection resolutions.
func SegmenterParamsFromTuning(cfg *config.TuningConfig) SegmenterParams {
	return SegmenterParams{
		Rings:            cfg.GetRings(),
		AzimuthBins:      cfg.GetAzimuthBins(),
		BottomAngleDeg:   cfg.GetBottomAngleDeg(),
		VerticalResDeg:   cfg.GetVerticalResDeg(),
		HorizontalResDeg: cfg.GetHorizontalResDeg(),
		MountAngleDeg:    cfg.GetMountAngleDeg(),
		MinimumRange:     cfg.GetMinimumRange(),
		GroundRings:      cfg.GetGroundRings(),
		SegmentTheta:     cfg.GetSegmentThetaDeg() * math.Pi / 180.0,
		MinValidPoints:   cfg.GetMinValidPoints(),
		MinValidLines:    cfg.GetMinValidLines(),
		UseRingField:     cfg.GetUseRingField(),
	}
}
