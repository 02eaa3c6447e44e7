package monitor

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sweepsegment/internal/sweep"
)

// SegmentSizeSummary describes the point-count distribution across the
// segments of one sweep.
type SegmentSizeSummary struct {
	Segments     int     `json:"segments"`
	MinPoints    int     `json:"min_points"`
	MaxPoints    int     `json:"max_points"`
	MeanPoints   float64 `json:"mean_points"`
	MedianPoints float64 `json:"median_points"`
	StddevPoints float64 `json:"stddev_points"`
}

// SummarizeSegmentSizes computes per-segment point counts from the pure
// segment cloud, where each point's intensity carries its segment id.
// Returns nil when the output holds no segmented points.
func SummarizeSegmentSizes(out *sweep.SegmentationOutput) *SegmentSizeSummary {
	if out == nil || len(out.PureSegmentCloud) == 0 {
		return nil
	}

	counts := make(map[int]int)
	for _, p := range out.PureSegmentCloud {
		counts[int(p.Intensity)]++
	}

	sizes := make([]float64, 0, len(counts))
	minPts, maxPts := 0, 0
	for _, n := range counts {
		sizes = append(sizes, float64(n))
		if minPts == 0 || n < minPts {
			minPts = n
		}
		if n > maxPts {
			maxPts = n
		}
	}
	sort.Float64s(sizes)

	summary := &SegmentSizeSummary{
		Segments:     len(counts),
		MinPoints:    minPts,
		MaxPoints:    maxPts,
		MeanPoints:   stat.Mean(sizes, nil),
		MedianPoints: stat.Quantile(0.5, stat.Empirical, sizes, nil),
	}
	// Sample standard deviation needs at least two segments.
	if len(sizes) > 1 {
		summary.StddevPoints = stat.StdDev(sizes, nil)
	}
	return summary
}
