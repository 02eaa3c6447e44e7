package pipeline

import (
	"github.com/banshee-data/sweepsegment/internal/sweep"
	"github.com/banshee-data/sweepsegment/internal/sweep/store"
)

// SensorRuntime bundles the per-sensor dependencies the daemon wires at
// startup. Passing a SensorRuntime through constructors instead of reaching
// into the global registries makes wiring explicit and testing deterministic.
type SensorRuntime struct {
	SensorID  string
	Segmenter *sweep.Segmenter
	Builder   *sweep.SweepBuilder
	DB        *store.SweepDB // nil when persistence is disabled
	RunID     string         // run row open in DB, "" when none
}
