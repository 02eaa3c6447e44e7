// Package pipeline glues the per-sweep stages together: it receives
// completed rotations from a SweepBuilder, runs them through the Segmenter,
// publishes the latest output for the monitor, and persists per-sweep
// statistics.
//
// This package is the composition root: it imports the sweep and store
// packages, but neither of those imports pipeline.
package pipeline
