// Package sweep converts single rotations of LiDAR returns into segmented,
// ring-indexed point clouds.
//
// One Segmenter per sensor owns a fixed ring x azimuth range image and the
// scratch buffers for ground marking, connected-component labeling and
// output assembly. SweepBuilder accumulates parsed returns into complete
// rotations and hands them to the Segmenter one at a time; downstream
// consumers (feature extraction, monitoring, persistence) receive the
// assembled output clouds plus per-ring index metadata.
package sweep
