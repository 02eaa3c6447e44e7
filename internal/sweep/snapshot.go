package sweep

import "sync"

// Latest segmentation output per sensor, for the monitor's debug pages.
var (
	outMu         sync.RWMutex
	latestOutputs = make(map[string]*SegmentationOutput)
)

// StoreLatestOutput saves a deep copy of out as the most recent segmentation
// result for a sensor. The copy is taken here because the caller's output
// aliases the Segmenter's reusable buffers and is overwritten on the next
// sweep.
func StoreLatestOutput(sensorID string, out *SegmentationOutput) {
	if sensorID == "" || out == nil {
		return
	}
	c := out.Clone()
	outMu.Lock()
	latestOutputs[sensorID] = c
	outMu.Unlock()
}

// LatestOutput returns the most recent stored output for a sensor, or nil.
// The returned output is shared between readers and must be treated as
// read-only; a later Store replaces the pointer without touching it.
func LatestOutput(sensorID string) *SegmentationOutput {
	outMu.RLock()
	defer outMu.RUnlock()
	return latestOutputs[sensorID]
}
