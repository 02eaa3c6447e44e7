package sweep

import "sync"

// Global registry for Segmenter instances keyed by sensor ID. The pipeline
// registers its Segmenter here so the monitor can reach live params and
// totals without holding a reference through the wiring chain.
var (
	segRegistry   = map[string]*Segmenter{}
	segRegistryMu = &sync.RWMutex{}
)

// RegisterSegmenter registers a Segmenter for a sensor ID.
func RegisterSegmenter(sensorID string, s *Segmenter) {
	if sensorID == "" || s == nil {
		return
	}
	segRegistryMu.Lock()
	defer segRegistryMu.Unlock()
	segRegistry[sensorID] = s
}

// GetSegmenter returns a registered Segmenter or nil.
func GetSegmenter(sensorID string) *Segmenter {
	segRegistryMu.RLock()
	defer segRegistryMu.RUnlock()
	return segRegistry[sensorID]
}
