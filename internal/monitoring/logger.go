// Package monitoring carries the process-wide diagnostic log sink shared by
// the storage and migration layers. Long-running ingest binaries replace the
// sink to route database chatter into their own log streams; tests install a
// no-op to keep it out of test output.
package monitoring

import "log"

// Logf is the shared diagnostic sink. It defaults to log.Printf and is
// replaced via SetLogger. Callers must not cache its value, since the sink
// may be swapped at runtime.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the diagnostic sink. A nil f installs a no-op sink,
// which silences all monitoring output.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a log function that tags every line with the given
// subsystem prefix before handing it to the current sink. The returned
// function reads Logf at call time, so it follows later SetLogger swaps.
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+" "+format, v...)
	}
}
