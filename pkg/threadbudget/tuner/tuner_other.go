//go:build !linux && !darwin

package tuner

import (
	"runtime"
)

// detectAffinityCPUs falls back to the logical CPU count on platforms
// without an affinity query.
func detectAffinityCPUs() (int, error) {
	return runtime.NumCPU(), nil
}
