//go:build darwin

package tuner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectAffinityCPUs returns the number of active CPUs on darwin.
// macOS has no per-process affinity mask, so hw.activecpu is the closest
// equivalent: it excludes processors that are offline.
func detectAffinityCPUs() (int, error) {
	n, err := unix.SysctlUint32("hw.activecpu")
	if err != nil {
		return 0, fmt.Errorf("sysctl hw.activecpu: %w", err)
	}
	return int(n), nil
}
