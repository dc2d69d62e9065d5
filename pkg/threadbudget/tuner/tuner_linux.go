//go:build linux

package tuner

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// detectAffinityCPUs counts the CPUs in the calling process's affinity mask.
func detectAffinityCPUs() (int, error) {
	var mask unix.CPUSet
	if err := unix.SchedGetaffinity(0, &mask); err != nil {
		return 0, fmt.Errorf("sched_getaffinity: %w", err)
	}
	return mask.Count(), nil
}
