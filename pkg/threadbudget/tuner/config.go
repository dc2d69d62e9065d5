// Package tuner detects host resources for thread budgeting. It reports the
// logical CPU count, the CPUs this process may be scheduled on, the CPU quota
// imposed by a container runtime, and total physical RAM.
package tuner

import (
	"errors"
	"fmt"
	"strings"
)

// SystemResources contains detected system resources.
type SystemResources struct {
	// LogicalCPUs is the number of logical processors the OS reports.
	LogicalCPUs int

	// AffinityCPUs is the number of CPUs in this process's scheduling
	// affinity mask. Equal to LogicalCPUs where affinity is unsupported.
	AffinityCPUs int

	// QuotaCPUs is the CPU count derived from a cgroup CPU quota, or the
	// logical count when no quota applies.
	QuotaCPUs int

	// TotalRAM is the total physical RAM in bytes, 0 if unknown.
	TotalRAM uint64
}

// Source selects which CPU count feeds the thread budget.
type Source string

// CPU count sources.
const (
	// SourceLogical is the number of logical processors on the host.
	SourceLogical Source = "logical"

	// SourceAffinity is the number of CPUs the process may run on.
	SourceAffinity Source = "affinity"

	// SourceQuota is the container CPU quota, rounded down, minimum 1.
	SourceQuota Source = "quota"
)

// DefaultSource is the CPU count source used when none is configured.
const DefaultSource = SourceLogical

// ErrUnknownSource is returned when parsing an unsupported source name.
var ErrUnknownSource = errors.New("unknown cpu source")

// Sources lists every supported source.
func Sources() []Source {
	return []Source{SourceLogical, SourceAffinity, SourceQuota}
}

// ParseSource parses a source name. The empty string yields DefaultSource.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultSource, nil
	case SourceLogical:
		return SourceLogical, nil
	case SourceAffinity:
		return SourceAffinity, nil
	case SourceQuota:
		return SourceQuota, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// CPUCount returns the CPU count for src, floored at 1 so that an
// undeterminable count still allows one thread.
func (r SystemResources) CPUCount(src Source) int {
	var n int
	switch src {
	case SourceAffinity:
		n = r.AffinityCPUs
	case SourceQuota:
		n = r.QuotaCPUs
	default:
		n = r.LogicalCPUs
	}
	return max(n, 1)
}
