package tuner

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
)

var logger = logging.Get("tuner")

// Probes are package variables so tests can substitute them.
var (
	logicalCPUs  = runtime.NumCPU
	affinityCPUs = detectAffinityCPUs
	quotaCPUs    = detectQuotaCPUs
	totalRAM     = memory.TotalMemory
)

// Detect detects available system resources.
//
// Every probe runs even when an earlier one fails; the returned error joins
// all probe failures and the matching fields are left at zero.
func Detect() (SystemResources, error) {
	resources := SystemResources{
		LogicalCPUs: logicalCPUs(),
		TotalRAM:    totalRAM(),
	}

	var errs []error

	affinity, err := affinityCPUs()
	if err != nil {
		errs = append(errs, fmt.Errorf("affinity cpus: %w", err))
	}
	resources.AffinityCPUs = affinity

	quota, err := quotaCPUs()
	if err != nil {
		errs = append(errs, fmt.Errorf("quota cpus: %w", err))
	}
	resources.QuotaCPUs = quota

	logger.Debug("detected resources",
		"logical", resources.LogicalCPUs,
		"affinity", resources.AffinityCPUs,
		"quota", resources.QuotaCPUs,
		"ram", resources.TotalRAM,
	)

	return resources, errors.Join(errs...)
}

// DetectCPUCount queries only the probe behind src.
//
// A probe error is returned as is. A probe reporting zero CPUs is treated as
// a single-CPU host.
func DetectCPUCount(src Source) (int, error) {
	var (
		n   int
		err error
	)
	switch src {
	case SourceLogical:
		n = logicalCPUs()
	case SourceAffinity:
		n, err = affinityCPUs()
	case SourceQuota:
		n, err = quotaCPUs()
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSource, src)
	}
	if err != nil {
		return 0, fmt.Errorf("detecting %s cpu count: %w", src, err)
	}

	if n < 1 {
		logger.Warn("host reported no CPUs, assuming one", "source", src, "reported", n)
		n = 1
	}

	logger.Debug("detected cpu count", "source", src, "cpus", n)
	return n, nil
}

// TotalRAM returns total physical memory in bytes, 0 if unknown.
func TotalRAM() uint64 {
	return totalRAM()
}

// detectQuotaCPUs derives a CPU count from the cgroup CPU quota.
//
// automaxprocs applies the quota by setting GOMAXPROCS, so the probe widens
// GOMAXPROCS to the logical count first, reads back what automaxprocs chose
// and restores the previous value. Without a quota the logical count is
// returned unchanged.
//
// automaxprocs defers to an explicit GOMAXPROCS environment variable and then
// reads no quota, so in that case the logical count is returned and a warning
// is logged.
func detectQuotaCPUs() (int, error) {
	if v, ok := os.LookupEnv("GOMAXPROCS"); ok && v != "" {
		logger.Warn("GOMAXPROCS is set, cgroup quota not consulted", "GOMAXPROCS", v)
	}

	prev := runtime.GOMAXPROCS(logicalCPUs())
	defer runtime.GOMAXPROCS(prev)

	undo, err := maxprocs.Set(
		maxprocs.Min(1),
		maxprocs.Logger(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	if undo != nil {
		defer undo()
	}
	if err != nil {
		return 0, fmt.Errorf("reading cgroup cpu quota: %w", err)
	}

	return runtime.GOMAXPROCS(0), nil
}
