// Package budget derives the number of worker threads a numeric runtime may
// use from the number of CPUs detected on the host.
//
// The default formula reserves one logical core for other host activity
// (the OS, I/O, orchestration processes) and never yields fewer than one
// thread:
//
//	thread_budget = max(1, cpu_count - 1)
package budget

// Budget limits.
const (
	// DefaultReserve is the number of logical cores left for other host activity.
	DefaultReserve = 1

	// MinThreads is the floor applied to every computed budget.
	MinThreads = 1
)

// Options tunes the budget calculation.
type Options struct {
	// Reserve is the number of CPUs withheld from the budget.
	// Negative values are treated as zero.
	Reserve int

	// Override replaces the computed budget when greater than 0.
	Override int

	// Max caps the budget when greater than 0.
	Max int
}

// DefaultOptions returns options reproducing max(1, cpu_count - 1).
func DefaultOptions() Options {
	return Options{Reserve: DefaultReserve}
}

// Compute returns max(1, cpuCount-1).
//
// A zero or negative cpuCount means the host could not report its CPUs and
// is treated as a single-CPU host, which still yields a budget of 1.
func Compute(cpuCount int) int {
	return ComputeWithOptions(cpuCount, DefaultOptions())
}

// ComputeWithOptions returns the thread budget for cpuCount using opts.
//
// The calculation logic:
//   - cpuCount below 1 is treated as 1
//   - Override > 0 wins over the reserve formula
//   - otherwise cpuCount - Reserve
//   - Max > 0 caps the result
//   - the result is never below MinThreads
func ComputeWithOptions(cpuCount int, opts Options) int {
	cpuCount = max(cpuCount, 1)

	var threads int
	if opts.Override > 0 {
		threads = opts.Override
	} else {
		threads = cpuCount - max(opts.Reserve, 0)
	}

	if opts.Max > 0 {
		threads = min(threads, opts.Max)
	}

	return max(threads, MinThreads)
}
