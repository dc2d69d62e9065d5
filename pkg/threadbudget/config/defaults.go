// Package config provides configuration management for threadbudget.
package config

// Default configuration values.
const (
	// DefaultCPUSource is the CPU count source used for the budget.
	DefaultCPUSource = "logical"

	// DefaultReserve is the number of CPUs left out of the budget.
	DefaultReserve = 1

	// DefaultOutputFormat prints the three diagnostic lines.
	DefaultOutputFormat = "plain"

	// DefaultRetentionDays is how long history records are kept.
	DefaultRetentionDays = 30

	// DefaultHistoryLimit is the number of records `history` lists.
	DefaultHistoryLimit = 20

	appName = "threadbudget"
)

// DefaultEnvVars are the environment variables the budget is written to.
var DefaultEnvVars = []string{"OMP_NUM_THREADS", "MKL_NUM_THREADS"}
