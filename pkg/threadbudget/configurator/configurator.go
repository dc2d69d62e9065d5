// Package configurator applies a CPU thread budget at process startup.
//
// A program calls Configure once, before starting worker pools or numeric
// work:
//
//	if _, err := configurator.Configure(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The configurator detects the host CPU count, derives the budget, sets it on
// the numeric runtime and in the environment variables read by native math
// libraries, then prints the applied configuration. Every step fails fast.
package configurator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/budget"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/envvars"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/history"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/numrt"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/output"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/tuner"
)

var logger = logging.Get("configurator")

// Report describes one applied configuration.
type Report = output.Report

// Recorder persists reports. *history.Store satisfies it.
type Recorder interface {
	Append(r *output.Report) error
}

// DefaultRuntimeName is the runtime name printed in reports.
const DefaultRuntimeName = "numrt"

// Config holds the collaborators and settings of a Configurator.
// Zero fields are filled by New.
type Config struct {
	// Source selects the CPU count probe. Empty means tuner.DefaultSource.
	Source tuner.Source

	// Budget shapes the thread budget. Nil means budget.DefaultOptions.
	Budget *budget.Options

	// EnvVars are the variables the budget is written to. Empty means envvars.DefaultVars.
	EnvVars []string

	// Setenv writes one variable. Nil means os.Setenv.
	Setenv envvars.SetenvFunc

	// Runtime is the numeric runtime being configured. Nil means a new numrt.Pool.
	Runtime numrt.Runtime

	// RuntimeName labels the runtime in reports.
	RuntimeName string

	// DetectCPUs reads the host CPU count. Nil means tuner.DetectCPUCount.
	DetectCPUs func(tuner.Source) (int, error)

	// TotalRAM reads host memory. Nil means tuner.TotalRAM.
	TotalRAM func() uint64

	// Formatter renders the report. Nil means the plain three-line format.
	Formatter output.Formatter

	// Out receives the rendered report. Nil means os.Stdout.
	Out io.Writer

	// History records each report when set.
	History Recorder

	// Now stamps reports. Nil means time.Now.
	Now func() time.Time
}

// Configurator applies a thread budget.
type Configurator struct {
	cfg Config
}

// New returns a Configurator with defaults filled in.
func New(cfg Config) *Configurator {
	if cfg.Source == "" {
		cfg.Source = tuner.DefaultSource
	}
	if cfg.Budget == nil {
		opts := budget.DefaultOptions()
		cfg.Budget = &opts
	}
	cfg.EnvVars = envvars.Normalize(cfg.EnvVars)
	if cfg.Setenv == nil {
		cfg.Setenv = os.Setenv
	}
	if cfg.Runtime == nil {
		cfg.Runtime = numrt.New()
	}
	if cfg.RuntimeName == "" {
		cfg.RuntimeName = DefaultRuntimeName
	}
	if cfg.DetectCPUs == nil {
		cfg.DetectCPUs = tuner.DetectCPUCount
	}
	if cfg.TotalRAM == nil {
		cfg.TotalRAM = tuner.TotalRAM
	}
	if cfg.Formatter == nil {
		cfg.Formatter = &output.PlainFormatter{}
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Configurator{cfg: cfg}
}

// Runtime returns the runtime being configured.
func (c *Configurator) Runtime() numrt.Runtime {
	return c.cfg.Runtime
}

// Configure applies the default budget to the process and prints the
// three-line report to stdout.
func Configure(ctx context.Context) (*Report, error) {
	return New(Config{Runtime: numrt.New(numrt.WithGOMAXPROCS(true))}).Run(ctx)
}

// Run applies the thread budget, prints the report and records it.
//
// Steps run in order and the first failure is returned: detect CPUs, compute
// the budget, set it on the runtime, write the environment variables, read
// the runtime back, print. Recording to history happens last and only logs
// a warning on failure, since the configuration is already in effect.
func (c *Configurator) Run(ctx context.Context) (*Report, error) {
	report, err := c.Apply(ctx)
	if err != nil {
		return nil, err
	}

	if c.cfg.History != nil {
		id, err := history.NewID()
		if err != nil {
			logger.Warn("history id unavailable, not recording", "error", err)
		} else {
			report.ID = id
		}
	}

	if err := c.print(report); err != nil {
		return nil, err
	}

	if c.cfg.History != nil && report.ID != "" {
		if err := c.cfg.History.Append(report); err != nil {
			logger.Warn("recording thread budget failed", "id", report.ID, "error", err)
		}
	}

	return report, nil
}

// Apply performs the configuration steps without printing or recording.
func (c *Configurator) Apply(ctx context.Context) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cpus, err := c.cfg.DetectCPUs(c.cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("reading cpu count: %w", err)
	}
	cpus = max(cpus, 1)

	threads := budget.ComputeWithOptions(cpus, *c.cfg.Budget)
	logger.Info("computed thread budget", "cpus", cpus, "source", c.cfg.Source, "threads", threads)

	if err := c.cfg.Runtime.SetNumThreads(threads); err != nil {
		return nil, fmt.Errorf("setting runtime threads: %w", err)
	}

	env, err := envvars.Apply(c.cfg.Setenv, c.cfg.EnvVars, threads)
	if err != nil {
		return nil, fmt.Errorf("setting environment: %w", err)
	}

	report := &Report{
		AppliedAt:      c.cfg.Now(),
		CPUSource:      string(c.cfg.Source),
		CPUCount:       cpus,
		ThreadBudget:   threads,
		Runtime:        c.cfg.RuntimeName,
		RuntimeVersion: c.cfg.Runtime.Version(),
		RuntimeThreads: c.cfg.Runtime.NumThreads(),
		Env:            env,
		GOMAXPROCS:     runtime.GOMAXPROCS(0),
		TotalRAM:       c.cfg.TotalRAM(),
	}

	if report.RuntimeThreads != threads {
		logger.Warn("runtime reports a different thread count", "want", threads, "got", report.RuntimeThreads)
	}

	return report, nil
}

func (c *Configurator) print(r *Report) error {
	var buf bytes.Buffer
	if err := c.cfg.Formatter.Format(&buf, r); err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	if _, err := c.cfg.Out.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
