package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/budget"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/config"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/configurator"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/history"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/numrt"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/output"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/tuner"
)

var logger = logging.Get("cli")

// initializeLogging starts file logging from cfg. Console output is warn and
// above, debug under --verbose, and off under --quiet.
func initializeLogging(cfg *config.Config) error {
	console := "warn"
	switch {
	case quiet:
		console = ""
	case verbose:
		console = "debug"
	}

	return logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: console,
	})
}

// parseRotationConfig converts the configured rotation settings. An empty or
// unparsable max_size falls back to the default.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.DefaultRotationConfig()
	out.MaxAge = rc.MaxAge
	out.MaxBackups = rc.MaxBackups
	out.Daily = rc.Daily

	if rc.MaxSize != "" {
		size, err := humanize.ParseBytes(rc.MaxSize)
		if err == nil && size > 0 {
			out.MaxSize = int64(size)
		}
	}
	return out
}

// run bundles one configured invocation with the resources it holds.
type run struct {
	configurator *configurator.Configurator
	pool         *numrt.Pool
	store        *history.Store
	retention    time.Duration
}

// newRun builds a configurator from cfg that writes its report to out.
// A history store that cannot be opened is skipped with a warning.
func newRun(cfg *config.Config, out io.Writer) (*run, error) {
	source, err := tuner.ParseSource(cfg.CPU.Source)
	if err != nil {
		return nil, err
	}

	formatter, err := output.New(cfg.Output.Format, cfg.Output.Template)
	if err != nil {
		return nil, err
	}

	r := &run{
		pool:      numrt.New(numrt.WithGOMAXPROCS(cfg.Runtime.GOMAXPROCS)),
		retention: time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
	}

	var recorder configurator.Recorder
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("history unavailable", "path", cfg.History.Path, "error", err)
			printVerbose("history unavailable: %v", err)
		} else {
			r.store = store
			recorder = store
		}
	}

	r.configurator = configurator.New(configurator.Config{
		Source: source,
		Budget: &budget.Options{
			Reserve:  cfg.Budget.Reserve,
			Override: cfg.Budget.Threads,
			Max:      cfg.Budget.Max,
		},
		EnvVars:   cfg.Env.All(),
		Runtime:   r.pool,
		Formatter: formatter,
		Out:       out,
		History:   recorder,
	})

	printVerbose("cpu source %s, env %v", source, cfg.Env.All())
	return r, nil
}

// prune drops history entries older than the retention period.
func (r *run) prune(now time.Time) {
	if r.store == nil || r.retention <= 0 {
		return
	}
	n, err := r.store.Clean(now.Add(-r.retention))
	if err != nil {
		logger.Warn("pruning history failed", "error", err)
		return
	}
	if n > 0 {
		logger.Debug("pruned history", "removed", n)
	}
}

// Close releases the history store. It is safe to call more than once.
func (r *run) Close() {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		logger.Warn("closing history failed", "error", err)
	}
	r.store = nil
}

// openHistory opens the configured store for the history subcommands.
func openHistory(cfg *config.Config) (*history.Store, error) {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history at %s: %w", cfg.History.Path, err)
	}
	return store, nil
}
