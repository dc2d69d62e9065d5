package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/config"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
)

var (
	cfgFile   string
	verbose   bool
	quiet     bool
	noHistory bool

	// cfg is populated by initialize before any command runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "threadbudget",
		Short: "Size numeric thread pools to the host CPU count",
		Long: `threadbudget detects the host CPU count, derives a thread budget of
max(1, cpus-1), applies it to the numeric runtime and to OMP_NUM_THREADS and
MKL_NUM_THREADS, then prints the applied configuration.

Examples:
  threadbudget                       # Apply and print three diagnostic lines
  threadbudget -o pretty             # Styled report
  threadbudget --cpu-source quota    # Respect the cgroup CPU quota
  threadbudget exec -- python app.py # Run a program with the budget applied
  threadbudget bench                 # Time a parallel dot product
  threadbudget history               # Previously applied budgets`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: initialize,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
		RunE:              runRoot,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/threadbudget/config.yaml)")
	flags.String("cpu-source", "", "CPU count source: logical, affinity or quota")
	flags.Int("reserve", 0, "CPUs left out of the budget")
	flags.IntP("threads", "t", 0, "fixed thread budget (0=derive from CPU count)")
	flags.Int("max", 0, "upper bound on the budget (0=uncapped)")
	flags.StringSlice("env", nil, "additional environment variables to set (e.g. OPENBLAS_NUM_THREADS)")
	flags.StringP("output", "o", "", "output format: plain, pretty, json, yaml, template")
	flags.String("template", "", "Go template for -o template")
	flags.BoolVar(&noHistory, "no-history", false, "do not record this run")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress the report")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
}

// flagBindings maps config keys to persistent flag names.
var flagBindings = map[string]string{
	"cpu.source":      "cpu-source",
	"budget.reserve":  "reserve",
	"budget.threads":  "threads",
	"budget.max":      "max",
	"env.extra":       "env",
	"output.format":   "output",
	"output.template": "template",
}

// initialize loads configuration, applies flag overrides and starts logging.
func initialize(cmd *cobra.Command, _ []string) error {
	v, err := loadViper(cmd)
	if err != nil {
		return err
	}

	cfg, err = config.Decode(v)
	if err != nil {
		return err
	}
	if noHistory {
		cfg.History.Enabled = false
	}

	return initializeLogging(cfg)
}

// loadViper reads configuration and binds the command's flags over it.
func loadViper(cmd *cobra.Command) (*viper.Viper, error) {
	v, err := config.New(cfgFile)
	if err != nil {
		return nil, err
	}
	for key, name := range flagBindings {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return v, nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runRoot(cmd *cobra.Command, _ []string) error {
	run, err := newRun(cfg, reportWriter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer run.Close()

	if _, err := run.configurator.Run(cmd.Context()); err != nil {
		return err
	}

	run.prune(time.Now())
	return nil
}

// reportWriter returns w, or io.Discard under --quiet.
func reportWriter(w io.Writer) io.Writer {
	if quiet {
		return io.Discard
	}
	return w
}

// printVerbose prints a debug message to stderr under --verbose.
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message to stdout unless --quiet.
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
