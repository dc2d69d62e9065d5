package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/envvars"
)

var execCmd = &cobra.Command{
	Use:   "exec -- command [args...]",
	Short: "Run a command with the thread budget applied",
	Long: `Apply the thread budget, then run command with the thread variables set in
its environment. The report is written to stderr so the command's stdout is
left untouched. threadbudget exits with the command's exit status.

Examples:
  threadbudget exec -- python train.py
  threadbudget --reserve 2 exec -- make -j`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	// Flags after the command name belong to the command.
	execCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(execCmd)
}

// childExitError carries a child's non-zero exit status to main.
type childExitError struct {
	code int
}

func (e *childExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

func runExec(cmd *cobra.Command, args []string) error {
	r, err := newRun(cfg, reportWriter(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer r.Close()

	report, err := r.configurator.Run(cmd.Context())
	if err != nil {
		return err
	}
	r.prune(time.Now())
	// Release the store so concurrent invocations are not locked out while
	// the child runs.
	r.Close()

	env := envvars.Environ(os.Environ(), report.EnvNames(), report.ThreadBudget)
	logger.Info("running command", "command", args[0], "threads", report.ThreadBudget)

	return runChild(cmd.Context(), args, env, os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// childWaitDelay bounds how long a cancelled child may take to exit after
// being interrupted before it is killed.
const childWaitDelay = 5 * time.Second

// runChild runs argv with env and the given stdio. Cancelling ctx interrupts
// the child and kills it if it is still running after childWaitDelay.
func runChild(ctx context.Context, argv, env []string, stdin io.Reader, stdout, stderr io.Writer) error {
	child := exec.CommandContext(ctx, argv[0], argv[1:]...)
	child.Cancel = func() error {
		return child.Process.Signal(os.Interrupt)
	}
	child.WaitDelay = childWaitDelay
	child.Env = env
	child.Stdin = stdin
	child.Stdout = stdout
	child.Stderr = stderr

	return childError(argv[0], child.Run())
}

// childError maps a child's exit status to a childExitError. A child killed
// by a signal reports 128 plus the signal number.
func childError(name string, err error) error {
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("running %s: %w", name, err)
	}

	code := exitErr.ExitCode()
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		code = 128 + int(status.Signal())
	}
	if code <= 0 {
		code = 1
	}
	return &childExitError{code: code}
}
