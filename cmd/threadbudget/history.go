package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/config"
	"github.com/jamesainslie/threadbudget/pkg/threadbudget/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View applied thread budgets",
	Long: `View previously applied thread budgets, newest first.

Every run records the CPU count, the budget and the environment it wrote,
unless history is disabled or --no-history is given.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded run",
	Long:  `Display a recorded run. Any unique prefix of the ID is accepted. The report honours -o.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit     int
	historyOlderThan int
	historyAll       bool
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", config.DefaultHistoryLimit, "maximum number of entries to show")
	historyCleanCmd.Flags().IntVar(&historyOlderThan, "older-than", 0, "remove entries older than this many days (default: history.retention_days)")
	historyCleanCmd.Flags().BoolVar(&historyAll, "all", false, "remove every entry")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("listing history: %w", err)
	}

	if len(reports) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'threadbudget' to apply and record a thread budget.")
		return nil
	}

	printHistory(cmd.OutOrStdout(), reports, time.Now())
	printInfo("\nShowing %d entries. Use --limit to see more.", len(reports))
	printInfo("Use 'threadbudget history show <id>' for details on a specific entry.")
	return nil
}

func printHistory(w io.Writer, reports []*output.Report, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAPPLIED\tSOURCE\tCPUS\tTHREADS\tENV")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			humanize.RelTime(r.AppliedAt, now, "ago", "from now"),
			r.CPUSource,
			r.CPUCount,
			r.ThreadBudget,
			strings.Join(r.EnvNames(), ","),
		)
	}
	_ = tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Get(args[0])
	if err != nil {
		return err
	}

	formatter, err := output.New(cfg.Output.Format, cfg.Output.Template)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := formatter.Format(&buf, report); err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func runHistoryClean(_ *cobra.Command, _ []string) error {
	cutoff, desc := cleanCutoff(time.Now(), historyAll, historyOlderThan, cfg.History.RetentionDays)

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	printInfo("Cleaning history entries %s...", desc)

	n, err := store.Clean(cutoff)
	if err != nil {
		return fmt.Errorf("cleaning history: %w", err)
	}

	printInfo("Removed %d %s.", n, plural(n, "entry", "entries"))
	return nil
}

// cleanCutoff resolves the clean flags to a cutoff time and a description.
func cleanCutoff(now time.Time, all bool, olderThan, retention int) (time.Time, string) {
	if all {
		return now.Add(time.Second), "of any age"
	}

	days := olderThan
	if days <= 0 {
		days = retention
	}
	if days <= 0 {
		days = config.DefaultRetentionDays
	}
	return now.AddDate(0, 0, -days), fmt.Sprintf("older than %d %s", days, plural(days, "day", "days"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
