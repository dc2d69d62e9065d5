package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/numrt"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Time a parallel dot product at the thread budget",
	Long: `Apply the thread budget, then time a dot product on a single thread and on
the budgeted pool. Use it to check that the budget actually buys parallelism on
this host.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

var (
	benchSize   int
	benchRounds int
)

func init() {
	benchCmd.Flags().IntVar(&benchSize, "size", 1<<22, "vector length")
	benchCmd.Flags().IntVar(&benchRounds, "rounds", 5, "timed rounds per pool; the best is reported")
	rootCmd.AddCommand(benchCmd)
}

// benchResult is the best of several timed dot products.
type benchResult struct {
	Threads int
	Best    time.Duration
	Value   float64
}

// GFLOPS returns the throughput for n elements, two flops each.
func (b benchResult) GFLOPS(n int) float64 {
	if b.Best <= 0 {
		return 0
	}
	return 2 * float64(n) / b.Best.Seconds() / 1e9
}

func runBench(cmd *cobra.Command, _ []string) error {
	if benchSize < 1 || benchRounds < 1 {
		return errors.New("--size and --rounds must be positive")
	}

	r, err := newRun(cfg, reportWriter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer r.Close()

	ctx := cmd.Context()
	if _, err := r.configurator.Run(ctx); err != nil {
		return err
	}
	r.prune(time.Now())

	serial := numrt.New()
	if err := serial.SetNumThreads(1); err != nil {
		return err
	}

	a, b := benchVectors(benchSize)
	var results []benchResult
	for _, pool := range []*numrt.Pool{serial, r.pool} {
		res, err := timeDot(ctx, pool, a, b, benchRounds)
		if err != nil {
			return err
		}
		logger.Debug("bench", "threads", res.Threads, "best", res.Best)
		results = append(results, res)
	}

	printBench(cmd.OutOrStdout(), benchSize, benchRounds, results)
	return nil
}

// benchVectors returns two deterministic vectors of length n.
func benchVectors(n int) (a, b []float64) {
	a = make([]float64, n)
	b = make([]float64, n)
	for i := range a {
		a[i] = float64(i%7) * 0.5
		b[i] = float64(i%5) + 1
	}
	return a, b
}

func timeDot(ctx context.Context, pool *numrt.Pool, a, b []float64, rounds int) (benchResult, error) {
	res := benchResult{Threads: pool.NumThreads()}
	for i := 0; i < rounds; i++ {
		start := time.Now()
		v, err := pool.Dot(ctx, a, b)
		elapsed := time.Since(start)
		if err != nil {
			return res, fmt.Errorf("dot on %d threads: %w", res.Threads, err)
		}
		res.Value = v
		if res.Best == 0 || elapsed < res.Best {
			res.Best = elapsed
		}
	}
	return res, nil
}

func printBench(w io.Writer, n, rounds int, results []benchResult) {
	fmt.Fprintf(w, "\ndot product, %s elements, best of %d\n", humanize.Comma(int64(n)), rounds)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "THREADS\tBEST\tGFLOP/S")
	for _, res := range results {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\n", res.Threads, res.Best.Round(time.Microsecond), res.GFLOPS(n))
	}
	_ = tw.Flush()

	if len(results) == 2 && results[1].Best > 0 {
		fmt.Fprintf(w, "speedup: %.2fx\n", float64(results[0].Best)/float64(results[1].Best))
	}
}
