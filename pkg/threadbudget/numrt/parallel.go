package numrt

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrShapeMismatch is returned when operand lengths disagree.
var ErrShapeMismatch = errors.New("shape mismatch")

// RangeFunc processes the half-open index range [lo, hi).
type RangeFunc func(ctx context.Context, lo, hi int) error

// ParallelFor splits [0, n) into contiguous chunks and runs fn over them on
// at most NumThreads goroutines. The first error cancels the remaining
// chunks and is returned.
func (p *Pool) ParallelFor(ctx context.Context, n int, fn RangeFunc) error {
	if n <= 0 {
		return nil
	}

	workers, chunk := p.partition(n)
	return runChunks(ctx, n, workers, chunk, fn)
}

// runChunks runs fn over [0, n) in chunks of size chunk on at most workers
// goroutines.
func runChunks(ctx context.Context, n, workers, chunk int, fn RangeFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, lo, hi)
		})
	}

	return g.Wait()
}

// partition returns the worker count and chunk size for n elements.
func (p *Pool) partition(n int) (workers, chunk int) {
	workers = max(min(p.NumThreads(), n), 1)
	chunk = (n + workers - 1) / workers
	return workers, chunk
}

// reduce runs fn over each chunk and sums the partial results in chunk order.
func (p *Pool) reduce(ctx context.Context, n int, fn func(lo, hi int) float64) (float64, error) {
	if n == 0 {
		return 0, nil
	}

	workers, chunk := p.partition(n)
	partials := make([]float64, (n+chunk-1)/chunk)

	err := runChunks(ctx, n, workers, chunk, func(_ context.Context, lo, hi int) error {
		partials[lo/chunk] = fn(lo, hi)
		return nil
	})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, v := range partials {
		total += v
	}
	return total, nil
}

// Sum returns the sum of x.
func (p *Pool) Sum(ctx context.Context, x []float64) (float64, error) {
	return p.reduce(ctx, len(x), func(lo, hi int) float64 {
		var s float64
		for _, v := range x[lo:hi] {
			s += v
		}
		return s
	})
}

// Dot returns the inner product of a and b.
func (p *Pool) Dot(ctx context.Context, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dot of %d and %d elements", ErrShapeMismatch, len(a), len(b))
	}
	return p.reduce(ctx, len(a), func(lo, hi int) float64 {
		var s float64
		for i := lo; i < hi; i++ {
			s += a[i] * b[i]
		}
		return s
	})
}

// Axpy computes y += alpha*x in place.
func (p *Pool) Axpy(ctx context.Context, alpha float64, x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("%w: axpy of %d and %d elements", ErrShapeMismatch, len(x), len(y))
	}
	return p.ParallelFor(ctx, len(x), func(_ context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			y[i] += alpha * x[i]
		}
		return nil
	})
}

// MatVec multiplies the row-major rows×cols matrix m by x.
func (p *Pool) MatVec(ctx context.Context, m []float64, rows, cols int, x []float64) ([]float64, error) {
	if rows < 0 || cols < 0 || len(m) != rows*cols {
		return nil, fmt.Errorf("%w: matrix of %d elements is not %dx%d", ErrShapeMismatch, len(m), rows, cols)
	}
	if len(x) != cols {
		return nil, fmt.Errorf("%w: vector of %d elements for %d columns", ErrShapeMismatch, len(x), cols)
	}

	out := make([]float64, rows)
	err := p.ParallelFor(ctx, rows, func(_ context.Context, lo, hi int) error {
		for r := lo; r < hi; r++ {
			row := m[r*cols : (r+1)*cols]
			var s float64
			for c, v := range row {
				s += v * x[c]
			}
			out[r] = s
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
