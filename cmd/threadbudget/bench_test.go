package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/numrt"
)

func TestBenchVectors(t *testing.T) {
	a, b := benchVectors(10)
	require.Len(t, a, 10)
	require.Len(t, b, 10)

	a2, b2 := benchVectors(10)
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestTimeDot(t *testing.T) {
	a, b := benchVectors(1000)

	var want float64
	for i := range a {
		want += a[i] * b[i]
	}

	for _, threads := range []int{1, 3} {
		pool := numrt.New()
		require.NoError(t, pool.SetNumThreads(threads))

		res, err := timeDot(t.Context(), pool, a, b, 3)
		require.NoError(t, err)
		assert.Equal(t, threads, res.Threads)
		assert.InDelta(t, want, res.Value, 1e-6)
		assert.Positive(t, res.Best)
	}
}

func TestTimeDot_ShapeMismatch(t *testing.T) {
	_, err := timeDot(t.Context(), numrt.New(), make([]float64, 3), make([]float64, 4), 1)
	assert.ErrorIs(t, err, numrt.ErrShapeMismatch)
}

func TestBenchResult_GFLOPS(t *testing.T) {
	assert.InDelta(t, 2.0, benchResult{Best: time.Second}.GFLOPS(1e9), 1e-9)
	assert.Zero(t, benchResult{}.GFLOPS(100))
}

func TestPrintBench(t *testing.T) {
	var buf bytes.Buffer
	printBench(&buf, 1<<20, 5, []benchResult{
		{Threads: 1, Best: 4 * time.Millisecond},
		{Threads: 4, Best: time.Millisecond},
	})

	out := buf.String()
	assert.Contains(t, out, "1,048,576 elements, best of 5")
	assert.Contains(t, out, "THREADS")
	assert.Contains(t, out, "speedup: 4.00x")
}
