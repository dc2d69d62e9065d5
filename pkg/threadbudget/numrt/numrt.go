// Package numrt is a small numeric runtime whose intra-op parallelism is
// bounded by a configurable thread count.
//
// The thread count is the runtime's only global setting. It is written once
// during bootstrap with SetNumThreads and read back with NumThreads; every
// parallel kernel splits its work across at most that many goroutines.
//
// Basic usage:
//
//	rt := numrt.New(numrt.WithGOMAXPROCS(true))
//	if err := rt.SetNumThreads(3); err != nil {
//	    return err
//	}
//	dot, err := rt.Dot(ctx, a, b)
package numrt

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/logging"
)

var logger = logging.Get("numrt")

// modulePath identifies this module in build info.
const modulePath = "github.com/jamesainslie/threadbudget"

// ErrInvalidThreads is returned when a thread count below 1 is requested.
var ErrInvalidThreads = errors.New("thread count must be at least 1")

// Runtime is the configuration surface of a numeric runtime.
type Runtime interface {
	// SetNumThreads sets the intra-op thread pool size.
	SetNumThreads(n int) error

	// NumThreads reports the current intra-op thread pool size.
	NumThreads() int

	// Version reports the runtime's version identifier.
	Version() string
}

// Option configures a Pool.
type Option func(*Pool)

// WithGOMAXPROCS makes SetNumThreads also set runtime.GOMAXPROCS, so the Go
// scheduler itself honors the thread budget.
func WithGOMAXPROCS(enabled bool) Option {
	return func(p *Pool) {
		p.setProcs = enabled
	}
}

// WithVersion overrides the version identifier.
func WithVersion(v string) Option {
	return func(p *Pool) {
		p.version = v
	}
}

// Pool is the default Runtime. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex // serializes SetNumThreads
	threads  atomic.Int64
	setProcs bool
	version  string
}

// New creates a Pool sized to the current GOMAXPROCS.
func New(opts ...Option) *Pool {
	p := &Pool{}
	for _, opt := range opts {
		opt(p)
	}
	if p.version == "" {
		p.version = buildVersion()
	}
	p.threads.Store(int64(runtime.GOMAXPROCS(0)))
	return p
}

// SetNumThreads sets the pool size to n.
func (p *Pool) SetNumThreads(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidThreads, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.setProcs {
		prev := runtime.GOMAXPROCS(n)
		logger.Debug("set GOMAXPROCS", "old", prev, "new", n)
	}

	prev := p.threads.Swap(int64(n))
	logger.Debug("set num threads", "old", prev, "new", n)
	return nil
}

// NumThreads returns the pool size.
func (p *Pool) NumThreads() int {
	return int(p.threads.Load())
}

// Version returns the runtime version identifier.
func (p *Pool) Version() string {
	return p.version
}

// buildVersion reports the module version recorded in the binary, suffixed
// with the Go toolchain version.
func buildVersion() string {
	v := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Path == modulePath && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
		for _, dep := range bi.Deps {
			if dep.Path == modulePath && dep.Version != "" {
				v = dep.Version
			}
		}
	}
	return fmt.Sprintf("%s+%s", v, runtime.Version())
}

// Ensure Pool implements Runtime.
var _ Runtime = (*Pool)(nil)
