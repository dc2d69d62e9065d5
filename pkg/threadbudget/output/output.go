// Package output renders a thread budget report in various formats
// (plain, pretty, json, yaml, template).
//
// Formatters are looked up by name in a registry so the CLI can select
// one at runtime:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Report describes one application of a thread budget.
type Report struct {
	// ID identifies the report in the history store. Empty when history is off.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// AppliedAt is when the budget was applied.
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`

	// CPUSource names how CPUCount was obtained (logical, affinity, quota).
	CPUSource string `json:"cpu_source" yaml:"cpu_source"`

	// CPUCount is the detected CPU count, at least 1.
	CPUCount int `json:"cpu_count" yaml:"cpu_count"`

	// ThreadBudget is the computed budget.
	ThreadBudget int `json:"thread_budget" yaml:"thread_budget"`

	// Runtime is the name of the configured numeric runtime.
	Runtime string `json:"runtime" yaml:"runtime"`

	// RuntimeVersion is the version the runtime reports.
	RuntimeVersion string `json:"runtime_version" yaml:"runtime_version"`

	// RuntimeThreads is the thread count the runtime reports after configuration.
	RuntimeThreads int `json:"runtime_threads" yaml:"runtime_threads"`

	// Env holds the environment variables written and their values.
	Env map[string]string `json:"env" yaml:"env"`

	// GOMAXPROCS is the Go scheduler setting after configuration.
	GOMAXPROCS int `json:"gomaxprocs" yaml:"gomaxprocs"`

	// TotalRAM is the host's physical memory in bytes, 0 if unknown.
	TotalRAM uint64 `json:"total_ram" yaml:"total_ram"`
}

// EnvNames returns the names in Env, sorted.
func (r *Report) EnvNames() []string {
	names := make([]string, 0, len(r.Env))
	for name := range r.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted report to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// New returns the named formatter. For "template", tmpl replaces the
// default template when non-empty.
func New(name, tmpl string) (Formatter, error) {
	if name == "template" && tmpl != "" {
		return NewTemplateFormatter(tmpl), nil
	}
	return Get(name)
}
