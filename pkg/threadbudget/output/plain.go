package output

import (
	"bytes"
	"fmt"
)

// PlainFormatter writes exactly three lines: the applied budget, the
// runtime version and the thread count read back from the runtime.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Report) error {
	fmt.Fprintf(w, "%s configured for CPU with %d threads\n", r.Runtime, r.ThreadBudget)
	fmt.Fprintf(w, "%s version: %s\n", r.Runtime, r.RuntimeVersion)
	fmt.Fprintf(w, "Number of threads: %d\n", r.RuntimeThreads)
	return nil
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

var _ Formatter = (*PlainFormatter)(nil)
