package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders the report with lipgloss boxes for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatEnv(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	title := TitleStyle.Render(r.Runtime + " configured for CPU")

	budget := fmt.Sprintf("%s %s  %s %s",
		LabelStyle.Render("Budget:"),
		CountStyle.Render(fmt.Sprintf("%d threads", r.ThreadBudget)),
		LabelStyle.Render("CPUs:"),
		ValueStyle.Render(fmt.Sprintf("%d (%s)", r.CPUCount, r.CPUSource)),
	)

	confirm := fmt.Sprintf("%s %s", LabelStyle.Render("Runtime reports:"),
		ValueStyle.Render(fmt.Sprintf("%d threads", r.RuntimeThreads)))
	if r.RuntimeThreads == r.ThreadBudget {
		confirm += " " + SuccessStyle.Render("ok")
	} else {
		confirm += " " + WarningStyle.Render("mismatch")
	}

	return HeaderBox.Render(strings.Join([]string{title, budget, confirm}, "\n"))
}

func (f *PrettyFormatter) formatEnv(r *Report) string {
	names := r.EnvNames()
	if len(names) == 0 {
		return MutedStyle.Render("  No environment variables set") + "\n"
	}

	width := len("VARIABLE")
	for _, name := range names {
		width = max(width, len(name))
	}

	var sb strings.Builder
	sb.WriteString("  " + TableHeaderStyle.Render(padRight("VARIABLE", width)) + "  " + TableHeaderStyle.Render("VALUE") + "\n")
	for _, name := range names {
		sb.WriteString("  " + ValueStyle.Render(padRight(name, width)) + "  " + CountStyle.Render(r.Env[name]) + "\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Version:"), ValueStyle.Render(r.RuntimeVersion)),
		fmt.Sprintf("%s %s", LabelStyle.Render("GOMAXPROCS:"), ValueStyle.Render(fmt.Sprintf("%d", r.GOMAXPROCS))),
	}
	if r.TotalRAM > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("RAM:"), ValueStyle.Render(humanize.IBytes(r.TotalRAM))))
	}
	if r.ID != "" {
		parts = append(parts, MutedStyle.Render("id "+r.ID))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
