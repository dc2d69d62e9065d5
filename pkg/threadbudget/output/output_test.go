package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	return &Report{
		ID:             "0192f1d2-0000-7000-8000-000000000000",
		AppliedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CPUSource:      "logical",
		CPUCount:       4,
		ThreadBudget:   3,
		Runtime:        "numrt",
		RuntimeVersion: "v1.0.0+go1.25.5",
		RuntimeThreads: 3,
		Env:            map[string]string{"OMP_NUM_THREADS": "3", "MKL_NUM_THREADS": "3"},
		GOMAXPROCS:     3,
		TotalRAM:       8 << 30,
	}
}

func render(t *testing.T, name string, r *Report) string {
	t.Helper()
	f, err := Get(name)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, r))
	return buf.String()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("plain", func() Formatter { return &PlainFormatter{} })

	f, err := r.Get("plain")
	require.NoError(t, err)
	assert.IsType(t, &PlainFormatter{}, f)

	_, err = r.Get("missing")
	assert.ErrorContains(t, err, "unknown formatter: missing")

	r.Register("json", func() Formatter { return &JSONFormatter{} })
	assert.Equal(t, []string{"json", "plain"}, r.Available())
}

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "plain", "pretty", "template", "yaml"}, Available())
}

func TestNew(t *testing.T) {
	f, err := New("template", "{{.ThreadBudget}}")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))
	assert.Equal(t, "3", buf.String())

	f, err = New("json", "ignored")
	require.NoError(t, err)
	assert.IsType(t, &JSONFormatter{}, f)

	_, err = New("xml", "")
	assert.Error(t, err)
}

func TestPlainFormatter_ThreeLines(t *testing.T) {
	out := render(t, "plain", sampleReport())

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "numrt configured for CPU with 3 threads", lines[0])
	assert.Equal(t, "numrt version: v1.0.0+go1.25.5", lines[1])
	assert.Equal(t, "Number of threads: 3", lines[2])
}

func TestPlainFormatter_ReadBackIsReported(t *testing.T) {
	r := sampleReport()
	r.RuntimeThreads = 5

	out := render(t, "plain", r)
	assert.Contains(t, out, "with 3 threads")
	assert.Contains(t, out, "Number of threads: 5")
}

func TestJSONFormatter(t *testing.T) {
	out := render(t, "json", sampleReport())

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	assert.EqualValues(t, 4, got["cpu_count"])
	assert.EqualValues(t, 3, got["thread_budget"])
	assert.EqualValues(t, 3, got["runtime_threads"])
	assert.Equal(t, "logical", got["cpu_source"])
	assert.Equal(t, map[string]any{"OMP_NUM_THREADS": "3", "MKL_NUM_THREADS": "3"}, got["env"])
	assert.True(t, strings.HasPrefix(out, "{\n  \""), "expected indented JSON, got %q", out)
}

func TestJSONFormatter_OmitsEmptyID(t *testing.T) {
	r := sampleReport()
	r.ID = ""
	assert.NotContains(t, render(t, "json", r), `"id"`)
}

func TestYAMLFormatter(t *testing.T) {
	out := render(t, "yaml", sampleReport())

	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))

	assert.Equal(t, 3, got["thread_budget"])
	assert.Equal(t, "numrt", got["runtime"])
	assert.Contains(t, out, "env:\n  MKL_NUM_THREADS: \"3\"\n  OMP_NUM_THREADS: \"3\"\n")
}

func TestPrettyFormatter(t *testing.T) {
	out := render(t, "pretty", sampleReport())

	for _, want := range []string{
		"numrt configured for CPU",
		"3 threads",
		"4 (logical)",
		"OMP_NUM_THREADS",
		"MKL_NUM_THREADS",
		"v1.0.0+go1.25.5",
		"8.0 GiB",
		"ok",
	} {
		assert.Contains(t, out, want)
	}
}

func TestPrettyFormatter_Mismatch(t *testing.T) {
	r := sampleReport()
	r.RuntimeThreads = 2
	r.Env = nil
	r.TotalRAM = 0

	out := render(t, "pretty", r)
	assert.Contains(t, out, "mismatch")
	assert.Contains(t, out, "No environment variables set")
	assert.NotContains(t, out, "RAM:")
}

func TestTemplateFormatter(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{
			name: "fields",
			tmpl: "{{.CPUCount}}/{{.ThreadBudget}}/{{.RuntimeThreads}}",
			want: "4/3/3",
		},
		{
			name: "date func",
			tmpl: `{{date .AppliedAt "2006-01-02"}}`,
			want: "2026-03-01",
		},
		{
			name: "bytes func",
			tmpl: "{{bytes .TotalRAM}}",
			want: "8.0 GiB",
		},
		{
			name: "env lookup",
			tmpl: `{{index .Env "OMP_NUM_THREADS"}}`,
			want: "3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, NewTemplateFormatter(tt.tmpl).Format(&buf, sampleReport()))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestTemplateFormatter_Default(t *testing.T) {
	out := render(t, "template", sampleReport())
	assert.Equal(t, "export MKL_NUM_THREADS=3\nexport OMP_NUM_THREADS=3\n", out)
}

func TestTemplateFormatter_SetTemplate(t *testing.T) {
	f := NewTemplateFormatter("{{.CPUCount}}")

	var buf bytes.Buffer
	require.NoError(t, f.Format(&buf, sampleReport()))
	assert.Equal(t, "4", buf.String())

	f.SetTemplate("{{.GOMAXPROCS}}")
	buf.Reset()
	require.NoError(t, f.Format(&buf, sampleReport()))
	assert.Equal(t, "3", buf.String())
}

func TestTemplateFormatter_ParseError(t *testing.T) {
	var buf bytes.Buffer
	err := NewTemplateFormatter("{{.Broken").Format(&buf, sampleReport())
	assert.Error(t, err)
}

func TestEnvNames(t *testing.T) {
	assert.Equal(t, []string{"MKL_NUM_THREADS", "OMP_NUM_THREADS"}, sampleReport().EnvNames())
	assert.Empty(t, (&Report{}).EnvNames())
}
