package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a fresh directory and clears XDG_CONFIG_HOME.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultCPUSource, cfg.CPU.Source)
	assert.Equal(t, DefaultReserve, cfg.Budget.Reserve)
	assert.Zero(t, cfg.Budget.Threads)
	assert.Zero(t, cfg.Budget.Max)
	assert.Equal(t, DefaultEnvVars, cfg.Env.Vars)
	assert.Empty(t, cfg.Env.Extra)
	assert.True(t, cfg.Runtime.GOMAXPROCS)
	assert.Equal(t, DefaultOutputFormat, cfg.Output.Format)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, DefaultHistoryPath(), cfg.History.Path)
	assert.Equal(t, DefaultRetentionDays, cfg.History.RetentionDays)
}

func TestLoad_LoggingDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.Path)
	assert.Equal(t, "10MiB", cfg.Logging.Rotation.MaxSize)
	assert.Equal(t, 30, cfg.Logging.Rotation.MaxAge)
	assert.Equal(t, 5, cfg.Logging.Rotation.MaxBackups)
	assert.True(t, cfg.Logging.Rotation.Daily)
	assert.Equal(t, "info", cfg.Logging.Components["configurator"])
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)

	writeConfig(t, filepath.Join(home, ".config", "threadbudget"), `
cpu:
  source: affinity
budget:
  reserve: 2
  threads: 0
  max: 16
env:
  vars: [OMP_NUM_THREADS]
  extra: [OPENBLAS_NUM_THREADS]
runtime:
  gomaxprocs: false
output:
  format: json
history:
  enabled: false
  path: ~/tb-history
  retention_days: 7
logging:
  level: debug
  rotation:
    max_size: 1MB
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "affinity", cfg.CPU.Source)
	assert.Equal(t, 2, cfg.Budget.Reserve)
	assert.Equal(t, 16, cfg.Budget.Max)
	assert.Equal(t, []string{"OMP_NUM_THREADS"}, cfg.Env.Vars)
	assert.Equal(t, []string{"OPENBLAS_NUM_THREADS"}, cfg.Env.Extra)
	assert.False(t, cfg.Runtime.GOMAXPROCS)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(home, "tb-history"), cfg.History.Path)
	assert.Equal(t, 7, cfg.History.RetentionDays)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "1MB", cfg.Logging.Rotation.MaxSize)
}

func TestLoad_XDGConfigHome(t *testing.T) {
	home := isolate(t)
	xdgHome := filepath.Join(home, "xdg-config")
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	writeConfig(t, filepath.Join(xdgHome, "threadbudget"), "budget:\n  threads: 6\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Budget.Threads)
}

func TestLoad_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("THREADBUDGET_BUDGET_RESERVE", "3")
	t.Setenv("THREADBUDGET_CPU_SOURCE", "quota")
	t.Setenv("THREADBUDGET_OUTPUT_FORMAT", "yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Budget.Reserve)
	assert.Equal(t, "quota", cfg.CPU.Source)
	assert.Equal(t, "yaml", cfg.Output.Format)
}

func TestLoadFile(t *testing.T) {
	isolate(t)

	t.Run("explicit file", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "budget:\n  max: 4\n")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Budget.Max)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "budget: [unterminated\n")

		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}

func TestEnvConfigAll(t *testing.T) {
	e := EnvConfig{Vars: []string{"A", "B"}, Extra: []string{"C"}}
	assert.Equal(t, []string{"A", "B", "C"}, e.All())
	assert.Empty(t, EnvConfig{}.All())
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")

		dir, err := ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, "/custom/config/threadbudget", dir)
	})

	t.Run("uses HOME/.config when XDG_CONFIG_HOME not set", func(t *testing.T) {
		home := isolate(t)

		dir, err := ConfigDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".config", "threadbudget"), dir)

		path, err := ConfigPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "config.yaml"), path)
	})
}

func TestWriteDefault(t *testing.T) {
	t.Run("creates a loadable default config", func(t *testing.T) {
		home := isolate(t)

		path, err := WriteDefault()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".config", "threadbudget", "config.yaml"), path)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "OMP_NUM_THREADS")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultReserve, cfg.Budget.Reserve)
		assert.Equal(t, DefaultEnvVars, cfg.Env.Vars)
		assert.Equal(t, DefaultHistoryPath(), cfg.History.Path)
	})

	t.Run("does not overwrite existing config", func(t *testing.T) {
		home := isolate(t)

		existing := "# existing config\nbudget:\n  reserve: 2\n"
		path := writeConfig(t, filepath.Join(home, ".config", "threadbudget"), existing)

		got, err := WriteDefault()
		require.NoError(t, err)
		assert.Equal(t, path, got)

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, existing, string(content))
	})
}

func TestExpandPath(t *testing.T) {
	home := isolate(t)

	tests := []struct {
		in   string
		want string
	}{
		{"~/data", filepath.Join(home, "data")},
		{"~", home},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirs(t *testing.T) {
	assert.True(t, strings.HasSuffix(DataDir(), "threadbudget"))
	assert.True(t, strings.HasSuffix(StateDir(), "threadbudget"))
	assert.Equal(t, filepath.Join(DataDir(), "history"), DefaultHistoryPath())
}
