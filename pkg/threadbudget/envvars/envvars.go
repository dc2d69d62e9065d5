// Package envvars applies a thread budget to the environment variables read
// by native math libraries (OpenMP, MKL, OpenBLAS) that size their own
// thread pools outside any Go-side control.
package envvars

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names honored by native math libraries.
const (
	OMPNumThreads      = "OMP_NUM_THREADS"
	MKLNumThreads      = "MKL_NUM_THREADS"
	OpenBLASNumThreads = "OPENBLAS_NUM_THREADS"
)

// DefaultVars are the variables set when no others are configured.
var DefaultVars = []string{OMPNumThreads, MKLNumThreads}

// SetenvFunc sets one environment variable. os.Setenv satisfies it.
type SetenvFunc func(key, value string) error

// Format renders n the way native libraries parse it: plain decimal, no
// padding or whitespace.
func Format(n int) string {
	return strconv.Itoa(n)
}

// Normalize trims, upper-cases and de-duplicates vars, preserving order.
// An empty result falls back to DefaultVars.
func Normalize(vars []string) []string {
	seen := make(map[string]struct{}, len(vars))
	out := make([]string, 0, len(vars))
	for _, v := range vars {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return append([]string(nil), DefaultVars...)
	}
	return out
}

// Apply sets every variable in vars to n and returns the applied values.
// A nil setenv uses os.Setenv.
func Apply(setenv SetenvFunc, vars []string, n int) (map[string]string, error) {
	if setenv == nil {
		setenv = os.Setenv
	}

	value := Format(n)
	applied := make(map[string]string, len(vars))
	for _, key := range vars {
		if err := setenv(key, value); err != nil {
			return applied, fmt.Errorf("setting %s: %w", key, err)
		}
		applied[key] = value
	}
	return applied, nil
}

// Environ returns a copy of base with every variable in vars set to n.
// Existing entries for those variables are replaced, others are kept in order.
func Environ(base []string, vars []string, n int) []string {
	replace := make(map[string]struct{}, len(vars))
	for _, key := range vars {
		replace[key] = struct{}{}
	}

	out := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := replace[key]; ok {
			continue
		}
		out = append(out, kv)
	}

	value := Format(n)
	for _, key := range vars {
		out = append(out, key+"="+value)
	}
	return out
}
