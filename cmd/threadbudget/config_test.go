package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides(t *testing.T) {
	environ := []string{
		"HOME=/home/u",
		"THREADBUDGET_OUTPUT_FORMAT=json",
		"THREADBUDGET_BUDGET_RESERVE=2",
		"OMP_NUM_THREADS=4",
		"THREADBUDGET",
	}

	assert.Equal(t, []string{"THREADBUDGET_BUDGET_RESERVE", "THREADBUDGET_OUTPUT_FORMAT"}, envOverrides(environ))
	assert.Empty(t, envOverrides([]string{"PATH=/bin"}))
}
