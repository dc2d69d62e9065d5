package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/threadbudget/pkg/threadbudget/output"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func report(threads int, appliedAt time.Time) *output.Report {
	return &output.Report{
		AppliedAt:      appliedAt,
		CPUSource:      "logical",
		CPUCount:       threads + 1,
		ThreadBudget:   threads,
		Runtime:        "numrt",
		RuntimeVersion: "devel",
		RuntimeThreads: threads,
		Env:            map[string]string{"OMP_NUM_THREADS": "x"},
	}
}

func TestOpen_WritesSchema(t *testing.T) {
	s := setupTestStore(t)

	schema := s.GetSchema()
	require.NotNil(t, schema)
	assert.Equal(t, CurrentSchemaVersion, schema.Version)
}

func TestOpen_OnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")

	s, err := Open(dir)
	require.NoError(t, err)

	r := report(3, time.Now())
	require.NoError(t, s.Append(r))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ThreadBudget)
}

func TestAppend_AssignsID(t *testing.T) {
	s := setupTestStore(t)

	r := report(3, time.Now())
	require.NoError(t, s.Append(r))
	assert.NotEmpty(t, r.ID)

	keep := &output.Report{ID: "fixed-id", AppliedAt: time.Now()}
	require.NoError(t, s.Append(keep))
	assert.Equal(t, "fixed-id", keep.ID)
}

func TestList_NewestFirst(t *testing.T) {
	s := setupTestStore(t)
	now := time.Now()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(report(i, now.Add(time.Duration(i)*time.Second))))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, r := range all {
		assert.Equal(t, 5-i, r.ThreadBudget, "position %d", i)
	}

	limited, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, 5, limited[0].ThreadBudget)
	assert.Equal(t, 4, limited[1].ThreadBudget)
}

func TestList_Empty(t *testing.T) {
	s := setupTestStore(t)

	records, err := s.List(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGet(t *testing.T) {
	s := setupTestStore(t)

	r := report(7, time.Now().UTC().Truncate(time.Second))
	require.NoError(t, s.Append(r))

	t.Run("exact id", func(t *testing.T) {
		got, err := s.Get(r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		assert.Equal(t, 7, got.ThreadBudget)
		assert.True(t, r.AppliedAt.Equal(got.AppliedAt))
		assert.Equal(t, r.Env, got.Env)
	})

	t.Run("unique prefix", func(t *testing.T) {
		got, err := s.Get(r.ID[:13])
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := s.Get("ffffffff")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := s.Get("  ")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestGet_AmbiguousPrefix(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Append(&output.Report{ID: "abc-1", AppliedAt: time.Now()}))
	require.NoError(t, s.Append(&output.Report{ID: "abc-2", AppliedAt: time.Now()}))

	_, err := s.Get("abc")
	assert.ErrorIs(t, err, ErrAmbiguous)

	got, err := s.Get("abc-2")
	require.NoError(t, err)
	assert.Equal(t, "abc-2", got.ID)
}

func TestClean(t *testing.T) {
	s := setupTestStore(t)
	now := time.Now()

	old := []*output.Report{
		report(1, now.AddDate(0, 0, -40)),
		report(2, now.AddDate(0, 0, -31)),
	}
	recent := []*output.Report{
		report(3, now.AddDate(0, 0, -2)),
		report(4, now),
	}
	for _, r := range append(append([]*output.Report{}, old...), recent...) {
		require.NoError(t, s.Append(r))
	}

	removed, err := s.Clean(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	remaining, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, 4, remaining[0].ThreadBudget)
	assert.Equal(t, 3, remaining[1].ThreadBudget)

	for _, r := range old {
		_, err := s.Get(r.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	}

	removed, err = s.Clean(now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestNewID_Ordered(t *testing.T) {
	prev, err := NewID()
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		next, err := NewID()
		require.NoError(t, err)
		assert.Greater(t, next, prev)
		prev = next
	}
}
