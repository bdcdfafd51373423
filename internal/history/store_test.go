package history

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackbench/internal/benchmark"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summary(t *testing.T) *benchmark.Summary {
	t.Helper()
	cases := []benchmark.TestCase{
		benchmark.NewTestCase("ipad3", "ipad3/a.cap"),
		benchmark.NewTestCase("ipad3", "ipad3/b.cap"),
	}
	results := []benchmark.MeasurementResult{
		{ComputedLength: 55, ComputedPathLength: 200, ReferenceLength: 50, ReferencePathLength: math.NaN()},
		benchmark.FailedResult("engine invocation failed: timed out after 1s"),
	}
	sum, err := benchmark.Aggregate(cases, results)
	require.NoError(t, err)
	return sum
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openStore(t)
	v, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
}

func TestOpenTwiceIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordAndPrevious(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	sum := summary(t)

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first := NewRun("/data/seq", "directory", t0, sum)
	require.NoError(t, s.Record(ctx, first, sum))

	n, err := s.CaseCount(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	prev, err := s.Previous(ctx, "/data/seq", t0)
	require.NoError(t, err)
	assert.Nil(t, prev, "a run is not its own predecessor")

	second := NewRun("/data/seq", "directory", t0.Add(time.Hour), sum)
	require.NoError(t, s.Record(ctx, second, sum))
	other := NewRun("/data/other", "directory", t0.Add(2*time.Hour), sum)
	require.NoError(t, s.Record(ctx, other, sum))

	prev, err = s.Previous(ctx, "/data/seq", t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, second.ID, prev.ID)
	assert.Equal(t, 2, prev.Cases)
	assert.Equal(t, 1, prev.Failed)
	assert.Equal(t, sum.Score, prev.Score)
	assert.InDelta(t, 10.0, prev.MeanBelow50, 1e-9)
	assert.True(t, prev.StartedAt.Equal(second.StartedAt))
}

func TestPreviousNaNMean(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	sum, err := benchmark.Aggregate(nil, nil)
	require.NoError(t, err)

	t0 := time.Unix(1000, 0)
	require.NoError(t, s.Record(ctx, NewRun("d", "filename", t0, sum), sum))

	prev, err := s.Previous(ctx, "d", t0.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.True(t, math.IsNaN(prev.MeanBelow50))
	assert.Equal(t, "filename", prev.Convention)
}

func TestWriteComparison(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteComparison(&buf, nil, Run{SequenceDir: "/seq"}))
	assert.Equal(t, "No previous run recorded for /seq\n", buf.String())

	prev := &Run{
		ID:          uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		StartedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Score:       12,
		AltScore:    9,
		MeanBelow50: 7.5,
		Failed:      2,
	}
	cur := Run{Score: 10, AltScore: 11, MeanBelow50: math.NaN(), Failed: 0}

	buf.Reset()
	require.NoError(t, WriteComparison(&buf, prev, cur))
	out := buf.String()
	assert.Contains(t, out, "Compared with run 6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Contains(t, out, "\tHistogram score 12 -> 10 (-2)\n")
	assert.Contains(t, out, "\tAlternate histogram score 9 -> 11 (+2)\n")
	assert.Contains(t, out, "\tMean primary error below 50% 7.50% -> nan%\n")
	assert.Contains(t, out, "\tFailed sequences 2 -> 0\n")
}
