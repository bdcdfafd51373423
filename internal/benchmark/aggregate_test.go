package benchmark

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasurementError(t *testing.T) {
	tests := []struct {
		name             string
		truth, measured  float64
		wantAbs, wantPct float64
	}{
		{"zero truth falls back to absolute", 0, 5, 5, 5},
		{"sub-centimetre truth", 0.5, 1.5, 1, 1},
		{"ten percent", 50, 55, 5, 10},
		{"under-measured", 200, 150, 50, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abs, pct := MeasurementError(tt.truth, tt.measured)
			assert.InDelta(t, tt.wantAbs, abs, 1e-12)
			assert.InDelta(t, tt.wantPct, pct, 1e-12)
		})
	}
}

func result(l, pl, refL, refPL float64) MeasurementResult {
	return MeasurementResult{ComputedLength: l, ComputedPathLength: pl, ReferenceLength: refL, ReferencePathLength: refPL}
}

func TestComputeCaseErrorPrimarySelection(t *testing.T) {
	nan := math.NaN()
	tc := NewTestCase("c", "p")

	t.Run("explicit loop closure", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(2, 98, 0, 100))
		assert.True(t, ce.HasLength)
		assert.True(t, ce.HasPathLength)
		assert.True(t, ce.LoopClosure)
		assert.InDelta(t, 2.0, ce.Primary, 1e-12) // 100*|2-0|/100
		assert.InDelta(t, 2.0, ce.PathLengthErrorPct, 1e-12)
	})

	t.Run("implicit loop closure uses measured PL", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(3, 60, 0, nan))
		assert.False(t, ce.HasPathLength)
		assert.True(t, ce.LoopClosure)
		assert.Equal(t, 60.0, ce.TruthPathLength)
		assert.InDelta(t, 5.0, ce.Primary, 1e-12)
	})

	t.Run("long straight line uses length percent", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(110, 120, 100, nan))
		assert.False(t, ce.LoopClosure)
		assert.InDelta(t, 10.0, ce.Primary, 1e-12)
	})

	t.Run("short line without loop uses absolute error", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(4, 4, 3, nan))
		assert.False(t, ce.LoopClosure)
		assert.InDelta(t, 1.0, ce.Primary, 1e-12)
	})

	t.Run("no length uses path length percent", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(10, 45, nan, 50))
		assert.False(t, ce.HasLength)
		assert.Equal(t, 0.0, ce.TruthLength)
		assert.InDelta(t, 10.0, ce.Primary, 1e-12)
	})

	t.Run("zero path length becomes one", func(t *testing.T) {
		ce := ComputeCaseError(tc, result(0.5, 0, 0, nan))
		assert.Equal(t, 1.0, ce.TruthPathLength)
		assert.InDelta(t, 50.0, ce.LoopClosurePct, 1e-12)
	})

	t.Run("test case ground truth wins over reference", func(t *testing.T) {
		labelled := TestCase{Config: "c", Path: "p", LengthCM: 100, PathLengthCM: nan}
		ce := ComputeCaseError(labelled, result(105, 110, 7, nan))
		assert.Equal(t, 100.0, ce.TruthLength)
		assert.InDelta(t, 5.0, ce.Primary, 1e-12)
	})
}

func TestAggregate(t *testing.T) {
	nan := math.NaN()
	cases := []TestCase{
		NewTestCase("c", "a"),
		NewTestCase("c", "b"),
		NewTestCase("c", "c"),
		NewTestCase("c", "d"),
	}
	results := []MeasurementResult{
		result(110, 120, 100, nan), // L 10%, primary 10
		result(2, 98, 0, 100),      // L abs 2, PL 2%, primary loop closure 2
		FailedResult("engine crashed"),
		result(10, 300, nan, 100), // PL 200%, primary 200
	}

	s, err := Aggregate(cases, results)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Failed)
	require.Len(t, s.Entries, 4)
	assert.True(t, s.Entries[2].Result.Failed)

	assert.InDeltaSlice(t, []float64{10, 2}, s.LengthErrors, 1e-9)
	assert.InDeltaSlice(t, []float64{2, 200}, s.PathLengthErrors, 1e-9)
	assert.InDeltaSlice(t, []float64{10, 2, 200}, s.PrimaryErrors, 1e-9)

	assert.Equal(t, []float64{0, 3, 10, 25, 50, 100, 200}, s.PrimaryHist.Edges)
	assert.Equal(t, []int{1, 0, 1, 0, 0, 1}, s.PrimaryHist.Counts)
	assert.Equal(t, []int{1, 1, 0, 0, 0, 1}, s.AlternateHist.Counts)
	assert.Equal(t, 0*1+2*1+5*1, s.Score)
	assert.Equal(t, 0*1+1*1+5*1, s.AlternateScore)

	assert.Equal(t, 2, s.CountBelow50)
	assert.InDelta(t, 6.0, s.MeanBelow50, 1e-9)
}

func TestAggregateLengthMismatch(t *testing.T) {
	_, err := Aggregate([]TestCase{NewTestCase("c", "a")}, nil)
	assert.Error(t, err)
}

func TestAggregateAllFailed(t *testing.T) {
	s, err := Aggregate([]TestCase{NewTestCase("c", "a")}, []MeasurementResult{FailedResult("x")})
	require.NoError(t, err)
	assert.Empty(t, s.PrimaryErrors)
	assert.Equal(t, 0, s.PrimaryHist.Total())
	assert.True(t, math.IsNaN(s.MeanBelow50))
	assert.Equal(t, 0, s.Score)
}
