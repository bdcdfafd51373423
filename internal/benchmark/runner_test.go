package benchmark

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeMeasurer struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
	delay    func(tc TestCase) time.Duration
}

func (f *fakeMeasurer) Measure(ctx context.Context, tc TestCase) MeasurementResult {
	f.calls.Add(1)
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(tc)):
		case <-ctx.Done():
			return FailedResult(ctx.Err().Error())
		}
	}
	if tc.Config == "broken" {
		return FailedResult("no report")
	}
	var n float64
	fmt.Sscanf(tc.Path, "case%f", &n)
	return MeasurementResult{ComputedLength: n, ComputedPathLength: n * 2}
}

func makeCases(n int) []TestCase {
	cases := make([]TestCase, n)
	for i := range cases {
		cases[i] = NewTestCase("cfg", fmt.Sprintf("case%d", i))
	}
	return cases
}

func TestRunnerPreservesOrder(t *testing.T) {
	// Later cases finish first.
	m := &fakeMeasurer{delay: func(tc TestCase) time.Duration {
		var n int
		fmt.Sscanf(tc.Path, "case%d", &n)
		return time.Duration(20-n) * time.Millisecond
	}}
	cases := makeCases(20)

	results, err := NewRunner(m, 4, nil).Run(context.Background(), cases)
	require.NoError(t, err)
	require.Len(t, results, 20)
	for i, res := range results {
		assert.False(t, res.Failed)
		assert.Equal(t, float64(i), res.ComputedLength)
	}
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	m := &fakeMeasurer{delay: func(TestCase) time.Duration { return 5 * time.Millisecond }}

	_, err := NewRunner(m, 3, nil).Run(context.Background(), makeCases(15))
	require.NoError(t, err)
	assert.LessOrEqual(t, m.peak, 3)
	assert.Equal(t, int32(15), m.calls.Load())
}

func TestRunnerKeepsFailedCases(t *testing.T) {
	cases := append(makeCases(2), NewTestCase("broken", "x"))
	results, err := NewRunner(&fakeMeasurer{}, 2, nil).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.False(t, results[0].Failed)
	assert.True(t, results[2].Failed)
	assert.Equal(t, "no report", results[2].FailureReason)
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeMeasurer{delay: func(TestCase) time.Duration { return time.Minute }}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	results, err := NewRunner(m, 2, nil).Run(ctx, makeCases(6))
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 6)
	for _, res := range results {
		assert.True(t, res.Failed)
	}
}

func TestNewRunnerMinimumWorkers(t *testing.T) {
	assert.Equal(t, 1, NewRunner(&fakeMeasurer{}, 0, nil).Workers())
	assert.Equal(t, 1, NewRunner(&fakeMeasurer{}, -3, nil).Workers())
}
