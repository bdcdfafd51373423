// Package benchmark discovers recorded sequences, runs the measurement
// engine over them in parallel and aggregates the accuracy statistics.
//
// L is the straight-line measurement length and PL the total path length,
// both in centimetres.
package benchmark

import "math"

// TestCase is one recorded sequence to measure. Ground truth values are NaN
// when the scan convention does not carry them; the engine may supply them.
type TestCase struct {
	Config string // configuration name passed to the engine
	Path   string // slash-separated path relative to the sequence root

	LengthCM     float64
	PathLengthCM float64
}

// NewTestCase returns a TestCase without ground truth.
func NewTestCase(config, path string) TestCase {
	return TestCase{Config: config, Path: path, LengthCM: math.NaN(), PathLengthCM: math.NaN()}
}

// HasLength reports whether the case carries a ground truth L.
func (tc TestCase) HasLength() bool { return !math.IsNaN(tc.LengthCM) }

// HasPathLength reports whether the case carries a ground truth PL.
func (tc TestCase) HasPathLength() bool { return !math.IsNaN(tc.PathLengthCM) }

// RenderPath returns the engine render image path for the case, relative to
// the output directory.
func (tc TestCase) RenderPath() string { return tc.Path + ".png" }

// MeasurementResult is the outcome of one engine invocation. Reference values
// are NaN when absent. Computed values are NaN when Failed is set.
type MeasurementResult struct {
	ComputedLength     float64
	ComputedPathLength float64

	ReferenceLength     float64
	ReferencePathLength float64

	Failed        bool
	FailureReason string
}

// FailedResult returns a failed MeasurementResult with every value NaN.
func FailedResult(reason string) MeasurementResult {
	nan := math.NaN()
	return MeasurementResult{
		ComputedLength:      nan,
		ComputedPathLength:  nan,
		ReferenceLength:     nan,
		ReferencePathLength: nan,
		Failed:              true,
		FailureReason:       reason,
	}
}
