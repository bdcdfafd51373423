package benchmark

import (
	"fmt"
	"math"
)

// Thresholds used when choosing the primary error of a case.
const (
	// ShortLengthCM is the length at or below which a sequence is treated
	// as returning to its start.
	ShortLengthCM = 5.0
	// MeanErrorLimit bounds the primary errors included in the mean.
	MeanErrorLimit = 50.0
)

// MeasurementError returns the absolute error and the percentage error of
// measured against truth. Truths under 1cm report the absolute error as the
// percentage to avoid dividing by a near-zero length.
func MeasurementError(truth, measured float64) (abs, pct float64) {
	abs = math.Abs(measured - truth)
	if truth < 1 {
		return abs, abs
	}
	return abs, 100 * abs / truth
}

// CaseError holds the error arithmetic for one measured case.
type CaseError struct {
	Case   TestCase
	Result MeasurementResult

	HasLength     bool
	HasPathLength bool

	// Effective ground truth after substitution for missing values.
	TruthLength     float64
	TruthPathLength float64

	LengthError        float64
	LengthErrorPct     float64
	PathLengthError    float64
	PathLengthErrorPct float64
	LoopClosurePct     float64

	// LoopClosure is set when the primary error is the loop closure error.
	LoopClosure bool
	Primary     float64
}

// ComputeCaseError applies the per-case error rules to a successful result.
//
// Ground truth comes from the test case when present, otherwise from the
// engine's reference values. A missing L is treated as 0. A missing PL is
// replaced by the measured PL, and a PL of 0 by 1.
func ComputeCaseError(tc TestCase, res MeasurementResult) CaseError {
	truthL := tc.LengthCM
	if math.IsNaN(truthL) {
		truthL = res.ReferenceLength
	}
	truthPL := tc.PathLengthCM
	if math.IsNaN(truthPL) {
		truthPL = res.ReferencePathLength
	}

	ce := CaseError{
		Case:          tc,
		Result:        res,
		HasLength:     !math.IsNaN(truthL),
		HasPathLength: !math.IsNaN(truthPL),
	}

	L, PL := res.ComputedLength, res.ComputedPathLength
	if !ce.HasLength {
		truthL = 0
	}
	if !ce.HasPathLength {
		truthPL = PL
	}
	if truthPL == 0 {
		truthPL = 1
	}
	ce.TruthLength, ce.TruthPathLength = truthL, truthPL

	ce.LengthError, ce.LengthErrorPct = MeasurementError(truthL, L)
	ce.PathLengthError, ce.PathLengthErrorPct = MeasurementError(truthPL, PL)
	ce.LoopClosurePct = 100 * math.Abs(L-truthL) / truthPL

	switch {
	case !ce.HasLength:
		ce.Primary = ce.PathLengthErrorPct
	case ce.HasPathLength || (PL > ShortLengthCM && truthL <= ShortLengthCM):
		// explicit loop closure, or an implicit one using measured PL as the loop length
		ce.LoopClosure = true
		ce.Primary = ce.LoopClosurePct
	case truthL > ShortLengthCM:
		ce.Primary = ce.LengthErrorPct
	default:
		ce.Primary = ce.LengthError
	}
	return ce
}

// Summary is the aggregate of a benchmark run.
type Summary struct {
	// Entries holds one entry per case in scan order. Failed cases carry
	// only Case and Result.
	Entries []CaseError
	Failed  int

	LengthErrors     []float64
	PathLengthErrors []float64
	PrimaryErrors    []float64

	LengthHist     Histogram
	PathLengthHist Histogram
	PrimaryHist    Histogram
	AlternateHist  Histogram

	Score          int
	AlternateScore int

	MeanBelow50  float64
	CountBelow50 int
}

// Aggregate computes the run statistics. cases and results must be parallel
// slices. Failed results are kept in Entries but excluded from every error
// list.
func Aggregate(cases []TestCase, results []MeasurementResult) (*Summary, error) {
	if len(cases) != len(results) {
		return nil, fmt.Errorf("aggregate: %d cases but %d results", len(cases), len(results))
	}

	s := &Summary{Entries: make([]CaseError, 0, len(cases))}
	for i, tc := range cases {
		res := results[i]
		if res.Failed {
			s.Failed++
			s.Entries = append(s.Entries, CaseError{Case: tc, Result: res})
			continue
		}

		ce := ComputeCaseError(tc, res)
		s.Entries = append(s.Entries, ce)
		if ce.HasLength {
			s.LengthErrors = append(s.LengthErrors, ce.LengthErrorPct)
		}
		if ce.HasPathLength {
			s.PathLengthErrors = append(s.PathLengthErrors, ce.PathLengthErrorPct)
		}
		s.PrimaryErrors = append(s.PrimaryErrors, ce.Primary)
	}

	s.LengthHist = NewHistogram(s.LengthErrors, DefaultEdges)
	s.PathLengthHist = NewHistogram(s.PathLengthErrors, DefaultEdges)
	s.PrimaryHist = NewHistogram(s.PrimaryErrors, DefaultEdges)
	s.AlternateHist = NewHistogram(s.PrimaryErrors, AlternateEdges)
	s.Score = s.PrimaryHist.Score()
	s.AlternateScore = s.AlternateHist.Score()
	s.MeanBelow50, s.CountBelow50 = MeanBelow(s.PrimaryErrors, MeanErrorLimit)
	return s, nil
}
