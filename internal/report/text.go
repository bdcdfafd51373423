// Package report renders benchmark results as a plain-text report, histogram
// charts and an HTML gallery of the engine's renders.
package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/banshee-data/trackbench/internal/benchmark"
)

// ResultsFile is the text report name inside an output directory.
const ResultsFile = "results.txt"

// WriteText writes the text report for s to out.
func WriteText(out io.Writer, s *benchmark.Summary) error {
	w := bufio.NewWriter(out)

	for _, e := range s.Entries {
		fmt.Fprintf(w, "Result %s\n", e.Case.Path)
		if e.Result.Failed {
			fmt.Fprintf(w, "\tfailed: %s\n", e.Result.FailureReason)
			continue
		}
		if e.HasLength {
			fmt.Fprintf(w, "\tL\t%s\n", measurementString(e.TruthLength, e.Result.ComputedLength))
			if e.LoopClosure {
				fmt.Fprintf(w, "\tLoop closure error: %s%%\n", f2(e.LoopClosurePct))
			}
		}
		if e.HasPathLength {
			fmt.Fprintf(w, "\tPL\t%s\n", measurementString(e.TruthPathLength, e.Result.ComputedPathLength))
		}
	}

	writeHistogram(w, "Length error histogram", len(s.LengthErrors), s.LengthHist)
	writeHistogram(w, "Path length error histogram", len(s.PathLengthErrors), s.PathLengthHist)
	writeHistogram(w, "Primary error histogram", len(s.PrimaryErrors), s.PrimaryHist)
	writeHistogram(w, "Alternate error histogram", len(s.PrimaryErrors), s.AlternateHist)

	fmt.Fprintf(w, "Mean of %d primary errors that are less than 50%% is %s%%\n", s.CountBelow50, f2(s.MeanBelow50))
	fmt.Fprintf(w, "Histogram score (lower is better) is %d\n", s.Score)
	fmt.Fprintf(w, "Alternate histogram score (lower is better) is %d\n\n", s.AlternateScore)
	if s.Failed > 0 {
		fmt.Fprintf(w, "%d of %d sequences failed\n", s.Failed, len(s.Entries))
	}

	return w.Flush()
}

func writeHistogram(w io.Writer, title string, n int, h benchmark.Histogram) {
	fmt.Fprintf(w, "%s (%d sequences)\n", title, n)
	fmt.Fprintf(w, "%s\n", h.String())
}

func measurementString(truth, measured float64) string {
	abs, pct := benchmark.MeasurementError(truth, measured)
	return fmt.Sprintf("%scm actual, %scm measured, %scm error (%s%%)", f2(truth), f2(measured), f2(abs), f2(pct))
}

// f2 formats v with two decimals, spelling NaN as "nan".
func f2(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
