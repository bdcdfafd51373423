package engine

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoReport is returned by a ReportParser when the output carries no
// recognisable measurement.
var ErrNoReport = errors.New("no measurement report in engine output")

// Report is the measurement printed by the engine. Reference values are NaN
// when the engine has no ground truth for the sequence.
type Report struct {
	ReferenceLength     float64
	ReferencePathLength float64
	ComputedLength      float64
	ComputedPathLength  float64
}

// ReportParser extracts a Report from the engine's combined output.
type ReportParser interface {
	Parse(output []byte) (Report, error)
}

// The engine prints, for example:
//
//	Reference Straight-line length is 0.00 cm, total path length 65.00 cm
//	Computed  Straight-line length is 0.40 cm, total path length 49.29 cm
var (
	referencePattern = regexp.MustCompile(`(?s)Reference .* (-?nan|[\d.]+) cm.* (-?nan|[\d.]+) cm.*Computed .* ([\d.]+) cm.* ([\d.]+) cm`)
	computedPattern  = regexp.MustCompile(`(?s)Computed .* ([\d.]+) cm.* ([\d.]+) cm`)
)

// RegexParser parses the engine's text report.
type RegexParser struct {
	// ReferenceOptional accepts output without a Reference line, leaving the
	// reference values NaN. Used when ground truth comes from file names.
	ReferenceOptional bool
}

// Parse implements ReportParser.
func (p RegexParser) Parse(output []byte) (Report, error) {
	if m := referencePattern.FindSubmatch(output); m != nil {
		return buildReport(string(m[1]), string(m[2]), string(m[3]), string(m[4]))
	}
	if p.ReferenceOptional {
		if m := computedPattern.FindSubmatch(output); m != nil {
			return buildReport("nan", "nan", string(m[1]), string(m[2]))
		}
	}
	return Report{}, ErrNoReport
}

func buildReport(refL, refPL, l, pl string) (Report, error) {
	var r Report
	var err error
	if r.ReferenceLength, err = parseCM(refL); err != nil {
		return Report{}, err
	}
	if r.ReferencePathLength, err = parseCM(refPL); err != nil {
		return Report{}, err
	}
	if r.ComputedLength, err = parseCM(l); err != nil {
		return Report{}, err
	}
	if r.ComputedPathLength, err = parseCM(pl); err != nil {
		return Report{}, err
	}
	return r, nil
}

func parseCM(s string) (float64, error) {
	if strings.TrimPrefix(s, "-") == "nan" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad length %q", ErrNoReport, s)
	}
	return v, nil
}
