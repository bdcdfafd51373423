package kpi

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds every KPI value collected across the categories, in the
// order the sequences were scored.
type Metrics struct {
	StaticNoiseTranslation []float64 // mm
	StaticNoiseRotation    []float64 // deg
	ZeroDriftTranslation   []float64 // mm
	ZeroDriftRotation      []float64 // deg
	TranslationScale       []float64 // percent
	TranslationErrorRatio  []float64 // percent
	RotationErrors         []float64 // deg
}

func (m *Metrics) merge(o *Metrics) {
	m.StaticNoiseTranslation = append(m.StaticNoiseTranslation, o.StaticNoiseTranslation...)
	m.StaticNoiseRotation = append(m.StaticNoiseRotation, o.StaticNoiseRotation...)
	m.ZeroDriftTranslation = append(m.ZeroDriftTranslation, o.ZeroDriftTranslation...)
	m.ZeroDriftRotation = append(m.ZeroDriftRotation, o.ZeroDriftRotation...)
	m.TranslationScale = append(m.TranslationScale, o.TranslationScale...)
	m.TranslationErrorRatio = append(m.TranslationErrorRatio, o.TranslationErrorRatio...)
	m.RotationErrors = append(m.RotationErrors, o.RotationErrors...)
}

// MeanStd returns the mean and population standard deviation of x. Both are
// NaN when x is empty.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(x, nil)
}

// WriteValues prints the raw per-sequence values of every metric.
func WriteValues(w io.Writer, m *Metrics) error {
	lines := []struct {
		label  string
		values []float64
	}{
		{"Zero drift translations:", m.ZeroDriftTranslation},
		{"Zero drift rotations:", m.ZeroDriftRotation},
		{"Static noise translations:", m.StaticNoiseTranslation},
		{"Static noise rotations:", m.StaticNoiseRotation},
		{"Translation scales:", m.TranslationScale},
		{"Translation error ratios:", m.TranslationErrorRatio},
		{"Rotation errors:", m.RotationErrors},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s %s\n", l.label, formatList(l.values)); err != nil {
			return err
		}
	}
	return nil
}

func formatList(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// WriteSummary prints the mean (std) of every metric next to its target.
func WriteSummary(w io.Writer, m *Metrics) error {
	var b strings.Builder
	line := func(label string, x []float64) {
		mean, std := MeanStd(x)
		fmt.Fprintf(&b, "  %-29s%s (%s)\n", label, fixed(mean, 2), fixed(std, 3))
	}

	b.WriteString("\nKPI Summary - mean (std)\n")
	b.WriteString("=============================\n")
	b.WriteString("Static noise:\n")
	line("Translation (target < 1mm):", m.StaticNoiseTranslation)
	line("Rotation (target < 0.1deg):", m.StaticNoiseRotation)
	b.WriteString("Zero drift:\n")
	line("Translation (target < 3mm):", m.ZeroDriftTranslation)
	line("Rotation (target < 0.5deg):", m.ZeroDriftRotation)
	b.WriteString("VR Translation:\n")
	line("Scale (target < 5%):", m.TranslationScale)
	line("Error ratio (target < 1%):", m.TranslationErrorRatio)
	b.WriteString("Rotation test:\n")
	line("Max error (target < 1deg):", m.RotationErrors)

	_, err := io.WriteString(w, b.String())
	return err
}

func fixed(v float64, prec int) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
