package benchmark

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Histogram bin edges in percent.
var (
	DefaultEdges   = []float64{0, 3, 10, 25, 50, 100}
	AlternateEdges = []float64{0, 4, 12, 30, 65, 100}
)

// Histogram is a read-only count of errors per bin. Bin i covers
// [Edges[i], Edges[i+1]) except the last bin, which also includes its upper
// edge. Values outside [Edges[0], Edges[len-1]] are not counted.
type Histogram struct {
	Edges  []float64
	Counts []int
}

// NewHistogram bins values using base edges. When the largest value exceeds
// the last base edge, it is appended as a closing edge so every value lands
// in a bin.
func NewHistogram(values []float64, base []float64) Histogram {
	edges := append([]float64(nil), base...)
	if len(values) > 0 {
		if m := floats.Max(values); m > edges[len(edges)-1] {
			edges = append(edges, m)
		}
	}

	h := Histogram{Edges: edges, Counts: make([]int, len(edges)-1)}
	last := len(h.Counts) - 1
	for _, v := range values {
		if math.IsNaN(v) || v < edges[0] || v > edges[len(edges)-1] {
			continue
		}
		if v == edges[len(edges)-1] {
			h.Counts[last]++
			continue
		}
		// first edge strictly greater than v closes v's bin
		i := sort.Search(len(edges), func(i int) bool { return edges[i] > v })
		h.Counts[i-1]++
	}
	return h
}

// Total returns the number of counted values.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h.Counts {
		n += c
	}
	return n
}

// Score returns the sum of bin index times count. Lower is better.
func (h Histogram) Score() int {
	s := 0
	for i, c := range h.Counts {
		s += i * c
	}
	return s
}

// String renders the bin lower bounds and counts as two tab-separated lines.
// The closing edge is dropped and the last lower bound is suffixed with "+".
func (h Histogram) String() string {
	labels := make([]string, 0, len(h.Edges))
	for _, e := range h.Edges[:len(h.Edges)-1] {
		labels = append(labels, fmt.Sprintf("%.1f%%", e))
	}
	labels[len(labels)-1] += "+"

	counts := make([]string, len(h.Counts))
	for i, c := range h.Counts {
		counts[i] = strconv.Itoa(c)
	}

	var b strings.Builder
	b.WriteString(strings.Join(labels, "\t"))
	b.WriteByte('\n')
	b.WriteString(strings.Join(counts, "\t"))
	b.WriteByte('\n')
	return b.String()
}

// Labels returns a short label per bin such as "3-10%" or "100%+".
func (h Histogram) Labels() []string {
	labels := make([]string, len(h.Counts))
	for i := range h.Counts {
		if i == len(h.Counts)-1 {
			labels[i] = fmt.Sprintf("%g%%+", h.Edges[i])
			continue
		}
		labels[i] = fmt.Sprintf("%g-%g%%", h.Edges[i], h.Edges[i+1])
	}
	return labels
}

// MeanBelow returns the mean of the values strictly below limit and how many
// there were. The mean is NaN when none qualify.
func MeanBelow(values []float64, limit float64) (float64, int) {
	sum := 0.0
	n := 0
	for _, v := range values {
		if v < limit {
			sum += v
			n++
		}
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}
