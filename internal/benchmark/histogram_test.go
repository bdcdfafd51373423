package benchmark

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHistogramBinEdges(t *testing.T) {
	h := NewHistogram([]float64{0, 2.99, 3, 10, 24.9, 50, 100}, DefaultEdges)
	assert.Equal(t, DefaultEdges, h.Edges)
	// half-open bins, last bin closed
	assert.Equal(t, []int{2, 1, 2, 0, 2}, h.Counts)
}

func TestNewHistogramAppendsMax(t *testing.T) {
	h := NewHistogram([]float64{1, 150, 320}, DefaultEdges)
	assert.Equal(t, []float64{0, 3, 10, 25, 50, 100, 320}, h.Edges)
	assert.Equal(t, []int{1, 0, 0, 0, 0, 2}, h.Counts)

	// base edges are not modified
	assert.Equal(t, []float64{0, 3, 10, 25, 50, 100}, DefaultEdges)
}

func TestHistogramCountsSumToInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, edges := range [][]float64{DefaultEdges, AlternateEdges, {0, 100}} {
		for n := 0; n < 50; n++ {
			values := make([]float64, n)
			for i := range values {
				values[i] = rng.Float64() * 250
			}
			h := NewHistogram(values, edges)
			assert.Equal(t, n, h.Total(), "edges %v n %d", edges, n)
		}
	}
}

func TestHistogramScore(t *testing.T) {
	h := Histogram{Edges: DefaultEdges, Counts: []int{4, 3, 2, 1, 0}}
	assert.Equal(t, 0*4+1*3+2*2+3*1, h.Score())
}

func TestHistogramString(t *testing.T) {
	h := NewHistogram([]float64{1, 5, 150}, DefaultEdges)
	assert.Equal(t, "0.0%\t3.0%\t10.0%\t25.0%\t50.0%\t100.0%+\n1\t1\t0\t0\t0\t1\n", h.String())

	empty := NewHistogram(nil, AlternateEdges)
	assert.Equal(t, "0.0%\t4.0%\t12.0%\t30.0%\t65.0%+\n0\t0\t0\t0\t0\n", empty.String())
}

func TestHistogramLabels(t *testing.T) {
	h := NewHistogram(nil, DefaultEdges)
	assert.Equal(t, []string{"0-3%", "3-10%", "10-25%", "25-50%", "50%+"}, h.Labels())
}

func TestMeanBelow(t *testing.T) {
	mean, n := MeanBelow([]float64{10, 20, 50, 75, 30}, 50)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 20.0, mean, 1e-12)

	mean, n = MeanBelow([]float64{50, 99}, 50)
	assert.Equal(t, 0, n)
	assert.True(t, math.IsNaN(mean))
}
