package report

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trackbench/internal/benchmark"
)

// Chart is a rendered histogram image.
type Chart struct {
	Name  string // file name inside the output directory
	Title string
	PNG   []byte
}

// HistogramCharts renders the four histograms of s as PNG bar charts.
func HistogramCharts(s *benchmark.Summary) ([]Chart, error) {
	specs := []struct {
		name, title string
		n           int
		h           benchmark.Histogram
	}{
		{"hist_length.png", "Length error", len(s.LengthErrors), s.LengthHist},
		{"hist_path_length.png", "Path length error", len(s.PathLengthErrors), s.PathLengthHist},
		{"hist_primary.png", "Primary error", len(s.PrimaryErrors), s.PrimaryHist},
		{"hist_alternate.png", "Alternate error", len(s.PrimaryErrors), s.AlternateHist},
	}

	charts := make([]Chart, 0, len(specs))
	for _, sp := range specs {
		title := fmt.Sprintf("%s (%d sequences)", sp.title, sp.n)
		png, err := histogramPNG(title, sp.h)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sp.name, err)
		}
		charts = append(charts, Chart{Name: sp.name, Title: title, PNG: png})
	}
	return charts, nil
}

// histogramPNG draws one bar per bin. Bins are not uniform in width so the
// x axis is nominal.
func histogramPNG(title string, h benchmark.Histogram) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Error"
	p.Y.Label.Text = "Sequences"
	p.Y.Min = 0

	values := make(plotter.Values, len(h.Counts))
	for i, c := range h.Counts {
		values[i] = float64(c)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(30))
	if err != nil {
		return nil, fmt.Errorf("bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(h.Labels()...)

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
