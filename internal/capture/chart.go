package capture

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// maxChartPoints caps the number of intervals plotted per stream.
const maxChartPoints = 5000

// RenderDeltaChart writes an HTML page with one line chart per stream showing
// the interval between consecutive samples in milliseconds.
func RenderDeltaChart(w io.Writer, title string, sum *Summary) error {
	page := components.NewPage()
	page.PageTitle = title

	for _, s := range sum.Streams {
		deltas := s.Deltas()
		if len(deltas) == 0 {
			continue
		}
		stride := 1
		if len(deltas) > maxChartPoints {
			stride = len(deltas)/maxChartPoints + 1
		}

		x := make([]int, 0, len(deltas)/stride+1)
		y := make([]opts.LineData, 0, len(deltas)/stride+1)
		for i := 0; i < len(deltas); i += stride {
			x = append(x, i)
			y = append(y, opts.LineData{Value: deltas[i] / 1000})
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "360px"}),
			charts.WithTitleOpts(opts.Title{
				Title:    s.Key,
				Subtitle: fmt.Sprintf("%d packets, %.2f Hz, mean dt %.0f us, std %.0f us, %d exceptions", s.Count(), s.RateHz, s.MeanDeltaUS, s.StdDeltaUS, len(s.Exceptions)),
			}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
			charts.WithYAxisOpts(opts.YAxis{Name: "dt (ms)"}),
		)
		line.SetXAxis(x).AddSeries("dt", y)
		page.AddCharts(line)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
