package report

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackbench/internal/benchmark"
	"github.com/banshee-data/trackbench/internal/command"
	"github.com/banshee-data/trackbench/internal/engine"
	"github.com/banshee-data/trackbench/internal/fsutil"
)

func summary(t *testing.T) ([]benchmark.TestCase, *benchmark.Summary) {
	t.Helper()
	nan := math.NaN()
	cases := []benchmark.TestCase{
		benchmark.NewTestCase("ipad3", "ipad3/loop.cap"),
		benchmark.NewTestCase("ipad3", "ipad3/walk.cap"),
		benchmark.NewTestCase("ipad3", "ipad3/crash.cap"),
	}
	results := []benchmark.MeasurementResult{
		{ComputedLength: 2, ComputedPathLength: 98, ReferenceLength: 0, ReferencePathLength: 100},
		{ComputedLength: 110, ComputedPathLength: 120, ReferenceLength: 100, ReferencePathLength: nan},
		benchmark.FailedResult("engine invocation failed: exit status 1"),
	}
	s, err := benchmark.Aggregate(cases, results)
	require.NoError(t, err)
	return cases, s
}

func TestWriteText(t *testing.T) {
	_, s := summary(t)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s))

	want := "Result ipad3/loop.cap\n" +
		"\tL\t0.00cm actual, 2.00cm measured, 2.00cm error (2.00%)\n" +
		"\tLoop closure error: 2.00%\n" +
		"\tPL\t100.00cm actual, 98.00cm measured, 2.00cm error (2.00%)\n" +
		"Result ipad3/walk.cap\n" +
		"\tL\t100.00cm actual, 110.00cm measured, 10.00cm error (10.00%)\n" +
		"Result ipad3/crash.cap\n" +
		"\tfailed: engine invocation failed: exit status 1\n" +
		"Length error histogram (2 sequences)\n" +
		"0.0%\t3.0%\t10.0%\t25.0%\t50.0%+\n" +
		"1\t0\t1\t0\t0\n" +
		"\n" +
		"Path length error histogram (1 sequences)\n" +
		"0.0%\t3.0%\t10.0%\t25.0%\t50.0%+\n" +
		"1\t0\t0\t0\t0\n" +
		"\n" +
		"Primary error histogram (2 sequences)\n" +
		"0.0%\t3.0%\t10.0%\t25.0%\t50.0%+\n" +
		"1\t0\t1\t0\t0\n" +
		"\n" +
		"Alternate error histogram (2 sequences)\n" +
		"0.0%\t4.0%\t12.0%\t30.0%\t65.0%+\n" +
		"1\t1\t0\t0\t0\n" +
		"\n" +
		"Mean of 2 primary errors that are less than 50% is 6.00%\n" +
		"Histogram score (lower is better) is 2\n" +
		"Alternate histogram score (lower is better) is 1\n" +
		"\n" +
		"1 of 3 sequences failed\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteTextNoPrimaryErrors(t *testing.T) {
	s, err := benchmark.Aggregate(nil, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s))
	assert.Contains(t, buf.String(), "Mean of 0 primary errors that are less than 50% is nan%\n")
}

func TestRenderGallery(t *testing.T) {
	cases, _ := summary(t)
	page, err := RenderGallery("run", cases, []string{"hist_primary.png"})
	require.NoError(t, err)

	html := string(page)
	assert.Contains(t, html, `<img src="ipad3/loop.cap.png"`)
	assert.Contains(t, html, "<figcaption>ipad3/walk.cap</figcaption>")
	assert.Contains(t, html, `<img src="hist_primary.png">`)
	assert.Equal(t, 3, strings.Count(html, "<figcaption>"))
}

func TestHistogramCharts(t *testing.T) {
	_, s := summary(t)
	charts, err := HistogramCharts(s)
	require.NoError(t, err)
	require.Len(t, charts, 4)
	for _, c := range charts {
		assert.True(t, bytes.HasPrefix(c.PNG, []byte("\x89PNG")), c.Name)
	}
	assert.Equal(t, "Primary error (2 sequences)", charts[2].Title)
}

func TestWriterBeginFinish(t *testing.T) {
	cases, s := summary(t)
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsutil.PrepareOutputDir(mfs, "/out", false))

	w := NewWriter(mfs, "/out", "run", nil)
	require.NoError(t, w.Begin(cases))
	early, err := mfs.ReadFile("/out/index.html")
	require.NoError(t, err)
	assert.NotContains(t, string(early), "hist_primary.png")

	require.NoError(t, w.Finish(cases, s))
	assert.Equal(t, []string{
		"/out/hist_alternate.png",
		"/out/hist_length.png",
		"/out/hist_path_length.png",
		"/out/hist_primary.png",
		"/out/index.html",
		"/out/results.txt",
	}, mfs.Files("/out/"))

	final, err := mfs.ReadFile("/out/index.html")
	require.NoError(t, err)
	assert.Contains(t, string(final), "hist_primary.png")

	text, err := mfs.ReadFile("/out/results.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(text), "Result ipad3/loop.cap\n"))
}

// One case with a matching engine report and one with garbage output: the
// batch completes and the report holds one measurement and one failure.
func TestEndToEndMixedResults(t *testing.T) {
	builder := command.NewMockCommandBuilder(func(name string, args []string) *command.MockCommandExecutor {
		if strings.HasSuffix(args[0], "good.cap") {
			return &command.MockCommandExecutor{Output: []byte(
				"Reference Straight-line length is 100.00 cm, total path length nan cm\n" +
					"Computed  Straight-line length is 103.00 cm, total path length 140.00 cm\n")}
		}
		return &command.MockCommandExecutor{Output: []byte("tracker diverged\n")}
	})
	mfs := fsutil.NewMemoryFileSystem()
	inv := engine.NewInvoker(engine.Options{EnginePath: "measure", InputDir: "/seq"}, builder, nil, mfs, nil)

	cases := []benchmark.TestCase{
		benchmark.NewTestCase("cfg", "cfg/bad.cap"),
		benchmark.NewTestCase("cfg", "cfg/good.cap"),
	}
	results, err := benchmark.NewRunner(inv, 2, nil).Run(context.Background(), cases)
	require.NoError(t, err)

	s, err := benchmark.Aggregate(cases, results)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Failed)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, s))
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "\tL\t"))
	assert.Contains(t, out, "\tL\t100.00cm actual, 103.00cm measured, 3.00cm error (3.00%)\n")
	assert.Equal(t, 1, strings.Count(out, "\tfailed: "))
	assert.Contains(t, out, "Result cfg/bad.cap\n\tfailed: engine invocation failed")
	assert.Contains(t, out, "Primary error histogram (1 sequences)\n")
}
