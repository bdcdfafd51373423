// Command capturecheck prints per-stream timing statistics for a capture file
// and flags gaps, back-to-back frames and unusual exposures.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/capture"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/version"
)

type options struct {
	verbose          bool
	exceptions       bool
	warnings         bool
	exposureWarnings bool
	chart            string
}

var (
	opts   options
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "capturecheck <capture_file>",
	Short:   "Check a capture file",
	Version: version.String(),
	Args:    cobra.ExactArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(false)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.OutOrStdout(), args[0], opts)
	},
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print more information about every packet")
	f.BoolVarP(&opts.exceptions, "exceptions", "e", false, "Print details when sample dt is more than 5% away from the mean")
	f.BoolVarP(&opts.warnings, "warnings", "w", false, "Print details when multiple image frames arrive without an imu frame in between")
	f.BoolVarP(&opts.exposureWarnings, "exposure_warnings", "x", false, "Print details when exposure times are less than 1ms or greater than 50ms")
	f.StringVar(&opts.chart, "chart", "", "Write an HTML chart of per-stream sample intervals to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(stdout io.Writer, name string, o options) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	out := bufio.NewWriter(stdout)
	defer out.Flush()

	var onPacket func(*capture.Packet)
	if o.verbose {
		onPacket = func(p *capture.Packet) { writePacket(out, p) }
	}
	sum, inspectErr := capture.Inspect(bufio.NewReader(f), onPacket)
	if inspectErr != nil {
		// Report what was read before the damage, then fail.
		logger.Error("Capture is malformed", zap.String("file", name), zap.Int64("offset", sum.MalformedAt), zap.Error(inspectErr))
	}

	if err := writeSummary(out, sum, o); err != nil {
		return err
	}

	if o.chart != "" {
		cf, err := os.Create(o.chart)
		if err != nil {
			return err
		}
		if err := capture.RenderDeltaChart(cf, name, sum); err != nil {
			cf.Close()
			return err
		}
		if err := cf.Close(); err != nil {
			return err
		}
		logger.Info("Wrote chart", zap.String("path", o.chart))
	}
	return inspectErr
}

func writePacket(w io.Writer, p *capture.Packet) {
	h := p.Header
	fmt.Fprintf(w, "%s %d %d %d %g", p.StreamKey(), h.TotalBytes, h.Type, h.SensorID, float64(p.Time())/1e6)
	switch {
	case h.Type.IsIMU():
		if v, err := p.IMU(); err == nil {
			fmt.Fprintf(w, "\t%d %d %g %g %g", h.Type, h.SensorID, v[0], v[1], v[2])
		}
	case h.Type == capture.PacketImageRaw:
		if ih, _, err := p.Image(); err == nil {
			fmt.Fprintf(w, "\t%s %d (%d) %dx%d, %d stride, %d exposure",
				ih.Format, h.SensorID, uint16(ih.Format), ih.Width, ih.Height, ih.Stride, ih.ExposureUS)
		}
	}
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, sum *capture.Summary, o options) error {
	for _, s := range sum.Streams {
		fmt.Fprintf(w, "%s %d packets\n", s.Key, s.Count())
		fmt.Fprintf(w, "\tRate: %g hz\n", s.RateHz)
		fmt.Fprintf(w, "\tmean dt (us): %g\n", s.MeanDeltaUS)
		fmt.Fprintf(w, "\tstd dt (us): %g\n", s.StdDeltaUS)
		fmt.Fprintf(w, "\tstart (s) finish (s): %g %g\n", float64(s.StartUS)/1e6, float64(s.FinishUS)/1e6)
		fmt.Fprintf(w, "\tlength (s): %g\n", s.LengthSeconds())
		fmt.Fprintf(w, "%d samples are more than 5%% from mean\n", len(s.Exceptions))
		if n := len(s.LatencyWarnings); n > 0 {
			fmt.Fprintf(w, "%d latency warnings\n", n)
		}
		if n := len(s.ExposureWarnings); n > 0 {
			fmt.Fprintf(w, "%d exposure warnings\n", n)
		}
		if o.exceptions {
			for _, e := range s.Exceptions {
				fmt.Fprintf(w, "Exception: t t+1 delta %d %d %d\n", e.Time, e.Next, e.DeltaUS)
			}
		}
		if o.warnings {
			for _, run := range s.LatencyRuns() {
				fmt.Fprintf(w, "Warning: %d images at timestamps: %v\n", len(run), run)
			}
		}
		if o.exposureWarnings {
			for _, e := range s.ExposureWarnings {
				fmt.Fprintf(w, "Warning: Image at %d had exposure of %d microseconds\n", e.Time, e.ExposureUS)
			}
		}
		fmt.Fprintln(w)
	}

	for _, t := range sum.Missing() {
		fmt.Fprintf(w, "Error: Never received any %s data\n", missingName(t))
	}
	return nil
}

func missingName(t capture.PacketType) string {
	switch t {
	case capture.PacketImageRaw:
		return "image"
	default:
		return t.String()
	}
}
