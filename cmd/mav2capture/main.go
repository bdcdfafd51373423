// Command mav2capture converts a EuRoC MAV dataset folder into a capture file
// and its calibration sidecar.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/capture"
	"github.com/banshee-data/trackbench/internal/fsutil"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/mav"
	"github.com/banshee-data/trackbench/internal/version"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mav2capture <mav_folder> <output_filename>",
	Short: "Convert a EuRoC MAV dataset into a capture file",
	Long: `Reads the imuN and camN sensors of a EuRoC MAV folder (the "mav0"
directory) and writes their samples, ordered by time, to output_filename.
The sensor calibration is written to output_filename.json.`,
	Version: version.String(),
	Args:    cobra.ExactArgs(2),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
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
		stats, err := mav.NewConverter(os.DirFS(args[0]), logger).Convert(fsutil.OSFileSystem{}, args[1])
		if err != nil {
			return err
		}
		return writeStats(cmd.OutOrStdout(), args[1], stats)
	},
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log conversion details")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func writeStats(w io.Writer, output string, s *mav.Stats) error {
	types := make([]capture.PacketType, 0, len(s.Packets))
	for t := range s.Packets {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	fmt.Fprintf(w, "Wrote %s (%d bytes)\n", output, s.Bytes)
	for _, t := range types {
		fmt.Fprintf(w, "\t%s\t%d packets\n", t, s.Packets[t])
	}
	_, err := fmt.Fprintf(w, "Calibration written to %s.json\n", output)
	return err
}
