// Command calcheck compares the calibration recorded with a capture against
// a calibration JSON file.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/calibration"
	"github.com/banshee-data/trackbench/internal/fsutil"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/version"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "calcheck <capture_file> <json_file>",
	Short: "Check whether a capture was recorded with a given calibration",
	Long: `Looks for the calibration of capture_file, first in an embedded
calibration packet, then in <capture_file>.json, then in calibration.json
next to it, and compares it with json_file.`,
	Version: version.String(),
	Args:    cobra.ExactArgs(2),
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
		return run(cmd.OutOrStdout(), fsutil.OSFileSystem{}, args[0], args[1])
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// recorded returns the calibration stored with the capture and where it came
// from.
func recorded(fsys fsutil.FileSystem, capturePath string) (string, []byte, error) {
	data, err := fsys.ReadFile(capturePath)
	if err != nil {
		return "", nil, err
	}
	embedded, err := calibration.Embedded(bytes.NewReader(data))
	if err == nil {
		return capturePath, embedded, nil
	}
	if !errors.Is(err, calibration.ErrNoCalibration) {
		logger.Warn("Capture could not be fully read", zap.String("capture", capturePath), zap.Error(err))
	}
	return calibration.FindSidecar(fsys, capturePath)
}

func run(stdout io.Writer, fsys fsutil.FileSystem, capturePath, jsonPath string) error {
	source, found, err := recorded(fsys, capturePath)
	if errors.Is(err, calibration.ErrNoCalibration) {
		fmt.Fprintln(stdout, "Error: No calibration found")
		return err
	}
	if err != nil {
		return err
	}
	want, err := fsys.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	logger.Debug("Comparing calibrations", zap.String("recorded", source), zap.String("expected", jsonPath))

	cmp := calibration.Compare(found, want)
	switch {
	case cmp.Identical:
		fmt.Fprintln(stdout, "Calibrations are the same")
	case cmp.Equal:
		fmt.Fprintln(stdout, "Calibrations are the same (formatting differs)")
	default:
		fmt.Fprintf(stdout, "Calibrations are different (-%s +%s):\n%s", source, jsonPath, cmp.Diff)
	}
	return nil
}
