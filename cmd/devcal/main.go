// Command devcal writes the factory calibration JSON for a known device.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/calibration"
	"github.com/banshee-data/trackbench/internal/fsutil"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/version"
)

var (
	output string
	list   bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:     "devcal <device>",
	Short:   "Print the default calibration for a device",
	Version: version.String(),
	Args: func(cmd *cobra.Command, args []string) error {
		if list {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
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
		if list {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(calibration.Devices(), "\n"))
			return err
		}
		return run(cmd.OutOrStdout(), fsutil.OSFileSystem{}, args[0], output)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "Write the calibration to this file instead of stdout")
	rootCmd.Flags().BoolVar(&list, "list", false, "List the known devices")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(stdout io.Writer, fsys fsutil.FileSystem, device, out string) error {
	d, err := calibration.Device(device)
	if err != nil {
		return fmt.Errorf("%w (known devices: %s)", err, strings.Join(calibration.Devices(), ", "))
	}
	doc, err := d.Calibration().Marshal()
	if err != nil {
		return err
	}
	doc = append(doc, '\n')
	if out == "" {
		_, err = stdout.Write(doc)
		return err
	}
	if err := fsutil.WriteFileAll(fsys, out, doc); err != nil {
		return err
	}
	logger.Info("Wrote calibration", zap.String("device", device), zap.String("path", out))
	return nil
}
