// Command kpis scores the tracker results of every KPI sequence with the
// validation scripts and prints the metric summary.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/command"
	"github.com/banshee-data/trackbench/internal/config"
	"github.com/banshee-data/trackbench/internal/kpi"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/version"
)

var (
	verbose     bool
	configPath  string
	root        string
	scriptsDir  string
	interpreter string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kpis <result_extension>",
	Short: "Summarize KPI validation metrics for tracker results",
	Long: `For every *stereo.rc sequence under the zero-drift, vr-translation and
rotation KPI folders, runs the matching validation script on
<sequence><result_extension> and prints the mean and standard deviation of
each metric. Sequences without a result file are skipped.`,
	Version: version.String(),
	Args:    cobra.ExactArgs(1),
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
	RunE:         runKPIs,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Log script output")
	f.StringVar(&configPath, "config", "", "Benchmark configuration file (JSON)")
	f.StringVar(&root, "root", "", "Directory holding the KPI category folders")
	f.StringVar(&scriptsDir, "scripts", "", "Directory holding the validation scripts")
	f.StringVar(&interpreter, "interpreter", "", "Interpreter used to launch the scripts, e.g. python3")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func options(cmd *cobra.Command) (kpi.Options, error) {
	cfg := config.EmptyBenchmarkConfig()
	if configPath != "" {
		loaded, err := config.LoadBenchmarkConfig(configPath)
		if err != nil {
			return kpi.Options{}, err
		}
		cfg = loaded
	}
	overrides := &config.BenchmarkConfig{}
	if cmd.Flags().Changed("root") {
		overrides.KPIRoot = config.PtrString(root)
	}
	if cmd.Flags().Changed("scripts") {
		overrides.KPIScriptsDir = config.PtrString(scriptsDir)
	}
	if cmd.Flags().Changed("interpreter") {
		overrides.KPIInterpreter = config.PtrString(interpreter)
	}
	cfg.Merge(overrides)

	return kpi.Options{
		Root:        cfg.GetKPIRoot(),
		ScriptsDir:  cfg.GetKPIScriptsDir(),
		Interpreter: cfg.GetKPIInterpreter(),
	}, nil
}

func runKPIs(cmd *cobra.Command, args []string) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Scoring KPI sequences", zap.String("root", opts.Root), zap.String("extension", args[0]))
	m, err := kpi.NewSummarizer(opts, command.NewRealCommandBuilder(), logger).Run(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := kpi.WriteValues(out, m); err != nil {
		return err
	}
	return kpi.WriteSummary(out, m)
}
