// Command benchmark runs the measurement engine over every recorded sequence
// in a directory and reports accuracy statistics against ground truth.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/benchmark"
	"github.com/banshee-data/trackbench/internal/command"
	"github.com/banshee-data/trackbench/internal/config"
	"github.com/banshee-data/trackbench/internal/engine"
	"github.com/banshee-data/trackbench/internal/fsutil"
	"github.com/banshee-data/trackbench/internal/history"
	"github.com/banshee-data/trackbench/internal/logging"
	"github.com/banshee-data/trackbench/internal/report"
	"github.com/banshee-data/trackbench/internal/timeutil"
	"github.com/banshee-data/trackbench/internal/version"
)

var (
	verbose    bool
	force      bool
	qvga       bool
	configPath string
	convention string
	workers    int
	timeout    time.Duration
	enginePath string
	historyDB  string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "benchmark <sequence_dir> [<output_dir>]",
	Short: "Measure every sequence under a directory and summarize the errors",
	Long: `Runs the measurement engine on each sequence found under sequence_dir,
in parallel, and prints per-sequence errors, error histograms and the
histogram score (lower is better).

When output_dir is given the report is written to output_dir/results.txt
together with an index.html gallery of engine renders and histogram charts.
output_dir must not exist unless --force is set.`,
	Version: version.String(),
	Args:    cobra.RangeArgs(1, 2),
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
	RunE:         runBenchmark,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&verbose, "verbose", "v", false, "Log engine output and debug details")
	f.BoolVar(&force, "force", false, "Write into output_dir even if it already exists")
	f.BoolVar(&qvga, "qvga", false, "Run the engine at QVGA resolution")
	f.StringVar(&configPath, "config", "", "Benchmark configuration file (JSON)")
	f.StringVar(&convention, "convention", "", "Sequence layout: directory or filename")
	f.IntVar(&workers, "workers", 0, "Parallel engine invocations (0 = cores-1)")
	f.DurationVar(&timeout, "timeout", 0, "Per-sequence engine timeout (0 = config default)")
	f.StringVar(&enginePath, "engine", "", "Path to the measurement engine")
	f.StringVar(&historyDB, "history", "", "Record the run in this SQLite database and compare with the previous run")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and overlays flags the user set.
func loadConfig(cmd *cobra.Command) (*config.BenchmarkConfig, error) {
	cfg := config.EmptyBenchmarkConfig()
	if configPath != "" {
		loaded, err := config.LoadBenchmarkConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overrides := &config.BenchmarkConfig{}
	flags := cmd.Flags()
	if flags.Changed("qvga") {
		overrides.QVGA = config.PtrBool(qvga)
	}
	if flags.Changed("convention") {
		overrides.Convention = config.PtrString(convention)
	}
	if flags.Changed("workers") {
		overrides.Workers = config.PtrInt(workers)
	}
	if flags.Changed("timeout") {
		overrides.Timeout = config.PtrString(timeout.String())
	}
	if flags.Changed("engine") {
		overrides.EnginePath = config.PtrString(enginePath)
	}
	if flags.Changed("history") {
		overrides.HistoryPath = config.PtrString(historyDB)
	}
	cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	conv, err := benchmark.ParseConvention(cfg.GetConvention())
	if err != nil {
		return err
	}

	seqDir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	outputDir := ""
	if len(args) == 2 {
		outputDir = args[1]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &benchRun{
		cfg:        cfg,
		conv:       conv,
		seqDir:     seqDir,
		outputDir:  outputDir,
		force:      force,
		fs:         fsutil.OSFileSystem{},
		builder:    command.NewRealCommandBuilder(),
		stdout:     cmd.OutOrStdout(),
		logger:     logger,
		clock:      timeutil.RealClock{},
		enginePath: cfg.GetEnginePath(),
	}
	return b.run(ctx)
}

// benchRun holds everything one benchmark invocation needs so the flow can be
// exercised with fakes.
type benchRun struct {
	cfg        *config.BenchmarkConfig
	conv       benchmark.ScanConvention
	seqDir     string
	outputDir  string
	force      bool
	fs         fsutil.FileSystem
	builder    command.CommandBuilder
	stdout     io.Writer
	logger     *zap.Logger
	clock      timeutil.Clock
	enginePath string
}

func (b *benchRun) run(ctx context.Context) error {
	startedAt := b.clock.Now()

	// Scan from the parent so sequences directly under seqDir are labelled
	// with seqDir's own name.
	parent, root := filepath.Dir(b.seqDir), filepath.Base(b.seqDir)
	cases, skipped, err := benchmark.Scan(os.DirFS(parent), root, b.conv)
	if err != nil {
		return fmt.Errorf("scan %s: %w", b.seqDir, err)
	}
	for _, s := range skipped {
		b.logger.Warn("Skipping", zap.Error(s))
	}
	if len(cases) == 0 {
		return fmt.Errorf("no sequences found under %s", b.seqDir)
	}
	b.logger.Info("Found sequences",
		zap.Int("cases", len(cases)),
		zap.Stringer("convention", b.conv),
		zap.Int("workers", b.cfg.GetWorkers()))

	var writer *report.Writer
	if b.outputDir != "" {
		if err := fsutil.PrepareOutputDir(b.fs, b.outputDir, b.force); err != nil {
			if errors.Is(err, fsutil.ErrOutputExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}
		writer = report.NewWriter(b.fs, b.outputDir, root, b.logger)
		if err := writer.Begin(cases); err != nil {
			return err
		}
	}

	inv := engine.NewInvoker(engine.Options{
		EnginePath: b.enginePath,
		InputDir:   b.seqDir,
		RenderDir:  b.outputDir,
		QVGA:       b.cfg.GetQVGA(),
		Timeout:    b.cfg.GetTimeout(),
	}, b.builder, engine.RegexParser{ReferenceOptional: b.conv == benchmark.FilenameEmbedded}, b.fs, b.logger)

	results, runErr := benchmark.NewRunner(inv, b.cfg.GetWorkers(), b.logger).Run(ctx, cases)
	if runErr != nil {
		b.logger.Warn("Benchmark interrupted, reporting partial results", zap.Error(runErr))
	}
	b.logger.Info("Engine runs finished", zap.Duration("elapsed", b.clock.Since(startedAt)))

	sum, err := benchmark.Aggregate(cases, results)
	if err != nil {
		return err
	}
	if writer == nil {
		if err := report.WriteText(b.stdout, sum); err != nil {
			return err
		}
	} else {
		if err := writer.Finish(cases, sum); err != nil {
			return err
		}
		b.logger.Info("Wrote report", zap.String("dir", writer.Dir()))
	}

	if path := b.cfg.GetHistoryPath(); path != "" && runErr == nil {
		if err := b.recordHistory(ctx, path, startedAt, sum); err != nil {
			return fmt.Errorf("history: %w", err)
		}
	}
	return runErr
}

func (b *benchRun) recordHistory(ctx context.Context, path string, startedAt time.Time, sum *benchmark.Summary) error {
	store, err := history.Open(path, b.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	run := history.NewRun(b.seqDir, b.conv.String(), startedAt, sum)
	prev, err := store.Previous(ctx, b.seqDir, startedAt)
	if err != nil {
		return err
	}
	if err := store.Record(ctx, run, sum); err != nil {
		return err
	}
	return history.WriteComparison(b.stdout, prev, run)
}
