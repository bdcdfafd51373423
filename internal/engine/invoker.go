// Package engine runs the external measurement engine on one recorded
// sequence and parses the measurement it prints.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/benchmark"
	"github.com/banshee-data/trackbench/internal/command"
	"github.com/banshee-data/trackbench/internal/fsutil"
)

// ErrInvocationFailed marks a case whose engine run produced no usable
// measurement.
var ErrInvocationFailed = errors.New("engine invocation failed")

// Options configures how the engine is invoked.
type Options struct {
	EnginePath string
	// InputDir is joined with each case path to form the engine input.
	InputDir string
	// RenderDir, when set, receives one <case path>.png render per case.
	RenderDir string
	QVGA      bool
	// Timeout bounds a single invocation. Zero disables it.
	Timeout time.Duration
}

// Invoker measures test cases by running the engine.
type Invoker struct {
	opts    Options
	builder command.CommandBuilder
	parser  ReportParser
	fs      fsutil.FileSystem
	logger  *zap.Logger
}

// NewInvoker returns an Invoker. A nil parser selects RegexParser and a nil
// filesystem the OS filesystem.
func NewInvoker(opts Options, builder command.CommandBuilder, parser ReportParser, fsys fsutil.FileSystem, logger *zap.Logger) *Invoker {
	if parser == nil {
		parser = RegexParser{}
	}
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{opts: opts, builder: builder, parser: parser, fs: fsys, logger: logger}
}

// Args returns the engine arguments for tc.
func (inv *Invoker) Args(tc benchmark.TestCase) []string {
	args := []string{filepath.Join(inv.opts.InputDir, filepath.FromSlash(tc.Path)), tc.Config, "--no-gui"}
	if inv.opts.QVGA {
		args = append(args, "--qvga")
	}
	if inv.opts.RenderDir != "" {
		args = append(args, "--render", filepath.Join(inv.opts.RenderDir, filepath.FromSlash(tc.RenderPath())))
	}
	return args
}

// Measure runs the engine on tc. Every failure is reported in the result.
func (inv *Invoker) Measure(ctx context.Context, tc benchmark.TestCase) benchmark.MeasurementResult {
	res, err := inv.measure(ctx, tc)
	if err != nil {
		return benchmark.FailedResult(err.Error())
	}
	return res
}

func (inv *Invoker) measure(ctx context.Context, tc benchmark.TestCase) (benchmark.MeasurementResult, error) {
	if inv.opts.RenderDir != "" {
		dir := filepath.Join(inv.opts.RenderDir, filepath.FromSlash(path.Dir(tc.Path)))
		if err := inv.fs.MkdirAll(dir, 0o755); err != nil {
			return benchmark.MeasurementResult{}, fmt.Errorf("%w: create render directory: %v", ErrInvocationFailed, err)
		}
	}

	if inv.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.opts.Timeout)
		defer cancel()
	}

	cmd := inv.builder.BuildCommand(ctx, inv.opts.EnginePath, inv.Args(tc)...)
	start := time.Now()
	out, err := cmd.Run()
	inv.logger.Debug("engine output",
		zap.String("cmd", cmd.String()),
		zap.Duration("elapsed", time.Since(start)),
		zap.ByteString("output", out))

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return benchmark.MeasurementResult{}, fmt.Errorf("%w: timed out after %s", ErrInvocationFailed, inv.opts.Timeout)
		}
		return benchmark.MeasurementResult{}, fmt.Errorf("%w: %v", ErrInvocationFailed, ctxErr)
	}
	if err != nil {
		return benchmark.MeasurementResult{}, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}

	rep, err := inv.parser.Parse(out)
	if err != nil {
		return benchmark.MeasurementResult{}, fmt.Errorf("%w: %v", ErrInvocationFailed, err)
	}
	return benchmark.MeasurementResult{
		ComputedLength:      rep.ComputedLength,
		ComputedPathLength:  rep.ComputedPathLength,
		ReferenceLength:     rep.ReferenceLength,
		ReferencePathLength: rep.ReferencePathLength,
	}, nil
}
