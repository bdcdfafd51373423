package benchmark

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Measurer measures a single test case. Implementations report failures in
// the returned result rather than as an error.
type Measurer interface {
	Measure(ctx context.Context, tc TestCase) MeasurementResult
}

// Runner measures test cases on a bounded pool of workers.
type Runner struct {
	measurer Measurer
	workers  int
	logger   *zap.Logger
}

// NewRunner returns a Runner using at most workers concurrent measurements.
func NewRunner(m Measurer, workers int, logger *zap.Logger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{measurer: m, workers: workers, logger: logger}
}

// Workers returns the pool size.
func (r *Runner) Workers() int { return r.workers }

// Run measures every case and returns the results in the same order as cases.
// When ctx is cancelled, cases that have not started are marked failed and
// ctx's error is returned alongside the partial results.
func (r *Runner) Run(ctx context.Context, cases []TestCase) ([]MeasurementResult, error) {
	results := make([]MeasurementResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, tc := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FailedResult(fmt.Sprintf("not run: %v", err))
				return nil
			}
			r.logger.Info("running", zap.String("path", tc.Path), zap.String("config", tc.Config))
			res := r.measurer.Measure(gctx, tc)
			if res.Failed {
				r.logger.Warn("measurement failed", zap.String("path", tc.Path), zap.String("reason", res.FailureReason))
			} else {
				r.logger.Info("finished",
					zap.String("path", tc.Path),
					zap.Float64("length_cm", res.ComputedLength),
					zap.Float64("path_length_cm", res.ComputedPathLength))
			}
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results, ctx.Err()
}
