// Package sched fans benchmark kernels across a bounded worker pool with
// fail-fast cancellation and optional early-stop on regression.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalnine/crucible/internal/bench"
	"github.com/signalnine/crucible/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RunFunc measures one kernel. Implemented by bench.Runner; swapped for
// stubs in tests.
type RunFunc func(ctx context.Context, kernel string) (bench.KernelResult, error)

// RegressionError reports a kernel whose measured time exceeded its
// baseline by more than the configured threshold. It is a soft outcome:
// the evaluation stopped early, it did not break.
type RegressionError struct {
	Kernel          string
	BaselineSeconds float64
	MeasuredSeconds float64
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("kernel %s regressed: %.6fs vs baseline %.6fs",
		e.Kernel, e.MeasuredSeconds, e.BaselineSeconds)
}

type Scheduler struct {
	workers   int
	earlyStop bool
	threshold float64
	log       *zap.Logger
}

func New(cfg config.Scheduler, log *zap.Logger) *Scheduler {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		workers:   workers,
		earlyStop: cfg.EarlyStop,
		threshold: cfg.RegressionThreshold,
		log:       log,
	}
}

// RunAll measures every kernel and returns the dataset aggregate. With one
// worker, kernels run strictly in list order; with more, completion order
// is unordered but the aggregate (sums and per-kernel map) is
// order-independent.
//
// The first kernel error cancels all outstanding work and is returned with
// empty metrics. When early-stop is enabled and a completed kernel exceeds
// its baseline time by more than the threshold, remaining work is
// cancelled and the partial aggregate is returned with a *RegressionError.
// Under parallel execution which kernel triggers the stop depends on
// completion timing; that nondeterminism is an accepted trade-off.
// Results from kernels that finish after cancellation are discarded.
func (s *Scheduler) RunAll(ctx context.Context, kernels []string, baseline map[string]float64, run RunFunc) (bench.DatasetMetrics, error) {
	metrics := bench.DatasetMetrics{KernelSeconds: make(map[string]float64, len(kernels))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, kernel := range kernels {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := run(gctx, kernel)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if gctx.Err() != nil {
				return nil
			}
			metrics.TotalCompileSeconds += res.CompileSeconds
			metrics.TotalExecSeconds += res.ExecSeconds
			metrics.TotalBinaryBytes += res.BinaryBytes
			metrics.KernelSeconds[res.Kernel] = res.ExecSeconds

			if s.earlyStop {
				if base, ok := baseline[res.Kernel]; ok && base > 0 &&
					res.ExecSeconds > base*(1+s.threshold) {
					s.log.Info("early stop: kernel over regression threshold",
						zap.String("kernel", res.Kernel),
						zap.Float64("baseline_s", base),
						zap.Float64("measured_s", res.ExecSeconds))
					return &RegressionError{
						Kernel:          res.Kernel,
						BaselineSeconds: base,
						MeasuredSeconds: res.ExecSeconds,
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var regr *RegressionError
		if errors.As(err, &regr) {
			return metrics, err
		}
		return bench.DatasetMetrics{}, err
	}
	return metrics, nil
}
