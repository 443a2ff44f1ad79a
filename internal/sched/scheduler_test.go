package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalnine/crucible/internal/bench"
	"github.com/signalnine/crucible/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newScheduler(t *testing.T, workers int, earlyStop bool) *Scheduler {
	t.Helper()
	return New(config.Scheduler{
		Workers:             workers,
		EarlyStop:           earlyStop,
		RegressionThreshold: 0.05,
	}, zaptest.NewLogger(t))
}

func fixedRun(times map[string]float64) RunFunc {
	return func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		return bench.KernelResult{
			Kernel:         kernel,
			CompileSeconds: 1.0,
			ExecSeconds:    times[kernel],
			BinaryBytes:    100,
		}, nil
	}
}

func TestRunAllSerialOrder(t *testing.T) {
	s := newScheduler(t, 1, false)
	var order []string
	run := func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		order = append(order, kernel)
		return bench.KernelResult{Kernel: kernel, ExecSeconds: 1.0}, nil
	}

	kernels := []string{"a.c", "b.c", "c.c"}
	_, err := s.RunAll(context.Background(), kernels, nil, run)
	require.NoError(t, err)
	assert.Equal(t, kernels, order, "serial mode preserves input order")
}

func TestRunAllAggregates(t *testing.T) {
	s := newScheduler(t, 4, false)
	times := map[string]float64{"a.c": 1.5, "b.c": 2.5, "c.c": 4.0}

	metrics, err := s.RunAll(context.Background(), []string{"a.c", "b.c", "c.c"}, nil, fixedRun(times))
	require.NoError(t, err)

	assert.InDelta(t, 3.0, metrics.TotalCompileSeconds, 1e-9)
	assert.InDelta(t, 8.0, metrics.TotalExecSeconds, 1e-9)
	assert.Equal(t, int64(300), metrics.TotalBinaryBytes)
	if diff := cmp.Diff(times, metrics.KernelSeconds); diff != "" {
		t.Errorf("kernel seconds mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAllFailFast(t *testing.T) {
	s := newScheduler(t, 2, false)
	boom := errors.New("exit status 1")

	var mu sync.Mutex
	started := 0
	run := func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		mu.Lock()
		started++
		mu.Unlock()
		if kernel == "bad.c" {
			return bench.KernelResult{}, &bench.KernelError{Kernel: kernel, Stage: "run", Err: boom}
		}
		time.Sleep(20 * time.Millisecond)
		return bench.KernelResult{Kernel: kernel, ExecSeconds: 1.0}, nil
	}

	metrics, err := s.RunAll(context.Background(),
		[]string{"ok.c", "bad.c", "late1.c", "late2.c", "late3.c"}, nil, run)
	require.Error(t, err)
	var kerr *bench.KernelError
	assert.ErrorAs(t, err, &kerr)
	assert.Empty(t, metrics.KernelSeconds, "no partial aggregate on failure")
	assert.Equal(t, int64(0), metrics.TotalBinaryBytes)
	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, started, 5, "cancellation skips not-yet-started kernels")
}

func TestRunAllEarlyStopRegression(t *testing.T) {
	s := newScheduler(t, 1, true)
	baseline := map[string]float64{"a.c": 10.0, "b.c": 10.0, "c.c": 10.0}
	times := map[string]float64{"a.c": 10.1, "b.c": 10.6, "c.c": 1.0}

	var ran []string
	run := func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		ran = append(ran, kernel)
		return bench.KernelResult{Kernel: kernel, ExecSeconds: times[kernel]}, nil
	}

	metrics, err := s.RunAll(context.Background(), []string{"a.c", "b.c", "c.c"}, baseline, run)
	var regr *RegressionError
	require.ErrorAs(t, err, &regr)
	assert.Equal(t, "b.c", regr.Kernel)
	assert.InDelta(t, 10.0, regr.BaselineSeconds, 1e-9)
	assert.InDelta(t, 10.6, regr.MeasuredSeconds, 1e-9)
	assert.Equal(t, []string{"a.c", "b.c"}, ran, "remaining kernels cancelled")
	assert.Contains(t, metrics.KernelSeconds, "b.c", "partial aggregate returned for regression")
}

func TestRunAllEarlyStopWithinThreshold(t *testing.T) {
	s := newScheduler(t, 1, true)
	baseline := map[string]float64{"a.c": 10.0}
	// 10.4 is inside the 5% threshold; 10.5 is the boundary, not over it.
	run := fixedRun(map[string]float64{"a.c": 10.4})

	_, err := s.RunAll(context.Background(), []string{"a.c"}, baseline, run)
	assert.NoError(t, err)

	run = fixedRun(map[string]float64{"a.c": 10.5})
	_, err = s.RunAll(context.Background(), []string{"a.c"}, baseline, run)
	assert.NoError(t, err)
}

func TestRunAllEarlyStopNeedsBaseline(t *testing.T) {
	s := newScheduler(t, 1, true)
	run := fixedRun(map[string]float64{"a.c": 100.0})

	metrics, err := s.RunAll(context.Background(), []string{"a.c"}, nil, run)
	require.NoError(t, err, "no baseline time, nothing to regress against")
	assert.InDelta(t, 100.0, metrics.KernelSeconds["a.c"], 1e-9)
}

func TestRunAllDiscardsResultsAfterCancel(t *testing.T) {
	s := newScheduler(t, 2, false)

	release := make(chan struct{})
	run := func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		if kernel == "bad.c" {
			return bench.KernelResult{}, fmt.Errorf("broken kernel")
		}
		// Finish after the failure has cancelled the group.
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		return bench.KernelResult{Kernel: kernel, ExecSeconds: 1.0}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		metrics, err := s.RunAll(context.Background(), []string{"slow.c", "bad.c"}, nil, run)
		assert.Error(t, err)
		assert.Empty(t, metrics.KernelSeconds)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done
}
