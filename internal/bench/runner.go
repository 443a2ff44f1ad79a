// Package bench compiles and times individual benchmark kernels.
package bench

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/crucible/internal/config"
	"go.uber.org/zap"
)

// KernelResult is the per-kernel aggregate of one measured evaluation.
type KernelResult struct {
	Kernel         string
	CompileSeconds float64
	ExecSeconds    float64
	BinaryBytes    int64
}

// DatasetMetrics aggregates kernel results across one dataset run.
type DatasetMetrics struct {
	TotalCompileSeconds float64
	TotalExecSeconds    float64
	TotalBinaryBytes    int64
	KernelSeconds       map[string]float64
}

// KernelError is a failed compile, run, or result parse for one kernel.
// It is fatal for the evaluation that produced it.
type KernelError struct {
	Kernel string
	Stage  string
	Output string
	Err    error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel %s: %s failed: %v", e.Kernel, e.Stage, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

// BinaryRunner executes a built kernel binary and returns its combined
// stdout+stderr. The default runs the binary directly; a sandbox runner
// executes it inside a container instead.
type BinaryRunner interface {
	RunBinary(ctx context.Context, exePath string) (string, error)
}

type execBinaryRunner struct{}

func (execBinaryRunner) RunBinary(ctx context.Context, exePath string) (string, error) {
	out, err := exec.CommandContext(ctx, exePath).CombinedOutput()
	return string(out), err
}

type Runner struct {
	clang    string
	suiteDir string
	optLevel string
	runs     int
	warmup   int
	trim     bool
	timeout  time.Duration
	debug    bool
	log      *zap.Logger
	binRun   BinaryRunner
}

func NewRunner(cfg *config.Config, clangPath, suiteDir string, log *zap.Logger) *Runner {
	return &Runner{
		clang:    clangPath,
		suiteDir: suiteDir,
		optLevel: cfg.Bench.OptLevel,
		runs:     cfg.Bench.Runs,
		warmup:   cfg.Bench.Warmup,
		trim:     cfg.TrimExtremes(),
		timeout:  time.Duration(cfg.Bench.TimeoutMinutes) * time.Minute,
		debug:    cfg.Debug,
		log:      log,
		binRun:   execBinaryRunner{},
	}
}

// SetBinaryRunner swaps in an alternative execution backend (sandboxed
// container runs, stubs in tests).
func (r *Runner) SetBinaryRunner(br BinaryRunner) {
	r.binRun = br
}

// Run compiles one kernel under the dataset macro, executes it warmup+runs
// times, and returns the aggregated sample. The kernel binary is removed
// afterward to bound disk usage.
func (r *Runner) Run(ctx context.Context, kernel, datasetMacro string) (KernelResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	kernelC := filepath.Join(r.suiteDir, kernel)
	exePath := strings.TrimSuffix(kernelC, filepath.Ext(kernelC)) + ".exe"

	args := []string{
		r.optLevel,
		"-DPOLYBENCH_TIME",
		"-D" + datasetMacro,
		"-I", filepath.Join(r.suiteDir, "utilities"),
		"-I", filepath.Dir(kernelC),
		filepath.Join(r.suiteDir, "utilities", "polybench.c"),
		kernelC,
		"-o", exePath,
	}

	compileStart := time.Now()
	out, err := exec.CommandContext(ctx, r.clang, args...).CombinedOutput()
	compileSecs := time.Since(compileStart).Seconds()
	if err != nil {
		return KernelResult{}, &KernelError{Kernel: kernel, Stage: "compile", Output: string(out), Err: err}
	}
	defer os.Remove(exePath)

	for i := 0; i < r.warmup; i++ {
		if _, err := r.binRun.RunBinary(ctx, exePath); err != nil {
			return KernelResult{}, &KernelError{Kernel: kernel, Stage: "warmup", Err: err}
		}
	}

	samples := make([]float64, 0, r.runs)
	for i := 0; i < r.runs; i++ {
		out, err := r.binRun.RunBinary(ctx, exePath)
		if err != nil {
			return KernelResult{}, &KernelError{Kernel: kernel, Stage: "run", Output: out, Err: err}
		}
		elapsed, ok := ParseElapsed(out)
		if !ok {
			return KernelResult{}, &KernelError{
				Kernel: kernel, Stage: "parse", Output: out,
				Err: fmt.Errorf("no elapsed-time value in kernel output"),
			}
		}
		if r.debug {
			r.log.Debug("kernel sample",
				zap.String("kernel", kernel), zap.Int("run", i+1), zap.Float64("seconds", elapsed))
		}
		samples = append(samples, elapsed)
	}

	var size int64
	if info, err := os.Stat(exePath); err == nil {
		size = info.Size()
	}

	return KernelResult{
		Kernel:         kernel,
		CompileSeconds: compileSecs,
		ExecSeconds:    Representative(samples, r.trim),
		BinaryBytes:    size,
	}, nil
}
