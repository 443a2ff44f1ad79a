// Package buildtree drives the host project's build system: a one-time
// cmake configure of the build tree and timed incremental ninja rebuilds.
package buildtree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/signalnine/crucible/internal/config"
	"go.uber.org/zap"
)

// BuildError is a non-zero exit from configure or rebuild. It aborts the
// evaluation and is attributed to the candidate change, never retried.
type BuildError struct {
	Stage  string
	Output string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

type Orchestrator struct {
	sourceDir string
	buildDir  string
	build     config.Build
	debug     bool
	log       *zap.Logger
}

func NewOrchestrator(cfg *config.Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		sourceDir: cfg.SourceDir,
		buildDir:  cfg.BuildDir,
		build:     cfg.Build,
		debug:     cfg.Debug,
		log:       log,
	}
}

// ClangPath is the compiler the benchmarks run under.
func (o *Orchestrator) ClangPath() string {
	return filepath.Join(o.buildDir, "bin", "clang")
}

// EnsureConfigured generates the build tree once. An existing build dir is
// taken as already configured and left untouched.
func (o *Orchestrator) EnsureConfigured(ctx context.Context) error {
	if _, err := os.Stat(o.buildDir); err == nil {
		return nil
	}
	if err := os.MkdirAll(o.buildDir, 0o755); err != nil {
		return fmt.Errorf("creating build dir: %w", err)
	}

	arch := hostTargetArch(ctx)
	args := []string{
		"-G", "Ninja",
		"-DLLVM_ENABLE_PROJECTS=" + strings.Join(o.build.Projects, ";"),
		"-DLLVM_TARGETS_TO_BUILD=" + arch,
		"-DCMAKE_BUILD_TYPE=Release",
	}
	if o.build.CCache {
		args = append(args,
			"-DCMAKE_C_COMPILER_LAUNCHER=ccache",
			"-DCMAKE_CXX_COMPILER_LAUNCHER=ccache")
	}
	if o.build.Linker != "" {
		args = append(args, "-DLLVM_USE_LINKER="+o.build.Linker)
	}
	args = append(args, o.sourceDir)

	o.log.Info("configuring build tree",
		zap.String("build_dir", o.buildDir), zap.String("arch", arch))
	cmd := exec.CommandContext(ctx, "cmake", args...)
	cmd.Dir = o.buildDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return &BuildError{Stage: "configure", Output: string(out), Err: err}
	}
	return nil
}

// Rebuild runs an incremental build of the configured targets and returns
// its wall-clock duration.
func (o *Orchestrator) Rebuild(ctx context.Context) (time.Duration, error) {
	args := append([]string{}, o.build.Targets...)
	cmd := exec.CommandContext(ctx, "ninja", args...)
	cmd.Dir = o.buildDir

	start := time.Now()
	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		return 0, &BuildError{Stage: "rebuild", Output: string(out), Err: err}
	}
	if o.debug {
		o.log.Debug("rebuild output", zap.String("output", string(out)))
	}
	if _, err := os.Stat(o.ClangPath()); err != nil {
		return 0, &BuildError{
			Stage: "rebuild",
			Err:   fmt.Errorf("clang binary missing at %s after rebuild: %w", o.ClangPath(), err),
		}
	}
	o.log.Info("rebuild complete", zap.Duration("elapsed", elapsed))
	return elapsed, nil
}

// hostTargetArch resolves the LLVM target for this host, preferring the
// installed llvm-config and falling back to a GOARCH mapping.
func hostTargetArch(ctx context.Context) string {
	if out, err := exec.CommandContext(ctx, "llvm-config", "--host-target").Output(); err == nil {
		triple := strings.TrimSpace(string(out))
		if i := strings.IndexByte(triple, '-'); i > 0 {
			triple = triple[:i]
		}
		if triple != "" {
			return llvmArchName(triple)
		}
	}
	switch runtime.GOARCH {
	case "arm64":
		return "AArch64"
	default:
		return "X86"
	}
}

func llvmArchName(archPart string) string {
	switch {
	case strings.HasPrefix(archPart, "x86_64"), strings.HasPrefix(archPart, "i686"):
		return "X86"
	case strings.HasPrefix(archPart, "aarch64"), strings.HasPrefix(archPart, "arm64"):
		return "AArch64"
	case strings.HasPrefix(archPart, "riscv"):
		return "RISCV"
	default:
		return archPart
	}
}
