package main

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/signalnine/crucible/internal/baseline"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/evaluator"
	"github.com/signalnine/crucible/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const pristineTarget = "// pristine LoopUnrollPass\n"

// fakeNinja produces bin/clang in the build dir; the fake clang in turn
// writes whatever -o names as a script that prints a timing line.
const fakeNinja = `#!/bin/sh
mkdir -p bin
cat > bin/clang <<'CLANG'
#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
cat > "$out" <<'KERNEL'
#!/bin/sh
echo "time= 0.125"
KERNEL
chmod +x "$out"
CLANG
chmod +x bin/clang
`

// setupToolchain puts fake cmake and ninja ahead of the real ones.
func setupToolchain(t *testing.T) {
	t.Helper()
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "cmake"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "ninja"), []byte(fakeNinja), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func setupTree(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	sourceDir := filepath.Join(root, "llvm-project")
	targetRel := filepath.Join("llvm", "lib", "Transforms", "Scalar", "LoopUnrollPass.cpp")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(sourceDir, targetRel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sourceDir, targetRel), []byte(pristineTarget), 0o644))

	suiteDir := filepath.Join(root, "polybench")
	require.NoError(t, os.MkdirAll(filepath.Join(suiteDir, "utilities"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(suiteDir, "utilities", "polybench.c"), []byte("/* timing harness */\n"), 0o644))
	kernelRel := filepath.Join("kernels", "gemm", "gemm.c")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(suiteDir, kernelRel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(suiteDir, kernelRel), []byte("/* kernel */\n"), 0o644))

	return &config.Config{
		SourceDir:  sourceDir,
		BuildDir:   filepath.Join(root, "build-evolve"),
		TargetFile: targetRel,
		Suite:      config.Suite{Dir: suiteDir},
		Build:      config.Build{Projects: []string{"clang"}, Targets: []string{"clang"}},
		Bench:      config.Bench{OptLevel: "-O3", Runs: 3, TimeoutMinutes: 1},
		Scheduler:  config.Scheduler{Workers: 1, EarlyStop: true, RegressionThreshold: 0.05},
		Weights:    config.DefaultWeights,
		Datasets: map[string]config.Dataset{
			"small": {Macro: "MINI_DATASET", Kernels: []string{kernelRel}},
		},
	}
}

func writeCandidate(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidate.cpp")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func TestEvaluatePipeline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs /bin/sh")
	}
	setupToolchain(t)
	cfg := setupTree(t)
	store := baseline.NewStore()
	ev := evaluator.New(cfg, store, zaptest.NewLogger(t))

	target := cfg.TargetPath()
	cand := writeCandidate(t,
		"// EVOLVE-BLOCK-START\n// tweaked unrolling\n// EVOLVE-BLOCK-END\n")

	res := ev.Evaluate(context.Background(), cand, "small")
	require.Equal(t, result.OutcomeSuccess, res.Outcome, res.Error)
	assert.InDelta(t, 1.0, res.RuntimeSpeedup, 1e-5, "first candidate seeds its own baseline")
	assert.Greater(t, res.TotalBinaryBytes, int64(0))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, pristineTarget, string(data), "target restored after evaluation")
	backup, err := os.ReadFile(target + ".orig_bak")
	require.NoError(t, err)
	assert.Equal(t, pristineTarget, string(backup))

	// Second evaluation shares the store and is scored against the first.
	res2 := ev.Evaluate(context.Background(), writeCandidate(t, "// another variant\n"), "small")
	require.Equal(t, result.OutcomeSuccess, res2.Outcome, res2.Error)
	assert.InDelta(t, 1.0, res2.RuntimeSpeedup, 1e-5)

	data, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, pristineTarget, string(data), "target restored after every evaluation")
}

func TestEvaluatePipelineBuildFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs /bin/sh")
	}
	binDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "cmake"), []byte("#!/bin/sh\nexit 0\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "ninja"), []byte("#!/bin/sh\necho 'error: candidate broke the build' >&2\nexit 1\n"), 0o755))
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	cfg := setupTree(t)
	ev := evaluator.New(cfg, baseline.NewStore(), zaptest.NewLogger(t))

	res := ev.Evaluate(context.Background(), writeCandidate(t, "// broken\n"), "small")
	assert.Equal(t, result.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Error, "rebuild failed")

	data, err := os.ReadFile(cfg.TargetPath())
	require.NoError(t, err)
	assert.Equal(t, pristineTarget, string(data), "target restored after build failure")
}
