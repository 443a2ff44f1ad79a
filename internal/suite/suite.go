// Package suite locates the benchmark suite and resolves which kernels a
// dataset exercises.
package suite

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/signalnine/crucible/internal/config"
	"go.uber.org/zap"
)

// stage1Kernels is the reduced screening list used when neither the config
// nor the suite's benchmark_list provides one.
var stage1Kernels = []string{
	"linear-algebra/kernels/gemm/gemm.c",
	"linear-algebra/kernels/gesummv/gesummv.c",
	"stencils/jacobi-2d/jacobi-2d.c",
	"datamining/correlation/correlation.c",
	"medley/floyd-warshall/floyd-warshall.c",
}

// stage2Extra extends stage1 into the fallback full list.
var stage2Extra = []string{
	"linear-algebra/kernels/2mm/2mm.c",
	"linear-algebra/kernels/3mm/3mm.c",
	"linear-algebra/kernels/syr2k/syr2k.c",
	"stencils/adi/adi.c",
	"stencils/fdtd-2d/fdtd-2d.c",
}

type Suite struct {
	cfg config.Suite
	log *zap.Logger
}

func New(cfg config.Suite, log *zap.Logger) *Suite {
	return &Suite{cfg: cfg, log: log}
}

func (s *Suite) Dir() string {
	return s.cfg.Dir
}

// Ensure checks that the suite directory exists and makes one shallow
// clone attempt from the configured upstream when it does not. Failure to
// remediate is fatal.
func (s *Suite) Ensure(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.Dir); err == nil {
		return nil
	}
	s.log.Info("benchmark suite missing, cloning",
		zap.String("dir", s.cfg.Dir), zap.String("upstream", s.cfg.Upstream))
	if err := os.MkdirAll(filepath.Dir(s.cfg.Dir), 0o755); err != nil {
		return fmt.Errorf("creating suite parent dir: %w", err)
	}
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", s.cfg.Upstream, s.cfg.Dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cloning benchmark suite: %s: %w", out, err)
	}
	return nil
}

// Kernels resolves the kernel list for a dataset. Precedence: the
// dataset's configured list, then the suite's benchmark_list file, then
// the built-in fallback (stage1 for "small", stage1+stage2 otherwise).
func (s *Suite) Kernels(name string, ds config.Dataset) []string {
	if len(ds.Kernels) > 0 {
		return ds.Kernels
	}
	if name != "small" {
		if fromFile, err := s.readListFile(); err == nil && len(fromFile) > 0 {
			return fromFile
		}
		return append(append([]string{}, stage1Kernels...), stage2Extra...)
	}
	return append([]string{}, stage1Kernels...)
}

func (s *Suite) readListFile() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.cfg.Dir, s.cfg.ListFile))
	if err != nil {
		return nil, err
	}
	return ParseList(string(data)), nil
}

// ParseList reads a benchmark_list file: one kernel path per line, blank
// lines and '#' comments skipped.
func ParseList(text string) []string {
	var kernels []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kernels = append(kernels, line)
	}
	return kernels
}
