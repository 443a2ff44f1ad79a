// Package score converts candidate and baseline measurements into one
// comparable fitness value.
package score

import (
	"math"

	"github.com/signalnine/crucible/internal/baseline"
	"github.com/signalnine/crucible/internal/bench"
	"github.com/signalnine/crucible/internal/config"
)

// epsilon guards ratio denominators against division by zero.
const epsilon = 1e-6

// Factors are the three speedup ratios and their weighted composite.
type Factors struct {
	RuntimeSpeedup float64 `json:"runtime_speedup"`
	CompileSpeedup float64 `json:"compile_speedup"`
	CodeSizeRatio  float64 `json:"code_size_ratio"`
	Composite      float64 `json:"composite"`
}

// Compute scores candidate metrics against the dataset's baseline record.
//
// The runtime factor is the geometric mean of per-kernel speedups
// (baseline/candidate) over kernels present in both maps; no overlap gives
// a neutral 1.0, since absent data must not look like a regression. The
// compile and size factors are plain baseline/candidate ratios.
func Compute(m bench.DatasetMetrics, rec *baseline.Record, w config.Weights) Factors {
	f := Factors{
		RuntimeSpeedup: runtimeSpeedup(m.KernelSeconds, rec.KernelSeconds),
		CompileSpeedup: rec.TotalCompileSeconds / (m.TotalCompileSeconds + epsilon),
		CodeSizeRatio:  float64(rec.TotalBinaryBytes) / (float64(m.TotalBinaryBytes) + epsilon),
	}
	f.Composite = f.RuntimeSpeedup*w.Runtime + f.CompileSpeedup*w.Compile + f.CodeSizeRatio*w.Size
	return f
}

func runtimeSpeedup(candidate, base map[string]float64) float64 {
	var logSum float64
	var n int
	for kernel, candSecs := range candidate {
		baseSecs, ok := base[kernel]
		if !ok {
			continue
		}
		logSum += math.Log(baseSecs / (candSecs + epsilon))
		n++
	}
	if n == 0 {
		return 1.0
	}
	return math.Exp(logSum / float64(n))
}
