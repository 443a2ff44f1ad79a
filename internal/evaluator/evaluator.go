// Package evaluator runs the full candidate evaluation pipeline: install
// the candidate, rebuild the host project, measure the kernel suite, seed
// the baseline, and score the result.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/crucible/internal/baseline"
	"github.com/signalnine/crucible/internal/bench"
	"github.com/signalnine/crucible/internal/buildtree"
	"github.com/signalnine/crucible/internal/candidate"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/result"
	"github.com/signalnine/crucible/internal/sandbox"
	"github.com/signalnine/crucible/internal/sched"
	"github.com/signalnine/crucible/internal/score"
	"github.com/signalnine/crucible/internal/suite"
	"go.uber.org/zap"
)

type installer interface {
	Install(text string) (noop bool, err error)
	Restore()
	CandidateBytes() int64
}

type builder interface {
	EnsureConfigured(ctx context.Context) error
	Rebuild(ctx context.Context) (time.Duration, error)
	ClangPath() string
}

type scheduler interface {
	RunAll(ctx context.Context, kernels []string, baseline map[string]float64, run sched.RunFunc) (bench.DatasetMetrics, error)
}

type suiteProvider interface {
	Ensure(ctx context.Context) error
	Kernels(name string, ds config.Dataset) []string
}

// Evaluator evaluates candidate files one at a time against a shared
// BaselineStore. It is not safe for concurrent Evaluate calls: the build
// tree holds a single candidate slot and the store assumes one writer.
type Evaluator struct {
	cfg   *config.Config
	log   *zap.Logger
	store *baseline.Store

	installer installer
	builder   builder
	sched     scheduler
	suite     suiteProvider
	runKernel func(ctx context.Context, kernel, datasetMacro string) (bench.KernelResult, error)

	// RunDir, when set, receives a JSON record per evaluation. Storage
	// failures are logged, never fatal.
	RunDir string
}

func New(cfg *config.Config, store *baseline.Store, log *zap.Logger) *Evaluator {
	orch := buildtree.NewOrchestrator(cfg, log)
	st := suite.New(cfg.Suite, log)
	runner := bench.NewRunner(cfg, orch.ClangPath(), st.Dir(), log)
	if cfg.Sandbox.Image != "" {
		runner.SetBinaryRunner(sandbox.NewRunner(cfg.Sandbox))
	}
	return &Evaluator{
		cfg:       cfg,
		log:       log,
		store:     store,
		installer: candidate.NewInstaller(cfg.TargetPath(), log),
		builder:   orch,
		sched:     sched.New(cfg.Scheduler, log),
		suite:     st,
		runKernel: runner.Run,
	}
}

// Evaluate scores one candidate file under the named dataset. It always
// returns a result, with failures reported through the outcome tag, and
// always leaves the build tree restored to its pristine target file.
func (e *Evaluator) Evaluate(ctx context.Context, candidatePath, dataset string) (ev *result.Evaluation) {
	start := time.Now()
	ev = &result.Evaluation{
		ID:        uuid.NewString(),
		Candidate: candidatePath,
		Dataset:   dataset,
		Outcome:   result.OutcomeFailed,
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("evaluation panicked", zap.Any("panic", r))
			ev.Outcome = result.OutcomeFailed
			ev.Factors = score.Factors{}
			ev.Error = fmt.Sprintf("panic: %v", r)
		}
		ev.DurationS = int(time.Since(start).Seconds())
		e.writeRecord(ev)
	}()

	ds, ok := e.cfg.Datasets[dataset]
	if !ok {
		ev.Error = fmt.Sprintf("unknown dataset %q", dataset)
		return ev
	}

	text, err := os.ReadFile(candidatePath)
	if err != nil {
		ev.Error = fmt.Sprintf("reading candidate: %v", err)
		return ev
	}

	if err := e.suite.Ensure(ctx); err != nil {
		ev.Error = err.Error()
		return ev
	}

	noop, err := e.installer.Install(string(text))
	if err != nil {
		ev.Error = fmt.Sprintf("installing candidate: %v", err)
		return ev
	}
	defer e.installer.Restore()

	var buildSeconds float64
	if noop {
		e.log.Info("candidate unchanged, skipping rebuild",
			zap.String("candidate", candidatePath))
	} else {
		if err := e.builder.EnsureConfigured(ctx); err != nil {
			ev.Error = err.Error()
			return ev
		}
		dur, err := e.builder.Rebuild(ctx)
		if err != nil {
			ev.Error = err.Error()
			return ev
		}
		buildSeconds = dur.Seconds()
	}
	ev.BuildSeconds = buildSeconds

	kernels := e.suite.Kernels(dataset, ds)
	if len(kernels) == 0 {
		ev.Error = fmt.Sprintf("dataset %q resolved to no kernels", dataset)
		return ev
	}

	rec := e.store.Get(dataset)
	run := func(ctx context.Context, kernel string) (bench.KernelResult, error) {
		return e.runKernel(ctx, kernel, ds.Macro)
	}

	metrics, err := e.sched.RunAll(ctx, kernels, rec.KernelSeconds, run)
	if err != nil {
		var regr *sched.RegressionError
		if errors.As(err, &regr) {
			ev.Outcome = result.OutcomeRegressed
			ev.RegressedKernel = regr.Kernel
			ev.TotalCompileSeconds = metrics.TotalCompileSeconds
			ev.TotalExecSeconds = metrics.TotalExecSeconds
			ev.TotalBinaryBytes = metrics.TotalBinaryBytes
			return ev
		}
		ev.Error = err.Error()
		return ev
	}

	rec = e.store.FillMissing(dataset, metrics, buildSeconds, e.installer.CandidateBytes())
	ev.Factors = score.Compute(metrics, rec, e.cfg.Weights)
	ev.Outcome = result.OutcomeSuccess
	ev.TotalCompileSeconds = metrics.TotalCompileSeconds
	ev.TotalExecSeconds = metrics.TotalExecSeconds
	ev.TotalBinaryBytes = metrics.TotalBinaryBytes
	return ev
}

func (e *Evaluator) writeRecord(ev *result.Evaluation) {
	if e.RunDir == "" {
		return
	}
	if err := result.WriteEvaluation(e.RunDir, ev); err != nil {
		e.log.Warn("storing evaluation record failed",
			zap.String("id", ev.ID), zap.Error(err))
	}
}
