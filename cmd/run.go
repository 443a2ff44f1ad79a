package cmd

import (
	"context"
	"fmt"

	"github.com/signalnine/crucible/internal/baseline"
	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/evaluator"
	"github.com/signalnine/crucible/internal/logx"
	"github.com/signalnine/crucible/internal/result"
	"github.com/spf13/cobra"
)

var (
	flagDataset   string
	flagRuns      int
	flagWarmup    int
	flagWorkers   int
	flagEarlyStop bool
	flagDebug     bool
	flagOut       string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [candidate files...]",
		Short: "Evaluate candidate source files",
		Long: "Evaluate one or more candidate files in sequence against a shared " +
			"baseline store. The first candidate measured for a dataset seeds any " +
			"baseline fields not already present; later candidates are scored " +
			"against it.",
		Args: cobra.MinimumNArgs(1),
		RunE: runEvaluations,
	}
	cmd.Flags().StringVar(&flagDataset, "dataset", "small", "dataset variant (small, full)")
	cmd.Flags().IntVar(&flagRuns, "runs", 0, "override timed executions per kernel")
	cmd.Flags().IntVar(&flagWarmup, "warmup", -1, "override untimed warm-up executions per kernel")
	cmd.Flags().IntVar(&flagWorkers, "workers", 0, "override scheduler worker count (1 = serial)")
	cmd.Flags().BoolVar(&flagEarlyStop, "early-stop", false, "enable per-kernel regression short-circuit")
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "verbose diagnostics, stream subprocess output")
	cmd.Flags().StringVar(&flagOut, "out", "", "record directory (default: new timestamped run dir)")
	return cmd
}

func runEvaluations(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	logger, err := logx.New(cfg.Debug)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	runDir := flagOut
	if runDir == "" {
		runDir, err = result.CreateRunDir(cfg.ResultsDir)
		if err != nil {
			return err
		}
	}
	fmt.Printf("Run directory: %s\n", runDir)

	store := baseline.NewStore()
	ev := evaluator.New(cfg, store, logger)
	ev.RunDir = runDir

	ctx := context.Background()
	for i, path := range args {
		fmt.Printf("Evaluating %s (%d/%d, dataset %s)...\n", path, i+1, len(args), flagDataset)
		res := ev.Evaluate(ctx, path, flagDataset)
		switch res.Outcome {
		case result.OutcomeSuccess:
			fmt.Printf("  %s  composite=%.4f runtime=%.4f compile=%.4f size=%.4f (%ds)\n",
				res.Outcome, res.Composite, res.RuntimeSpeedup, res.CompileSpeedup,
				res.CodeSizeRatio, res.DurationS)
		case result.OutcomeRegressed:
			fmt.Printf("  %s  kernel %s over threshold (%ds)\n",
				res.Outcome, res.RegressedKernel, res.DurationS)
		default:
			fmt.Printf("  %s  %s\n", res.Outcome, res.Error)
		}
	}
	return nil
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if flagRuns > 0 {
		cfg.Bench.Runs = flagRuns
	}
	if flagWarmup >= 0 {
		cfg.Bench.Warmup = flagWarmup
	}
	if flagWorkers > 0 {
		cfg.Scheduler.Workers = flagWorkers
	}
	if cmd.Flags().Changed("early-stop") {
		cfg.Scheduler.EarlyStop = flagEarlyStop
	}
	if flagDebug {
		cfg.Debug = true
	}
}
