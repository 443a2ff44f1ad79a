package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/signalnine/crucible/internal/config"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Preflight the config and host toolchain",
		Long: "Check that the config parses, the host project and target file " +
			"exist, and the required build tools are on PATH.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			var problems []string

			if _, err := os.Stat(cfg.SourceDir); err != nil {
				problems = append(problems, fmt.Sprintf("source_dir %s: %v", cfg.SourceDir, err))
			}
			if _, err := os.Stat(cfg.TargetPath()); err != nil {
				problems = append(problems, fmt.Sprintf("target_file %s: %v", cfg.TargetPath(), err))
			}
			for _, tool := range []string{"cmake", "ninja", "git"} {
				if _, err := exec.LookPath(tool); err != nil {
					problems = append(problems, fmt.Sprintf("%s not found on PATH", tool))
				}
			}
			if _, err := exec.LookPath("llvm-config"); err != nil {
				fmt.Println("note: llvm-config not on PATH, target arch will fall back to the host architecture")
			}
			if cfg.Build.CCache {
				if _, err := exec.LookPath("ccache"); err != nil {
					problems = append(problems, "build.ccache enabled but ccache not found on PATH")
				}
			}
			if _, err := os.Stat(cfg.Suite.Dir); err != nil {
				fmt.Printf("note: suite dir %s missing, will be cloned from %s on first run\n",
					cfg.Suite.Dir, cfg.Suite.Upstream)
			}

			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Printf("FAIL: %s\n", p)
				}
				return fmt.Errorf("%d preflight problem(s)", len(problems))
			}
			fmt.Println("OK")
			return nil
		},
	}
}
