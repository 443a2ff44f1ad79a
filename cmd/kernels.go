package cmd

import (
	"fmt"
	"sort"

	"github.com/signalnine/crucible/internal/config"
	"github.com/signalnine/crucible/internal/logx"
	"github.com/signalnine/crucible/internal/suite"
	"github.com/spf13/cobra"
)

func newKernelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kernels",
		Short: "List resolved kernels per dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logx.New(cfg.Debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			st := suite.New(cfg.Suite, logger)

			names := make([]string, 0, len(cfg.Datasets))
			for name := range cfg.Datasets {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				ds := cfg.Datasets[name]
				fmt.Printf("%s (macro %s):\n", name, ds.Macro)
				for _, k := range st.Kernels(name, ds) {
					fmt.Printf("  - %s\n", k)
				}
			}
			return nil
		},
	}
}
