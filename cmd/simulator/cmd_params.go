package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/study-session-simulator/core"
)

func newParamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the parameters derived for a scenario value",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			snap := core.ParameterSnapshot{
				Parameters: core.DeriveParameters(cfg.Session.Scenario, cfg.Bounds, cfg.Fixed),
			}
			for _, s := range cfg.Layout.Sites {
				if !s.Inactive {
					snap.ActiveSites++
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			_, err = fmt.Fprintf(out, "Scenario: %.2f\n%s\n", snap.Scenario, snap)
			return err
		},
	}
	cmd.Flags().Float64("scenario", 0, "Scenario value in [0,1]; 0 is the best case")
	return cmd
}
