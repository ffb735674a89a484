package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/study-session-simulator/internal/store"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored session results, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			results, err := store.Open(cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("result store: %w", err)
			}
			defer results.Close()

			recs, err := results.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")
				return nil
			}
			for i, rec := range recs {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if _, err := io.WriteString(out, formatRecord(rec)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("store", "", "SQLite result database")
	cmd.Flags().Int("limit", 10, "Maximum number of sessions to show (0 for all)")
	return cmd
}
