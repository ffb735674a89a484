package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("scenario", 0, "Scenario value in [0,1]; 0 is the best case")
	cmd.Flags().Int64("seed", 0, "Random seed (0 picks a time-based seed)")
	cmd.Flags().Duration("tick", 0, "Simulated time step")
	cmd.Flags().String("store", "", "SQLite result database (empty keeps results in memory)")
	cmd.Flags().String("metrics-addr", "", "HTTP address for Prometheus /metrics")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one headless session and store its result",
		Long: `Run starts a session, advances it for --duration of simulated time and
ends it. The session record is persisted and printed. Interrupting the run
ends the session early and still stores the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			metricsSrv := serveMetrics(cfg.Metrics.Addr, a.session.Handler(), log)
			defer shutdownServer(metricsSrv)

			rec, err := runSession(ctx, a)
			if err != nil {
				return err
			}
			return printRecord(cmd.OutOrStdout(), rec, jsonOut)
		},
	}
	addSessionFlags(cmd)
	cmd.Flags().Duration("duration", 0, "Simulated session length")
	cmd.Flags().Bool("realtime", false, "Advance on the wall clock instead of as fast as possible")
	return cmd
}
