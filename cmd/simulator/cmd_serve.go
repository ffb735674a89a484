package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/internal/control"
	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/timectrl"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation on the wall clock behind HTTP and gRPC control",
		Long: `Serve advances the venue in real time and exposes the control API over
HTTP (parameters, scenario, sessions, pause/resume, site activation, results)
and a gRPC health service whose "study.session" status follows the session.
Prometheus metrics are served at /metrics on the HTTP address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if flags := cmd.Flags(); flags.Changed("http-addr") {
				cfg.Control.HTTPAddr, _ = flags.GetString("http-addr")
			}
			if flags := cmd.Flags(); flags.Changed("grpc-addr") {
				cfg.Control.GRPCAddr, _ = flags.GetString("grpc-addr")
			}
			autostart, _ := cmd.Flags().GetBool("autostart")
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

			return serve(ctx, a, autostart)
		},
	}
	addSessionFlags(cmd)
	cmd.Flags().String("http-addr", "", "HTTP control address (default from config)")
	cmd.Flags().String("grpc-addr", "", "gRPC health address (default from config)")
	cmd.Flags().Bool("autostart", false, "Start a session immediately")
	return cmd
}

func serve(ctx context.Context, a *app, autostart bool) error {
	log := a.log
	sched := a.engine.Scheduler

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.session.Handler())
	mux.Handle("/", control.NewHTTPHandler(sched, control.HTTPHandlerConfig{
		Sites:   a.engine,
		Results: a.results,
		Metrics: a.control,
		Logger:  log,
	}))
	httpSrv := &http.Server{Addr: a.cfg.Control.HTTPAddr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "control HTTP server exited", logging.Err(err))
		}
	}()
	log.Info(ctx, "serving control HTTP", logging.String("addr", a.cfg.Control.HTTPAddr))
	defer shutdownServer(httpSrv)

	if a.cfg.Control.GRPCAddr != "" {
		grpcSrv, hs := control.NewGRPCServer(sched, a.control, log)
		lis, err := net.Listen("tcp", a.cfg.Control.GRPCAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error(ctx, "gRPC server exited", logging.Err(err))
			}
		}()
		log.Info(ctx, "serving control gRPC", logging.String("addr", a.cfg.Control.GRPCAddr))
		defer func() {
			hs.Shutdown()
			grpcSrv.GracefulStop()
		}()
	}

	if autostart {
		if _, err := sched.StartSession(ctx); err != nil {
			return err
		}
	}

	tc := timectrl.NewTimeController(time.Unix(0, 0).UTC(), a.cfg.Session.Tick, timectrl.RealTime)
	a.engine.Attach(ctx, tc)
	<-tc.Start(ctx, 0)

	log.Info(context.Background(), "shutting down")
	if sched.Running() {
		if _, err := sched.EndSession(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, core.ErrSessionNotRunning) {
			return err
		}
	}
	return nil
}
