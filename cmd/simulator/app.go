package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/internal/config"
	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/internal/observability"
	"github.com/signalsfoundry/study-session-simulator/internal/store"
	"github.com/signalsfoundry/study-session-simulator/model"
	"github.com/signalsfoundry/study-session-simulator/timectrl"
)

// loadConfig reads --config, applies env overrides, then any command flags
// the user set explicitly, and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("scenario") {
		cfg.Session.Scenario, _ = flags.GetFloat64("scenario")
	}
	if flags.Changed("seed") {
		cfg.Session.Seed, _ = flags.GetInt64("seed")
	}
	if flags.Changed("tick") {
		cfg.Session.Tick, _ = flags.GetDuration("tick")
	}
	if flags.Changed("duration") {
		cfg.Session.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("realtime") {
		realtime, _ := flags.GetBool("realtime")
		cfg.Session.Accelerated = !realtime
	}
	if flags.Changed("store") {
		cfg.Store.Path, _ = flags.GetString("store")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}

// app is everything a session needs: venue, engine, result store,
// metrics and tracing.
type app struct {
	cfg *config.Config
	log logging.Logger

	engine   *core.SimulationEngine
	results  store.ResultStore
	registry *prometheus.Registry
	session  *observability.SessionCollector
	control  *observability.ControlCollector

	shutdownTracing func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	session, err := observability.NewSessionCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	control, err := observability.NewControlCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("control metrics: %w", err)
	}

	tracingCfg := observability.TracingConfigFromEnv(observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	shutdown, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	results, err := store.Open(cfg.Store.Path)
	if err != nil {
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, fmt.Errorf("result store: %w", err)
	}

	venue, err := config.BuildVenue(cfg.Layout)
	if err != nil {
		results.Close()
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, fmt.Errorf("venue: %w", err)
	}
	engine, err := core.NewSimulationEngine(venue, cfg.SchedulerConfig(), log,
		core.WithResultSink(results),
		core.WithSessionMetrics(session),
	)
	if err != nil {
		results.Close()
		observability.ShutdownWithTimeout(ctx, shutdown, log)
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &app{
		cfg:             cfg,
		log:             log,
		engine:          engine,
		results:         results,
		registry:        registry,
		session:         session,
		control:         control,
		shutdownTracing: shutdown,
	}, nil
}

func (rt *app) Close(ctx context.Context) {
	rt.engine.Close()
	if err := rt.results.Close(); err != nil {
		rt.log.Warn(ctx, "closing result store failed", logging.Err(err))
	}
	observability.ShutdownWithTimeout(ctx, rt.shutdownTracing, rt.log)
}

// timeController builds the clock that drives the engine.
func (rt *app) timeController() *timectrl.TimeController {
	mode := timectrl.RealTime
	if rt.cfg.Session.Accelerated {
		mode = timectrl.Accelerated
	}
	return timectrl.NewTimeController(time.Unix(0, 0).UTC(), rt.cfg.Session.Tick, mode)
}

// runSession starts a session, drives it for the configured duration (or
// until ctx is cancelled) and ends it. The result is persisted even when ctx
// was cancelled.
func runSession(ctx context.Context, rt *app) (model.SessionRecord, error) {
	if rt.cfg.Session.Accelerated && rt.cfg.Session.Duration == 0 {
		return model.SessionRecord{}, fmt.Errorf("%w: accelerated runs need a duration", config.ErrInvalidConfig)
	}
	if _, err := rt.engine.Scheduler.StartSession(ctx); err != nil {
		return model.SessionRecord{}, err
	}

	tc := rt.timeController()
	rt.engine.Attach(ctx, tc)
	<-tc.Start(ctx, rt.cfg.Session.Duration)

	return rt.engine.Scheduler.EndSession(context.WithoutCancel(ctx))
}

func serveMetrics(addr string, handler http.Handler, log logging.Logger) *http.Server {
	if addr == "" || handler == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func shutdownServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
