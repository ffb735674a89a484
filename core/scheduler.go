package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/model"
)

const tracerName = "github.com/signalsfoundry/study-session-simulator/core"

// ResultSink persists finished sessions.
type ResultSink interface {
	SaveSession(ctx context.Context, rec model.SessionRecord) error
}

// SessionMetrics receives scheduler events for export.
type SessionMetrics interface {
	AgentsSpawned(n int)
	AgentsDropped(n int)
	OutcomeRecorded(kind string)
	AgentTransition(from, to string)
	ShuttleDocked(shuttleID string)
	SetLiveAgents(n int)
	SetOccupiedSlots(n int)
	SetScenario(v float64)
	SetActiveSites(n int)
	SetSessionRunning(running bool)
	ObserveTick(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) AgentsSpawned(int)              {}
func (noopMetrics) AgentsDropped(int)              {}
func (noopMetrics) OutcomeRecorded(string)         {}
func (noopMetrics) AgentTransition(string, string) {}
func (noopMetrics) ShuttleDocked(string)           {}
func (noopMetrics) SetLiveAgents(int)              {}
func (noopMetrics) SetOccupiedSlots(int)           {}
func (noopMetrics) SetScenario(float64)            {}
func (noopMetrics) SetActiveSites(int)             {}
func (noopMetrics) SetSessionRunning(bool)         {}
func (noopMetrics) ObserveTick(time.Duration)      {}

// SchedulerConfig carries the static inputs of a scheduler.
type SchedulerConfig struct {
	Scenario     float64
	Bounds       ScenarioBounds
	Fixed        FixedRates
	Shuttle      ShuttleConfig
	SeekInterval time.Duration

	Exit    orb.Point
	HasExit bool

	// Seed feeds the session random source. Zero picks a time-based seed.
	Seed int64
}

// DefaultSchedulerConfig returns the tuned defaults with scenario 0.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Bounds:       DefaultScenarioBounds(),
		Fixed:        DefaultFixedRates(),
		Shuttle:      DefaultShuttleConfig(),
		SeekInterval: DefaultSeekInterval,
	}
}

// SchedulerOption customises SessionScheduler construction.
type SchedulerOption func(*SessionScheduler)

// WithResultSink attaches the persistence collaborator used at session end.
func WithResultSink(sink ResultSink) SchedulerOption {
	return func(s *SessionScheduler) {
		s.sink = sink
	}
}

// WithSessionMetrics attaches an optional metrics recorder.
func WithSessionMetrics(m SessionMetrics) SchedulerOption {
	return func(s *SessionScheduler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithRand overrides the session random source.
func WithRand(r *rand.Rand) SchedulerOption {
	return func(s *SessionScheduler) {
		s.rng = r
	}
}

// WithClock overrides the wall clock used to stamp session records.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *SessionScheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// SessionScheduler owns one session: parameter derivation and broadcast, the
// spawn timer, shuttles, live agents and outcome aggregation. Tick and every
// control operation are serialised on one mutex.
type SessionScheduler struct {
	mu sync.Mutex

	cfg      SchedulerConfig
	pool     *ResourcePool
	spawners []*Spawner
	shuttles []*Shuttle
	agents   []*Agent

	scalar float64
	params Parameters

	running    bool
	paused     bool
	spawnTimer time.Duration
	sessionID  string
	span       trace.Span

	stats SessionStats
	seen  map[string]struct{}

	sess    *SessionContext
	rng     *rand.Rand
	log     logging.Logger
	tracer  trace.Tracer
	sink    ResultSink
	metrics SessionMetrics
	now     func() time.Time

	subsMu      sync.Mutex
	subscribers []func(ParameterSnapshot)
}

// NewSessionScheduler wires a scheduler over pool and spawners. Shuttles are
// built from routes; a broken route disables its shuttle and is logged.
func NewSessionScheduler(cfg SchedulerConfig, pool *ResourcePool, spawners []*Spawner, routes []model.RouteDefinition, log logging.Logger, opts ...SchedulerOption) *SessionScheduler {
	if log == nil {
		log = logging.Noop()
	}
	if pool == nil {
		pool, _ = NewResourcePool(nil)
	}
	s := &SessionScheduler{
		cfg:      cfg,
		pool:     pool,
		spawners: spawners,
		scalar:   cfg.Scenario,
		seen:     make(map[string]struct{}),
		log:      log,
		tracer:   otel.Tracer(tracerName),
		metrics:  noopMetrics{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		s.rng = rand.New(rand.NewSource(seed))
	}

	s.params = DeriveParameters(s.scalar, cfg.Bounds, cfg.Fixed)
	s.scalar = s.params.Scenario
	s.sess = &SessionContext{
		Pool:         pool,
		Reporter:     schedulerReporter{s},
		Rand:         s.rng,
		Logger:       log,
		Exit:         cfg.Exit,
		HasExit:      cfg.HasExit,
		SeekInterval: cfg.SeekInterval,
		OnTransition: s.onTransition,
	}

	ctx := context.Background()
	for _, route := range routes {
		shuttleID := route.ID
		sh, err := NewShuttle(route, cfg.Shuttle, func(ctx context.Context, spawnerID string, count int) {
			s.metrics.ShuttleDocked(shuttleID)
			s.spawnAtLocked(ctx, spawnerID, count)
		}, log)
		if err != nil {
			log.Warn(ctx, "shuttle disabled", logging.Err(err))
		}
		sh.UpdateParameters(s.params)
		s.shuttles = append(s.shuttles, sh)
	}
	if !cfg.HasExit {
		log.Warn(ctx, "no exit point configured, agents will depart in place")
	}
	s.metrics.SetScenario(s.scalar)
	s.metrics.SetActiveSites(pool.ActiveCount())
	return s
}

// Subscribe registers fn to receive every refreshed parameter snapshot.
func (s *SessionScheduler) Subscribe(fn func(ParameterSnapshot)) {
	if fn == nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// StartSession resets statistics and occupancy, re-derives parameters and
// arms the spawn timer. It returns the session ID: the one carried by ctx if
// present, otherwise a fresh one.
func (s *SessionScheduler) StartSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrSessionRunning
	}

	ctx, s.sessionID = logging.EnsureSessionID(ctx)
	s.stats.Reset()
	clear(s.seen)
	s.pool.Reset()
	s.agents = nil
	s.params = DeriveParameters(s.scalar, s.cfg.Bounds, s.cfg.Fixed)
	s.spawnTimer = s.params.SpawnInterval / 10
	s.running = true
	s.paused = false
	s.broadcastLocked()

	_, s.span = s.tracer.Start(ctx, "session",
		trace.WithAttributes(
			attribute.String("session_id", s.sessionID),
			attribute.Float64("scenario", s.scalar),
			attribute.Int("active_sites", s.pool.ActiveCount()),
		),
	)
	s.metrics.SetSessionRunning(true)
	s.metrics.SetActiveSites(s.pool.ActiveCount())

	id := s.sessionID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "session started",
		logging.Float64("scenario", snap.Scenario),
		logging.Int("agents_per_batch", snap.AgentsPerBatch),
		logging.Duration("spawn_interval", snap.SpawnInterval),
		logging.Int("active_sites", snap.ActiveSites),
	)
	s.notify(snap)
	return id, nil
}

// EndSession finalises statistics, halts the session, releases every slot,
// drops live agents and hands the record to the result sink.
func (s *SessionScheduler) EndSession(ctx context.Context) (model.SessionRecord, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return model.SessionRecord{}, ErrSessionNotRunning
	}
	rec := s.stats.Finalize(s.sessionID, s.scalar, s.pool.ActiveCount(), s.now().UTC())
	dropped := len(s.agents)
	s.running = false
	s.paused = false
	s.agents = nil
	s.pool.Reset()
	for _, sh := range s.shuttles {
		sh.Halt()
	}
	span := s.span
	s.span = nil
	sink := s.sink
	s.metrics.SetSessionRunning(false)
	s.metrics.SetLiveAgents(0)
	s.metrics.SetOccupiedSlots(0)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ctx = logging.ContextWithSessionID(ctx, rec.SessionID)
	if span != nil {
		span.SetAttributes(
			attribute.Int("agents_processed", rec.AgentsProcessed),
			attribute.Float64("avg_score", rec.AvgScore),
		)
		defer span.End()
	}

	s.log.Info(ctx, "session ended",
		logging.Int("agents_processed", rec.AgentsProcessed),
		logging.Int("studied", rec.StudiedCount),
		logging.Int("left_unstudied", rec.LeftUnstudiedCount),
		logging.Float64("avg_score", rec.AvgScore),
		logging.Float64("avg_secondary_spend", rec.AvgSecondarySpend),
		logging.Int("agents_dropped", dropped),
	)
	s.notify(snap)

	if sink == nil {
		return rec, nil
	}
	if err := sink.SaveSession(ctx, rec); err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist session")
		}
		s.log.Error(ctx, "failed to persist session", logging.Err(err))
		return rec, fmt.Errorf("persist session %s: %w", rec.SessionID, err)
	}
	return rec, nil
}

// Pause freezes all advancement without touching timers.
func (s *SessionScheduler) Pause(ctx context.Context) error {
	return s.setPaused(ctx, true)
}

// Resume continues a paused session.
func (s *SessionScheduler) Resume(ctx context.Context) error {
	return s.setPaused(ctx, false)
}

func (s *SessionScheduler) setPaused(ctx context.Context, paused bool) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSessionNotRunning
	}
	s.paused = paused
	id := s.sessionID
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info(logging.ContextWithSessionID(ctx, id), "session pause toggled", logging.Bool("paused", paused))
	s.notify(snap)
	return nil
}

// SetScenario clamps v, re-derives every parameter and pushes the result to
// all live agents and shuttles.
func (s *SessionScheduler) SetScenario(ctx context.Context, v float64) ParameterSnapshot {
	s.mu.Lock()
	s.params = DeriveParameters(v, s.cfg.Bounds, s.cfg.Fixed)
	s.scalar = s.params.Scenario
	s.broadcastLocked()
	s.metrics.SetScenario(s.scalar)
	snap := s.snapshotLocked()
	id := s.sessionID
	s.mu.Unlock()

	s.log.Debug(logging.ContextWithSessionID(ctx, id), "scenario changed",
		logging.Float64("scenario", snap.Scenario),
		logging.Float64("agent_speed", snap.AgentSpeed),
		logging.Int("agents_per_batch", snap.AgentsPerBatch),
	)
	s.notify(snap)
	return snap
}

// SetSiteActive toggles a site and refreshes the active-site count.
func (s *SessionScheduler) SetSiteActive(ctx context.Context, siteID string, active bool) error {
	s.mu.Lock()
	if err := s.pool.SetActive(siteID, active); err != nil {
		s.mu.Unlock()
		return err
	}
	s.metrics.SetActiveSites(s.pool.ActiveCount())
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info(ctx, "site activation changed",
		logging.String("site_id", siteID),
		logging.Bool("active", active),
		logging.Int("active_sites", snap.ActiveSites),
	)
	s.notify(snap)
	return nil
}

// SetSpawnerActive opens or closes a spawner. Closed spawners are skipped by
// timed batches and produce nobody when a shuttle docks at them.
func (s *SessionScheduler) SetSpawnerActive(ctx context.Context, spawnerID string, active bool) error {
	s.mu.Lock()
	var target *Spawner
	for _, sp := range s.spawners {
		if sp.ID == spawnerID {
			target = sp
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("spawner %q: %w", spawnerID, ErrSpawnerNotFound)
	}
	target.SetActive(active)
	s.mu.Unlock()

	s.log.Info(ctx, "spawner activation changed",
		logging.String("spawner_id", spawnerID),
		logging.Bool("active", active),
	)
	return nil
}

// Tick advances the session by dt: spawn timer, shuttles, agents, then
// removal of departed agents. Outside a running session shuttles are held
// still and nothing else moves.
func (s *SessionScheduler) Tick(ctx context.Context, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		for _, sh := range s.shuttles {
			sh.Halt()
		}
		return
	}
	if s.paused {
		return
	}
	start := time.Now()
	ctx = logging.ContextWithSessionID(ctx, s.sessionID)

	s.spawnTimer -= dt
	if s.spawnTimer <= 0 {
		s.spawnBatchLocked(ctx, s.params.AgentsPerBatch)
		s.spawnTimer = s.params.SpawnInterval
	}

	for _, sh := range s.shuttles {
		sh.Tick(ctx, dt)
	}

	for _, a := range s.agents {
		a.Tick(ctx, dt)
	}

	live := s.agents[:0]
	for _, a := range s.agents {
		if !a.Departed() {
			live = append(live, a)
		}
	}
	clear(s.agents[len(live):])
	s.agents = live

	s.metrics.SetLiveAgents(len(s.agents))
	s.metrics.SetOccupiedSlots(s.pool.OccupiedCount())
	s.metrics.ObserveTick(time.Since(start))
}

// SpawnBatch requests an immediate batch of total agents split across the
// active spawners.
func (s *SessionScheduler) SpawnBatch(ctx context.Context, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrSessionNotRunning
	}
	s.spawnBatchLocked(logging.ContextWithSessionID(ctx, s.sessionID), total)
	return nil
}

func (s *SessionScheduler) spawnBatchLocked(ctx context.Context, total int) {
	active := make([]*Spawner, 0, len(s.spawners))
	for _, sp := range s.spawners {
		if sp.IsActive() {
			active = append(active, sp)
		}
	}
	if len(active) == 0 {
		s.log.Warn(ctx, "no active spawners, batch skipped", logging.Int("batch", total))
		return
	}
	for i, n := range DistributeBatch(total, len(active)) {
		s.spawnFromLocked(ctx, active[i], n)
	}
}

func (s *SessionScheduler) spawnAtLocked(ctx context.Context, spawnerID string, count int) {
	for _, sp := range s.spawners {
		if sp.ID == spawnerID {
			if !sp.IsActive() {
				s.log.Debug(ctx, "dock at closed spawner", logging.String("spawner_id", sp.ID))
				return
			}
			s.spawnFromLocked(ctx, sp, count)
			return
		}
	}
	s.log.Warn(ctx, "dock references unknown spawner",
		logging.Err(fmt.Errorf("spawner %q: %w", spawnerID, ErrSpawnerNotFound)))
}

func (s *SessionScheduler) spawnFromLocked(ctx context.Context, sp *Spawner, count int) {
	res, err := sp.Spawn(ctx, count, s.params, s.sess)
	if err != nil {
		s.log.Warn(ctx, "spawn failed",
			logging.String("spawner_id", sp.ID),
			logging.Err(err),
		)
		return
	}
	s.agents = append(s.agents, res.Agents...)
	s.metrics.AgentsSpawned(len(res.Agents))
	if res.PlacementFailure > 0 {
		s.metrics.AgentsDropped(res.PlacementFailure)
	}
}

// ReportOutcome records an outcome from outside the tick loop. Repeated
// reports for the same agent are ignored.
func (s *SessionScheduler) ReportOutcome(o model.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(o)
}

func (s *SessionScheduler) recordLocked(o model.Outcome) {
	if !s.running {
		return
	}
	if _, dup := s.seen[o.AgentID]; dup {
		return
	}
	s.seen[o.AgentID] = struct{}{}
	s.stats.Record(o)
	s.metrics.OutcomeRecorded(o.Kind.String())
}

// schedulerReporter is handed to agents, which report while Tick already
// holds the scheduler lock.
type schedulerReporter struct{ s *SessionScheduler }

func (r schedulerReporter) ReportOutcome(o model.Outcome) { r.s.recordLocked(o) }

func (s *SessionScheduler) onTransition(ctx context.Context, agentID string, from, to AgentState, event AgentEvent) {
	s.metrics.AgentTransition(from.String(), to.String())
	s.log.Debug(ctx, "agent transition",
		logging.String("agent_id", agentID),
		logging.String("from", from.String()),
		logging.String("to", to.String()),
		logging.String("event", event.String()),
	)
}

func (s *SessionScheduler) broadcastLocked() {
	for _, a := range s.agents {
		a.UpdateParameters(s.params)
	}
	for _, sh := range s.shuttles {
		sh.UpdateParameters(s.params)
	}
}

// Snapshot returns the current broadcast view.
func (s *SessionScheduler) Snapshot() ParameterSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *SessionScheduler) snapshotLocked() ParameterSnapshot {
	return ParameterSnapshot{
		Parameters:  s.params,
		ActiveSites: s.pool.ActiveCount(),
		Running:     s.running,
		Paused:      s.paused,
		LiveAgents:  len(s.agents),
	}
}

func (s *SessionScheduler) notify(snap ParameterSnapshot) {
	s.subsMu.Lock()
	subs := append([]func(ParameterSnapshot){}, s.subscribers...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

// Running reports whether a session is in progress.
func (s *SessionScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SessionID returns the ID of the current or last session.
func (s *SessionScheduler) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Agents returns the live agents. The slice is a copy; the agents are not.
func (s *SessionScheduler) Agents() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Agent(nil), s.agents...)
}

// Shuttles returns the configured shuttles.
func (s *SessionScheduler) Shuttles() []*Shuttle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Shuttle(nil), s.shuttles...)
}

// Pool returns the resource pool.
func (s *SessionScheduler) Pool() *ResourcePool { return s.pool }

// Stats returns a copy of the running tallies.
func (s *SessionScheduler) Stats() (processed, studied, leftUnstudied int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.Processed(), s.stats.Studied(), s.stats.LeftUnstudied()
}

// SpawnTimer returns the time until the next timed batch.
func (s *SessionScheduler) SpawnTimer() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnTimer
}
