package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionCollector exposes scheduler metrics. It satisfies
// core.SessionMetrics.
type SessionCollector struct {
	gatherer prometheus.Gatherer

	Spawned           prometheus.Counter
	PlacementFailures prometheus.Counter
	Outcomes          *prometheus.CounterVec
	Transitions       *prometheus.CounterVec
	ShuttleDocks      *prometheus.CounterVec

	LiveAgents     prometheus.Gauge
	OccupiedSlots  prometheus.Gauge
	Scenario       prometheus.Gauge
	ActiveSites    prometheus.Gauge
	SessionRunning prometheus.Gauge

	TickDuration prometheus.Histogram
}

// NewSessionCollector registers session metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewSessionCollector(reg prometheus.Registerer) (*SessionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SessionCollector{gatherer: gatherer}
	var err error

	if c.Spawned, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_agents_spawned_total",
		Help: "Agents placed on the floor by spawners.",
	}), "session_agents_spawned_total"); err != nil {
		return nil, err
	}
	if c.PlacementFailures, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_agents_placement_failures_total",
		Help: "Agents dropped at creation because no walkable point was found near the spawner.",
	}), "session_agents_placement_failures_total"); err != nil {
		return nil, err
	}

	if c.Outcomes, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_outcomes_total",
		Help: "Agent outcomes, labeled by kind.",
	}, []string{"kind"}), "session_outcomes_total"); err != nil {
		return nil, err
	}
	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_agent_transitions_total",
		Help: "Agent lifecycle transitions, labeled by source and target state.",
	}, []string{"from", "to"}), "session_agent_transitions_total"); err != nil {
		return nil, err
	}
	if c.ShuttleDocks, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_shuttle_docks_total",
		Help: "Shuttle arrivals at dock waypoints, labeled by shuttle.",
	}, []string{"shuttle"}), "session_shuttle_docks_total"); err != nil {
		return nil, err
	}

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.LiveAgents, "session_live_agents", "Agents currently on the floor."},
		{&c.OccupiedSlots, "session_occupied_slots", "Seats currently held by an agent."},
		{&c.Scenario, "session_scenario_value", "Current scenario scalar in [0,1]."},
		{&c.ActiveSites, "session_active_sites", "Study sites currently selectable."},
		{&c.SessionRunning, "session_running", "1 while a session is running."},
	}
	for _, g := range gauges {
		if *g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: g.name,
			Help: g.help,
		}), g.name); err != nil {
			return nil, err
		}
	}

	if c.TickDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_tick_duration_seconds",
		Help:    "Wall-clock time spent in one scheduler tick.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "session_tick_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SessionCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SessionCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

func (c *SessionCollector) AgentsSpawned(n int) {
	if c == nil || c.Spawned == nil || n <= 0 {
		return
	}
	c.Spawned.Add(float64(n))
}

func (c *SessionCollector) AgentsDropped(n int) {
	if c == nil || c.PlacementFailures == nil || n <= 0 {
		return
	}
	c.PlacementFailures.Add(float64(n))
}

func (c *SessionCollector) OutcomeRecorded(kind string) {
	if c == nil || c.Outcomes == nil {
		return
	}
	c.Outcomes.WithLabelValues(kind).Inc()
}

func (c *SessionCollector) AgentTransition(from, to string) {
	if c == nil || c.Transitions == nil {
		return
	}
	c.Transitions.WithLabelValues(from, to).Inc()
}

func (c *SessionCollector) ShuttleDocked(shuttleID string) {
	if c == nil || c.ShuttleDocks == nil {
		return
	}
	c.ShuttleDocks.WithLabelValues(shuttleID).Inc()
}

func (c *SessionCollector) SetLiveAgents(n int) {
	if c != nil {
		setGauge(c.LiveAgents, float64(n))
	}
}

func (c *SessionCollector) SetOccupiedSlots(n int) {
	if c != nil {
		setGauge(c.OccupiedSlots, float64(n))
	}
}

func (c *SessionCollector) SetScenario(v float64) {
	if c != nil {
		setGauge(c.Scenario, v)
	}
}

func (c *SessionCollector) SetActiveSites(n int) {
	if c != nil {
		setGauge(c.ActiveSites, float64(n))
	}
}

func (c *SessionCollector) SetSessionRunning(running bool) {
	if c == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	setGauge(c.SessionRunning, v)
}

// ObserveTick records the wall-clock cost of one tick.
func (c *SessionCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

func setGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
