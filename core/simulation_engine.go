package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/kb"
	"github.com/signalsfoundry/study-session-simulator/timectrl"
)

// PlanarTemplate is the agent template backed by PlanarNavigator.
const PlanarTemplate = "planar"

// SimulationEngine builds a SessionScheduler from a venue knowledge base and
// keeps the two in sync.
type SimulationEngine struct {
	KB        *kb.KnowledgeBase
	Scheduler *SessionScheduler

	log           logging.Logger
	tickListeners []func(int)
	ticks         int
	unsubscribe   func()
}

// NewSimulationEngine creates the pool, spawners and shuttles described by
// venue. Spawners whose template is unknown are kept but cannot spawn.
func NewSimulationEngine(venue *kb.KnowledgeBase, cfg SchedulerConfig, log logging.Logger, opts ...SchedulerOption) (*SimulationEngine, error) {
	if log == nil {
		log = logging.Noop()
	}
	pool, err := NewResourcePool(venue.ListSites())
	if err != nil {
		return nil, err
	}

	templates := map[string]NavigatorFactory{
		PlanarTemplate: PlanarNavigatorFactory(venue.Floor()),
	}
	var spawners []*Spawner
	for _, def := range venue.ListSpawners() {
		spawners = append(spawners, NewSpawner(def, templates[def.Template]))
	}

	if exit, ok := venue.Exit(); ok {
		cfg.Exit, cfg.HasExit = exit, true
	}

	se := &SimulationEngine{
		KB:        venue,
		Scheduler: NewSessionScheduler(cfg, pool, spawners, venue.ListRoutes(), log, opts...),
		log:       log,
	}
	se.unsubscribe = venue.Subscribe(se.onVenueEvent)
	return se, nil
}

func (se *SimulationEngine) onVenueEvent(e kb.Event) {
	ctx := context.Background()
	switch e.Type {
	case kb.EventSiteActivationChanged:
		if err := se.Scheduler.SetSiteActive(ctx, e.Site.ID, !e.Site.Inactive); err != nil {
			se.log.Warn(ctx, "site activation not applied",
				logging.String("site_id", e.Site.ID),
				logging.Err(err),
			)
		}
	case kb.EventSiteAdded:
		if err := se.Scheduler.Pool().AddSite(NewResourceSite(e.Site)); err != nil {
			se.log.Warn(ctx, "site not added to pool",
				logging.String("site_id", e.Site.ID),
				logging.Err(err),
			)
		}
	}
}

// SetSiteActive records the change in the venue, which forwards it to the
// scheduler.
func (se *SimulationEngine) SetSiteActive(id string, active bool) error {
	return se.KB.SetSiteActive(id, active)
}

// RegisterTickListener registers fn to run after every tick with the tick
// index.
func (se *SimulationEngine) RegisterTickListener(fn func(int)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step advances the scheduler once and notifies listeners.
func (se *SimulationEngine) Step(ctx context.Context, dt time.Duration) {
	se.Scheduler.Tick(ctx, dt)
	tick := se.ticks
	se.ticks++
	for _, fn := range se.tickListeners {
		fn(tick)
	}
}

// Run advances the simulation by ticks steps of dt.
func (se *SimulationEngine) Run(ctx context.Context, ticks int, dt time.Duration) {
	for tick := 0; tick < ticks; tick++ {
		if ctx.Err() != nil {
			return
		}
		se.Step(ctx, dt)
	}
}

// Attach drives the engine from a time controller.
func (se *SimulationEngine) Attach(ctx context.Context, tc *timectrl.TimeController) {
	tc.AddListener(func(_ time.Time, dt time.Duration) {
		se.Step(ctx, dt)
	})
}

// Close detaches the engine from venue events.
func (se *SimulationEngine) Close() {
	if se.unsubscribe != nil {
		se.unsubscribe()
		se.unsubscribe = nil
	}
}
