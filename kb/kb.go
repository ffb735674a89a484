package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

var (
	// ErrDuplicateID indicates an entity was registered twice.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventSiteAdded EventType = iota
	EventSiteActivationChanged
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	Site model.SiteDefinition
}

// KnowledgeBase is an in-memory, thread-safe description of the venue:
// study sites, spawners, shuttle routes, the walkable floor and the exit.
// Listing order is registration order.
type KnowledgeBase struct {
	mu sync.RWMutex

	sites    []*model.SiteDefinition
	siteByID map[string]*model.SiteDefinition

	spawners    []*model.SpawnerDefinition
	spawnerByID map[string]*model.SpawnerDefinition

	routes []model.RouteDefinition

	floor   orb.Bound
	exit    orb.Point
	hasExit bool

	subs      []subscriber
	nextSubID uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		siteByID:    make(map[string]*model.SiteDefinition),
		spawnerByID: make(map[string]*model.SpawnerDefinition),
	}
}

// AddSite registers a study site. It returns an error if the ID already exists.
func (kb *KnowledgeBase) AddSite(s model.SiteDefinition) error {
	kb.mu.Lock()
	if s.ID == "" {
		kb.mu.Unlock()
		return fmt.Errorf("site without id: %w", ErrNotFound)
	}
	if _, exists := kb.siteByID[s.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("site %q: %w", s.ID, ErrDuplicateID)
	}
	def := s
	def.Slots = append([]model.SlotDefinition(nil), s.Slots...)
	kb.sites = append(kb.sites, &def)
	kb.siteByID[def.ID] = &def
	event := Event{Type: EventSiteAdded, Site: def}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// AddSpawner registers a spawner. It returns an error if the ID already exists.
func (kb *KnowledgeBase) AddSpawner(s model.SpawnerDefinition) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.spawnerByID[s.ID]; exists {
		return fmt.Errorf("spawner %q: %w", s.ID, ErrDuplicateID)
	}
	def := s
	kb.spawners = append(kb.spawners, &def)
	kb.spawnerByID[def.ID] = &def
	return nil
}

// AddRoute registers a shuttle route. Dock waypoints must reference a known
// spawner.
func (kb *KnowledgeBase) AddRoute(r model.RouteDefinition) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, existing := range kb.routes {
		if existing.ID == r.ID {
			return fmt.Errorf("route %q: %w", r.ID, ErrDuplicateID)
		}
	}
	for _, wp := range r.Waypoints {
		if wp.IsDock() {
			if _, ok := kb.spawnerByID[wp.Dock]; !ok {
				return fmt.Errorf("route %q dock %q: %w", r.ID, wp.Dock, ErrNotFound)
			}
		}
	}
	r.Waypoints = append([]model.WaypointDefinition(nil), r.Waypoints...)
	kb.routes = append(kb.routes, r)
	return nil
}

// SetFloor sets the walkable area.
func (kb *KnowledgeBase) SetFloor(b orb.Bound) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.floor = b
}

// Floor returns the walkable area.
func (kb *KnowledgeBase) Floor() orb.Bound {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.floor
}

// SetExit sets the point agents leave through.
func (kb *KnowledgeBase) SetExit(p orb.Point) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.exit = p
	kb.hasExit = true
}

// Exit returns the exit point; ok is false when none was configured.
func (kb *KnowledgeBase) Exit() (p orb.Point, ok bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.exit, kb.hasExit
}

// GetSite returns a copy of the site with id.
func (kb *KnowledgeBase) GetSite(id string) (model.SiteDefinition, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	s, ok := kb.siteByID[id]
	if !ok {
		return model.SiteDefinition{}, false
	}
	return *s, true
}

// ListSites returns a snapshot of all sites in registration order.
func (kb *KnowledgeBase) ListSites() []model.SiteDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.SiteDefinition, 0, len(kb.sites))
	for _, s := range kb.sites {
		res = append(res, *s)
	}
	return res
}

// ListSpawners returns a snapshot of all spawners in registration order.
func (kb *KnowledgeBase) ListSpawners() []model.SpawnerDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	res := make([]model.SpawnerDefinition, 0, len(kb.spawners))
	for _, s := range kb.spawners {
		res = append(res, *s)
	}
	return res
}

// ListRoutes returns a snapshot of all shuttle routes.
func (kb *KnowledgeBase) ListRoutes() []model.RouteDefinition {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return append([]model.RouteDefinition(nil), kb.routes...)
}

// SetSiteActive flips a site's activation and notifies subscribers. Setting
// the current value again is not an error and emits nothing.
func (kb *KnowledgeBase) SetSiteActive(id string, active bool) error {
	kb.mu.Lock()
	s, ok := kb.siteByID[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("site %q: %w", id, ErrNotFound)
	}
	if s.Inactive == !active {
		kb.mu.Unlock()
		return nil
	}
	s.Inactive = !active
	event := Event{
		Type: EventSiteActivationChanged,
		Site: *s,
	}
	subs := kb.subscribersLocked()
	kb.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, fn := range subs {
		fn(event)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe
// function; calling it more than once is harmless.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.nextSubID++
	id := kb.nextSubID
	kb.subs = append(kb.subs, subscriber{id: id, fn: fn})

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		for i, sub := range kb.subs {
			if sub.id == id {
				kb.subs = append(kb.subs[:i], kb.subs[i+1:]...)
				return
			}
		}
	}
}

func (kb *KnowledgeBase) subscribersLocked() []func(Event) {
	fns := make([]func(Event), len(kb.subs))
	for i, sub := range kb.subs {
		fns[i] = sub.fn
	}
	return fns
}
