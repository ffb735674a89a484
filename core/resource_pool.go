package core

import (
	"fmt"
	"sync"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

// SlotID identifies one seat inside a site.
type SlotID string

// Slot is one unit of exclusive capacity.
type Slot struct {
	ID       SlotID
	Position orb.Point
}

// ResourceSite is a capacity-bounded, ordered collection of slots. All
// occupancy changes happen under the site's lock, so a grant is a single
// check-then-set step no matter how callers are scheduled.
type ResourceSite struct {
	ID       string
	Name     string
	Position orb.Point

	slots []Slot

	mu        sync.Mutex
	occupants map[SlotID]string
	active    bool
}

// NewResourceSite builds an active site from its definition.
func NewResourceSite(def model.SiteDefinition) *ResourceSite {
	slots := make([]Slot, 0, len(def.Slots))
	for _, s := range def.Slots {
		slots = append(slots, Slot{ID: SlotID(s.ID), Position: s.Position})
	}
	return &ResourceSite{
		ID:        def.ID,
		Name:      def.Name,
		Position:  def.Position,
		slots:     slots,
		occupants: make(map[SlotID]string, len(slots)),
		active:    !def.Inactive,
	}
}

// Capacity returns the number of slots in the site.
func (s *ResourceSite) Capacity() int { return len(s.slots) }

// Slots returns a copy of the configured slot order.
func (s *ResourceSite) Slots() []Slot {
	return append([]Slot(nil), s.slots...)
}

// SlotPosition returns the position of slot id.
func (s *ResourceSite) SlotPosition(id SlotID) (orb.Point, bool) {
	for _, slot := range s.slots {
		if slot.ID == id {
			return slot.Position, true
		}
	}
	return orb.Point{}, false
}

// HasAvailableSlot reports whether fewer slots are occupied than exist.
func (s *ResourceSite) HasAvailableSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.occupants) < len(s.slots)
}

// TryAssign grants the first unoccupied slot, in configured order, to owner.
func (s *ResourceSite) TryAssign(owner string) (SlotID, bool) {
	if owner == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.occupants) >= len(s.slots) {
		return "", false
	}
	for _, slot := range s.slots {
		if _, taken := s.occupants[slot.ID]; !taken {
			s.occupants[slot.ID] = owner
			return slot.ID, true
		}
	}
	return "", false
}

// Vacate frees slot only when owner is its current occupant. A stale or
// duplicate release is a no-op and never evicts a later occupant.
func (s *ResourceSite) Vacate(slot SlotID, owner string) bool {
	if owner == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.occupants[slot]; ok && current == owner {
		delete(s.occupants, slot)
		return true
	}
	return false
}

// Occupant returns the owner of slot, if any.
func (s *ResourceSite) Occupant(slot SlotID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.occupants[slot]
	return owner, ok
}

// OccupiedCount returns the number of occupied slots.
func (s *ResourceSite) OccupiedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.occupants)
}

// IsActive reports whether the site takes part in selection.
func (s *ResourceSite) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive toggles selection. Occupants are never evicted.
func (s *ResourceSite) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *ResourceSite) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.occupants)
}

// ResourcePool owns every site of the venue in configuration order.
type ResourcePool struct {
	mu    sync.RWMutex
	sites []*ResourceSite
	byID  map[string]*ResourceSite
}

// NewResourcePool constructs a pool from site definitions.
func NewResourcePool(defs []model.SiteDefinition) (*ResourcePool, error) {
	p := &ResourcePool{byID: make(map[string]*ResourceSite, len(defs))}
	for _, def := range defs {
		if err := p.AddSite(NewResourceSite(def)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddSite appends a site to the pool.
func (p *ResourcePool) AddSite(site *ResourceSite) error {
	if site == nil {
		return fmt.Errorf("add site: %w", ErrSiteNotFound)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byID[site.ID]; exists {
		return fmt.Errorf("site %q: %w", site.ID, ErrSiteExists)
	}
	p.sites = append(p.sites, site)
	p.byID[site.ID] = site
	return nil
}

// Site returns the site with id, or nil.
func (p *ResourcePool) Site(id string) *ResourceSite {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[id]
}

// Sites returns all sites in pool order.
func (p *ResourcePool) Sites() []*ResourceSite {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*ResourceSite(nil), p.sites...)
}

// ActiveSites returns the active sites in pool order.
func (p *ResourcePool) ActiveSites() []*ResourceSite {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ResourceSite, 0, len(p.sites))
	for _, s := range p.sites {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// ActiveCount returns the number of active sites.
func (p *ResourcePool) ActiveCount() int {
	return len(p.ActiveSites())
}

// SetActive toggles the site with id.
func (p *ResourcePool) SetActive(id string, active bool) error {
	site := p.Site(id)
	if site == nil {
		return fmt.Errorf("site %q: %w", id, ErrSiteNotFound)
	}
	site.SetActive(active)
	return nil
}

// OccupiedCount returns the occupied slots across all sites.
func (p *ResourcePool) OccupiedCount() int {
	total := 0
	for _, s := range p.Sites() {
		total += s.OccupiedCount()
	}
	return total
}

// Capacity returns the slot count across all sites.
func (p *ResourcePool) Capacity() int {
	total := 0
	for _, s := range p.Sites() {
		total += s.Capacity()
	}
	return total
}

// Reset clears occupancy on every site.
func (p *ResourcePool) Reset() {
	for _, s := range p.Sites() {
		s.reset()
	}
}

// NearestAvailable picks, among active sites with a free slot, the one
// closest to from. Ties go to the first candidate in slice order.
func NearestAvailable(from orb.Point, sites []*ResourceSite) *ResourceSite {
	var best *ResourceSite
	bestDist := 0.0
	for _, s := range sites {
		if s == nil || !s.IsActive() || !s.HasAvailableSlot() {
			continue
		}
		d := Distance(from, s.Position)
		if best == nil || d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best
}
