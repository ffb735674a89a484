package core

import (
	"math"
	"time"

	"github.com/paulmach/orb"
)

// DefaultPlacementRadius is how far PlaceOnSurface searches for the floor.
const DefaultPlacementRadius = 2.5

// PlanarNavigator walks in straight lines across a rectangular floor. A
// destination off the floor yields an invalid path. A freshly issued path
// stays pending until the next Advance.
type PlanarNavigator struct {
	Floor           orb.Bound
	PlacementRadius float64

	pos     orb.Point
	dest    orb.Point
	speed   float64
	hasPath bool
	pending bool
	status  PathStatus
	stopped bool
}

// NewPlanarNavigator constructs a navigator on floor at start.
func NewPlanarNavigator(floor orb.Bound, start orb.Point) *PlanarNavigator {
	return &PlanarNavigator{
		Floor:           floor,
		PlacementRadius: DefaultPlacementRadius,
		pos:             start,
		status:          PathValid,
	}
}

// PlanarNavigatorFactory returns a NavigatorFactory for the given floor.
func PlanarNavigatorFactory(floor orb.Bound) NavigatorFactory {
	return func(anchor orb.Point) Navigator {
		return NewPlanarNavigator(floor, anchor)
	}
}

func (n *PlanarNavigator) PlaceOnSurface(p orb.Point) (orb.Point, bool) {
	if n.Floor.Contains(p) {
		return p, true
	}
	clamped := clampToBound(p, n.Floor)
	if Distance(p, clamped) <= n.PlacementRadius {
		return clamped, true
	}
	return orb.Point{}, false
}

func (n *PlanarNavigator) Warp(p orb.Point) {
	n.pos = p
	n.ResetPath()
}

func (n *PlanarNavigator) Position() orb.Point { return n.pos }

func (n *PlanarNavigator) SetDestination(p orb.Point) bool {
	if math.IsNaN(p.X()) || math.IsNaN(p.Y()) {
		return false
	}
	n.dest = p
	n.hasPath = true
	if !n.Floor.Contains(p) {
		n.pending = false
		n.status = PathInvalid
		return true
	}
	n.pending = true
	n.status = PathPending
	return true
}

func (n *PlanarNavigator) ResetPath() {
	n.hasPath = false
	n.pending = false
	n.status = PathValid
}

func (n *PlanarNavigator) HasPath() bool          { return n.hasPath }
func (n *PlanarNavigator) PathPending() bool      { return n.pending }
func (n *PlanarNavigator) PathStatus() PathStatus { return n.status }

func (n *PlanarNavigator) RemainingDistance() float64 {
	if !n.hasPath {
		return 0
	}
	return Distance(n.pos, n.dest)
}

func (n *PlanarNavigator) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	n.speed = speed
}

// Speed returns the current travel speed in units per second.
func (n *PlanarNavigator) Speed() float64 { return n.speed }

func (n *PlanarNavigator) Stop()   { n.stopped = true }
func (n *PlanarNavigator) Resume() { n.stopped = false }

// Stopped reports whether movement is suspended.
func (n *PlanarNavigator) Stopped() bool { return n.stopped }

func (n *PlanarNavigator) Advance(dt time.Duration) {
	if !n.hasPath || n.status == PathInvalid {
		return
	}
	if n.pending {
		n.pending = false
		n.status = PathValid
		return
	}
	if n.stopped {
		return
	}
	n.pos = MoveTowards(n.pos, n.dest, n.speed*dt.Seconds())
}
