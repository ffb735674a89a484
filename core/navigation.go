package core

import (
	"time"

	"github.com/paulmach/orb"
)

// PathStatus mirrors the validity of the navigator's current path.
type PathStatus int

const (
	PathValid PathStatus = iota
	PathInvalid
	PathPending
)

func (s PathStatus) String() string {
	switch s {
	case PathValid:
		return "valid"
	case PathInvalid:
		return "invalid"
	case PathPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Navigator is the narrow path-following surface an agent drives. Steering,
// obstacle avoidance and path validity are the navigator's business; the
// agent only issues destinations and reads progress.
type Navigator interface {
	// PlaceOnSurface projects p onto the walkable surface. ok is false when
	// no walkable point is close enough.
	PlaceOnSurface(p orb.Point) (placed orb.Point, ok bool)
	// Warp teleports the navigator without pathing.
	Warp(p orb.Point)
	Position() orb.Point

	SetDestination(p orb.Point) bool
	ResetPath()
	HasPath() bool
	PathPending() bool
	PathStatus() PathStatus
	RemainingDistance() float64

	SetSpeed(speed float64)
	Stop()
	Resume()

	// Advance integrates movement for one simulation tick.
	Advance(dt time.Duration)
}

// NavigatorFactory builds a navigator positioned at anchor.
type NavigatorFactory func(anchor orb.Point) Navigator
