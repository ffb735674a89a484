package model

import "github.com/paulmach/orb"

// WaypointDefinition is one stop on a shuttle route. When Dock is set the
// waypoint is a station bound to the spawner with that ID.
type WaypointDefinition struct {
	Position orb.Point `json:"position" yaml:"position"`
	Dock     string    `json:"dock,omitempty" yaml:"dock,omitempty"`
}

// IsDock reports whether arriving at the waypoint triggers a batch arrival.
func (w WaypointDefinition) IsDock() bool {
	return w.Dock != ""
}

// RouteDefinition is the looping waypoint sequence followed by one shuttle.
type RouteDefinition struct {
	ID        string               `json:"id" yaml:"id"`
	Waypoints []WaypointDefinition `json:"waypoints" yaml:"waypoints"`
}
