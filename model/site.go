package model

import "github.com/paulmach/orb"

// SlotDefinition describes one seat inside a study site.
type SlotDefinition struct {
	ID       string    `json:"id" yaml:"id"`
	Position orb.Point `json:"position" yaml:"position"`
}

// SiteDefinition describes a study site (a room with a fixed set of seats).
// Slot order is significant: seats are handed out first-free in this order.
type SiteDefinition struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name,omitempty" yaml:"name,omitempty"`
	Position orb.Point        `json:"position" yaml:"position"`
	Slots    []SlotDefinition `json:"slots" yaml:"slots"`

	// Inactive sites are kept in the layout but excluded from selection.
	Inactive bool `json:"inactive,omitempty" yaml:"inactive,omitempty"`
}

// Capacity returns the number of seats in the site.
func (s SiteDefinition) Capacity() int {
	return len(s.Slots)
}
