package model

import "github.com/paulmach/orb"

// SpawnerDefinition describes an arrival point where batches of agents enter
// the venue (a station platform, an entrance).
type SpawnerDefinition struct {
	ID     string    `json:"id" yaml:"id"`
	Anchor orb.Point `json:"anchor" yaml:"anchor"`

	// Template names the agent template used to build new arrivals. An empty
	// template is a configuration error surfaced when the spawner fires.
	Template string `json:"template" yaml:"template"`

	Inactive bool `json:"inactive,omitempty" yaml:"inactive,omitempty"`
}
