package config

import (
	"fmt"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/kb"
)

// BuildVenue loads the layout into a fresh knowledge base. Spawners are added
// before routes so dock references resolve.
func BuildVenue(layout LayoutConfig) (*kb.KnowledgeBase, error) {
	venue := kb.NewKnowledgeBase()
	venue.SetFloor(layout.Floor)
	if layout.Exit != nil {
		venue.SetExit(*layout.Exit)
	}

	for _, s := range layout.Sites {
		if err := venue.AddSite(s.Definition()); err != nil {
			return nil, fmt.Errorf("site %q: %w", s.ID, err)
		}
	}
	for _, sp := range layout.Spawners {
		if err := venue.AddSpawner(sp); err != nil {
			return nil, fmt.Errorf("spawner %q: %w", sp.ID, err)
		}
	}
	for _, r := range layout.Routes {
		if err := venue.AddRoute(r); err != nil {
			return nil, fmt.Errorf("route %q: %w", r.ID, err)
		}
	}
	return venue, nil
}

// SchedulerConfig maps the session settings onto the scheduler inputs. The
// exit is taken from the venue when the engine is built.
func (c *Config) SchedulerConfig() core.SchedulerConfig {
	cfg := core.DefaultSchedulerConfig()
	cfg.Scenario = c.Session.Scenario
	cfg.Bounds = c.Bounds
	cfg.Fixed = c.Fixed
	cfg.Shuttle = c.Shuttle
	cfg.Seed = c.Session.Seed
	if c.Session.SeekInterval > 0 {
		cfg.SeekInterval = c.Session.SeekInterval
	}
	return cfg
}
