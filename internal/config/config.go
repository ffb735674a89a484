// Package config loads simulator configuration from YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/study-session-simulator/core"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// ErrInvalidConfig is returned by Validate for any rejected setting.
var ErrInvalidConfig = errors.New("invalid config")

// Config contains all simulator settings.
type Config struct {
	Session SessionConfig       `json:"session" yaml:"session"`
	Bounds  core.ScenarioBounds `json:"bounds" yaml:"bounds"`
	Fixed   core.FixedRates     `json:"fixed" yaml:"fixed"`
	Shuttle core.ShuttleConfig  `json:"shuttle" yaml:"shuttle"`
	Layout  LayoutConfig        `json:"layout" yaml:"layout"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Control ControlConfig `json:"control" yaml:"control"`
}

// SessionConfig controls how a session is driven.
type SessionConfig struct {
	// Scenario is the scalar in [0,1]; 0 is the best case.
	Scenario float64 `json:"scenario" yaml:"scenario"`

	// Tick is the simulated time step.
	Tick time.Duration `json:"tick" yaml:"tick"`

	// Duration bounds a headless run in simulated time. Zero runs until
	// interrupted.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Accelerated advances ticks back to back instead of on the wall clock.
	Accelerated bool `json:"accelerated" yaml:"accelerated"`

	// Seed fixes the random source. Zero picks a time-based seed.
	Seed int64 `json:"seed" yaml:"seed"`

	SeekInterval time.Duration `json:"seek_interval" yaml:"seek_interval"`
}

// LayoutConfig describes the venue.
type LayoutConfig struct {
	Floor    orb.Bound                 `json:"floor" yaml:"floor"`
	Exit     *orb.Point                `json:"exit,omitempty" yaml:"exit,omitempty"`
	Sites    []SiteConfig              `json:"sites" yaml:"sites"`
	Spawners []model.SpawnerDefinition `json:"spawners" yaml:"spawners"`
	Routes   []model.RouteDefinition   `json:"routes" yaml:"routes"`
}

// SiteConfig describes a study site either by explicit slots or by a seat
// count laid out in a row to the right of Position.
type SiteConfig struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Position orb.Point `json:"position" yaml:"position"`
	Inactive bool      `json:"inactive,omitempty" yaml:"inactive,omitempty"`

	Seats       int                    `json:"seats,omitempty" yaml:"seats,omitempty"`
	SeatSpacing float64                `json:"seat_spacing,omitempty" yaml:"seat_spacing,omitempty"`
	Slots       []model.SlotDefinition `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// Definition expands the site into its model form. Explicit slots win over
// Seats.
func (s SiteConfig) Definition() model.SiteDefinition {
	def := model.SiteDefinition{
		ID:       s.ID,
		Name:     s.Name,
		Position: s.Position,
		Inactive: s.Inactive,
	}
	if len(s.Slots) > 0 {
		def.Slots = append([]model.SlotDefinition(nil), s.Slots...)
		return def
	}
	spacing := s.SeatSpacing
	if spacing <= 0 {
		spacing = 1.5
	}
	for i := 0; i < s.Seats; i++ {
		def.Slots = append(def.Slots, model.SlotDefinition{
			ID:       fmt.Sprintf("%s-seat-%d", s.ID, i),
			Position: orb.Point{s.Position[0] + float64(i)*spacing, s.Position[1]},
		})
	}
	return def
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level" yaml:"level"`
	// Format is text or json.
	Format string `json:"format" yaml:"format"`
}

// StoreConfig configures result persistence.
type StoreConfig struct {
	// Path of the SQLite database. Empty keeps results in memory.
	Path string `json:"path" yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `json:"addr" yaml:"addr"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// ControlConfig configures the HTTP and gRPC control surfaces of serve.
type ControlConfig struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`
	GRPCAddr string `json:"grpc_addr" yaml:"grpc_addr"`
}

// Default returns a Config with the tuned defaults and the stock venue.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Tick:         100 * time.Millisecond,
			Duration:     5 * time.Minute,
			Accelerated:  true,
			SeekInterval: core.DefaultSeekInterval,
		},
		Bounds:  core.DefaultScenarioBounds(),
		Fixed:   core.DefaultFixedRates(),
		Shuttle: core.DefaultShuttleConfig(),
		Layout:  DefaultLayout(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Path: "study-sessions.db",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "study-session-simulator",
			SampleRatio: 1,
		},
		Control: ControlConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":50051",
		},
	}
}

// DefaultLayout is the stock venue: three study rooms, two station platforms
// and one train line serving both.
func DefaultLayout() LayoutConfig {
	exit := orb.Point{0, -55}
	return LayoutConfig{
		Floor: orb.Bound{Min: orb.Point{-60, -60}, Max: orb.Point{60, 60}},
		Exit:  &exit,
		Sites: []SiteConfig{
			{ID: "library", Name: "Library", Position: orb.Point{-40, 30}, Seats: 6},
			{ID: "lab", Name: "Computer Lab", Position: orb.Point{-5, 40}, Seats: 4},
			{ID: "lounge", Name: "Study Lounge", Position: orb.Point{30, 30}, Seats: 8},
		},
		Spawners: []model.SpawnerDefinition{
			{ID: "west_platform", Anchor: orb.Point{-40, -40}, Template: core.PlanarTemplate},
			{ID: "east_platform", Anchor: orb.Point{40, -40}, Template: core.PlanarTemplate},
		},
		Routes: []model.RouteDefinition{
			{
				ID: "campus_line",
				Waypoints: []model.WaypointDefinition{
					{Position: orb.Point{-58, -48}},
					{Position: orb.Point{-40, -48}, Dock: "west_platform"},
					{Position: orb.Point{40, -48}, Dock: "east_platform"},
					{Position: orb.Point{58, -48}},
				},
			},
		},
	}
}

// Load returns defaults, overlaid by path when it is non-empty, then by
// environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file. Unset keys keep
// their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SIM_SCENARIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SIM_SCENARIO=%q", ErrInvalidConfig, v)
		}
		cfg.Session.Scenario = f
	}

	if v := os.Getenv("SIM_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: SIM_SEED=%q", ErrInvalidConfig, v)
		}
		cfg.Session.Seed = n
	}

	if v, ok := os.LookupEnv("SIM_STORE_PATH"); ok {
		cfg.Store.Path = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Session.Scenario < 0 || c.Session.Scenario > 1 {
		return fmt.Errorf("%w: scenario must be between 0 and 1, got %v", ErrInvalidConfig, c.Session.Scenario)
	}
	if c.Session.Tick <= 0 {
		return fmt.Errorf("%w: tick must be positive, got %v", ErrInvalidConfig, c.Session.Tick)
	}
	if c.Session.Duration < 0 {
		return fmt.Errorf("%w: duration must be non-negative, got %v", ErrInvalidConfig, c.Session.Duration)
	}
	if err := c.Fixed.Validate(); err != nil {
		return fmt.Errorf("%w: fixed: %v", ErrInvalidConfig, err)
	}
	if err := c.Shuttle.Validate(); err != nil {
		return fmt.Errorf("%w: shuttle: %v", ErrInvalidConfig, err)
	}
	if c.Bounds.AgentsPerBatch.Best < 0 || c.Bounds.AgentsPerBatch.Worst < 0 {
		return fmt.Errorf("%w: agents_per_batch must be non-negative", ErrInvalidConfig)
	}
	if c.Bounds.SpawnInterval.Best <= 0 || c.Bounds.SpawnInterval.Worst <= 0 {
		return fmt.Errorf("%w: spawn_interval must be positive", ErrInvalidConfig)
	}

	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: log level %q (valid: debug, info, warn, error)", ErrInvalidConfig, c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("%w: log format %q (valid: text, json)", ErrInvalidConfig, c.Logging.Format)
	}

	return c.Layout.validate()
}

func (l LayoutConfig) validate() error {
	if l.Floor.Min[0] >= l.Floor.Max[0] || l.Floor.Min[1] >= l.Floor.Max[1] {
		return fmt.Errorf("%w: floor bound is empty: %v", ErrInvalidConfig, l.Floor)
	}
	sites := make(map[string]bool, len(l.Sites))
	for _, s := range l.Sites {
		if s.ID == "" {
			return fmt.Errorf("%w: site without id", ErrInvalidConfig)
		}
		if sites[s.ID] {
			return fmt.Errorf("%w: duplicate site %q", ErrInvalidConfig, s.ID)
		}
		sites[s.ID] = true
		if s.Seats < 0 {
			return fmt.Errorf("%w: site %q has negative seats", ErrInvalidConfig, s.ID)
		}
		for _, slot := range s.Definition().Slots {
			if !l.Floor.Contains(slot.Position) {
				return fmt.Errorf("%w: site %q slot %q at %v is outside the floor %v", ErrInvalidConfig, s.ID, slot.ID, slot.Position, l.Floor)
			}
		}
	}
	spawners := make(map[string]bool, len(l.Spawners))
	for _, sp := range l.Spawners {
		if sp.ID == "" {
			return fmt.Errorf("%w: spawner without id", ErrInvalidConfig)
		}
		if spawners[sp.ID] {
			return fmt.Errorf("%w: duplicate spawner %q", ErrInvalidConfig, sp.ID)
		}
		spawners[sp.ID] = true
	}
	for _, r := range l.Routes {
		for _, wp := range r.Waypoints {
			if wp.IsDock() && !spawners[wp.Dock] {
				return fmt.Errorf("%w: route %q docks at unknown spawner %q", ErrInvalidConfig, r.ID, wp.Dock)
			}
		}
	}
	return nil
}
