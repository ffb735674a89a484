package core

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// ShuttleState is a step of the shuttle lifecycle.
type ShuttleState int

const (
	ShuttleIdle ShuttleState = iota
	ShuttleAccelerating
	ShuttleCruising
	ShuttleDecelerating
	ShuttleDocked
)

func (s ShuttleState) String() string {
	switch s {
	case ShuttleIdle:
		return "idle"
	case ShuttleAccelerating:
		return "accelerating"
	case ShuttleCruising:
		return "cruising"
	case ShuttleDecelerating:
		return "decelerating"
	case ShuttleDocked:
		return "docked"
	default:
		return "unknown"
	}
}

// ShuttleConfig holds the kinematics shared by all shuttles.
type ShuttleConfig struct {
	// Acceleration is added to (or removed from) the speed once per tick.
	Acceleration       float64 `json:"acceleration" yaml:"acceleration"`
	DecelStartDistance float64 `json:"decel_start_distance" yaml:"decel_start_distance"`
	ArriveDistance     float64 `json:"arrive_distance" yaml:"arrive_distance"`
	DwellTicks         int     `json:"dwell_ticks" yaml:"dwell_ticks"`
	// FallbackBatchSize is used at docks until parameters are broadcast.
	FallbackBatchSize int `json:"fallback_batch_size" yaml:"fallback_batch_size"`
	// FallbackMaxSpeed is used until parameters are broadcast.
	FallbackMaxSpeed float64 `json:"fallback_max_speed" yaml:"fallback_max_speed"`
	// MinApproachSpeed keeps a decelerating shuttle creeping toward a dock
	// it has not reached yet. Zero lets it stop short.
	MinApproachSpeed float64 `json:"min_approach_speed" yaml:"min_approach_speed"`
}

// DefaultShuttleConfig returns the stock train-line kinematics.
func DefaultShuttleConfig() ShuttleConfig {
	return ShuttleConfig{
		Acceleration:       0.02,
		DecelStartDistance: 10,
		ArriveDistance:     0.5,
		DwellTicks:         120,
		FallbackBatchSize:  5,
		FallbackMaxSpeed:   5,
		MinApproachSpeed:   0.5,
	}
}

// Validate rejects kinematics a shuttle could never complete a leg with.
func (c ShuttleConfig) Validate() error {
	if c.Acceleration <= 0 {
		return fmt.Errorf("acceleration must be positive, got %v", c.Acceleration)
	}
	if c.ArriveDistance <= 0 {
		return fmt.Errorf("arrive distance must be positive, got %v", c.ArriveDistance)
	}
	if c.DwellTicks < 0 {
		return fmt.Errorf("dwell ticks must be non-negative, got %d", c.DwellTicks)
	}
	return nil
}

// DockHandler is invoked when a shuttle docks at a waypoint bound to a
// spawner.
type DockHandler func(ctx context.Context, spawnerID string, count int)

// Shuttle follows a looping waypoint route and requests a batch arrival
// every time it docks at a station.
type Shuttle struct {
	ID string

	cfg       ShuttleConfig
	waypoints []model.WaypointDefinition
	onDock    DockHandler
	logger    logging.Logger

	state    ShuttleState
	disabled bool
	pos      orb.Point
	speed    float64
	maxSpeed float64
	batch    int
	origin   int
	dest     int
	dwell    int
	docks    int
}

// NewShuttle builds a shuttle positioned on the first waypoint. An empty
// route is a configuration error: the shuttle is returned disabled along with
// ErrEmptyRoute.
func NewShuttle(route model.RouteDefinition, cfg ShuttleConfig, onDock DockHandler, logger logging.Logger) (*Shuttle, error) {
	if logger == nil {
		logger = logging.Noop()
	}
	s := &Shuttle{
		ID:        route.ID,
		cfg:       cfg,
		waypoints: append([]model.WaypointDefinition(nil), route.Waypoints...),
		onDock:    onDock,
		logger:    logger.With(logging.String("shuttle_id", route.ID)),
		state:     ShuttleIdle,
		maxSpeed:  cfg.FallbackMaxSpeed,
		batch:     cfg.FallbackBatchSize,
	}
	if len(s.waypoints) == 0 {
		s.disabled = true
		return s, fmt.Errorf("shuttle %q: %w", route.ID, ErrEmptyRoute)
	}
	s.pos = s.waypoints[0].Position
	if len(s.waypoints) > 1 {
		s.dest = 1
	}
	return s, nil
}

func (s *Shuttle) State() ShuttleState { return s.state }
func (s *Shuttle) Position() orb.Point { return s.pos }
func (s *Shuttle) Speed() float64      { return s.speed }
func (s *Shuttle) MaxSpeed() float64   { return s.maxSpeed }
func (s *Shuttle) Disabled() bool      { return s.disabled }

// Destination returns the index of the waypoint being approached.
func (s *Shuttle) Destination() int { return s.dest }

// Docks returns how many times the shuttle has docked.
func (s *Shuttle) Docks() int { return s.docks }

// SetMaxSpeed lowers or raises the cruise speed. The current speed is clamped
// immediately.
func (s *Shuttle) SetMaxSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	s.maxSpeed = v
	if s.speed > v {
		s.speed = v
	}
}

// UpdateParameters applies a broadcast.
func (s *Shuttle) UpdateParameters(p Parameters) {
	s.SetMaxSpeed(p.ShuttleMaxSpeed)
	s.batch = p.AgentsPerBatch
}

// Halt zeroes the speed without changing state. Used while no session runs.
func (s *Shuttle) Halt() { s.speed = 0 }

// Tick advances the shuttle by one step of dt.
func (s *Shuttle) Tick(ctx context.Context, dt time.Duration) {
	if s.disabled {
		return
	}

	if s.state == ShuttleIdle {
		if len(s.waypoints) == 1 {
			if !s.waypoints[0].IsDock() {
				s.logger.Warn(ctx, "single non-dock waypoint, shuttle disabled")
				s.disabled = true
				return
			}
			s.pos = s.waypoints[0].Position
			s.dock(ctx, s.waypoints[0])
			return
		}
		s.state = ShuttleAccelerating
	}

	if s.state == ShuttleDocked {
		s.dwell--
		if s.dwell <= 0 {
			s.advance()
		}
		return
	}

	target := s.waypoints[s.dest]
	dist := Distance(s.pos, target.Position)
	approaching := target.IsDock() && dist <= s.cfg.DecelStartDistance

	switch s.state {
	case ShuttleAccelerating:
		s.speed += s.cfg.Acceleration
		if s.speed >= s.maxSpeed {
			s.speed = s.maxSpeed
			s.state = ShuttleCruising
		}
		if approaching {
			s.state = ShuttleDecelerating
		}
	case ShuttleCruising:
		if approaching {
			s.state = ShuttleDecelerating
		}
	case ShuttleDecelerating:
		s.speed -= s.cfg.Acceleration
		if s.speed < s.cfg.MinApproachSpeed {
			s.speed = min(s.cfg.MinApproachSpeed, s.maxSpeed)
		}
		if s.speed < 0 {
			s.speed = 0
		}
	}

	if s.speed > 0 {
		s.pos = MoveTowards(s.pos, target.Position, s.speed*dt.Seconds())
	}

	if Distance(s.pos, target.Position) < s.cfg.ArriveDistance {
		s.pos = target.Position
		s.speed = 0
		if target.IsDock() {
			s.dock(ctx, target)
			return
		}
		s.advance()
	}
}

func (s *Shuttle) dock(ctx context.Context, wp model.WaypointDefinition) {
	s.state = ShuttleDocked
	s.dwell = s.cfg.DwellTicks
	s.docks++
	s.logger.Debug(ctx, "shuttle docked",
		logging.String("spawner_id", wp.Dock),
		logging.Int("batch", s.batch),
	)
	if s.onDock != nil {
		s.onDock(ctx, wp.Dock, s.batch)
	}
}

// advance moves on to the next segment, restarting from the first waypoint
// after the last one.
func (s *Shuttle) advance() {
	if len(s.waypoints) == 1 {
		s.state = ShuttleIdle
		return
	}
	s.origin = s.dest
	s.dest++
	if s.dest >= len(s.waypoints) {
		s.pos = s.waypoints[0].Position
		s.origin = 0
		s.dest = 1
	}
	s.state = ShuttleAccelerating
}
