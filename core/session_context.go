package core

import (
	"context"
	"math/rand"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// DefaultSeekInterval is the pause between two site searches of a seeking
// agent. Waiting agents retry at 1.5x this interval.
const DefaultSeekInterval = 1250 * time.Millisecond

// Arrival thresholds in floor units.
const (
	SpotArrivalDistance = 0.75
	ExitArrivalDistance = 1.0
)

// OutcomeReporter receives the single outcome of every agent.
type OutcomeReporter interface {
	ReportOutcome(model.Outcome)
}

// TransitionObserver is notified of every agent state change.
type TransitionObserver func(ctx context.Context, agentID string, from, to AgentState, event AgentEvent)

// SessionContext is the explicit bundle of session collaborators handed to
// each agent at creation.
type SessionContext struct {
	Pool     *ResourcePool
	Reporter OutcomeReporter
	Rand     *rand.Rand
	Logger   logging.Logger

	Exit    orb.Point
	HasExit bool

	SeekInterval time.Duration
	OnTransition TransitionObserver
}

func (c *SessionContext) seekInterval() time.Duration {
	if c.SeekInterval > 0 {
		return c.SeekInterval
	}
	return DefaultSeekInterval
}

func (c *SessionContext) logger() logging.Logger {
	if c.Logger == nil {
		return logging.Noop()
	}
	return c.Logger
}

func (c *SessionContext) uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	if c.Rand == nil {
		return lo + (hi-lo)/2
	}
	return lo + c.Rand.Float64()*(hi-lo)
}
