package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// maxChainedTransitions bounds the transitions evaluated in one tick.
const maxChainedTransitions = 8

// Agent is one simulated student working through the lifecycle.
type Agent struct {
	ID string

	state  AgentState
	score  float64
	nav    Navigator
	params Parameters
	sess   *SessionContext

	site *ResourceSite
	slot SlotID

	stateTimer time.Duration
	retryTimer time.Duration

	spend    float64
	reported bool
}

// NewAgent builds an agent in Initializing. Its score is drawn from the
// configured initial range.
func NewAgent(nav Navigator, params Parameters, sess *SessionContext) *Agent {
	a := &Agent{
		ID:     uuid.NewString(),
		state:  AgentInitializing,
		nav:    nav,
		params: params,
		sess:   sess,
	}
	a.score = clampScore(sess.uniform(params.InitialScoreMin, params.InitialScoreMax))
	return a
}

func (a *Agent) State() AgentState       { return a.state }
func (a *Agent) Score() float64          { return a.score }
func (a *Agent) Navigator() Navigator    { return a.nav }
func (a *Agent) SecondarySpend() float64 { return a.spend }
func (a *Agent) Reported() bool          { return a.reported }

// Assignment returns the held site and slot, if any.
func (a *Agent) Assignment() (*ResourceSite, SlotID) { return a.site, a.slot }

// Departed reports whether the agent can be removed.
func (a *Agent) Departed() bool { return a.state == AgentDeparted }

// Start places the agent on the walkable surface and enters Seeking. A
// placement failure is final: the agent departs without an outcome.
func (a *Agent) Start(ctx context.Context) error {
	if a.state != AgentInitializing {
		return nil
	}
	placed, ok := a.nav.PlaceOnSurface(a.nav.Position())
	if !ok {
		a.sess.logger().Warn(ctx, "agent placement failed",
			logging.String("agent_id", a.ID),
			logging.Any("position", a.nav.Position()),
		)
		a.fire(ctx, EventPlacementFailed)
		return fmt.Errorf("agent %s: %w", a.ID, ErrPlacementFailed)
	}
	a.nav.Warp(placed)
	a.nav.SetSpeed(a.params.AgentSpeed)
	a.fire(ctx, EventPlaced)
	return nil
}

// UpdateParameters applies a broadcast. Speed changes take effect on the
// movement in flight; durations are read on the next state entry.
func (a *Agent) UpdateParameters(p Parameters) {
	a.params = p
	a.nav.SetSpeed(p.AgentSpeed)
}

// Tick advances the agent by dt.
func (a *Agent) Tick(ctx context.Context, dt time.Duration) {
	if a.state == AgentInitializing || a.state == AgentDeparted {
		return
	}
	a.nav.Advance(dt)
	if a.stateTimer > 0 {
		a.stateTimer -= dt
	}
	if ev, ok := a.step(ctx, dt); ok {
		a.fire(ctx, ev)
	}
}

// step runs the per-tick work of the current state and returns the event it
// raised, if any.
func (a *Agent) step(ctx context.Context, dt time.Duration) (AgentEvent, bool) {
	switch a.state {
	case AgentSeeking:
		a.retryTimer -= dt
		if a.retryTimer > 0 {
			return 0, false
		}
		a.retryTimer = a.sess.seekInterval()
		return a.seek()

	case AgentMovingToSpot:
		if !a.holdsValidSlot() {
			return EventSlotLost, true
		}
		if !a.nav.PathPending() && a.nav.HasPath() && a.nav.RemainingDistance() < SpotArrivalDistance {
			return EventArrived, true
		}
		if a.nav.PathStatus() == PathInvalid {
			return EventPathInvalid, true
		}

	case AgentStudying:
		a.score = clampScore(a.score + a.params.ScoreBoostRate*dt.Seconds())
		if a.stateTimer <= 0 {
			a.report(ctx, model.OutcomeStudied)
			return EventStudyComplete, true
		}

	case AgentWaitingNearSite:
		a.score = clampScore(a.score - a.params.WaitPenaltyRate*dt.Seconds())
		if a.stateTimer <= 0 {
			a.score = clampScore(a.score - a.params.LeavePenalty)
			a.spend = a.sess.uniform(a.params.SpendMin, a.params.SpendMax)
			a.report(ctx, model.OutcomeLeftUnstudied)
			return EventWaitExpired, true
		}
		a.retryTimer -= dt
		if a.retryTimer <= 0 {
			a.retryTimer = a.waitRetryInterval()
			if a.sess.Pool != nil && NearestAvailable(a.nav.Position(), a.sess.Pool.ActiveSites()) != nil {
				return EventRetry, true
			}
		}

	case AgentMovingToExit:
		if !a.sess.HasExit {
			return EventExitUnavailable, true
		}
		if a.nav.HasPath() && !a.nav.PathPending() && a.nav.RemainingDistance() < ExitArrivalDistance {
			return EventArrived, true
		}
		if !a.nav.HasPath() && Distance(a.nav.Position(), a.sess.Exit) < ExitArrivalDistance {
			return EventArrived, true
		}
		if a.nav.PathStatus() == PathInvalid {
			return EventPathInvalid, true
		}
	}
	return 0, false
}

// fire applies event and any follow-up events raised by entry actions until
// the state settles.
func (a *Agent) fire(ctx context.Context, event AgentEvent) {
	for i := 0; i < maxChainedTransitions; i++ {
		next, ok := NextAgentState(a.state, event)
		if !ok {
			a.sess.logger().Debug(ctx, "ignored agent event",
				logging.String("agent_id", a.ID),
				logging.String("state", a.state.String()),
				logging.String("event", event.String()),
			)
			return
		}
		prev := a.state
		a.state = next
		if a.sess.OnTransition != nil {
			a.sess.OnTransition(ctx, a.ID, prev, next, event)
		}
		follow, more := a.enter(ctx, next, prev)
		if !more {
			return
		}
		event = follow
	}
	a.sess.logger().Warn(ctx, "agent transition chain exceeded bound",
		logging.String("agent_id", a.ID),
		logging.String("state", a.state.String()),
	)
}

// enter runs the entry action of state. It may raise a follow-up event.
func (a *Agent) enter(ctx context.Context, state, prev AgentState) (AgentEvent, bool) {
	switch state {
	case AgentSeeking:
		a.release()
		a.spend = 0
		a.retryTimer = 0
		if prev == AgentMovingToSpot {
			// Lost or unreachable slot: wait a full interval before rescanning.
			a.retryTimer = a.sess.seekInterval()
		}
		a.stateTimer = 0
		a.nav.Resume()
		if prev == AgentWaitingNearSite {
			return a.seek()
		}

	case AgentMovingToSpot:
		a.stateTimer = 0
		if a.site == nil {
			return EventSlotLost, true
		}
		target, ok := a.site.SlotPosition(a.slot)
		if !ok {
			return EventSlotLost, true
		}
		a.nav.Resume()
		if !a.nav.SetDestination(target) {
			return EventPathInvalid, true
		}

	case AgentStudying:
		a.nav.Stop()
		a.nav.ResetPath()
		if a.site == nil {
			return EventSlotLost, true
		}
		target, ok := a.site.SlotPosition(a.slot)
		if !ok {
			return EventSlotLost, true
		}
		a.nav.Warp(target)
		a.stateTimer = a.params.StudyDuration

	case AgentWaitingNearSite:
		a.nav.Stop()
		a.nav.ResetPath()
		a.stateTimer = a.params.MaxWait
		a.retryTimer = a.waitRetryInterval()

	case AgentMovingToExit:
		a.release()
		a.stateTimer = 0
		a.nav.Resume()
		if !a.sess.HasExit {
			a.sess.logger().Warn(ctx, "exit point missing, departing in place",
				logging.String("agent_id", a.ID))
			return EventExitUnavailable, true
		}
		if !a.nav.SetDestination(a.sess.Exit) {
			return EventPathInvalid, true
		}

	case AgentDeparted:
		a.release()
		a.nav.Stop()
	}
	return 0, false
}

func (a *Agent) seek() (AgentEvent, bool) {
	if a.sess.Pool == nil {
		return EventNoSlot, true
	}
	site := NearestAvailable(a.nav.Position(), a.sess.Pool.ActiveSites())
	if site == nil {
		return EventNoSlot, true
	}
	slot, ok := site.TryAssign(a.ID)
	if !ok {
		return EventNoSlot, true
	}
	a.site, a.slot = site, slot
	return EventSlotGranted, true
}

func (a *Agent) holdsValidSlot() bool {
	if a.site == nil || !a.site.IsActive() {
		return false
	}
	owner, ok := a.site.Occupant(a.slot)
	return ok && owner == a.ID
}

func (a *Agent) release() {
	if a.site != nil {
		a.site.Vacate(a.slot, a.ID)
	}
	a.site, a.slot = nil, ""
}

func (a *Agent) report(ctx context.Context, kind model.OutcomeKind) {
	if a.reported {
		return
	}
	a.reported = true
	out := model.Outcome{
		AgentID:    a.ID,
		Kind:       kind,
		FinalScore: a.score,
	}
	if kind == model.OutcomeLeftUnstudied {
		out.SecondarySpend = a.spend
	}
	a.sess.logger().Debug(ctx, "agent outcome",
		logging.String("agent_id", a.ID),
		logging.String("outcome", kind.String()),
		logging.Float64("score", a.score),
	)
	if a.sess.Reporter != nil {
		a.sess.Reporter.ReportOutcome(out)
	}
}

func (a *Agent) waitRetryInterval() time.Duration {
	return a.sess.seekInterval() * 3 / 2
}
