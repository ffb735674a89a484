package core

// AgentState is a step of the agent lifecycle.
type AgentState int

const (
	AgentInitializing AgentState = iota
	AgentSeeking
	AgentMovingToSpot
	AgentStudying
	AgentWaitingNearSite
	AgentMovingToExit
	AgentDeparted
)

func (s AgentState) String() string {
	switch s {
	case AgentInitializing:
		return "initializing"
	case AgentSeeking:
		return "seeking"
	case AgentMovingToSpot:
		return "moving_to_spot"
	case AgentStudying:
		return "studying"
	case AgentWaitingNearSite:
		return "waiting_near_site"
	case AgentMovingToExit:
		return "moving_to_exit"
	case AgentDeparted:
		return "departed"
	default:
		return "unknown"
	}
}

// AgentEvent drives a lifecycle transition.
type AgentEvent int

const (
	EventPlaced AgentEvent = iota
	EventPlacementFailed
	EventSlotGranted
	EventNoSlot
	EventSlotLost
	EventPathInvalid
	EventArrived
	EventStudyComplete
	EventWaitExpired
	EventRetry
	EventExitUnavailable
)

func (e AgentEvent) String() string {
	switch e {
	case EventPlaced:
		return "placed"
	case EventPlacementFailed:
		return "placement_failed"
	case EventSlotGranted:
		return "slot_granted"
	case EventNoSlot:
		return "no_slot"
	case EventSlotLost:
		return "slot_lost"
	case EventPathInvalid:
		return "path_invalid"
	case EventArrived:
		return "arrived"
	case EventStudyComplete:
		return "study_complete"
	case EventWaitExpired:
		return "wait_expired"
	case EventRetry:
		return "retry"
	case EventExitUnavailable:
		return "exit_unavailable"
	default:
		return "unknown"
	}
}

type agentTransition struct {
	from  AgentState
	event AgentEvent
}

var agentTransitions = map[agentTransition]AgentState{
	{AgentInitializing, EventPlaced}:          AgentSeeking,
	{AgentInitializing, EventPlacementFailed}: AgentDeparted,

	{AgentSeeking, EventSlotGranted}: AgentMovingToSpot,
	{AgentSeeking, EventNoSlot}:      AgentWaitingNearSite,

	{AgentMovingToSpot, EventSlotLost}:    AgentSeeking,
	{AgentMovingToSpot, EventPathInvalid}: AgentSeeking,
	{AgentMovingToSpot, EventArrived}:     AgentStudying,

	{AgentStudying, EventSlotLost}:      AgentSeeking,
	{AgentStudying, EventStudyComplete}: AgentMovingToExit,

	{AgentWaitingNearSite, EventWaitExpired}: AgentMovingToExit,
	{AgentWaitingNearSite, EventRetry}:       AgentSeeking,

	{AgentMovingToExit, EventArrived}:         AgentDeparted,
	{AgentMovingToExit, EventPathInvalid}:     AgentDeparted,
	{AgentMovingToExit, EventExitUnavailable}: AgentDeparted,
}

// NextAgentState looks up the transition for event in state. ok is false
// when the event has no effect in that state.
func NextAgentState(state AgentState, event AgentEvent) (next AgentState, ok bool) {
	next, ok = agentTransitions[agentTransition{state, event}]
	return next, ok
}
