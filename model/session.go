package model

import "time"

// OutcomeKind classifies how an agent left the venue.
type OutcomeKind int

const (
	OutcomeStudied OutcomeKind = iota
	OutcomeLeftUnstudied
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeStudied:
		return "studied"
	case OutcomeLeftUnstudied:
		return "left_unstudied"
	default:
		return "unknown"
	}
}

// Outcome is reported exactly once per agent, at departure-decision time.
type Outcome struct {
	AgentID    string
	Kind       OutcomeKind
	FinalScore float64

	// SecondarySpend is only non-zero for agents that left unstudied.
	SecondarySpend float64
}

// SessionRecord is the flat per-session result handed to persistence.
type SessionRecord struct {
	// Bookkeeping, filled by the scheduler and the store.
	ID        int64     `json:"id,omitempty"`
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`

	ScenarioValue      float64 `json:"scenario_value"`
	AgentsProcessed    int     `json:"agents_processed"`
	ActiveSites        int     `json:"active_sites"`
	AvgScore           float64 `json:"avg_score"`
	StudiedCount       int     `json:"studied_count"`
	LeftUnstudiedCount int     `json:"left_unstudied_count"`
	AvgSecondarySpend  float64 `json:"avg_secondary_spend"`
}
