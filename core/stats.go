package core

import (
	"time"

	"github.com/signalsfoundry/study-session-simulator/model"
)

// SessionStats accumulates outcomes for one session.
type SessionStats struct {
	scores        []float64
	studied       int
	leftUnstudied int
	spendTotal    float64
	spendCount    int
}

// Record adds one outcome.
func (s *SessionStats) Record(o model.Outcome) {
	s.scores = append(s.scores, o.FinalScore)
	switch o.Kind {
	case model.OutcomeStudied:
		s.studied++
	case model.OutcomeLeftUnstudied:
		s.leftUnstudied++
		if o.SecondarySpend > 0 {
			s.spendTotal += o.SecondarySpend
			s.spendCount++
		}
	}
}

// Reset clears every counter.
func (s *SessionStats) Reset() {
	*s = SessionStats{}
}

func (s *SessionStats) Processed() int     { return len(s.scores) }
func (s *SessionStats) Studied() int       { return s.studied }
func (s *SessionStats) LeftUnstudied() int { return s.leftUnstudied }

// Finalize computes the session averages. The score average covers every
// reported agent, the spend average covers spenders only; both are zero when
// nothing was reported.
func (s *SessionStats) Finalize(sessionID string, scenario float64, activeSites int, endedAt time.Time) model.SessionRecord {
	rec := model.SessionRecord{
		SessionID:          sessionID,
		EndedAt:            endedAt,
		ScenarioValue:      scenario,
		AgentsProcessed:    len(s.scores),
		ActiveSites:        activeSites,
		StudiedCount:       s.studied,
		LeftUnstudiedCount: s.leftUnstudied,
	}
	if n := len(s.scores); n > 0 {
		total := 0.0
		for _, v := range s.scores {
			total += v
		}
		rec.AvgScore = total / float64(n)
	}
	if s.spendCount > 0 {
		rec.AvgSecondarySpend = s.spendTotal / float64(s.spendCount)
	}
	return rec
}
