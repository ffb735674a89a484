package core

import (
	"fmt"
	"math"
	"time"
)

// Score bounds on the grade-point scale.
const (
	MinScore = 0.0
	MaxScore = 4.0
)

// Range holds the value of a parameter under the best (scalar 0) and worst
// (scalar 1) scenario.
type Range struct {
	Best  float64 `json:"best" yaml:"best"`
	Worst float64 `json:"worst" yaml:"worst"`
}

// At interpolates linearly between Best and Worst. The endpoints are
// reproduced exactly.
func (r Range) At(t float64) float64 {
	return lerp(r.Best, r.Worst, t)
}

// IntRange is a Range for integral parameters.
type IntRange struct {
	Best  int `json:"best" yaml:"best"`
	Worst int `json:"worst" yaml:"worst"`
}

// At interpolates and rounds to the nearest integer.
func (r IntRange) At(t float64) int {
	return int(math.Round(lerp(float64(r.Best), float64(r.Worst), t)))
}

// DurationRange is a Range for durations.
type DurationRange struct {
	Best  time.Duration `json:"best" yaml:"best"`
	Worst time.Duration `json:"worst" yaml:"worst"`
}

// At interpolates in seconds.
func (r DurationRange) At(t float64) time.Duration {
	switch {
	case t <= 0:
		return r.Best
	case t >= 1:
		return r.Worst
	}
	secs := lerp(r.Best.Seconds(), r.Worst.Seconds(), t)
	return time.Duration(secs * float64(time.Second))
}

func lerp(a, b, t float64) float64 {
	switch {
	case t <= 0:
		return a
	case t >= 1:
		return b
	}
	return a + (b-a)*t
}

// ScenarioBounds are the scalar-controlled parameters.
type ScenarioBounds struct {
	AgentSpeed      Range         `json:"agent_speed" yaml:"agent_speed"`
	AgentsPerBatch  IntRange      `json:"agents_per_batch" yaml:"agents_per_batch"`
	SpawnInterval   DurationRange `json:"spawn_interval" yaml:"spawn_interval"`
	ShuttleMaxSpeed Range         `json:"shuttle_max_speed" yaml:"shuttle_max_speed"`
}

// FixedRates are not scalar-controlled but may be overridden by config.
type FixedRates struct {
	StudyDuration   time.Duration `json:"study_duration" yaml:"study_duration"`
	MaxWait         time.Duration `json:"max_wait" yaml:"max_wait"`
	ScoreBoostRate  float64       `json:"score_boost_rate" yaml:"score_boost_rate"`
	WaitPenaltyRate float64       `json:"wait_penalty_rate" yaml:"wait_penalty_rate"`
	LeavePenalty    float64       `json:"leave_penalty" yaml:"leave_penalty"`
	SpendMin        float64       `json:"spend_min" yaml:"spend_min"`
	SpendMax        float64       `json:"spend_max" yaml:"spend_max"`
	InitialScoreMin float64       `json:"initial_score_min" yaml:"initial_score_min"`
	InitialScoreMax float64       `json:"initial_score_max" yaml:"initial_score_max"`
}

// DefaultScenarioBounds returns the tuned best/worst pairs.
func DefaultScenarioBounds() ScenarioBounds {
	return ScenarioBounds{
		AgentSpeed:      Range{Best: 10, Worst: 20},
		AgentsPerBatch:  IntRange{Best: 10, Worst: 20},
		SpawnInterval:   DurationRange{Best: 5 * time.Second, Worst: 10 * time.Second},
		ShuttleMaxSpeed: Range{Best: 10, Worst: 3},
	}
}

// DefaultFixedRates returns the tuned fixed rates.
func DefaultFixedRates() FixedRates {
	return FixedRates{
		StudyDuration:   20 * time.Second,
		MaxWait:         6 * time.Second,
		ScoreBoostRate:  0.01,
		WaitPenaltyRate: 0.005,
		LeavePenalty:    0.2,
		SpendMin:        1000,
		SpendMax:        5000,
		InitialScoreMin: 2.0,
		InitialScoreMax: 3.5,
	}
}

// Validate checks the fixed rates for obviously broken values.
func (f FixedRates) Validate() error {
	if f.StudyDuration < 0 || f.MaxWait < 0 {
		return fmt.Errorf("durations must be non-negative (study=%v, wait=%v)", f.StudyDuration, f.MaxWait)
	}
	if f.SpendMax < f.SpendMin {
		return fmt.Errorf("spend range inverted: min=%v max=%v", f.SpendMin, f.SpendMax)
	}
	if f.InitialScoreMax < f.InitialScoreMin {
		return fmt.Errorf("initial score range inverted: min=%v max=%v", f.InitialScoreMin, f.InitialScoreMax)
	}
	return nil
}

// Parameters is the full set of rates derived for one scenario value.
type Parameters struct {
	Scenario float64 `json:"scenario"`

	AgentSpeed      float64       `json:"agent_speed"`
	AgentsPerBatch  int           `json:"agents_per_batch"`
	SpawnInterval   time.Duration `json:"spawn_interval"`
	ShuttleMaxSpeed float64       `json:"shuttle_max_speed"`

	FixedRates
}

// DeriveParameters clamps scalar into [0,1] and interpolates every bounded
// parameter.
func DeriveParameters(scalar float64, bounds ScenarioBounds, fixed FixedRates) Parameters {
	if math.IsNaN(scalar) || scalar < 0 {
		scalar = 0
	} else if scalar > 1 {
		scalar = 1
	}
	return Parameters{
		Scenario:        scalar,
		AgentSpeed:      bounds.AgentSpeed.At(scalar),
		AgentsPerBatch:  bounds.AgentsPerBatch.At(scalar),
		SpawnInterval:   bounds.SpawnInterval.At(scalar),
		ShuttleMaxSpeed: bounds.ShuttleMaxSpeed.At(scalar),
		FixedRates:      fixed,
	}
}

// ParameterSnapshot is the read-only view published to display layers.
type ParameterSnapshot struct {
	Parameters
	ActiveSites int  `json:"active_sites"`
	Running     bool `json:"running"`
	Paused      bool `json:"paused"`
	LiveAgents  int  `json:"live_agents"`
}

// String renders the snapshot as a compact parameter panel.
func (s ParameterSnapshot) String() string {
	return fmt.Sprintf("Active Sites: %d\nAgent Speed: %.1f\nShuttle Max Speed: %.1f\nStudy: %.0fs, Wait: %.0fs\nSpawn Batch: %d\nSpawn Interval: %.1fs",
		s.ActiveSites,
		s.AgentSpeed,
		s.ShuttleMaxSpeed,
		s.StudyDuration.Seconds(),
		s.MaxWait.Seconds(),
		s.AgentsPerBatch,
		s.SpawnInterval.Seconds(),
	)
}

func clampScore(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
