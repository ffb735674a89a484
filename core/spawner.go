package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/internal/logging"
	"github.com/signalsfoundry/study-session-simulator/model"
)

// Spawner creates agents at a fixed anchor.
type Spawner struct {
	ID     string
	Anchor orb.Point

	// NewNavigator is the agent template. A nil template disables the
	// spawner.
	NewNavigator NavigatorFactory

	active bool
}

// NewSpawner builds a spawner from its definition and the navigator template
// resolved for it.
func NewSpawner(def model.SpawnerDefinition, template NavigatorFactory) *Spawner {
	return &Spawner{
		ID:           def.ID,
		Anchor:       def.Anchor,
		NewNavigator: template,
		active:       !def.Inactive,
	}
}

func (s *Spawner) IsActive() bool        { return s.active }
func (s *Spawner) SetActive(active bool) { s.active = active }

// SpawnResult summarises one Spawn call.
type SpawnResult struct {
	Agents           []*Agent
	PlacementFailure int
}

// Spawn creates count agents at the anchor and starts them. Agents whose
// placement fails are dropped and counted. A spawner without a template
// returns ErrMissingTemplate and creates nothing.
func (s *Spawner) Spawn(ctx context.Context, count int, params Parameters, sess *SessionContext) (SpawnResult, error) {
	var res SpawnResult
	if count <= 0 {
		return res, nil
	}
	if s.NewNavigator == nil {
		return res, fmt.Errorf("spawner %q: %w", s.ID, ErrMissingTemplate)
	}
	res.Agents = make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		agent := NewAgent(s.NewNavigator(s.Anchor), params, sess)
		if err := agent.Start(ctx); err != nil {
			if errors.Is(err, ErrPlacementFailed) {
				res.PlacementFailure++
				continue
			}
			return res, err
		}
		res.Agents = append(res.Agents, agent)
	}
	if res.PlacementFailure > 0 {
		sess.logger().Warn(ctx, "agents dropped at spawn",
			logging.String("spawner_id", s.ID),
			logging.Int("dropped", res.PlacementFailure),
		)
	}
	return res, nil
}

// DistributeBatch splits total across k spawners: every spawner gets
// total/k and the first total%k get one more.
func DistributeBatch(total, k int) []int {
	if k <= 0 {
		return nil
	}
	out := make([]int, k)
	if total <= 0 {
		return out
	}
	base, rem := total/k, total%k
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}
