package core

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

func TestDistributeBatch(t *testing.T) {
	cases := []struct {
		total, k int
		want     []int
	}{
		{15, 2, []int{8, 7}},
		{10, 3, []int{4, 3, 3}},
		{2, 3, []int{1, 1, 0}},
		{9, 3, []int{3, 3, 3}},
		{0, 2, []int{0, 0}},
	}
	for _, tc := range cases {
		got := DistributeBatch(tc.total, tc.k)
		if len(got) != len(tc.want) {
			t.Fatalf("DistributeBatch(%d, %d) = %v, want %v", tc.total, tc.k, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("DistributeBatch(%d, %d) = %v, want %v", tc.total, tc.k, got, tc.want)
			}
		}
	}
	if DistributeBatch(5, 0) != nil {
		t.Fatalf("no spawners should yield nil")
	}
}

func TestDistributeBatchIsFair(t *testing.T) {
	for total := 0; total <= 40; total++ {
		for k := 1; k <= 6; k++ {
			parts := DistributeBatch(total, k)
			sum, lo, hi := 0, parts[0], parts[0]
			for _, p := range parts {
				sum += p
				lo = min(lo, p)
				hi = max(hi, p)
			}
			if sum != total || hi-lo > 1 {
				t.Fatalf("DistributeBatch(%d, %d) = %v unfair", total, k, parts)
			}
		}
	}
}

func TestSpawnerSpawnsAtAnchor(t *testing.T) {
	sess, _, _ := newTestSession(t)
	sp := NewSpawner(model.SpawnerDefinition{ID: "west", Anchor: orb.Point{-10, 0}}, PlanarNavigatorFactory(testFloor))

	res, err := sp.Spawn(context.Background(), 4, testParams(), sess)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if len(res.Agents) != 4 || res.PlacementFailure != 0 {
		t.Fatalf("spawned %d (dropped %d), want 4", len(res.Agents), res.PlacementFailure)
	}
	seen := map[string]bool{}
	for _, a := range res.Agents {
		if a.State() != AgentSeeking {
			t.Fatalf("spawned agent state = %s, want seeking", a.State())
		}
		if a.Navigator().Position() != (orb.Point{-10, 0}) {
			t.Fatalf("agent at %v, want anchor", a.Navigator().Position())
		}
		if seen[a.ID] {
			t.Fatalf("duplicate agent id %s", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestSpawnerWithoutTemplate(t *testing.T) {
	sess, _, _ := newTestSession(t)
	sp := NewSpawner(model.SpawnerDefinition{ID: "broken"}, nil)
	res, err := sp.Spawn(context.Background(), 3, testParams(), sess)
	if !errors.Is(err, ErrMissingTemplate) {
		t.Fatalf("expected ErrMissingTemplate, got %v", err)
	}
	if len(res.Agents) != 0 {
		t.Fatalf("broken spawner created agents")
	}
}

func TestSpawnerCountsPlacementFailures(t *testing.T) {
	sess, _, _ := newTestSession(t)
	sp := NewSpawner(model.SpawnerDefinition{ID: "far", Anchor: orb.Point{900, 900}}, PlanarNavigatorFactory(testFloor))
	res, err := sp.Spawn(context.Background(), 3, testParams(), sess)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if len(res.Agents) != 0 || res.PlacementFailure != 3 {
		t.Fatalf("agents=%d dropped=%d, want 0/3", len(res.Agents), res.PlacementFailure)
	}
}
