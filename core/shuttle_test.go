package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

type dockCall struct {
	spawnerID string
	count     int
}

func testShuttleConfig() ShuttleConfig {
	cfg := DefaultShuttleConfig()
	cfg.Acceleration = 1
	cfg.DwellTicks = 3
	return cfg
}

func newTestShuttle(t *testing.T, wps ...model.WaypointDefinition) (*Shuttle, *[]dockCall) {
	t.Helper()
	var calls []dockCall
	sh, err := NewShuttle(model.RouteDefinition{ID: "line", Waypoints: wps}, testShuttleConfig(),
		func(_ context.Context, spawnerID string, count int) {
			calls = append(calls, dockCall{spawnerID, count})
		}, nil)
	if err != nil {
		t.Fatalf("NewShuttle: %v", err)
	}
	return sh, &calls
}

func TestShuttleDocksAndDwells(t *testing.T) {
	sh, calls := newTestShuttle(t,
		model.WaypointDefinition{Position: orb.Point{0, 0}},
		model.WaypointDefinition{Position: orb.Point{20, 0}, Dock: "station"},
	)
	sh.UpdateParameters(Parameters{ShuttleMaxSpeed: 5, AgentsPerBatch: 12})
	ctx := context.Background()

	sawDecel := false
	for i := 0; i < 50 && sh.Docks() == 0; i++ {
		sh.Tick(ctx, time.Second)
		if sh.State() == ShuttleDecelerating {
			sawDecel = true
		}
		if sh.Speed() > sh.MaxSpeed() || sh.Speed() < 0 {
			t.Fatalf("speed %v outside [0, %v]", sh.Speed(), sh.MaxSpeed())
		}
	}
	if sh.Docks() != 1 {
		t.Fatalf("shuttle never docked")
	}
	if !sawDecel {
		t.Fatalf("shuttle should decelerate before a dock")
	}
	if sh.State() != ShuttleDocked || sh.Speed() != 0 {
		t.Fatalf("state=%s speed=%v, want docked at rest", sh.State(), sh.Speed())
	}
	if sh.Position() != (orb.Point{20, 0}) {
		t.Fatalf("position = %v, want snapped onto the dock", sh.Position())
	}
	if len(*calls) != 1 || (*calls)[0] != (dockCall{"station", 12}) {
		t.Fatalf("dock calls = %+v", *calls)
	}

	for i := 0; i < 2; i++ {
		sh.Tick(ctx, time.Second)
		if sh.State() != ShuttleDocked {
			t.Fatalf("left the dock after %d ticks", i+1)
		}
	}
	sh.Tick(ctx, time.Second)
	if sh.State() != ShuttleAccelerating {
		t.Fatalf("state after dwell = %s, want accelerating", sh.State())
	}
	// Past the final waypoint the route restarts from the first.
	if sh.Position() != (orb.Point{0, 0}) || sh.Destination() != 1 {
		t.Fatalf("position=%v destination=%d, want restart", sh.Position(), sh.Destination())
	}
}

func TestShuttlePassesNonDockWaypoints(t *testing.T) {
	sh, calls := newTestShuttle(t,
		model.WaypointDefinition{Position: orb.Point{0, 0}},
		model.WaypointDefinition{Position: orb.Point{3, 0}},
		model.WaypointDefinition{Position: orb.Point{6, 0}, Dock: "station"},
	)
	sh.UpdateParameters(Parameters{ShuttleMaxSpeed: 2, AgentsPerBatch: 1})
	for i := 0; i < 100 && len(*calls) == 0; i++ {
		sh.Tick(context.Background(), time.Second)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected to dock at the station once, got %d", len(*calls))
	}
}

func TestShuttleLoweredMaxSpeedClampsImmediately(t *testing.T) {
	sh, _ := newTestShuttle(t,
		model.WaypointDefinition{Position: orb.Point{0, 0}},
		model.WaypointDefinition{Position: orb.Point{500, 0}},
	)
	sh.UpdateParameters(Parameters{ShuttleMaxSpeed: 8})
	for i := 0; i < 10; i++ {
		sh.Tick(context.Background(), 100*time.Millisecond)
	}
	if sh.Speed() != 8 || sh.State() != ShuttleCruising {
		t.Fatalf("speed=%v state=%s, want cruising at 8", sh.Speed(), sh.State())
	}
	sh.SetMaxSpeed(3)
	if sh.Speed() != 3 {
		t.Fatalf("speed after lowering max = %v, want 3", sh.Speed())
	}
}

func TestShuttleSingleWaypoint(t *testing.T) {
	dock, calls := newTestShuttle(t, model.WaypointDefinition{Position: orb.Point{1, 1}, Dock: "station"})
	dock.Tick(context.Background(), time.Second)
	if dock.State() != ShuttleDocked || len(*calls) != 1 {
		t.Fatalf("single dock waypoint should dock at once: state=%s calls=%d", dock.State(), len(*calls))
	}
	// Fallback batch size until parameters arrive.
	if (*calls)[0].count != DefaultShuttleConfig().FallbackBatchSize {
		t.Fatalf("batch = %d, want fallback", (*calls)[0].count)
	}

	plain, plainCalls := newTestShuttle(t, model.WaypointDefinition{Position: orb.Point{1, 1}})
	plain.Tick(context.Background(), time.Second)
	if !plain.Disabled() || len(*plainCalls) != 0 {
		t.Fatalf("single non-dock waypoint should disable the shuttle")
	}
}

func TestShuttleEmptyRouteIsDisabled(t *testing.T) {
	sh, err := NewShuttle(model.RouteDefinition{ID: "empty"}, DefaultShuttleConfig(), nil, nil)
	if !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute, got %v", err)
	}
	if !sh.Disabled() {
		t.Fatalf("empty route must disable the shuttle")
	}
	sh.Tick(context.Background(), time.Second)
	if sh.State() != ShuttleIdle {
		t.Fatalf("disabled shuttle changed state to %s", sh.State())
	}
}

func TestShuttleHalt(t *testing.T) {
	sh, _ := newTestShuttle(t,
		model.WaypointDefinition{Position: orb.Point{0, 0}},
		model.WaypointDefinition{Position: orb.Point{500, 0}},
	)
	sh.Tick(context.Background(), time.Second)
	if sh.Speed() == 0 {
		t.Fatalf("expected the shuttle to be moving")
	}
	sh.Halt()
	if sh.Speed() != 0 {
		t.Fatalf("Halt left speed %v", sh.Speed())
	}
}
