package core

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestDeriveParametersEndpointsAreExact(t *testing.T) {
	bounds := DefaultScenarioBounds()
	fixed := DefaultFixedRates()

	best := DeriveParameters(0, bounds, fixed)
	if best.AgentSpeed != 10 || best.AgentsPerBatch != 10 || best.SpawnInterval != 5*time.Second || best.ShuttleMaxSpeed != 10 {
		t.Fatalf("scalar 0 mismatch: %+v", best)
	}
	worst := DeriveParameters(1, bounds, fixed)
	if worst.AgentSpeed != 20 || worst.AgentsPerBatch != 20 || worst.SpawnInterval != 10*time.Second || worst.ShuttleMaxSpeed != 3 {
		t.Fatalf("scalar 1 mismatch: %+v", worst)
	}
}

func TestDeriveParametersMidpointBatch(t *testing.T) {
	p := DeriveParameters(0.5, DefaultScenarioBounds(), DefaultFixedRates())
	if p.AgentsPerBatch != 15 {
		t.Fatalf("batch at 0.5 = %d, want 15", p.AgentsPerBatch)
	}
	if p.SpawnInterval != 7500*time.Millisecond {
		t.Fatalf("interval at 0.5 = %v", p.SpawnInterval)
	}
}

func TestDeriveParametersClampsScalar(t *testing.T) {
	bounds := DefaultScenarioBounds()
	fixed := DefaultFixedRates()
	for _, in := range []float64{-3, math.NaN()} {
		if got := DeriveParameters(in, bounds, fixed); got.Scenario != 0 || got.AgentSpeed != 10 {
			t.Fatalf("scalar %v not clamped to 0: %+v", in, got)
		}
	}
	if got := DeriveParameters(7, bounds, fixed); got.Scenario != 1 || got.ShuttleMaxSpeed != 3 {
		t.Fatalf("scalar 7 not clamped to 1: %+v", got)
	}
}

func TestDeriveParametersMonotonic(t *testing.T) {
	bounds := DefaultScenarioBounds()
	fixed := DefaultFixedRates()
	prev := DeriveParameters(0, bounds, fixed)
	for i := 1; i <= 100; i++ {
		cur := DeriveParameters(float64(i)/100, bounds, fixed)
		// Speed, batch and interval grow toward worst; shuttle speed shrinks.
		if cur.AgentSpeed < prev.AgentSpeed ||
			cur.AgentsPerBatch < prev.AgentsPerBatch ||
			cur.SpawnInterval < prev.SpawnInterval ||
			cur.ShuttleMaxSpeed > prev.ShuttleMaxSpeed {
			t.Fatalf("non-monotonic step at %d: %+v -> %+v", i, prev, cur)
		}
		prev = cur
	}
}

func TestFixedRatesValidate(t *testing.T) {
	ok := DefaultFixedRates()
	if err := ok.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	bad := ok
	bad.SpendMin, bad.SpendMax = 10, 1
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected inverted spend range to fail")
	}
}

func TestParameterSnapshotString(t *testing.T) {
	snap := ParameterSnapshot{
		Parameters:  DeriveParameters(0, DefaultScenarioBounds(), DefaultFixedRates()),
		ActiveSites: 3,
	}
	out := snap.String()
	for _, want := range []string{"Active Sites: 3", "Spawn Batch: 10", "Study: 20s, Wait: 6s", "Spawn Interval: 5.0s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("snapshot string missing %q:\n%s", want, out)
		}
	}
}
