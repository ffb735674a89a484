package core

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

var testFloor = orb.Bound{Min: orb.Point{-50, -50}, Max: orb.Point{50, 50}}

type outcomeRecorder struct {
	outcomes []model.Outcome
}

func (r *outcomeRecorder) ReportOutcome(o model.Outcome) {
	r.outcomes = append(r.outcomes, o)
}

type transitionLog struct {
	entries []string
}

func (l *transitionLog) observe(_ context.Context, _ string, from, to AgentState, _ AgentEvent) {
	l.entries = append(l.entries, from.String()+"->"+to.String())
}

func testParams() Parameters {
	fixed := DefaultFixedRates()
	fixed.InitialScoreMin = 3.0
	fixed.InitialScoreMax = 3.0
	return DeriveParameters(0, DefaultScenarioBounds(), fixed)
}

func newTestSession(t *testing.T, sites ...model.SiteDefinition) (*SessionContext, *outcomeRecorder, *transitionLog) {
	t.Helper()
	pool, err := NewResourcePool(sites)
	if err != nil {
		t.Fatalf("NewResourcePool: %v", err)
	}
	rec := &outcomeRecorder{}
	log := &transitionLog{}
	sess := &SessionContext{
		Pool:         pool,
		Reporter:     rec,
		Rand:         rand.New(rand.NewSource(7)),
		Exit:         orb.Point{0, 0},
		HasExit:      true,
		OnTransition: log.observe,
	}
	return sess, rec, log
}

func startAgent(t *testing.T, at orb.Point, params Parameters, sess *SessionContext) *Agent {
	t.Helper()
	a := NewAgent(NewPlanarNavigator(testFloor, at), params, sess)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if a.State() != AgentSeeking {
		t.Fatalf("state after Start = %s, want seeking", a.State())
	}
	return a
}

func tickUntil(t *testing.T, a *Agent, dt time.Duration, max int, done func() bool) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < max; i++ {
		if done() {
			return
		}
		a.Tick(ctx, dt)
	}
	if !done() {
		t.Fatalf("condition not reached after %d ticks, state=%s", max, a.State())
	}
}

func TestAgentStudiesAndGainsBoost(t *testing.T) {
	sess, rec, _ := newTestSession(t, siteDef("lib", orb.Point{0, 0}, 1))
	params := testParams()
	a := startAgent(t, orb.Point{0, 0}, params, sess)
	ctx := context.Background()

	a.Tick(ctx, time.Second)
	if a.State() != AgentMovingToSpot {
		t.Fatalf("first tick should grant a slot immediately, state=%s", a.State())
	}
	a.Tick(ctx, time.Second)
	if a.State() != AgentStudying {
		t.Fatalf("expected studying after arrival, state=%s", a.State())
	}

	for i := 0; i < 19; i++ {
		a.Tick(ctx, time.Second)
	}
	if len(rec.outcomes) != 0 {
		t.Fatalf("reported before study time elapsed")
	}
	a.Tick(ctx, time.Second)

	if len(rec.outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(rec.outcomes))
	}
	out := rec.outcomes[0]
	if out.Kind != model.OutcomeStudied {
		t.Fatalf("outcome = %s, want studied", out.Kind)
	}
	if math.Abs(out.FinalScore-3.2) > 1e-9 {
		t.Fatalf("final score = %v, want 3.2", out.FinalScore)
	}
	if out.SecondarySpend != 0 {
		t.Fatalf("studied agent must not spend, got %v", out.SecondarySpend)
	}
	if a.State() != AgentMovingToExit {
		t.Fatalf("state = %s, want moving_to_exit", a.State())
	}
	if sess.Pool.OccupiedCount() != 0 {
		t.Fatalf("slot not released on exit")
	}

	tickUntil(t, a, time.Second, 5, a.Departed)
	if len(rec.outcomes) != 1 {
		t.Fatalf("outcome reported more than once")
	}
}

func TestAgentLeavesAfterFullWait(t *testing.T) {
	blocked := siteDef("lib", orb.Point{0, 0}, 1)
	sess, rec, _ := newTestSession(t, blocked)
	sess.Pool.Site("lib").TryAssign("someone-else")

	params := testParams()
	a := startAgent(t, orb.Point{5, 5}, params, sess)
	ctx := context.Background()

	a.Tick(ctx, time.Second)
	if a.State() != AgentWaitingNearSite {
		t.Fatalf("state = %s, want waiting", a.State())
	}
	for i := 0; i < 6; i++ {
		a.Tick(ctx, time.Second)
	}

	if len(rec.outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(rec.outcomes))
	}
	out := rec.outcomes[0]
	if out.Kind != model.OutcomeLeftUnstudied {
		t.Fatalf("outcome = %s, want left_unstudied", out.Kind)
	}
	// 6s of 0.005/s decay plus the 0.2 leave penalty.
	if math.Abs(out.FinalScore-2.77) > 1e-9 {
		t.Fatalf("final score = %v, want 2.77", out.FinalScore)
	}
	if out.SecondarySpend < params.SpendMin || out.SecondarySpend > params.SpendMax {
		t.Fatalf("spend %v outside [%v, %v]", out.SecondarySpend, params.SpendMin, params.SpendMax)
	}
	if a.State() != AgentMovingToExit {
		t.Fatalf("state = %s, want moving_to_exit", a.State())
	}
}

func TestCapacityOneContention(t *testing.T) {
	sess, _, _ := newTestSession(t, siteDef("lib", orb.Point{10, 0}, 1))
	params := testParams()
	first := startAgent(t, orb.Point{0, 0}, params, sess)
	second := startAgent(t, orb.Point{0, 1}, params, sess)
	ctx := context.Background()

	first.Tick(ctx, time.Second)
	second.Tick(ctx, time.Second)

	if first.State() != AgentMovingToSpot {
		t.Fatalf("first agent state = %s, want moving_to_spot", first.State())
	}
	if second.State() != AgentWaitingNearSite {
		t.Fatalf("second agent state = %s, want waiting", second.State())
	}
	site, slot := first.Assignment()
	if owner, _ := site.Occupant(slot); owner != first.ID {
		t.Fatalf("slot owner = %q, want first agent", owner)
	}
}

func TestWaitingRetryEntersMovingToSpotInOneTick(t *testing.T) {
	sess, _, log := newTestSession(t, siteDef("lib", orb.Point{10, 0}, 1))
	lib := sess.Pool.Site("lib")
	blocker, _ := lib.TryAssign("blocker")

	params := testParams()
	params.MaxWait = time.Minute
	a := startAgent(t, orb.Point{0, 0}, params, sess)
	ctx := context.Background()
	dt := 500 * time.Millisecond

	a.Tick(ctx, dt)
	if a.State() != AgentWaitingNearSite {
		t.Fatalf("state = %s, want waiting", a.State())
	}
	lib.Vacate(blocker, "blocker")

	// The wait retry fires every 1.875s.
	for i := 0; i < 3; i++ {
		a.Tick(ctx, dt)
		if a.State() != AgentWaitingNearSite {
			t.Fatalf("tick %d: retried early, state=%s", i, a.State())
		}
	}

	log.entries = nil
	a.Tick(ctx, dt)
	if a.State() != AgentMovingToSpot {
		t.Fatalf("state = %s, want moving_to_spot", a.State())
	}
	want := []string{"waiting_near_site->seeking", "seeking->moving_to_spot"}
	if len(log.entries) != len(want) {
		t.Fatalf("transitions = %v, want %v", log.entries, want)
	}
	for i := range want {
		if log.entries[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", log.entries, want)
		}
	}
	if owner, _ := lib.Occupant(blocker); owner != a.ID {
		t.Fatalf("slot owner = %q, want agent", owner)
	}
}

func TestWaitingStaysWhenNothingFrees(t *testing.T) {
	sess, _, log := newTestSession(t, siteDef("lib", orb.Point{10, 0}, 1))
	sess.Pool.Site("lib").TryAssign("blocker")
	params := testParams()
	params.MaxWait = time.Minute
	a := startAgent(t, orb.Point{0, 0}, params, sess)

	a.Tick(context.Background(), time.Second)
	log.entries = nil
	for i := 0; i < 10; i++ {
		a.Tick(context.Background(), time.Second)
	}
	if a.State() != AgentWaitingNearSite || len(log.entries) != 0 {
		t.Fatalf("state=%s transitions=%v, want to keep waiting", a.State(), log.entries)
	}
}

func TestSiteDeactivationSendsMovingAgentBackToSeeking(t *testing.T) {
	sess, _, _ := newTestSession(t, siteDef("lib", orb.Point{30, 0}, 1))
	a := startAgent(t, orb.Point{0, 0}, testParams(), sess)
	ctx := context.Background()

	a.Tick(ctx, 100*time.Millisecond)
	if a.State() != AgentMovingToSpot {
		t.Fatalf("state = %s, want moving_to_spot", a.State())
	}
	if err := sess.Pool.SetActive("lib", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	a.Tick(ctx, 100*time.Millisecond)
	if a.State() != AgentSeeking {
		t.Fatalf("state = %s, want seeking", a.State())
	}
	if sess.Pool.OccupiedCount() != 0 {
		t.Fatalf("slot not released")
	}
	if site, _ := a.Assignment(); site != nil {
		t.Fatalf("assignment not cleared")
	}
}

func TestInvalidPathReleasesSlot(t *testing.T) {
	offFloor := siteDef("annex", orb.Point{80, 0}, 1)
	sess, _, _ := newTestSession(t, offFloor)
	a := startAgent(t, orb.Point{0, 0}, testParams(), sess)
	ctx := context.Background()

	a.Tick(ctx, time.Second)
	if a.State() != AgentMovingToSpot {
		t.Fatalf("state = %s, want moving_to_spot", a.State())
	}
	a.Tick(ctx, time.Second)
	if a.State() != AgentSeeking {
		t.Fatalf("state = %s, want seeking after invalid path", a.State())
	}
	if sess.Pool.OccupiedCount() != 0 {
		t.Fatalf("slot not released after invalid path")
	}
}

func TestUnreachableSlotRescansOncePerSeekInterval(t *testing.T) {
	sess, rec, log := newTestSession(t, model.SiteDefinition{
		ID: "annex", Name: "annex", Position: orb.Point{70, 0},
		Slots: []model.SlotDefinition{{ID: "annex-seat-0", Position: orb.Point{70, 0}}},
	})
	a := startAgent(t, orb.Point{0, 0}, testParams(), sess)
	ctx := context.Background()
	dt := 100 * time.Millisecond

	grants := func() int {
		n := 0
		for _, e := range log.entries {
			if e == "seeking->moving_to_spot" {
				n++
			}
		}
		return n
	}

	// The first seek after placement is immediate.
	a.Tick(ctx, dt)
	if grants() != 1 {
		t.Fatalf("grants after first tick = %d, want 1", grants())
	}

	// A regression from moving_to_spot waits a full seek interval.
	ticksPerInterval := int(DefaultSeekInterval / dt)
	for i := 0; i < ticksPerInterval; i++ {
		a.Tick(ctx, dt)
	}
	if got := grants(); got > 2 {
		t.Fatalf("grants within one seek interval = %d, want at most 2", got)
	}

	for i := 0; i < 600; i++ {
		a.Tick(ctx, dt)
	}
	total := time.Duration(601+ticksPerInterval) * dt
	if max := int(total/DefaultSeekInterval) + 1; grants() > max {
		t.Fatalf("grants = %d over %v, want at most %d", grants(), total, max)
	}
	if len(rec.outcomes) != 0 {
		t.Fatalf("unexpected outcome %+v", rec.outcomes)
	}
}

func TestPlacementFailureDropsAgent(t *testing.T) {
	sess, rec, _ := newTestSession(t)
	a := NewAgent(NewPlanarNavigator(testFloor, orb.Point{500, 500}), testParams(), sess)

	err := a.Start(context.Background())
	if !errors.Is(err, ErrPlacementFailed) {
		t.Fatalf("expected ErrPlacementFailed, got %v", err)
	}
	if !a.Departed() {
		t.Fatalf("state = %s, want departed", a.State())
	}
	a.Tick(context.Background(), time.Second)
	if len(rec.outcomes) != 0 {
		t.Fatalf("dropped agent must not report")
	}
}

func TestPlacementSnapsNearbyPointOntoFloor(t *testing.T) {
	sess, _, _ := newTestSession(t)
	a := NewAgent(NewPlanarNavigator(testFloor, orb.Point{51, 0}), testParams(), sess)
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := a.Navigator().Position(); got != (orb.Point{50, 0}) {
		t.Fatalf("placed at %v, want (50,0)", got)
	}
}

func TestMissingExitDepartsInPlace(t *testing.T) {
	sess, rec, _ := newTestSession(t, siteDef("lib", orb.Point{0, 0}, 1))
	sess.HasExit = false
	params := testParams()
	params.StudyDuration = time.Second
	a := startAgent(t, orb.Point{0, 0}, params, sess)

	tickUntil(t, a, time.Second, 10, a.Departed)
	if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != model.OutcomeStudied {
		t.Fatalf("outcomes = %+v, want one studied", rec.outcomes)
	}
}

func TestScoreStaysInBounds(t *testing.T) {
	sess, rec, _ := newTestSession(t, siteDef("lib", orb.Point{0, 0}, 1))
	params := testParams()
	params.InitialScoreMin, params.InitialScoreMax = 3.9, 3.9
	params.ScoreBoostRate = 1
	a := startAgent(t, orb.Point{0, 0}, params, sess)
	tickUntil(t, a, time.Second, 40, func() bool { return len(rec.outcomes) == 1 })
	if got := rec.outcomes[0].FinalScore; got != MaxScore {
		t.Fatalf("score = %v, want clamp at %v", got, MaxScore)
	}

	blockedSess, blockedRec, _ := newTestSession(t, siteDef("lib", orb.Point{0, 0}, 1))
	blockedSess.Pool.Site("lib").TryAssign("x")
	params = testParams()
	params.InitialScoreMin, params.InitialScoreMax = 0.1, 0.1
	params.WaitPenaltyRate = 1
	b := startAgent(t, orb.Point{0, 0}, params, blockedSess)
	tickUntil(t, b, time.Second, 20, func() bool { return len(blockedRec.outcomes) == 1 })
	if got := blockedRec.outcomes[0].FinalScore; got != MinScore {
		t.Fatalf("score = %v, want clamp at %v", got, MinScore)
	}
}

func TestUpdateParametersAppliesSpeedImmediately(t *testing.T) {
	sess, _, _ := newTestSession(t, siteDef("lib", orb.Point{40, 0}, 1))
	params := testParams()
	a := startAgent(t, orb.Point{0, 0}, params, sess)
	a.Tick(context.Background(), time.Second)

	nav := a.Navigator().(*PlanarNavigator)
	if nav.Speed() != params.AgentSpeed {
		t.Fatalf("speed = %v, want %v", nav.Speed(), params.AgentSpeed)
	}
	params.AgentSpeed = 17
	a.UpdateParameters(params)
	if nav.Speed() != 17 {
		t.Fatalf("speed after broadcast = %v, want 17", nav.Speed())
	}
}

func TestNextAgentStateTable(t *testing.T) {
	cases := []struct {
		from  AgentState
		event AgentEvent
		want  AgentState
		ok    bool
	}{
		{AgentInitializing, EventPlaced, AgentSeeking, true},
		{AgentSeeking, EventSlotGranted, AgentMovingToSpot, true},
		{AgentSeeking, EventNoSlot, AgentWaitingNearSite, true},
		{AgentMovingToSpot, EventArrived, AgentStudying, true},
		{AgentWaitingNearSite, EventRetry, AgentSeeking, true},
		{AgentWaitingNearSite, EventWaitExpired, AgentMovingToExit, true},
		{AgentMovingToExit, EventPathInvalid, AgentDeparted, true},
		{AgentDeparted, EventPlaced, 0, false},
		{AgentStudying, EventNoSlot, 0, false},
	}
	for _, tc := range cases {
		got, ok := NextAgentState(tc.from, tc.event)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("NextAgentState(%s, %s) = %s, %v; want %s, %v", tc.from, tc.event, got, ok, tc.want, tc.ok)
		}
	}
}
