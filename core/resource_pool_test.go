package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"

	"github.com/signalsfoundry/study-session-simulator/model"
)

func siteDef(id string, pos orb.Point, capacity int) model.SiteDefinition {
	def := model.SiteDefinition{ID: id, Name: id, Position: pos}
	for i := 0; i < capacity; i++ {
		def.Slots = append(def.Slots, model.SlotDefinition{
			ID:       fmt.Sprintf("%s-seat-%d", id, i),
			Position: orb.Point{pos[0] + float64(i), pos[1]},
		})
	}
	return def
}

func TestTryAssignFirstFreeInOrder(t *testing.T) {
	site := NewResourceSite(siteDef("lib", orb.Point{0, 0}, 3))

	first, ok := site.TryAssign("a")
	if !ok || first != "lib-seat-0" {
		t.Fatalf("first grant = %q, %v; want lib-seat-0", first, ok)
	}
	second, _ := site.TryAssign("b")
	if second != "lib-seat-1" {
		t.Fatalf("second grant = %q, want lib-seat-1", second)
	}

	if !site.Vacate(first, "a") {
		t.Fatalf("owner vacate should succeed")
	}
	again, _ := site.TryAssign("c")
	if again != first {
		t.Fatalf("freed slot should be reused first: got %q want %q", again, first)
	}
}

func TestTryAssignRefusesWhenFull(t *testing.T) {
	site := NewResourceSite(siteDef("lib", orb.Point{0, 0}, 1))
	if _, ok := site.TryAssign("a"); !ok {
		t.Fatalf("expected first grant")
	}
	if _, ok := site.TryAssign("b"); ok {
		t.Fatalf("full site must refuse")
	}
	if site.HasAvailableSlot() {
		t.Fatalf("HasAvailableSlot should be false when full")
	}
	if _, ok := site.TryAssign(""); ok {
		t.Fatalf("empty owner must be refused")
	}
}

func TestVacateByNonOwnerIsNoop(t *testing.T) {
	site := NewResourceSite(siteDef("lib", orb.Point{0, 0}, 1))
	slot, _ := site.TryAssign("a")

	if site.Vacate(slot, "b") {
		t.Fatalf("non-owner vacate must be rejected")
	}
	if owner, ok := site.Occupant(slot); !ok || owner != "a" {
		t.Fatalf("occupant = %q, %v; want a", owner, ok)
	}

	site.Vacate(slot, "a")
	if site.Vacate(slot, "a") {
		t.Fatalf("duplicate vacate must be a no-op")
	}
}

func TestConcurrentTryAssignNeverDoubleGrants(t *testing.T) {
	for _, capacity := range []int{1, 4} {
		site := NewResourceSite(siteDef("lib", orb.Point{0, 0}, capacity))

		var granted atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, ok := site.TryAssign(fmt.Sprintf("agent-%d", i)); ok {
					granted.Add(1)
				}
			}(i)
		}
		wg.Wait()

		if got := int(granted.Load()); got != capacity {
			t.Fatalf("capacity %d: %d grants", capacity, got)
		}
		if site.OccupiedCount() != capacity {
			t.Fatalf("occupied = %d, want %d", site.OccupiedCount(), capacity)
		}
	}
}

func TestInactiveSiteKeepsOccupants(t *testing.T) {
	pool, err := NewResourcePool([]model.SiteDefinition{siteDef("lib", orb.Point{0, 0}, 2)})
	if err != nil {
		t.Fatalf("NewResourcePool: %v", err)
	}
	site := pool.Site("lib")
	slot, _ := site.TryAssign("a")

	if err := pool.SetActive("lib", false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if owner, ok := site.Occupant(slot); !ok || owner != "a" {
		t.Fatalf("deactivation evicted occupant")
	}
	if pool.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", pool.ActiveCount())
	}
	if got := NearestAvailable(orb.Point{0, 0}, pool.Sites()); got != nil {
		t.Fatalf("inactive site selected: %s", got.ID)
	}
}

func TestPoolRejectsDuplicatesAndUnknownSites(t *testing.T) {
	_, err := NewResourcePool([]model.SiteDefinition{
		siteDef("a", orb.Point{0, 0}, 1),
		siteDef("a", orb.Point{5, 0}, 1),
	})
	if !errors.Is(err, ErrSiteExists) {
		t.Fatalf("expected ErrSiteExists, got %v", err)
	}

	pool, _ := NewResourcePool(nil)
	if err := pool.SetActive("missing", true); !errors.Is(err, ErrSiteNotFound) {
		t.Fatalf("expected ErrSiteNotFound, got %v", err)
	}
}

func TestPoolResetClearsOccupancy(t *testing.T) {
	pool, _ := NewResourcePool([]model.SiteDefinition{
		siteDef("a", orb.Point{0, 0}, 2),
		siteDef("b", orb.Point{10, 0}, 3),
	})
	pool.Site("a").TryAssign("x")
	pool.Site("b").TryAssign("y")
	if pool.OccupiedCount() != 2 || pool.Capacity() != 5 {
		t.Fatalf("occupied=%d capacity=%d", pool.OccupiedCount(), pool.Capacity())
	}
	pool.Reset()
	if pool.OccupiedCount() != 0 {
		t.Fatalf("occupied after reset = %d", pool.OccupiedCount())
	}
}

func TestNearestAvailable(t *testing.T) {
	near := NewResourceSite(siteDef("near", orb.Point{2, 0}, 1))
	far := NewResourceSite(siteDef("far", orb.Point{9, 0}, 1))
	twin := NewResourceSite(siteDef("twin", orb.Point{-2, 0}, 1))

	cases := []struct {
		name  string
		sites []*ResourceSite
		setup func()
		want  string
	}{
		{name: "closest wins", sites: []*ResourceSite{far, near}, want: "near"},
		{name: "tie goes to first", sites: []*ResourceSite{twin, near}, want: "twin"},
		{name: "full site skipped", sites: []*ResourceSite{near, far}, setup: func() { near.TryAssign("z") }, want: "far"},
		{name: "none available", sites: []*ResourceSite{near}, want: ""},
		{name: "empty input", sites: nil, want: ""},
	}
	for _, tc := range cases {
		if tc.setup != nil {
			tc.setup()
		}
		got := NearestAvailable(orb.Point{0, 0}, tc.sites)
		gotID := ""
		if got != nil {
			gotID = got.ID
		}
		if gotID != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, gotID, tc.want)
		}
	}
}
