package speedrun

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T, callLimit int) (*Scheduler, *Service) {
	t.Helper()
	svc, mock := newTestService(t)
	svc.Cfg.CallLimit = callLimit
	// Unreachable upstream: refreshes record misses and stay within budget.
	mock.RespondStatus("/games", http.StatusNotFound)
	mock.Respond("/users", []map[string]any{})
	sched := NewScheduler(svc, func() []ChannelState { return nil })
	return sched, svc
}

func TestTickRespectsBudget(t *testing.T) {
	sched, svc := newTestScheduler(t, 3)
	start := time.Now()
	for i := 0; i < 10; i++ {
		svc.Store.StampGame("game"+string(rune('a'+i)), start)
	}
	now := start.Add(2 * time.Hour)
	for i := 0; i < 10; i++ {
		sched.Tick(context.Background(), now)
	}
	if got := sched.WindowOccupancy(); got != 3 {
		t.Errorf("window occupancy = %d, want 3", got)
	}
}

func TestTickBudgetSimulation(t *testing.T) {
	svc, mock := newTestService(t)
	svc.Cfg.CallLimit = 5
	sched := NewScheduler(svc, func() []ChannelState { return nil })

	// More stale games than ticks, so every refresh picked over the run is a
	// whole-game load costing one slot and the window bound holds exactly.
	start := time.Now()
	for i := 0; i < 300; i++ {
		svc.Store.StampGame(fmt.Sprintf("game%03d", i), start)
	}
	now := start.Add(2 * time.Hour)
	for i := 0; i < 200; i++ {
		sched.Tick(context.Background(), now.Add(time.Duration(i)*time.Second))
		if got := sched.WindowOccupancy(); got > svc.Cfg.CallLimit {
			t.Fatalf("tick %d: window occupancy %d over limit %d",
				i, got, svc.Cfg.CallLimit)
		}
	}
	if n := len(mock.Requests); n <= svc.Cfg.CallLimit {
		t.Errorf("refreshes stopped after the first window: %d requests", n)
	}
}

func TestTickWindowExpiry(t *testing.T) {
	sched, svc := newTestScheduler(t, 1)
	start := time.Now()
	svc.Store.StampGame("g1", start)
	svc.Store.StampGame("g2", start)

	now := start.Add(2 * time.Hour)
	sched.Tick(context.Background(), now)
	if got := sched.WindowOccupancy(); got != 1 {
		t.Fatalf("window occupancy = %d, want 1", got)
	}
	// Budget full: the next tick within the window does nothing.
	sched.Tick(context.Background(), now.Add(time.Second))
	if got := sched.WindowOccupancy(); got != 1 {
		t.Errorf("budget-full tick booked calls: %d", got)
	}
	// The booked slot falls out of the window and a new refresh runs.
	sched.Tick(context.Background(), now.Add(svc.Cfg.CallWindow+time.Second))
	if got := sched.WindowOccupancy(); got != 1 {
		t.Errorf("window occupancy after expiry = %d, want 1", got)
	}
}

func TestTickChargesFullLookupCost(t *testing.T) {
	sched, svc := newTestScheduler(t, 3)
	start := time.Now()
	svc.Store.StampPlayerLookup("speedy", start)

	now := start.Add(2 * time.Hour)
	sched.Tick(context.Background(), now)
	// The lookup costs four slots; the check runs at tick start, so a single
	// refresh may overshoot the limit, and the window then blocks the rest.
	if got := sched.WindowOccupancy(); got != 4 {
		t.Fatalf("window occupancy = %d, want 4", got)
	}
	sched.Tick(context.Background(), now.Add(time.Second))
	if got := sched.WindowOccupancy(); got != 4 {
		t.Errorf("overshot window still booked calls: %d", got)
	}
}

func TestTickSkipsAbandonedBoards(t *testing.T) {
	sched, svc := newTestScheduler(t, 10)
	start := time.Now()
	id := BoardID{GameID: "g1", CategoryID: "c1"}
	svc.Store.StampBoard(id, start)
	svc.Store.MarkBoardActive(id, start)

	// Long after anyone asked: the stale board is left alone and, with
	// nothing else stale and no channels, the tick books nothing.
	sched.Tick(context.Background(), start.Add(5*time.Hour))
	if got := sched.WindowOccupancy(); got != 0 {
		t.Errorf("abandoned board refresh booked %d calls", got)
	}
}
