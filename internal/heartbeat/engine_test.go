package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

type fakeChecker struct {
	name   string
	status Status
}

func (f *fakeChecker) Name() string { return f.name }
func (f *fakeChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: f.status}
}

func TestEngine_GetAgentIntervalReflectsWorstComponent(t *testing.T) {
	e := New(config.HeartbeatConfig{Enabled: true}, nil)
	e.RegisterAgent("bot", []Checker{&fakeChecker{name: "transport", status: StatusHealthy}}, nil)

	if got := e.GetAgentInterval("bot"); got != IntervalHealthy {
		t.Fatalf("got %v", got)
	}

	e.RequestTick(context.Background(), "bot")
	if got := e.GetAgentInterval("bot"); got != IntervalHealthy {
		t.Fatalf("got %v", got)
	}
}

func TestEngine_RequestTickUpdatesComponentState(t *testing.T) {
	e := New(config.HeartbeatConfig{Enabled: true}, nil)
	checker := &fakeChecker{name: "db", status: StatusDown}
	e.RegisterAgent("bot", []Checker{checker}, nil)

	e.RequestTick(context.Background(), "bot")

	snap := e.Snapshot("bot")
	if len(snap) != 1 || snap[0].Status != StatusDown {
		t.Fatalf("got %+v", snap)
	}
	if got := e.GetAgentInterval("bot"); got != IntervalCritical {
		t.Fatalf("got %v", got)
	}
}

func TestEngine_UnknownAgentIsNoop(t *testing.T) {
	e := New(config.HeartbeatConfig{Enabled: true}, nil)
	e.RequestTick(context.Background(), "missing")
	if got := e.GetAgentInterval("missing"); got != IntervalHealthy {
		t.Fatalf("got %v", got)
	}
}

func TestInActiveHoursSkip_NormalWindow(t *testing.T) {
	ah := &config.ActiveHoursConfig{Start: 9, End: 17, Timezone: "UTC"}
	inside := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	if inActiveHoursSkip(ah, inside) {
		t.Fatal("expected not skipped at noon")
	}
	if !inActiveHoursSkip(ah, outside) {
		t.Fatal("expected skipped at 20:00")
	}
}

func TestInActiveHoursSkip_WrapsMidnight(t *testing.T) {
	ah := &config.ActiveHoursConfig{Start: 22, End: 6, Timezone: "UTC"}
	lateNight := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	if inActiveHoursSkip(ah, lateNight) {
		t.Fatal("expected not skipped at 23:00 for a 22-6 window")
	}
	if !inActiveHoursSkip(ah, midday) {
		t.Fatal("expected skipped at 13:00 for a 22-6 window")
	}
}

func TestCoalescer_CollapsesBurstWithinWindow(t *testing.T) {
	c := newCoalescer(config.HeartbeatConfig{CoalesceMs: 50}, nil)
	if !c.allow("bot") {
		t.Fatal("first request should be allowed")
	}
	if c.allow("bot") {
		t.Fatal("second request within window should be collapsed")
	}
	time.Sleep(60 * time.Millisecond)
	if !c.allow("bot") {
		t.Fatal("request after window should be allowed")
	}
}

func TestCoalescer_BackpressureFromQueueSize(t *testing.T) {
	depth := 3
	c := newCoalescer(config.HeartbeatConfig{}, func() int { return depth })
	if !c.backpressured() {
		t.Fatal("expected backpressure while queue is non-empty")
	}
	depth = 0
	if c.backpressured() {
		t.Fatal("expected no backpressure once queue drains")
	}
}
