package heartbeat

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestApplyResult_HealthyStaysHealthy(t *testing.T) {
	cs := &ComponentState{Status: StatusHealthy, HealAttempts: 2}
	applyResult(cs, CheckResult{Status: StatusHealthy}, config.SelfHealConfig{})
	if cs.Status != StatusHealthy || cs.HealAttempts != 0 {
		t.Fatalf("got %+v", cs)
	}
}

func TestApplyResult_HealthyToDown(t *testing.T) {
	cs := &ComponentState{Status: StatusHealthy}
	applyResult(cs, CheckResult{Status: StatusDown}, config.SelfHealConfig{})
	if cs.Status != StatusDown {
		t.Fatalf("got %+v", cs)
	}
}

func TestApplyResult_DownToHealthyWithoutSelfHeal(t *testing.T) {
	cs := &ComponentState{Status: StatusDown}
	applyResult(cs, CheckResult{Status: StatusHealthy}, config.SelfHealConfig{Enabled: false})
	if cs.Status != StatusHealthy {
		t.Fatalf("got %+v", cs)
	}
}

func TestApplyResult_DownToRecoveringWithSelfHeal(t *testing.T) {
	cs := &ComponentState{Status: StatusDown}
	applyResult(cs, CheckResult{Status: StatusHealthy}, config.SelfHealConfig{Enabled: true})
	if cs.Status != StatusRecovering {
		t.Fatalf("got %+v", cs)
	}
}

func TestApplyResult_RecoveringReachesHealthyAfterBackoffTicks(t *testing.T) {
	cfg := config.SelfHealConfig{Enabled: true, BackoffTicks: 2}
	cs := &ComponentState{Status: StatusRecovering}
	applyResult(cs, CheckResult{Status: StatusHealthy}, cfg)
	if cs.Status != StatusRecovering {
		t.Fatalf("expected still recovering after 1 tick, got %+v", cs)
	}
	applyResult(cs, CheckResult{Status: StatusHealthy}, cfg)
	if cs.Status != StatusHealthy || cs.HealAttempts != 0 {
		t.Fatalf("expected healthy after backoffTicks, got %+v", cs)
	}
}

func TestApplyResult_RecoveringRelapsesOnDown(t *testing.T) {
	cs := &ComponentState{Status: StatusRecovering, ConsecutiveHealthyTicks: 1}
	applyResult(cs, CheckResult{Status: StatusDown}, config.SelfHealConfig{Enabled: true})
	if cs.Status != StatusDown || cs.ConsecutiveHealthyTicks != 0 {
		t.Fatalf("got %+v", cs)
	}
}

func TestWorstInterval(t *testing.T) {
	cases := []struct {
		name   string
		states map[string]*ComponentState
		want   Interval
	}{
		{"all healthy", map[string]*ComponentState{"a": {Status: StatusHealthy}}, IntervalHealthy},
		{"one degraded", map[string]*ComponentState{"a": {Status: StatusHealthy}, "b": {Status: StatusDegraded}}, IntervalDegraded},
		{"one recovering", map[string]*ComponentState{"a": {Status: StatusRecovering}}, IntervalDegraded},
		{"one down wins", map[string]*ComponentState{"a": {Status: StatusDegraded}, "b": {Status: StatusDown}}, IntervalCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := worstInterval(tc.states); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStateHash_StableAcrossMapOrder(t *testing.T) {
	a := map[string]*ComponentState{"x": {Status: StatusHealthy}, "y": {Status: StatusDown}}
	b := map[string]*ComponentState{"y": {Status: StatusDown}, "x": {Status: StatusHealthy}}
	if stateHash(a) != stateHash(b) {
		t.Fatalf("hash should not depend on map iteration order")
	}
}

func TestStateHash_ChangesOnStatusChange(t *testing.T) {
	a := map[string]*ComponentState{"x": {Status: StatusHealthy}}
	b := map[string]*ComponentState{"x": {Status: StatusDegraded}}
	if stateHash(a) == stateHash(b) {
		t.Fatal("expected different hashes")
	}
}
