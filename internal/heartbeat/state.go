package heartbeat

import (
	"sort"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// ComponentState is one checker's running state within an agent.
type ComponentState struct {
	Component               string
	Status                  Status
	HealAttempts            int
	ConsecutiveHealthyTicks int
}

func defaultMaxAttempts(cfg config.SelfHealConfig) int {
	if cfg.MaxAttempts > 0 {
		return cfg.MaxAttempts
	}
	return 3
}

func defaultBackoffTicks(cfg config.SelfHealConfig) int {
	if cfg.BackoffTicks > 0 {
		return cfg.BackoffTicks
	}
	return 1
}

// applyResult folds one check result into cs per the heartbeat state
// transition table:
//
//	healthy      + healthy           -> healthy (reset healAttempts)
//	healthy      + degraded|down     -> that state
//	degraded|down + healthy          -> recovering if selfHeal enabled, else healthy
//	degraded|down + degraded|down    -> that state
//	recovering   + healthy           -> recovering until consecutiveHealthyTicks
//	                                     reaches backoffTicks, then healthy
//	recovering   + degraded|down     -> that state
func applyResult(cs *ComponentState, result CheckResult, selfHeal config.SelfHealConfig) {
	switch cs.Status {
	case StatusHealthy:
		if result.Status == StatusHealthy {
			cs.HealAttempts = 0
			return
		}
		cs.Status = result.Status
		cs.ConsecutiveHealthyTicks = 0

	case StatusDegraded, StatusDown:
		if result.Status != StatusHealthy {
			cs.Status = result.Status
			cs.ConsecutiveHealthyTicks = 0
			return
		}
		cs.ConsecutiveHealthyTicks++
		if selfHeal.Enabled {
			cs.Status = StatusRecovering
		} else {
			cs.Status = StatusHealthy
			cs.ConsecutiveHealthyTicks = 0
			cs.HealAttempts = 0
		}

	case StatusRecovering:
		if result.Status != StatusHealthy {
			cs.Status = result.Status
			cs.ConsecutiveHealthyTicks = 0
			return
		}
		cs.ConsecutiveHealthyTicks++
		if cs.ConsecutiveHealthyTicks >= defaultBackoffTicks(selfHeal) {
			cs.Status = StatusHealthy
			cs.HealAttempts = 0
			cs.ConsecutiveHealthyTicks = 0
		}
	}
}

// Interval classifies an agent's worst component state into the three tick
// speeds the scheduler chooses between.
type Interval string

const (
	IntervalHealthy  Interval = "healthy"
	IntervalDegraded Interval = "degraded"
	IntervalCritical Interval = "critical"
)

// worstInterval returns critical iff any component is down, else degraded
// iff any is degraded or recovering, else healthy.
func worstInterval(components map[string]*ComponentState) Interval {
	degraded := false
	for _, cs := range components {
		if cs.Status == StatusDown {
			return IntervalCritical
		}
		if cs.Status == StatusDegraded || cs.Status == StatusRecovering {
			degraded = true
		}
	}
	if degraded {
		return IntervalDegraded
	}
	return IntervalHealthy
}

// stateHash returns a stable fingerprint of the sorted (component,status)
// pairs, used by the empty-check backoff to detect "nothing changed".
func stateHash(components map[string]*ComponentState) string {
	pairs := make([]string, 0, len(components))
	for name, cs := range components {
		pairs = append(pairs, name+"="+string(cs.Status))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func allHealthy(components map[string]*ComponentState) bool {
	for _, cs := range components {
		if cs.Status != StatusHealthy {
			return false
		}
	}
	return true
}
