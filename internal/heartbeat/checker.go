// Package heartbeat implements the per-agent health state machine: a
// common ticker runs a list of Checkers per agent, folds their results into
// a healthy/degraded/down/recovering state per component, and widens or
// narrows the agent's own tick interval based on the worst component state.
package heartbeat

import "context"

// Status is one component's health state.
type Status string

const (
	StatusHealthy    Status = "healthy"
	StatusDegraded   Status = "degraded"
	StatusDown       Status = "down"
	StatusRecovering Status = "recovering"
)

// CheckResult is one Checker invocation's outcome.
type CheckResult struct {
	Status    Status
	LatencyMs int64
	Details   string
}

// Checker probes one component of an agent's health.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Healer is optionally implemented by a Checker that can attempt to repair
// its component. Not every checker supports self-heal.
type Healer interface {
	Heal(ctx context.Context) bool
}
