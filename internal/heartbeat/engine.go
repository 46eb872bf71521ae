package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// pollInterval is the engine's own wakeup cadence; each agent only actually
// runs once now >= its own nextDueMs, so this just needs to be finer than
// the shortest configured tick (tickCriticalMs).
const pollInterval = 2 * time.Second

// agentState is one agent's private heartbeat bookkeeping. Owned exclusively
// by the engine goroutine; getters return snapshots copied under mu.
type agentState struct {
	id          string
	checkers    []Checker
	activeHours *config.ActiveHoursConfig

	mu         sync.Mutex
	components map[string]*ComponentState
	nextDueMs  int64

	emptyHash        string
	consecutiveEmpty int
}

// Engine runs the heartbeat scheduler for every registered agent.
type Engine struct {
	cfg config.HeartbeatConfig

	mu     sync.Mutex
	agents map[string]*agentState

	coalesce *coalescer

	stop context.CancelFunc
}

// New creates an Engine from its heartbeat configuration. queueSize, if
// non-nil, is consulted by the coalescer to defer a requested run under
// backpressure.
func New(cfg config.HeartbeatConfig, queueSize func() int) *Engine {
	return &Engine{
		cfg:      cfg,
		agents:   make(map[string]*agentState),
		coalesce: newCoalescer(cfg, queueSize),
	}
}

// RegisterAgent adds an agent with its checkers and optional active-hours
// window. Safe to call before or after Start.
func (e *Engine) RegisterAgent(agentID string, checkers []Checker, activeHours *config.ActiveHoursConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	components := make(map[string]*ComponentState, len(checkers))
	for _, c := range checkers {
		components[c.Name()] = &ComponentState{Component: c.Name(), Status: StatusHealthy}
	}
	e.agents[agentID] = &agentState{
		id:          agentID,
		checkers:    checkers,
		activeHours: activeHours,
		components:  components,
	}
}

// Start launches the scheduling loop. Not safe to call twice.
func (e *Engine) Start(ctx context.Context) {
	if !e.cfg.Enabled {
		return
	}
	sctx, cancel := context.WithCancel(ctx)
	e.stop = cancel
	go e.loop(sctx)
}

// Stop halts the scheduling loop.
func (e *Engine) Stop() {
	if e.stop != nil {
		e.stop()
	}
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	now := time.Now()
	nowMs := now.UnixMilli()

	e.mu.Lock()
	agents := make([]*agentState, 0, len(e.agents))
	for _, a := range e.agents {
		agents = append(agents, a)
	}
	e.mu.Unlock()

	for _, a := range agents {
		a.mu.Lock()
		due := nowMs >= a.nextDueMs
		a.mu.Unlock()
		if !due {
			continue
		}
		if inActiveHoursSkip(a.activeHours, now) {
			continue
		}
		e.runAgent(ctx, a, now)
	}
}

func (e *Engine) runAgent(ctx context.Context, a *agentState, now time.Time) {
	for _, c := range a.checkers {
		result := c.Check(ctx)

		a.mu.Lock()
		cs, ok := a.components[c.Name()]
		if !ok {
			cs = &ComponentState{Component: c.Name(), Status: StatusHealthy}
			a.components[c.Name()] = cs
		}
		prevStatus := cs.Status
		applyResult(cs, result, e.cfg.SelfHeal)
		a.mu.Unlock()

		if (cs.Status == StatusDown || cs.Status == StatusDegraded) && e.cfg.SelfHeal.Enabled {
			e.maybeHeal(ctx, c, cs)
		}
		if prevStatus != cs.Status {
			slog.Info("heartbeat: component state changed", "agent", a.id, "component", c.Name(),
				"from", prevStatus, "to", cs.Status, "details", result.Details)
		}
	}

	a.mu.Lock()
	interval := worstInterval(a.components)
	a.nextDueMs = now.Add(e.intervalFor(interval, a)).UnixMilli()
	a.mu.Unlock()
}

func (e *Engine) maybeHeal(ctx context.Context, c Checker, cs *ComponentState) {
	healer, ok := c.(Healer)
	if !ok {
		return
	}
	if cs.HealAttempts >= defaultMaxAttempts(e.cfg.SelfHeal) {
		return
	}
	cs.HealAttempts++
	ok2 := healer.Heal(ctx)
	slog.Info("heartbeat: self-heal attempted", "component", c.Name(), "attempt", cs.HealAttempts, "succeeded", ok2)
	if ok2 {
		cs.Status = StatusRecovering
	}
}

// intervalFor resolves the configured tick duration for kind, applying the
// empty-check backoff when every component is healthy and nothing changed
// since the previous healthy tick.
func (e *Engine) intervalFor(kind Interval, a *agentState) time.Duration {
	base := e.cfg.TickHealthyMs
	switch kind {
	case IntervalCritical:
		return msOrDefault(e.cfg.TickCriticalMs, 15_000)
	case IntervalDegraded:
		return msOrDefault(e.cfg.TickDegradedMs, 60_000)
	}

	healthyMs := msOrDefault(base, 300_000)
	if e.cfg.EmptyCheckBackoff == nil || !allHealthy(a.components) {
		a.consecutiveEmpty = 0
		a.emptyHash = ""
		return healthyMs
	}

	hash := stateHash(a.components)
	if hash != a.emptyHash {
		a.emptyHash = hash
		a.consecutiveEmpty = 0
		return healthyMs
	}

	a.consecutiveEmpty++
	backoffCfg := e.cfg.EmptyCheckBackoff
	baseMs := msOrDefault(backoffCfg.BaseMs, int64(healthyMs/time.Millisecond))
	maxMs := msOrDefault(backoffCfg.MaxBackoffMs, 3_600_000)
	next := baseMs << uint(a.consecutiveEmpty)
	if next > maxMs || next <= 0 {
		next = maxMs
	}
	return time.Duration(next) * time.Millisecond
}

func msOrDefault(v int64, def int64) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Millisecond
}

// GetAgentInterval reports the classification (healthy/degraded/critical)
// that the agent's current component states would yield.
func (e *Engine) GetAgentInterval(agentID string) Interval {
	e.mu.Lock()
	a, ok := e.agents[agentID]
	e.mu.Unlock()
	if !ok {
		return IntervalHealthy
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return worstInterval(a.components)
}

// Snapshot returns a copy of the agent's component states.
func (e *Engine) Snapshot(agentID string) []ComponentState {
	e.mu.Lock()
	a, ok := e.agents[agentID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ComponentState, 0, len(a.components))
	for _, cs := range a.components {
		out = append(out, *cs)
	}
	return out
}

// RequestTick asks the engine to run agentID's checks immediately, subject
// to the configured coalescing window and backpressure deferral. Requests
// collapsed by coalescing are dropped silently; requests deferred by
// backpressure are re-polled every retryMs until the queue drains or ctx
// is cancelled.
func (e *Engine) RequestTick(ctx context.Context, agentID string) {
	e.mu.Lock()
	a, ok := e.agents[agentID]
	e.mu.Unlock()
	if !ok {
		return
	}
	if !e.coalesce.allow(agentID) {
		return
	}
	for e.coalesce.backpressured() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.coalesce.retryMs):
		}
	}
	e.runAgent(ctx, a, time.Now())
}

// inActiveHoursSkip reports whether now falls outside the configured
// active-hours window, handling windows that cross midnight.
func inActiveHoursSkip(ah *config.ActiveHoursConfig, now time.Time) bool {
	if ah == nil {
		return false
	}
	loc := time.Local
	if ah.Timezone != "" {
		if l, err := time.LoadLocation(ah.Timezone); err == nil {
			loc = l
		}
	}
	hour := now.In(loc).Hour()
	if ah.Start <= ah.End {
		return !(hour >= ah.Start && hour < ah.End)
	}
	return !(hour >= ah.Start || hour < ah.End)
}
