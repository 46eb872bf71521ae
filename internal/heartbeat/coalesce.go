package heartbeat

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// coalescer debounces externally requested heartbeat runs (RequestTick):
// a burst of requests for the same agent within coalesceMs collapses to a
// single run, and backpressured reports backpressure via queueSize so
// the caller can retry after retryMs instead of firing immediately.
type coalescer struct {
	coalesceMs time.Duration
	retryMs    time.Duration
	queueSize  func() int

	mu   sync.Mutex
	last map[string]time.Time
}

func newCoalescer(cfg config.HeartbeatConfig, queueSize func() int) *coalescer {
	return &coalescer{
		coalesceMs: msOrDefault(cfg.CoalesceMs, 0),
		retryMs:    msOrDefault(cfg.RetryMs, 1_000),
		queueSize:  queueSize,
		last:       make(map[string]time.Time),
	}
}

// allow reports whether agentID's requested run falls outside the
// coalescing window since its last allowed request.
func (c *coalescer) allow(agentID string) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[agentID]
	if ok && c.coalesceMs > 0 && now.Sub(prev) < c.coalesceMs {
		return false
	}
	c.last[agentID] = now
	return true
}

// backpressured reports whether the external queue-size predicate
// indicates the run should be deferred.
func (c *coalescer) backpressured() bool {
	return c.queueSize != nil && c.queueSize() > 0
}
