package heartbeat

import (
	"context"
	"fmt"
	"time"
)

// AgentTransportChecker is "transport": Checker against the external Agent
// process, the same health call the health server's /ready endpoint uses.
// Implemented by internal/agentclient.Client.
type AgentTransportChecker interface {
	CheckHealth(ctx context.Context) error
}

type agentTransportChecker struct {
	client AgentTransportChecker
}

// NewAgentTransportChecker wraps an Agent client as a heartbeat Checker
// named "transport".
func NewAgentTransportChecker(client AgentTransportChecker) Checker {
	return &agentTransportChecker{client: client}
}

func (c *agentTransportChecker) Name() string { return "transport" }

func (c *agentTransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := c.client.CheckHealth(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return CheckResult{Status: StatusDown, LatencyMs: latency, Details: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, LatencyMs: latency}
}

// ChannelsStatusProvider reports the running state of every registered
// channel adapter. Implemented by internal/channels.Manager.
type ChannelsStatusProvider interface {
	GetStatus() map[string]bool
}

// channelsChecker is "channels": down if every registered adapter is
// stopped, degraded if some but not all are.
type channelsChecker struct {
	channels ChannelsStatusProvider
}

// NewChannelsChecker wraps a channel Manager as a heartbeat Checker named
// "channels".
func NewChannelsChecker(chanMgr ChannelsStatusProvider) Checker {
	return &channelsChecker{channels: chanMgr}
}

func (c *channelsChecker) Name() string { return "channels" }

func (c *channelsChecker) Check(context.Context) CheckResult {
	status := c.channels.GetStatus()
	if len(status) == 0 {
		return CheckResult{Status: StatusHealthy}
	}
	running, down := 0, 0
	for _, ok := range status {
		if ok {
			running++
		} else {
			down++
		}
	}
	switch {
	case running == 0:
		return CheckResult{Status: StatusDown, Details: fmt.Sprintf("%d channels stopped", down)}
	case down > 0:
		return CheckResult{Status: StatusDegraded, Details: fmt.Sprintf("%d of %d channels stopped", down, down+running)}
	default:
		return CheckResult{Status: StatusHealthy}
	}
}
