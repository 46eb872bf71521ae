// Package protocol defines the wire-level event names shared between the
// gateway's webchat adapter, the CLI, and the Agent event stream.
package protocol

// ProtocolVersion identifies the wire protocol version, printed by the
// CLI's version and doctor output and reported by the webchat adapter's
// /health endpoint.
const ProtocolVersion = 1

// WebSocket event names for webchat clients. The webchat adapter's frames
// carry the Agent event types below instead; no component sends these.
const (
	EventAgent    = "agent"
	EventChat     = "chat"
	EventHealth   = "health"
	EventCron     = "cron"
	EventPresence = "presence"
	EventHeartbeat = "heartbeat"
)

// Agent event types, as emitted by AgentClient.SubscribeEvents.
const (
	AgentEventRunStarted   = "run.started"
	AgentEventPartial      = "partial"
	AgentEventResponse     = "response"
	AgentEventError        = "error"
	AgentEventToolCall     = "tool.call"
	AgentEventToolResult   = "tool.result"
)
