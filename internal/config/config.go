// Package config loads and hot-reloads the gateway's configuration file:
// gateway/channel/security/opencode/cron/logging/heartbeat/auto-reply
// settings read from iris.config.json (JSON5, with ${env:NAME} substitution).
// No environment variable overrides individual settings.
package config

import "sync"

// DefaultAgentID is used when a cron job or CLI invocation does not name an
// agent explicitly. The gateway is single-agent: this exists only because
// session keys are namespaced by agent id.
const DefaultAgentID = "default"

// Config is the root configuration object. Fields are grouped by the
// top-level keys recognized in iris.config.json.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Channels  ChannelsConfig  `json:"channels"`
	Security  SecurityConfig  `json:"security"`
	OpenCode  OpenCodeConfig  `json:"opencode"`
	Cron      []CronJobConfig `json:"cron,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	AutoReply AutoReplyConfig `json:"autoReply"`
	Canvas    CanvasConfig    `json:"canvas,omitempty"`
	MCP       MCPConfig       `json:"mcp,omitempty"`

	mu sync.RWMutex
}

// GatewayConfig controls the health server's listen address.
type GatewayConfig struct {
	Port     int    `json:"port"`
	Hostname string `json:"hostname"`
}

// SecurityConfig holds the Security Gate's global defaults. DefaultDMPolicy
// is one of "open", "pairing", "allowlist", "disabled" — mirrored at
// runtime by channels.DMPolicy, kept as a plain string here so this package
// does not need to import internal/channels.
type SecurityConfig struct {
	DefaultDMPolicy    string `json:"defaultDmPolicy"`
	PairingCodeTTLMs   int64  `json:"pairingCodeTtlMs"`
	PairingCodeLength  int    `json:"pairingCodeLength"`
	RateLimitPerMinute int    `json:"rateLimitPerMinute"`
	RateLimitPerHour   int    `json:"rateLimitPerHour"`
	RateLimitBurst     int    `json:"rateLimitBurst,omitempty"` // token-bucket burst size layered under the per-minute/per-hour window, 0 = disabled
}

// OpenCodeConfig points at the external Agent runtime this gateway talks to.
type OpenCodeConfig struct {
	Port       int    `json:"port"`
	Hostname   string `json:"hostname"`
	AutoSpawn  bool   `json:"autoSpawn"`
	ProjectDir string `json:"projectDir,omitempty"`
}

// CronJobConfig describes one scheduled prompt.
type CronJobConfig struct {
	ID         string `json:"id"`
	Enabled    bool   `json:"enabled"`
	Expression string `json:"expression"`
	Prompt     string `json:"prompt"`
	Channel    string `json:"channel"`
	ChatID     string `json:"chatId"`
	AgentID    string `json:"agentId,omitempty"`
}

// LoggingConfig controls log/slog's handler selection and level.
type LoggingConfig struct {
	Level string `json:"level,omitempty"` // "debug", "info" (default), "warn", "error"
	File  string `json:"file,omitempty"`  // empty = stderr
	JSON  bool   `json:"json,omitempty"`  // true = slog.JSONHandler, false = slog.TextHandler
}

// CanvasConfig and MCPConfig are parsed as opaque documents rather than
// typed structs and carried through unmodified on hot reload. Nothing in
// the gateway reads them, and they are not sent to the Agent runtime.
type CanvasConfig map[string]interface{}
type MCPConfig map[string]interface{}

// HeartbeatConfig configures the per-agent heartbeat/self-heal scheduler.
type HeartbeatConfig struct {
	Enabled           bool                     `json:"enabled"`
	TickHealthyMs     int64                    `json:"tickHealthyMs,omitempty"`  // default 300000 (5m)
	TickDegradedMs    int64                    `json:"tickDegradedMs,omitempty"` // default 60000 (1m)
	TickCriticalMs    int64                    `json:"tickCriticalMs,omitempty"` // default 15000
	ActiveHours       *ActiveHoursConfig       `json:"activeHours,omitempty"`
	SelfHeal          SelfHealConfig           `json:"selfHeal,omitempty"`
	EmptyCheckBackoff *EmptyCheckBackoffConfig `json:"emptyCheckBackoff,omitempty"`
	CoalesceMs        int64                    `json:"coalesceMs,omitempty"`
	RetryMs           int64                    `json:"retryMs,omitempty"`
	AckMaxChars       int                      `json:"ackMaxChars,omitempty"`
}

// ActiveHoursConfig restricts heartbeat ticking to a time-of-day window in
// the given timezone. Start > End means the window wraps past midnight.
type ActiveHoursConfig struct {
	Start    int    `json:"start"` // 0-23
	End      int    `json:"end"`   // 0-23
	Timezone string `json:"timezone,omitempty"`
}

// SelfHealConfig controls whether and how aggressively a checker's heal()
// is invoked when its component reports down/degraded.
type SelfHealConfig struct {
	Enabled      bool `json:"enabled"`
	MaxAttempts  int  `json:"maxAttempts,omitempty"`  // default 3
	BackoffTicks int  `json:"backoffTicks,omitempty"` // consecutive healthy ticks before recovering->healthy
}

// EmptyCheckBackoffConfig widens the tick interval while nothing changes.
type EmptyCheckBackoffConfig struct {
	BaseMs       int64 `json:"baseMs,omitempty"`
	MaxBackoffMs int64 `json:"maxBackoffMs,omitempty"`
}

// AutoReplyConfig holds the Auto-reply Engine's template list.
type AutoReplyConfig struct {
	Enabled   bool                `json:"enabled"`
	Templates []AutoReplyTemplate `json:"templates,omitempty"`
}

// AutoReplyTemplate is one canned-response rule.
type AutoReplyTemplate struct {
	Name        string   `json:"name"`
	Priority    int      `json:"priority,omitempty"`
	Trigger     string   `json:"trigger"` // "exact", "regex", "keyword", "command", "schedule"
	Pattern     string   `json:"pattern,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Command     string   `json:"command,omitempty"`
	HoursStart  int      `json:"hoursStart,omitempty"`
	HoursEnd    int      `json:"hoursEnd,omitempty"`
	DaysOfWeek  []int    `json:"daysOfWeek,omitempty"` // 0=Sunday
	Channels    []string `json:"channels,omitempty"`
	ChatTypes   []string `json:"chatTypes,omitempty"`
	CooldownMs  int64    `json:"cooldownMs,omitempty"`
	Once        bool     `json:"once,omitempty"`
	Response    string   `json:"response"`
	ForwardToAI bool     `json:"forwardToAi,omitempty"`
}

// ReplaceFrom atomically swaps this config's fields for src's, used by the
// hot-reload watcher so in-flight readers never observe a half-updated
// config.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Channels = src.Channels
	c.Security = src.Security
	c.OpenCode = src.OpenCode
	c.Cron = src.Cron
	c.Logging = src.Logging
	c.Heartbeat = src.Heartbeat
	c.AutoReply = src.AutoReply
	c.Canvas = src.Canvas
	c.MCP = src.MCP
}

// Snapshot returns a shallow copy safe to read without holding the lock
// across subsequent mutation.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := *c
	cp.mu = sync.RWMutex{}
	return cp
}
