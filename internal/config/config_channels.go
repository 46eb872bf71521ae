package config

// ChannelsConfig maps a channel id (arbitrary, e.g. "telegram-main") to its
// configuration. A deployment may run more than one instance of the same
// adapter type under different ids (two Telegram bots, for example).
type ChannelsConfig map[string]*ChannelConfig

// ChannelConfig is one configured channel instance.
type ChannelConfig struct {
	Type     string `json:"type"` // "telegram", "whatsapp", "discord", "slack", "webchat"
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"`
	AppToken string `json:"appToken,omitempty"` // slack: socket-mode app-level token
	BotToken string `json:"botToken,omitempty"` // slack: bot token (xoxb-...)

	DMPolicy    string             `json:"dmPolicy,omitempty"` // "open", "pairing" (default), "allowlist", "disabled"
	GroupPolicy *GroupPolicyConfig `json:"groupPolicy,omitempty"`

	MentionPattern string `json:"mentionPattern,omitempty"` // overrides the default @botId\b match
	BotUserID      string `json:"botUserId,omitempty"`      // bot identifier substituted into the default mention pattern
	MaxTextLength  int    `json:"maxTextLength,omitempty"`  // 0 = adapter default

	Streaming *StreamingConfig `json:"streaming,omitempty"`

	AllowFrom []string `json:"allowFrom,omitempty"` // static allowlist, independent of the pairing store

	BridgeURL  string `json:"bridgeUrl,omitempty"`  // whatsapp: bridge process URL
	ListenAddr string `json:"listenAddr,omitempty"` // webchat: ws listen address, default 127.0.0.1:19878
}

// GroupPolicyConfig controls group-chat admission and mention gating.
type GroupPolicyConfig struct {
	Enabled         bool     `json:"enabled"`
	RequireMention  bool     `json:"requireMention,omitempty"`
	AllowedCommands []string `json:"allowedCommands,omitempty"`
}

// StreamingConfig controls the Stream Coalescer installed for this channel.
type StreamingConfig struct {
	Enabled     bool     `json:"enabled"`
	MinChars    int      `json:"minChars,omitempty"`    // don't flush below this many buffered chars
	MaxChars    int      `json:"maxChars,omitempty"`    // force a flush at this many buffered chars
	IdleMs      int64    `json:"idleMs,omitempty"`      // flush after this much time with no new delta
	BreakOn     []string `json:"breakOn,omitempty"`     // parsed but not passed to the coalescer; flush points follow the chunker's fixed boundary order
	EditInPlace bool     `json:"editInPlace,omitempty"` // edit one message instead of sending a new one per chunk
}

// EnabledIDs returns the ids of channels marked enabled.
func (c ChannelsConfig) EnabledIDs() []string {
	ids := make([]string, 0, len(c))
	for id, cc := range c {
		if cc != nil && cc.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// ByType returns the id and config of an enabled channel of the given
// adapter type. When several enabled channels share the type, which one is
// returned follows map iteration order and is not fixed. `send` looks
// channels up by their configured id, not through ByType.
func (c ChannelsConfig) ByType(channelType string) (string, *ChannelConfig, bool) {
	for id, cc := range c {
		if cc != nil && cc.Enabled && cc.Type == channelType {
			return id, cc, true
		}
	}
	return "", nil, false
}
