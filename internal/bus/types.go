// Package bus defines the inbound and outbound message types exchanged by
// channel adapters and the message router, carries inbound messages to the
// router, and broadcasts server-side events to subscribed handlers.
package bus

// InboundMessage represents a message received from a channel (Telegram, Discord, etc.)
// Identity is (Channel, ID); once published it is never mutated.
type InboundMessage struct {
	ID           string            `json:"id"`
	Channel      string            `json:"channel"`
	SenderID     string            `json:"sender_id"`
	SenderName   string            `json:"sender_name,omitempty"`
	ChatID       string            `json:"chat_id"`
	PeerKind     string            `json:"peer_kind,omitempty"` // "direct" or "group"
	Content      string            `json:"content"`
	Media        []MediaAttachment `json:"media,omitempty"`
	ReplyToID    string            `json:"reply_to_id,omitempty"`
	TimestampMs  int64             `json:"timestamp_ms,omitempty"`
	SessionKey   string            `json:"session_key,omitempty"`
	AgentID      string            `json:"agent_id,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	HistoryLimit int               `json:"history_limit,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Raw          interface{}       `json:"-"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	ReplyToID string            `json:"reply_to_id,omitempty"`
	Media     []MediaAttachment `json:"media,omitempty"`
	IsEdit    bool              `json:"is_edit,omitempty"`
	EditMsgID string            `json:"edit_message_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MediaAttachment represents a media file attached to an inbound or outbound message.
type MediaAttachment struct {
	Kind     string `json:"kind"` // "image","video","audio","document"
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload,omitempty"`
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Implemented by MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

