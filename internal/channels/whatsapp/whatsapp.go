// Package whatsapp connects to a WhatsApp bridge process (e.g. a
// whatsapp-web.js based multi-device client) over a JSON WebSocket protocol.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/chunker"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// Channel connects to a WhatsApp bridge via WebSocket. The bridge handles
// the actual WhatsApp protocol; this channel just sends/receives JSON
// messages over WS.
type Channel struct {
	*channels.BaseChannel
	cfg *config.ChannelConfig

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new WhatsApp channel from a configured channel instance.
func New(id string, cfg *config.ChannelConfig, msgBus *bus.MessageBus) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridgeUrl is required")
	}

	maxLen := cfg.MaxTextLength
	if maxLen == 0 {
		maxLen = chunker.MaxLenWhatsApp
	}

	caps := channels.Capabilities{
		Text: true, Image: true, Video: true, Audio: true, Document: true,
		Reaction: false, Typing: false, Edit: false, Delete: false, Reply: false,
		Thread: false, MaxTextLength: maxLen,
	}

	base := channels.NewBaseChannel(id, msgBus, cfg.AllowFrom, caps)
	return &Channel{BaseChannel: base, cfg: cfg}, nil
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.cfg.BridgeURL, "channel", c.Name())

	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel", "channel", c.Name())

	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.SetRunning(false)

	return nil
}

// Send delivers an outbound message to the WhatsApp bridge, chunking it to
// the bridge's text limit.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	for _, chunk := range chunker.Split(msg.Content, c.Capabilities().MaxTextLength) {
		payload, err := json.Marshal(map[string]interface{}{
			"type":    "message",
			"to":      msg.ChatID,
			"content": chunk,
		})
		if err != nil {
			return fmt.Errorf("marshal whatsapp message: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return fmt.Errorf("send whatsapp message: %w", err)
		}
	}
	return nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect() error {
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.cfg.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.cfg.BridgeURL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.cfg.BridgeURL, "channel", c.Name())
	return nil
}

// listenLoop reads messages from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff, "channel", c.Name())

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, 30*time.Second)
				continue
			}

			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("whatsapp read error, will reconnect", "error", err)

			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.connected = false
			c.mu.Unlock()

			continue
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("invalid whatsapp message JSON", "error", err)
			continue
		}

		if msgType, _ := msg["type"].(string); msgType == "message" {
			c.handleIncomingMessage(msg)
		}
	}
}

// handleIncomingMessage normalizes a message received from the bridge into
// a bus.InboundMessage. Policy checks, mention gating and auto-reply
// dispatch all happen downstream in the router.
// Expected format: {"type":"message","from":"...","chat":"...","content":"...","id":"...","from_name":"..."}
func (c *Channel) handleIncomingMessage(msg map[string]interface{}) {
	senderID, ok := msg["from"].(string)
	if !ok || senderID == "" {
		return
	}

	chatID, _ := msg["chat"].(string)
	if chatID == "" {
		chatID = senderID
	}

	peerKind := "direct"
	if strings.HasSuffix(chatID, "@g.us") {
		peerKind = "group"
	}

	content, _ := msg["content"].(string)
	if content == "" {
		return
	}

	metadata := make(map[string]string)
	messageID, _ := msg["id"].(string)
	if messageID != "" {
		metadata["message_id"] = messageID
	}
	senderName, _ := msg["from_name"].(string)

	c.HandleMessage(bus.InboundMessage{
		ID:          messageID,
		SenderID:    senderID,
		SenderName:  senderName,
		ChatID:      chatID,
		PeerKind:    peerKind,
		Content:     content,
		TimestampMs: time.Now().UnixMilli(),
		Metadata:    metadata,
	})
}
