// Package webchat is the in-process channel adapter: it is its own
// transport, accepting browser/CLI WebSocket clients directly rather than
// bridging to an external platform SDK.
package webchat

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/chunker"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

const defaultListenAddr = "127.0.0.1:19878"

// clientMessage is the inbound frame a browser/CLI client sends.
type clientMessage struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
	Sender string `json:"sender,omitempty"`
}

// serverFrame is the outbound frame pushed to connected clients.
type serverFrame struct {
	Event  string `json:"event"`
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// client is one connected WebSocket peer, identified by its chat id.
type client struct {
	chatID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Channel serves a WebSocket endpoint directly, normalizing client frames
// into bus.InboundMessage and pushing outbound replies back over the same
// connection keyed by chat id.
type Channel struct {
	*channels.BaseChannel
	cfg        *config.ChannelConfig
	upgrader   websocket.Upgrader
	httpServer *http.Server

	mu      sync.RWMutex
	clients map[string]*client // chatID -> client
}

// New creates a webchat channel from a configured channel instance.
func New(id string, cfg *config.ChannelConfig, msgBus *bus.MessageBus) (*Channel, error) {
	maxLen := cfg.MaxTextLength
	if maxLen == 0 {
		maxLen = chunker.MaxLenDiscord
	}

	caps := channels.Capabilities{
		Text: true, Image: false, Video: false, Audio: false, Document: false,
		Reaction: false, Typing: true, Edit: true, Delete: false, Reply: false,
		Thread: false, MaxTextLength: maxLen,
	}

	base := channels.NewBaseChannel(id, msgBus, cfg.AllowFrom, caps)
	return &Channel{
		BaseChannel: base,
		cfg:         cfg,
		upgrader:    websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024, CheckOrigin: func(*http.Request) bool { return true }},
		clients:     make(map[string]*client),
	}, nil
}

// Start opens the WebSocket listener.
func (c *Channel) Start(ctx context.Context) error {
	addr := c.cfg.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
	})

	c.httpServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.httpServer.Shutdown(shutdownCtx)
	}()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("webchat listen: %w", err)
	}

	go func() {
		if err := c.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("webchat server exited", "error", err, "channel", c.Name())
		}
	}()

	c.SetRunning(true)
	slog.Info("webchat listening", "addr", addr, "channel", c.Name())
	return nil
}

// Stop closes the WebSocket listener.
func (c *Channel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	if c.httpServer == nil {
		return nil
	}
	return c.httpServer.Shutdown(ctx)
}

func (c *Channel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("webchat upgrade failed", "error", err)
		return
	}

	var chatID string
	cl := &client{conn: conn}
	defer func() {
		if chatID != "" {
			c.mu.Lock()
			delete(c.clients, chatID)
			c.mu.Unlock()
		}
		conn.Close()
	}()

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.ChatID == "" {
			continue
		}
		if chatID == "" {
			chatID = msg.ChatID
			cl.chatID = chatID
			c.mu.Lock()
			c.clients[chatID] = cl
			c.mu.Unlock()
		}
		if msg.Text == "" {
			continue
		}

		senderID := msg.Sender
		if senderID == "" {
			senderID = chatID
		}

		c.HandleMessage(bus.InboundMessage{
			ID:          uuid.NewString(),
			SenderID:    senderID,
			SenderName:  senderID,
			ChatID:      chatID,
			PeerKind:    "direct",
			Content:     msg.Text,
			TimestampMs: time.Now().UnixMilli(),
			UserID:      senderID,
		})
	}
}

// Send pushes an outbound message to the connected client for msg.ChatID,
// if any. Silently drops the message if the client has disconnected —
// webchat has no offline delivery.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	cl, ok := c.clients[msg.ChatID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	event := protocol.AgentEventResponse
	if msg.IsEdit {
		event = protocol.AgentEventPartial
	}
	return cl.writeJSON(serverFrame{Event: event, ChatID: msg.ChatID, Text: msg.Content})
}

// SendTyping notifies the client a turn is in progress, satisfying
// channels.TypingChannel.
func (c *Channel) SendTyping(_ context.Context, chatID string) error {
	c.mu.RLock()
	cl, ok := c.clients[chatID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return cl.writeJSON(serverFrame{Event: protocol.AgentEventRunStarted, ChatID: chatID})
}

// EditMessage re-pushes text over the same connection, satisfying
// channels.EditChannel — webchat has no message ids to target, so edit and
// send are identical from the transport's point of view.
func (c *Channel) EditMessage(ctx context.Context, chatID, _ string, text string) error {
	return c.Send(ctx, bus.OutboundMessage{ChatID: chatID, Content: text, IsEdit: true})
}
