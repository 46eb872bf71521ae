package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

// Manager owns the registry of live channel adapters and dispatches
// outbound sends to the correct adapter by name. Session/coalescer/Agent
// concerns live in internal/router; this package only knows about channels
// and the bus (used here only for inbound publishing by adapters).
type Manager struct {
	channels map[string]Channel
	bus      *bus.MessageBus
	mu       sync.RWMutex
}

// NewManager creates a channel manager bound to msgBus. Channels are
// registered externally via RegisterChannel before StartAll.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

// UnregisterChannel removes a channel from the manager.
func (m *Manager) UnregisterChannel(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, name)
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// GetEnabledChannels returns the names of all registered channels.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}

// GetStatus returns the running status of all channels, for the health
// server's /channels and /health responses.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}

// StartAll starts every registered channel.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.channels))
	chans := make([]Channel, 0, len(m.channels))
	for name, ch := range m.channels {
		names = append(names, name)
		chans = append(chans, ch)
	}
	m.mu.Unlock()

	if len(chans) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for i, ch := range chans {
		slog.Info("starting channel", "channel", names[i])
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", names[i], "error", err)
		}
	}
	return nil
}

// StopAll stops every registered channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	chans := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		chans[k] = v
	}
	m.mu.Unlock()

	for name, ch := range chans {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// SendToChannel delivers a message to a specific channel by name. This is
// the only outbound path: internal/outboundqueue calls it directly for
// router-originated sends, and the Tool Server's send-message endpoint
// calls it for a synchronous Agent-initiated send.
func (m *Manager) SendToChannel(ctx context.Context, channelName string, msg bus.OutboundMessage) error {
	if IsInternalChannel(channelName) {
		return fmt.Errorf("channel %s is internal, not sendable", channelName)
	}
	m.mu.RLock()
	ch, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	msg.Channel = channelName
	return ch.Send(ctx, msg)
}
