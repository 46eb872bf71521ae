package whatsapp

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestNew_RequiresBridgeURL(t *testing.T) {
	msgBus := bus.NewMessageBus()
	_, err := New("wa-main", &config.ChannelConfig{Type: "whatsapp"}, msgBus)
	if err == nil {
		t.Fatal("expected error when bridgeUrl is missing")
	}
}

func TestNew_DefaultsMaxTextLength(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch, err := New("wa-main", &config.ChannelConfig{Type: "whatsapp", BridgeURL: "ws://localhost:9000"}, msgBus)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.Capabilities().MaxTextLength != 65536 {
		t.Fatalf("got %d, want 65536", ch.Capabilities().MaxTextLength)
	}
}
