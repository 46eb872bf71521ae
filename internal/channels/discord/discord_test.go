package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
)

func TestResolveDisplayName_PrefersNickname(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "alice", GlobalName: "AliceGlobal"},
		Member: &discordgo.Member{Nick: "alice-nick"},
	}}
	if got := resolveDisplayName(m); got != "alice-nick" {
		t.Fatalf("got %q, want alice-nick", got)
	}
}

func TestResolveDisplayName_FallsBackToGlobalName(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "alice", GlobalName: "AliceGlobal"},
	}}
	if got := resolveDisplayName(m); got != "AliceGlobal" {
		t.Fatalf("got %q, want AliceGlobal", got)
	}
}

func TestResolveDisplayName_FallsBackToUsername(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		Author: &discordgo.User{Username: "alice"},
	}}
	if got := resolveDisplayName(m); got != "alice" {
		t.Fatalf("got %q, want alice", got)
	}
}

func TestStatusEmoji_KnownAndFallback(t *testing.T) {
	if statusEmoji("done") == statusEmoji("error") {
		t.Fatal("expected distinct emoji per status")
	}
	if statusEmoji("unknown-status") == "" {
		t.Fatal("expected a non-empty fallback emoji")
	}
}
