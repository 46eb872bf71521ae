package security

import (
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

func TestEngine_ExactTriggerMatch(t *testing.T) {
	e, err := NewEngine(config.AutoReplyConfig{Templates: []config.AutoReplyTemplate{
		{Name: "hi", Trigger: TriggerExact, Pattern: "hello", Response: "hi {sender.name}"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	m := e.Match(MatchInput{Text: "  Hello  ", SenderName: "Alice", SenderID: "u1"})
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Response != "hi Alice" {
		t.Fatalf("got %q", m.Response)
	}
}

func TestEngine_PriorityOrderPicksFirstMatch(t *testing.T) {
	e, err := NewEngine(config.AutoReplyConfig{Templates: []config.AutoReplyTemplate{
		{Name: "low", Trigger: TriggerKeyword, Keywords: []string{"help"}, Priority: 1, Response: "low"},
		{Name: "high", Trigger: TriggerKeyword, Keywords: []string{"help"}, Priority: 10, Response: "high"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	m := e.Match(MatchInput{Text: "I need help", SenderID: "u1"})
	if m == nil || m.Response != "high" {
		t.Fatalf("expected the higher-priority template to win, got %+v", m)
	}
}

func TestEngine_OnceFlagFiresOnlyOncePerSender(t *testing.T) {
	e, err := NewEngine(config.AutoReplyConfig{Templates: []config.AutoReplyTemplate{
		{Name: "welcome", Trigger: TriggerCommand, Command: "/start", Once: true, Response: "welcome"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if m := e.Match(MatchInput{Text: "/start", SenderID: "u1"}); m == nil {
		t.Fatal("expected first match to succeed")
	}
	if m := e.Match(MatchInput{Text: "/start", SenderID: "u1"}); m != nil {
		t.Fatal("expected second match from the same sender to be suppressed")
	}
	if m := e.Match(MatchInput{Text: "/start", SenderID: "u2"}); m == nil {
		t.Fatal("expected a different sender to still match")
	}
}

func TestEngine_ChannelFilterExcludesOtherChannels(t *testing.T) {
	e, err := NewEngine(config.AutoReplyConfig{Templates: []config.AutoReplyTemplate{
		{Name: "telegram-only", Trigger: TriggerExact, Pattern: "ping", Channels: []string{"telegram"}, Response: "pong"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	if m := e.Match(MatchInput{Text: "ping", Channel: "discord", SenderID: "u1"}); m != nil {
		t.Fatal("expected no match on a channel not in the filter")
	}
	if m := e.Match(MatchInput{Text: "ping", Channel: "telegram", SenderID: "u1"}); m == nil {
		t.Fatal("expected a match on the allowed channel")
	}
}

func TestEngine_ForwardToAIFlagIsReportedToCaller(t *testing.T) {
	e, err := NewEngine(config.AutoReplyConfig{Templates: []config.AutoReplyTemplate{
		{Name: "fwd", Trigger: TriggerExact, Pattern: "status", Response: "checking...", ForwardToAI: true},
	}})
	if err != nil {
		t.Fatal(err)
	}
	m := e.Match(MatchInput{Text: "status", SenderID: "u1"})
	if m == nil || !m.ForwardToAI {
		t.Fatalf("expected ForwardToAI=true, got %+v", m)
	}
}
