package security

import (
	"strings"
	"testing"
	"time"
)

func TestPairingStore_IssueReturnsSameCodeWhileUnexpired(t *testing.T) {
	store, err := NewPairingStore(t.TempDir(), 8, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	first, err := store.Issue("telegram", "user1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Issue("telegram", "user1")
	if err != nil {
		t.Fatal(err)
	}
	if first.Code != second.Code {
		t.Fatalf("expected same code, got %q and %q", first.Code, second.Code)
	}
}

func TestPairingStore_IssueDifferentForDifferentSenders(t *testing.T) {
	store, err := NewPairingStore(t.TempDir(), 8, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	a, err := store.Issue("telegram", "user1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Issue("telegram", "user2")
	if err != nil {
		t.Fatal(err)
	}
	if a.Code == b.Code {
		t.Fatalf("expected distinct codes, both were %q", a.Code)
	}
}

func TestPairingStore_ApproveIsCaseInsensitiveAndDeletesRequest(t *testing.T) {
	store, err := NewPairingStore(t.TempDir(), 8, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req, err := store.Issue("discord", "user9")
	if err != nil {
		t.Fatal(err)
	}

	channelID, senderID, ok, err := store.Approve(strings.ToLower(req.Code))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected approve to succeed")
	}
	if channelID != "discord" || senderID != "user9" {
		t.Fatalf("got (%s, %s)", channelID, senderID)
	}

	if _, _, ok, _ := store.Approve(req.Code); ok {
		t.Fatal("expected second approve of the same code to fail")
	}
}

func TestPairingStore_ApproveRejectsExpiredCode(t *testing.T) {
	store, err := NewPairingStore(t.TempDir(), 8, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	req, err := store.Issue("slack", "user5")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok, err := store.Approve(req.Code); ok || err != nil {
		t.Fatalf("expected rejection of expired code, ok=%v err=%v", ok, err)
	}
}
