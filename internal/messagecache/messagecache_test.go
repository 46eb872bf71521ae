package messagecache

import (
	"testing"
	"time"
)

func TestCache_PutGet(t *testing.T) {
	c := New(time.Hour, 10)
	c.Put("m1", "telegram", "chat1")
	entry, ok := c.Get("m1")
	if !ok {
		t.Fatal("expected entry to be found")
	}
	if entry.ChannelID != "telegram" || entry.ChatID != "chat1" {
		t.Fatalf("got %+v", entry)
	}
}

func TestCache_GetMissingReturnsFalse(t *testing.T) {
	c := New(time.Hour, 10)
	if _, ok := c.Get("nope"); ok {
		t.Fatal("expected not found")
	}
}

func TestCache_EvictsOldestOnOverflow(t *testing.T) {
	c := New(time.Hour, 2)
	c.Put("m1", "telegram", "chat1")
	c.Put("m2", "telegram", "chat2")
	c.Put("m3", "telegram", "chat3")

	if _, ok := c.Get("m1"); ok {
		t.Fatal("expected the oldest entry to have been evicted")
	}
	if _, ok := c.Get("m3"); !ok {
		t.Fatal("expected the newest entry to still be present")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	c := New(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("m1", "telegram", "chat1")

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("m1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestCache_SweepRemovesExpiredEntries(t *testing.T) {
	c := New(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Put("m1", "telegram", "chat1")

	now = now.Add(2 * time.Minute)
	c.Sweep()
	if c.Len() != 0 {
		t.Fatalf("expected sweep to remove the expired entry, len=%d", c.Len())
	}
}
