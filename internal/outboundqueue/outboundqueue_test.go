package outboundqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueue_DeliversInOrderPerChat(t *testing.T) {
	var mu sync.Mutex
	var delivered []string

	q := New(func(ctx context.Context, item Item) error {
		mu.Lock()
		delivered = append(delivered, item.Text)
		mu.Unlock()
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(Item{ChannelID: "telegram", ChatID: "c1", Text: "a"})
	q.Enqueue(Item{ChannelID: "telegram", ChatID: "c1", Text: "b"})
	q.Enqueue(Item{ChannelID: "telegram", ChatID: "c1", Text: "c"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	if delivered[0] != "a" || delivered[1] != "b" || delivered[2] != "c" {
		t.Fatalf("expected in-order delivery, got %v", delivered)
	}
}

func TestQueue_RetriesOnFailureThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	done := make(chan struct{})

	q := New(func(ctx context.Context, item Item) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(Item{ChannelID: "discord", ChatID: "c1", Text: "hi"})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for retried delivery to succeed")
	}
}

func TestQueue_DropsAfterExhaustingRetries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	q := New(func(ctx context.Context, item Item) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("permanent")
	})
	q.maxRetries = 1
	q.Start(context.Background())
	defer q.Stop()

	q.Enqueue(Item{ChannelID: "slack", ChatID: "c1", Text: "hi"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2 // initial attempt + 1 retry
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
