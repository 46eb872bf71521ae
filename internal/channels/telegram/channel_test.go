package telegram

import "testing"

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-100123456789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != -100123456789 {
		t.Fatalf("got %d, want -100123456789", id)
	}
}

func TestParseChatID_Invalid(t *testing.T) {
	if _, err := parseChatID("not-a-number"); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}
