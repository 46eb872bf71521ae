package security

import (
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	pairing, err := NewPairingStore(t.TempDir(), 8, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	allow, err := NewAllowlistStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	limiter := NewSlidingWindowLimiter(30, 300, 0)
	return NewGate(pairing, allow, limiter)
}

func TestGate_OpenPolicyAlwaysAllows(t *testing.T) {
	g := newTestGate(t)
	if err := g.Check("telegram", "u1", "Alice", PolicyOpen); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestGate_DisabledPolicyAlwaysRejects(t *testing.T) {
	g := newTestGate(t)
	err := g.Check("telegram", "u1", "Alice", PolicyDisabled)
	var admErr *gatewayerr.AdmissionError
	if !errors.As(err, &admErr) || admErr.Reason != gatewayerr.ReasonDisabled {
		t.Fatalf("expected ReasonDisabled, got %v", err)
	}
}

func TestGate_AllowlistRejectsUnknownSender(t *testing.T) {
	g := newTestGate(t)
	err := g.Check("telegram", "u1", "Alice", PolicyAllowlist)
	var admErr *gatewayerr.AdmissionError
	if !errors.As(err, &admErr) || admErr.Reason != gatewayerr.ReasonNotAllowed {
		t.Fatalf("expected ReasonNotAllowed, got %v", err)
	}
}

func TestGate_PairingIssuesCodeThenAllowsAfterApproval(t *testing.T) {
	g := newTestGate(t)

	err := g.Check("discord", "u2", "Bob", PolicyPairing)
	var admErr *gatewayerr.AdmissionError
	if !errors.As(err, &admErr) || admErr.Reason != gatewayerr.ReasonPairingRequired {
		t.Fatalf("expected ReasonPairingRequired, got %v", err)
	}
	if admErr.PairingCode == "" {
		t.Fatal("expected a pairing code")
	}

	channelID, senderID, ok, err := g.ApprovePairing(admErr.PairingCode, "cli")
	if err != nil || !ok {
		t.Fatalf("approve failed: ok=%v err=%v", ok, err)
	}
	if channelID != "discord" || senderID != "u2" {
		t.Fatalf("got (%s, %s)", channelID, senderID)
	}

	if err := g.Check("discord", "u2", "Bob", PolicyPairing); err != nil {
		t.Fatalf("expected allow after approval, got %v", err)
	}
}

func TestGate_RateLimitTrips(t *testing.T) {
	pairing, err := NewPairingStore(t.TempDir(), 8, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	allow, err := NewAllowlistStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGate(pairing, allow, NewSlidingWindowLimiter(2, 100, 0))

	for i := 0; i < 2; i++ {
		if err := g.Check("telegram", "spammer", "Spammer", PolicyOpen); err != nil {
			t.Fatalf("request %d: unexpected error %v", i, err)
		}
	}

	err = g.Check("telegram", "spammer", "Spammer", PolicyOpen)
	var admErr *gatewayerr.AdmissionError
	if !errors.As(err, &admErr) || admErr.Reason != gatewayerr.ReasonRateLimited {
		t.Fatalf("expected ReasonRateLimited, got %v", err)
	}
}
