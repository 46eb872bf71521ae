package security

import (
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
)

// Policy is the admission policy for a channel or the global default.
type Policy string

const (
	PolicyOpen      Policy = "open"
	PolicyPairing   Policy = "pairing"
	PolicyAllowlist Policy = "allowlist"
	PolicyDisabled  Policy = "disabled"
)

// Gate is the admission state machine behind Check(channel, sender,
// senderName, policy): policy dispatch layered under a sliding-window
// rate limiter.
type Gate struct {
	pairing   *PairingStore
	allowlist *AllowlistStore
	limiter   *SlidingWindowLimiter
}

// NewGate wires the pairing store, allowlist store and rate limiter into
// one admission check.
func NewGate(pairing *PairingStore, allowlist *AllowlistStore, limiter *SlidingWindowLimiter) *Gate {
	return &Gate{pairing: pairing, allowlist: allowlist, limiter: limiter}
}

// Check runs the admission pipeline for one inbound message. A nil error
// means the message is allowed through. A non-nil error is always a
// *gatewayerr.AdmissionError.
func (g *Gate) Check(channelID, senderID, senderName string, policy Policy) error {
	key := channelID + ":" + senderID

	if policy != PolicyDisabled {
		if blocked, retryAfter := g.limiter.Check(key); blocked {
			return &gatewayerr.AdmissionError{
				Reason:     gatewayerr.ReasonRateLimited,
				RetryAfter: retryAfter.Milliseconds(),
				Message:    "you're sending messages too quickly, please slow down",
			}
		}
		g.limiter.Hit(key)
	}

	switch policy {
	case PolicyOpen:
		return nil
	case PolicyDisabled:
		return &gatewayerr.AdmissionError{Reason: gatewayerr.ReasonDisabled}
	case PolicyAllowlist:
		if g.allowlist.Has(channelID, senderID) {
			return nil
		}
		return &gatewayerr.AdmissionError{Reason: gatewayerr.ReasonNotAllowed}
	case PolicyPairing:
		if g.allowlist.Has(channelID, senderID) {
			return nil
		}
		req, err := g.pairing.Issue(channelID, senderID)
		if err != nil {
			return &gatewayerr.AdmissionError{
				Reason:  gatewayerr.ReasonPairingRequired,
				Message: "pairing is required but a code could not be issued",
			}
		}
		return &gatewayerr.AdmissionError{
			Reason:      gatewayerr.ReasonPairingRequired,
			PairingCode: req.Code,
			Message:     humanPairingMessage(senderName, req.Code),
		}
	default:
		return &gatewayerr.AdmissionError{Reason: gatewayerr.ReasonDisabled}
	}
}

// ApprovePairing resolves a pairing code into an allowlist entry. approvedBy
// identifies the approver (a CLI invocation, an owner's chat command, etc).
func (g *Gate) ApprovePairing(code, approvedBy string) (channelID, senderID string, ok bool, err error) {
	channelID, senderID, ok, err = g.pairing.Approve(code)
	if err != nil || !ok {
		return "", "", false, err
	}
	if err := g.allowlist.Add(channelID, senderID, approvedBy); err != nil {
		return "", "", false, err
	}
	return channelID, senderID, true, nil
}

func humanPairingMessage(senderName, code string) string {
	if senderName == "" {
		senderName = "there"
	}
	return fmt.Sprintf("Hi %s, this chat isn't paired yet. Share this code with an owner to approve it: %s", senderName, code)
}

// RetryAfterDuration is a small convenience for callers formatting
// AdmissionError.RetryAfter (milliseconds) back into a time.Duration.
func RetryAfterDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
