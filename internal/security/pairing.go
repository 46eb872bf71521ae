// Package security implements the admission pipeline: pairing codes, the
// persistent allowlist, the sliding-window rate limiter, the Security Gate
// state machine that combines them, and the Auto-reply Engine.
package security

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
)

// pairingAlphabet excludes visually ambiguous characters (0/O, 1/I).
const pairingAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PairingRequest is the persisted record for one outstanding pairing code.
type PairingRequest struct {
	Code      string    `json:"code"`
	ChannelID string    `json:"channelId"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PairingStore issues and approves pairing codes, persisted to
// pairing.json as a flat array.
type PairingStore struct {
	mu         sync.Mutex
	byCode     map[string]*PairingRequest
	codeLength int
	ttl        time.Duration
	path       string
	now        func() time.Time
}

// NewPairingStore loads pairing.json from dir (if present).
func NewPairingStore(dir string, codeLength int, ttl time.Duration) (*PairingStore, error) {
	if codeLength <= 0 {
		codeLength = 8
	}
	s := &PairingStore{
		byCode:     make(map[string]*PairingRequest),
		codeLength: codeLength,
		ttl:        ttl,
		now:        time.Now,
	}
	if dir != "" {
		s.path = filepath.Join(dir, "pairing.json")
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PairingStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &gatewayerr.PersistenceError{Store: "pairing", Err: err}
	}
	var list []*PairingRequest
	if err := json.Unmarshal(data, &list); err != nil {
		return &gatewayerr.PersistenceError{Store: "pairing", Err: err}
	}
	for _, r := range list {
		s.byCode[r.Code] = r
	}
	return nil
}

func (s *PairingStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	list := make([]*PairingRequest, 0, len(s.byCode))
	for _, r := range s.byCode {
		list = append(list, r)
	}
	return atomicWriteJSON(s.path, list)
}

// pendingFor returns the unexpired request already issued for
// (channelID, senderID), if any. Caller must hold mu.
func (s *PairingStore) pendingFor(channelID, senderID string, now time.Time) *PairingRequest {
	for _, r := range s.byCode {
		if r.ChannelID == channelID && r.SenderID == senderID && now.Before(r.ExpiresAt) {
			return r
		}
	}
	return nil
}

// Issue returns the existing unexpired code for (channelID, senderID) if
// one exists; otherwise it generates a new one.
func (s *PairingStore) Issue(channelID, senderID string) (*PairingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing := s.pendingFor(channelID, senderID, now); existing != nil {
		return existing, nil
	}

	code, err := randomCode(s.codeLength)
	if err != nil {
		return nil, fmt.Errorf("generate pairing code: %w", err)
	}
	req := &PairingRequest{
		Code:      code,
		ChannelID: channelID,
		SenderID:  senderID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.byCode[code] = req
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return req, nil
}

// Approve looks up code (case-insensitive), and if found and unexpired,
// deletes the pairing request and reports (channelID, senderID, true).
// Expired codes are treated as not found.
func (s *PairingStore) Approve(code string) (channelID, senderID string, ok bool, err error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	s.mu.Lock()
	defer s.mu.Unlock()

	req, found := s.byCode[code]
	if !found || s.now().After(req.ExpiresAt) {
		return "", "", false, nil
	}
	delete(s.byCode, code)
	if err := s.saveLocked(); err != nil {
		return "", "", false, err
	}
	return req.ChannelID, req.SenderID, true, nil
}

// Revoke removes a pending pairing request by code without approving it.
func (s *PairingStore) Revoke(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCode[code]; !ok {
		return nil
	}
	delete(s.byCode, code)
	return s.saveLocked()
}

// List returns all outstanding (including expired) pairing requests.
func (s *PairingStore) List() []*PairingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*PairingRequest, 0, len(s.byCode))
	for _, r := range s.byCode {
		out = append(out, r)
	}
	return out
}

func randomCode(length int) (string, error) {
	b := make([]byte, length)
	n := big.NewInt(int64(len(pairingAlphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = pairingAlphabet[idx.Int64()]
	}
	return string(b), nil
}
