package security

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
)

// AllowlistEntry is the persisted record for one admitted (channel, sender)
// pair.
type AllowlistEntry struct {
	ChannelID  string    `json:"channelId"`
	SenderID   string    `json:"senderId"`
	ApprovedBy string    `json:"approvedBy,omitempty"`
	ApprovedAt time.Time `json:"approvedAt"`
}

func allowlistKey(channelID, senderID string) string { return channelID + "\x00" + senderID }

// AllowlistStore is the set of admitted senders, persisted to
// allowlist.json as a flat array, keyed uniquely by (channelID, senderID).
type AllowlistStore struct {
	mu      sync.RWMutex
	entries map[string]*AllowlistEntry
	path    string
}

// NewAllowlistStore loads allowlist.json from dir (if present).
func NewAllowlistStore(dir string) (*AllowlistStore, error) {
	s := &AllowlistStore{entries: make(map[string]*AllowlistEntry)}
	if dir != "" {
		s.path = filepath.Join(dir, "allowlist.json")
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *AllowlistStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &gatewayerr.PersistenceError{Store: "allowlist", Err: err}
	}
	var list []*AllowlistEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return &gatewayerr.PersistenceError{Store: "allowlist", Err: err}
	}
	for _, e := range list {
		s.entries[allowlistKey(e.ChannelID, e.SenderID)] = e
	}
	return nil
}

func (s *AllowlistStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	list := make([]*AllowlistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	return atomicWriteJSON(s.path, list)
}

// Has reports whether (channelID, senderID) is admitted.
func (s *AllowlistStore) Has(channelID, senderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[allowlistKey(channelID, senderID)]
	return ok
}

// Add admits (channelID, senderID), recording approvedBy (a pairing code,
// "cli", or an operator id) and the current time. Idempotent.
func (s *AllowlistStore) Add(channelID, senderID, approvedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[allowlistKey(channelID, senderID)] = &AllowlistEntry{
		ChannelID:  channelID,
		SenderID:   senderID,
		ApprovedBy: approvedBy,
		ApprovedAt: time.Now(),
	}
	return s.saveLocked()
}

// Remove revokes (channelID, senderID). No-op if not present.
func (s *AllowlistStore) Remove(channelID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := allowlistKey(channelID, senderID)
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.saveLocked()
}

// List returns all admitted entries.
func (s *AllowlistStore) List() []*AllowlistEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AllowlistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}
