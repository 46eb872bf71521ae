// Package messagecache is a bounded TTL map from a message id to the
// (channel, chat) it belongs to. The router records the ids of the inbound
// messages it routes; outbound message ids are not recorded, and the Tool
// Server's channel actions take chatId from the caller instead of looking
// it up here.
package messagecache

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL and DefaultMaxEntries match the spec's stated defaults.
const (
	DefaultTTL        = 30 * time.Minute
	DefaultMaxEntries = 10000
)

// Entry is the cached location of one message.
type Entry struct {
	ChannelID string
	ChatID    string
	StoredAt  time.Time
}

type record struct {
	key   string
	entry Entry
	elem  *list.Element
}

// Cache is a bounded map with TTL eviction and insertion-order-oldest
// eviction on overflow. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*record
	order      *list.List // front = oldest
	now        func() time.Time
}

// New creates a cache. ttl <= 0 uses DefaultTTL; maxEntries <= 0 uses
// DefaultMaxEntries.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*record),
		order:      list.New(),
		now:        time.Now,
	}
}

// Put records the (channelID, chatID) location of messageID, evicting the
// oldest entry if the cache is at capacity.
func (c *Cache) Put(messageID, channelID, chatID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[messageID]; ok {
		c.order.Remove(existing.elem)
		delete(c.entries, messageID)
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*record).key)
	}

	r := &record{key: messageID, entry: Entry{ChannelID: channelID, ChatID: chatID, StoredAt: c.now()}}
	r.elem = c.order.PushBack(r)
	c.entries[messageID] = r
}

// Get returns the cached location for messageID, if present and not
// expired.
func (c *Cache) Get(messageID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[messageID]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(r.entry.StoredAt) > c.ttl {
		c.order.Remove(r.elem)
		delete(c.entries, messageID)
		return Entry{}, false
	}
	return r.entry, true
}

// Sweep removes all entries older than the TTL. Intended to run on a
// periodic ticker alongside the cache's TTL-on-read check, so memory is
// reclaimed even for ids nobody ever looks up again.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		r := e.Value.(*record)
		if now.Sub(r.entry.StoredAt) > c.ttl {
			c.order.Remove(e)
			delete(c.entries, r.key)
		}
		e = next
	}
}

// Len returns the current number of tracked entries, including ones that
// have expired but not yet been swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
