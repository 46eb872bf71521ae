// Package coalescer implements the streaming response state machine: it
// buffers incremental deltas from the Agent and decides when to flush a
// chunk onto the outbound path, either as a fresh message or — when
// editInPlace is set — as an edit of the single message already sent.
package coalescer

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/chunker"
)

// Config mirrors a channel's streaming settings.
type Config struct {
	Enabled     bool
	MinChars    int
	MaxChars    int
	IdleMs      int64
	EditInPlace bool
}

// Chunk is one piece of text ready for the outbound path.
type Chunk struct {
	Text   string
	IsEdit bool // true once the first flush has gone out and EditInPlace is set
}

// Coalescer buffers deltas for a single in-flight Agent response.
type Coalescer struct {
	cfg  Config
	emit func(Chunk)

	mu             sync.Mutex
	buffer         string
	fullText       string
	hasFlushedOnce bool
	idleTimer      *time.Timer
	ended          bool
}

// New creates a coalescer that calls emit for every flush. emit must not
// block for long — it is called while the coalescer's idle timer fires on
// its own goroutine.
func New(cfg Config, emit func(Chunk)) *Coalescer {
	return &Coalescer{cfg: cfg, emit: emit}
}

// Append grows the buffer with delta, resets the idle timer, and flushes
// eagerly while the buffer is at or past MaxChars.
func (c *Coalescer) Append(delta string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}

	c.buffer += delta
	c.fullText += delta
	c.resetIdleTimerLocked()

	for c.cfg.MaxChars > 0 && len([]rune(c.buffer)) >= c.cfg.MaxChars {
		c.flushLocked(c.cfg.MaxChars)
	}
}

// End flushes any residual buffer unconditionally and cancels the idle
// timer. The coalescer must not be used again after End.
func (c *Coalescer) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.stopTimerLocked()
	if c.buffer != "" {
		c.flushLocked(len([]rune(c.buffer)))
	}
	c.ended = true
}

// FullText returns the complete accumulated text so far.
func (c *Coalescer) FullText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fullText
}

func (c *Coalescer) resetIdleTimerLocked() {
	c.stopTimerLocked()
	if c.cfg.IdleMs <= 0 {
		return
	}
	c.idleTimer = time.AfterFunc(time.Duration(c.cfg.IdleMs)*time.Millisecond, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.ended || len([]rune(c.buffer)) < c.cfg.MinChars {
			return
		}
		c.flushLocked(len([]rune(c.buffer)))
	})
}

func (c *Coalescer) stopTimerLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

// flushLocked consumes up to cap runes from the front of the buffer at the
// best break point (same rules as the text chunker) and emits a chunk.
// When EditInPlace is set, the first flush sends the piece as a new
// message; every later flush re-emits the whole accumulated fullText
// flagged as an edit, per the editInPlace contract in §4.4. Caller must
// hold c.mu.
func (c *Coalescer) flushLocked(cap int) {
	runes := []rune(c.buffer)
	if cap > len(runes) {
		cap = len(runes)
	}
	if cap == 0 {
		return
	}

	var piece string
	if cap == len(runes) {
		piece = c.buffer
	} else {
		best := chunker.Split(c.buffer, cap)
		if len(best) == 0 {
			piece = string(runes[:cap])
		} else {
			piece = best[0]
		}
	}
	if piece == "" {
		return
	}
	c.buffer = string(runes[len([]rune(piece)):])

	if !c.cfg.EditInPlace {
		c.emit(Chunk{Text: piece, IsEdit: false})
		return
	}
	if !c.hasFlushedOnce {
		c.hasFlushedOnce = true
		c.emit(Chunk{Text: piece, IsEdit: false})
		return
	}
	c.emit(Chunk{Text: c.fullText, IsEdit: true})
}
