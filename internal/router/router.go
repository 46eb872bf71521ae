// Package router implements the Message Router: the single pipeline every
// inbound message passes through on its way from a channel adapter to an
// Agent session and back out to an outbound chunk.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/agentclient"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/coalescer"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
	"github.com/nextlevelbuilder/goclaw/internal/messagecache"
	"github.com/nextlevelbuilder/goclaw/internal/outboundqueue"
	"github.com/nextlevelbuilder/goclaw/internal/security"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

const (
	pendingSweepInterval = 60 * time.Second
	pendingTTL           = 5 * time.Minute
)

// pendingResponse tracks one in-flight Agent turn so late/duplicate events
// on the same session can be matched back to their originating chat.
type pendingResponse struct {
	channelID string
	chatID    string
	replyToID string
	startedAt time.Time
	coalescer *coalescer.Coalescer
}

// Router wires the Security Gate, session map, auto-reply engine, stream
// coalescer, outbound queue and Agent client into the pipeline described
// by the inbound-message flow: admission, mention gating, session
// reset commands, auto-reply short-circuit, session resolution, typing,
// streaming install, then an async Agent turn.
type Router struct {
	cfg      *config.Config
	gate     *security.Gate
	sessions *sessions.Map
	autoReply *security.Engine
	channels *channels.Manager
	agent    *agentclient.Client
	outbound *outboundqueue.Queue
	cache    *messagecache.Cache

	mu      sync.Mutex
	pending map[string]*pendingResponse // agentSessionID → in-flight turn

	stop context.CancelFunc
}

// New wires a Router from its already-constructed dependencies.
func New(cfg *config.Config, gate *security.Gate, sessionMap *sessions.Map, autoReply *security.Engine,
	chanMgr *channels.Manager, agent *agentclient.Client, outbound *outboundqueue.Queue, cache *messagecache.Cache) *Router {
	return &Router{
		cfg:       cfg,
		gate:      gate,
		sessions:  sessionMap,
		autoReply: autoReply,
		channels:  chanMgr,
		agent:     agent,
		outbound:  outbound,
		cache:     cache,
		pending:   make(map[string]*pendingResponse),
	}
}

// Start launches the pending-response sweep loop. Callers feed inbound
// messages via HandleInbound, typically from a loop consuming the bus.
func (r *Router) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	r.stop = cancel
	go r.sweepPending(sweepCtx)
}

// Stop halts the sweep loop.
func (r *Router) Stop() {
	if r.stop != nil {
		r.stop()
	}
}

func (r *Router) sweepPending(ctx context.Context) {
	ticker := time.NewTicker(pendingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			for id, p := range r.pending {
				if time.Since(p.startedAt) > pendingTTL {
					delete(r.pending, id)
				}
			}
			r.mu.Unlock()
		}
	}
}

// HandleInbound runs one message through the full pipeline.
func (r *Router) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	channelID := msg.Channel
	chCfg, ok := r.cfg.Channels[channelID]
	if !ok || !chCfg.Enabled {
		slog.Warn("router: inbound message for unknown or disabled channel", "channel", channelID)
		return
	}
	adapter, ok := r.channels.GetChannel(channelID)
	if !ok {
		slog.Warn("router: no adapter registered for channel", "channel", channelID)
		return
	}

	policy := security.Policy(chCfg.DMPolicy)
	if msg.PeerKind == "group" && chCfg.GroupPolicy != nil {
		if !chCfg.GroupPolicy.Enabled {
			return
		}
	}
	if policy == "" {
		policy = security.Policy(r.cfg.Security.DefaultDMPolicy)
	}

	if err := r.gate.Check(channelID, msg.SenderID, msg.SenderName, policy); err != nil {
		r.handleAdmissionError(ctx, adapter, msg, err)
		return
	}

	if msg.PeerKind == "group" {
		requireMention := chCfg.GroupPolicy == nil || chCfg.GroupPolicy.RequireMention
		if requireMention {
			matched, stripped := mentionMatches(msg.Content, chCfg.MentionPattern, botIDFor(chCfg))
			if !matched {
				return
			}
			msg.Content = stripped
		}
	}

	if isResetCommand(msg.Content) {
		key := sessionKeyFor(channelID, msg)
		if err := r.sessions.Reset(key); err != nil {
			slog.Warn("router: session reset failed", "key", key, "error", err)
		}
		r.sendText(ctx, channelID, msg.ChatID, msg.ID, "Starting a new conversation.")
		return
	}

	if r.autoReply != nil {
		match := r.autoReply.Match(security.MatchInput{
			Text: msg.Content, Channel: channelID, ChatType: msg.PeerKind,
			SenderID: msg.SenderID, SenderName: msg.SenderName,
		})
		if match != nil {
			r.sendText(ctx, channelID, msg.ChatID, msg.ID, match.Response)
			if !match.ForwardToAI {
				return
			}
		}
	}

	key := sessionKeyFor(channelID, msg)
	entry, err := r.sessions.Resolve(key, sessionTitle(msg), r.agent)
	if err != nil {
		slog.Error("router: failed to resolve agent session", "key", key, "error", err)
		return
	}
	r.sessions.Touch(key)

	if r.cache != nil && msg.ID != "" {
		r.cache.Put(msg.ID, channelID, msg.ChatID)
	}

	if typingAdapter, ok := adapter.(channels.TypingChannel); ok {
		go func() {
			if err := typingAdapter.SendTyping(ctx, msg.ChatID); err != nil {
				slog.Debug("router: SendTyping failed", "channel", channelID, "error", err)
			}
		}()
	}

	pend := &pendingResponse{channelID: channelID, chatID: msg.ChatID, replyToID: msg.ID, startedAt: time.Now()}
	if chCfg.Streaming != nil && chCfg.Streaming.Enabled {
		pend.coalescer = r.newCoalescer(channelID, msg.ChatID, msg.ID, *chCfg.Streaming)
	}

	r.mu.Lock()
	r.pending[entry.AgentSessionID] = pend
	r.mu.Unlock()

	go r.runTurn(ctx, entry.AgentSessionID, msg.Content)
}

func (r *Router) handleAdmissionError(ctx context.Context, adapter channels.Channel, msg bus.InboundMessage, err error) {
	var admErr *gatewayerr.AdmissionError
	if !errors.As(err, &admErr) {
		slog.Error("router: unexpected admission error type", "error", err)
		return
	}
	if admErr.Message == "" {
		return
	}
	r.sendText(ctx, msg.Channel, msg.ChatID, msg.ID, admErr.Message)
}

// runTurn sends the prompt to the Agent and relays events back to the
// originating chat via the outbound queue.
func (r *Router) runTurn(ctx context.Context, agentSessionID, prompt string) {
	go func() {
		err := r.agent.SubscribeEvents(ctx, agentSessionID, func(ev agentclient.Event) {
			r.handleAgentEvent(ctx, agentSessionID, ev)
		})
		if err != nil && ctx.Err() == nil {
			slog.Warn("router: agent event subscription ended", "session_id", agentSessionID, "error", err)
		}
	}()

	if sendErr := r.agent.SendMessageAsync(ctx, agentSessionID, prompt); sendErr != nil {
		slog.Error("router: failed to send message to agent", "session_id", agentSessionID, "error", sendErr)
		r.finishPending(agentSessionID)
	}
}

func (r *Router) handleAgentEvent(ctx context.Context, agentSessionID string, ev agentclient.Event) {
	r.mu.Lock()
	pend, ok := r.pending[agentSessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	switch ev.Type {
	case "partial":
		if pend.coalescer != nil {
			pend.coalescer.Append(ev.Text)
			return
		}
	case "response":
		if pend.coalescer != nil {
			pend.coalescer.Append(ev.Text)
			pend.coalescer.End()
		} else {
			r.sendText(ctx, pend.channelID, pend.chatID, pend.replyToID, ev.Text)
		}
		r.finishPending(agentSessionID)
	case "error":
		r.sendText(ctx, pend.channelID, pend.chatID, pend.replyToID, "Sorry, something went wrong: "+ev.Error)
		r.finishPending(agentSessionID)
	}
}

func (r *Router) finishPending(agentSessionID string) {
	r.mu.Lock()
	delete(r.pending, agentSessionID)
	r.mu.Unlock()
}

// newCoalescer installs a stream coalescer whose flushes are handed to the
// outbound queue tagged IsEdit. editInPlace adapters (EditChannel) track
// their own last-sent message id per chat and edit it in place on an
// IsEdit flush; adapters without that capability just send a new message
// each time, same as editInPlace=false.
func (r *Router) newCoalescer(channelID, chatID, replyToID string, sc config.StreamingConfig) *coalescer.Coalescer {
	cfg := coalescer.Config{
		Enabled: sc.Enabled, MinChars: sc.MinChars, MaxChars: sc.MaxChars,
		IdleMs: sc.IdleMs, EditInPlace: sc.EditInPlace,
	}
	return coalescer.New(cfg, func(chunk coalescer.Chunk) {
		r.outbound.Enqueue(outboundqueue.Item{
			ChannelID: channelID, ChatID: chatID, Text: chunk.Text,
			ReplyToID: replyToID, IsEdit: chunk.IsEdit,
		})
	})
}

func (r *Router) sendText(ctx context.Context, channelID, chatID, replyToID, text string) {
	if text == "" {
		return
	}
	r.outbound.Enqueue(outboundqueue.Item{ChannelID: channelID, ChatID: chatID, Text: text, ReplyToID: replyToID})
	_ = ctx
}

var resetCommands = map[string]bool{"/new": true, "/start": true}

func isResetCommand(content string) bool {
	return resetCommands[strings.TrimSpace(content)]
}

func sessionKeyFor(channelID string, msg bus.InboundMessage) string {
	agentID := msg.AgentID
	if agentID == "" {
		agentID = config.DefaultAgentID
	}
	kind := sessions.PeerKindFromGroup(msg.PeerKind == "group")
	return sessions.BuildSessionKey(agentID, channelID, kind, msg.ChatID)
}

func sessionTitle(msg bus.InboundMessage) string {
	if msg.SenderName != "" {
		return fmt.Sprintf("%s (%s)", msg.SenderName, msg.Channel)
	}
	return msg.Channel + ":" + msg.ChatID
}

// botIDFor returns the channel's configured bot identifier for the default
// mention pattern. Deployments that need precise entity-based mention
// detection should set mentionPattern explicitly.
func botIDFor(cfg *config.ChannelConfig) string {
	return cfg.BotUserID
}

// mentionMatches reports whether content mentions the bot, using the
// channel's configured mentionPattern if set, otherwise the default
// "@botId\b" pattern. When it matches, stripped is content with the
// matched mention substring removed and surrounding whitespace collapsed,
// ready to forward to the Agent.
func mentionMatches(content, pattern, botID string) (matched bool, stripped string) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			slog.Warn("router: invalid mentionPattern, denying mention gate", "pattern", pattern, "error", err)
			return false, content
		}
	} else {
		if botID == "" {
			return true, content // no bot id configured — can't gate, let it through
		}
		re = regexp.MustCompile(`@` + regexp.QuoteMeta(botID) + `\b`)
	}
	loc := re.FindStringIndex(content)
	if loc == nil {
		return false, content
	}
	stripped = strings.Join(strings.Fields(content[:loc[0]]+" "+content[loc[1]:]), " ")
	return true, stripped
}
