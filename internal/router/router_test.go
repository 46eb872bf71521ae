package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/agentclient"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/messagecache"
	"github.com/nextlevelbuilder/goclaw/internal/outboundqueue"
	"github.com/nextlevelbuilder/goclaw/internal/security"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// fakeChannel is a minimal Channel adapter for exercising the router
// without a real platform connection.
type fakeChannel struct {
	*channels.BaseChannel
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{BaseChannel: channels.NewBaseChannel(name, bus.NewMessageBus(), nil, channels.Capabilities{Text: true})}
}

func (f *fakeChannel) Start(ctx context.Context) error          { return nil }
func (f *fakeChannel) Stop(ctx context.Context) error           { return nil }
func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error { return nil }

// agentClientFor points an agentclient.Client at an httptest server.
func agentClientFor(t *testing.T, srv *httptest.Server) *agentclient.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}
	return agentclient.New(host, port)
}

type testRig struct {
	router    *Router
	sessions  *sessions.Map
	outbound  *outboundqueue.Queue
	delivered chan outboundqueue.Item
}

// newTestRouter wires a Router with an open DM policy, a no-op rate
// limiter, and an outbound queue that records every delivered item instead
// of touching a real channel adapter.
func newTestRouter(t *testing.T, agent *agentclient.Client, chCfg *config.ChannelConfig) *testRig {
	t.Helper()
	dir := t.TempDir()

	sessionMap, err := sessions.NewMap(dir)
	if err != nil {
		t.Fatalf("new session map: %v", err)
	}

	limiter := security.NewSlidingWindowLimiter(0, 0, 0)
	allowlist, err := security.NewAllowlistStore(dir)
	if err != nil {
		t.Fatalf("new allowlist store: %v", err)
	}
	pairing, err := security.NewPairingStore(dir, 6, time.Minute)
	if err != nil {
		t.Fatalf("new pairing store: %v", err)
	}
	gate := security.NewGate(pairing, allowlist, limiter)

	chanMgr := channels.NewManager(bus.NewMessageBus())
	chanMgr.RegisterChannel("test", newFakeChannel("test"))

	delivered := make(chan outboundqueue.Item, 16)
	outbound := outboundqueue.New(func(ctx context.Context, item outboundqueue.Item) error {
		delivered <- item
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	outbound.Start(ctx)

	cache := messagecache.New(time.Minute, 100)

	cfg := &config.Config{
		Channels: config.ChannelsConfig{"test": chCfg},
		Security: config.SecurityConfig{DefaultDMPolicy: "open"},
	}

	r := New(cfg, gate, sessionMap, nil, chanMgr, agent, outbound, cache)
	return &testRig{router: r, sessions: sessionMap, outbound: outbound, delivered: delivered}
}

func baseChannelConfig() *config.ChannelConfig {
	return &config.ChannelConfig{
		Type:    "test",
		Enabled: true,
		DMPolicy: "open",
	}
}

func TestHandleInbound_GroupMessageWithoutMentionIsDropped(t *testing.T) {
	chCfg := baseChannelConfig()
	chCfg.GroupPolicy = &config.GroupPolicyConfig{Enabled: true, RequireMention: true}
	chCfg.BotUserID = "MyBot"

	rig := newTestRouter(t, agentclient.New("127.0.0.1", 1), chCfg)

	msg := bus.InboundMessage{
		ID: "m1", Channel: "test", SenderID: "u1", ChatID: "c1",
		PeerKind: "group", Content: "hey everyone, how's it going",
	}
	rig.router.HandleInbound(context.Background(), msg)

	select {
	case item := <-rig.delivered:
		t.Fatalf("expected no delivery for an unmentioned group message, got %+v", item)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleInbound_GroupMentionIsStrippedBeforeForwarding(t *testing.T) {
	chCfg := baseChannelConfig()
	chCfg.GroupPolicy = &config.GroupPolicyConfig{Enabled: true, RequireMention: true}
	chCfg.BotUserID = "MyBot"

	var mu sync.Mutex
	var gotPrompt string
	promptReceived := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess-1"}`))
	})
	mux.HandleFunc("/session/sess-1/message/async", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		gotPrompt = body.Prompt
		mu.Unlock()
		close(promptReceived)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/session/sess-1/events", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rig := newTestRouter(t, agentClientFor(t, srv), chCfg)

	msg := bus.InboundMessage{
		ID: "m1", Channel: "test", SenderID: "u1", ChatID: "c1",
		PeerKind: "group", Content: "hey @MyBot please help",
	}
	rig.router.HandleInbound(context.Background(), msg)

	select {
	case <-promptReceived:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the agent to receive the forwarded prompt")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPrompt != "hey please help" {
		t.Fatalf("expected the mention to be stripped from the forwarded prompt, got %q", gotPrompt)
	}
}

func TestHandleInbound_ResetCommandClearsSessionAndReplies(t *testing.T) {
	chCfg := baseChannelConfig()
	rig := newTestRouter(t, agentclient.New("127.0.0.1", 1), chCfg)

	key := sessionKeyFor("test", bus.InboundMessage{ChatID: "c1", PeerKind: "direct"})
	if _, err := rig.sessions.Resolve(key, "t", constCreator{id: "sess-existing"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	msg := bus.InboundMessage{ID: "m1", Channel: "test", SenderID: "u1", ChatID: "c1", PeerKind: "direct", Content: "/new"}
	rig.router.HandleInbound(context.Background(), msg)

	select {
	case item := <-rig.delivered:
		if item.Text != "Starting a new conversation." {
			t.Fatalf("expected the reset confirmation text, got %q", item.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reset confirmation to be delivered")
	}

	if _, ok := rig.sessions.Get(key); ok {
		t.Fatal("expected the session entry to be removed by /new")
	}
}

type constCreator struct{ id string }

func (c constCreator) CreateSession(title string) (string, error) { return c.id, nil }
