package toolserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
)

type stubChannel struct {
	*channels.BaseChannel
	sent []bus.OutboundMessage
}

func newStubChannel(name string, caps channels.Capabilities, msgBus *bus.MessageBus) *stubChannel {
	return &stubChannel{BaseChannel: channels.NewBaseChannel(name, msgBus, nil, caps)}
}

func (s *stubChannel) Start(context.Context) error { return nil }
func (s *stubChannel) Stop(context.Context) error  { return nil }
func (s *stubChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}
func (s *stubChannel) SendTyping(context.Context, string) error { return nil }

func newTestServer(t *testing.T) (*Server, *stubChannel) {
	t.Helper()
	msgBus := bus.NewMessageBus()
	mgr := channels.NewManager(msgBus)
	ch := newStubChannel("telegram", channels.Capabilities{Text: true, Typing: true}, msgBus)
	ch.SetRunning(true)
	mgr.RegisterChannel("telegram", ch)

	skillsDir := t.TempDir()
	agentsDir := t.TempDir()
	return New(mgr, skillsDir, agentsDir), ch
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	s.mux().ServeHTTP(rr, req)
	return rr
}

func TestHandleSendMessage_DeliversToChannel(t *testing.T) {
	s, ch := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/tool/send-message", sendMessageRequest{
		Channel: "telegram", ChatID: "123", Text: "hello",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
	if len(ch.sent) != 1 || ch.sent[0].Content != "hello" {
		t.Fatalf("expected message delivered to stub channel, got %+v", ch.sent)
	}
}

func TestHandleSendMessage_MissingFieldsRejected(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/tool/send-message", sendMessageRequest{Channel: "telegram"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d", rr.Code)
	}
}

func TestHandleChannelAction_TypingSupported(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/tool/channel-action", channelActionRequest{
		Channel: "telegram", ChatID: "123", Action: "typing",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleChannelAction_UnsupportedCapabilityReturnsUnprocessable(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/tool/channel-action", channelActionRequest{
		Channel: "telegram", ChatID: "123", MessageID: "1", Action: "delete",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestHandleChannelAction_UnknownChannelReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/tool/channel-action", channelActionRequest{
		Channel: "does-not-exist", ChatID: "123", Action: "typing",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rr.Code)
	}
}

func TestHandleListChannels_ReportsRegisteredChannels(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodGet, "/tool/list-channels", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d", rr.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	list, ok := body["channels"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("expected one channel, got %+v", body)
	}
}

func TestSkillsCRUD_CreateListDelete(t *testing.T) {
	s, _ := newTestServer(t)

	rr := doRequest(t, s, http.MethodPost, "/skills/create", createRequest{Name: "web-search", Body: "# search"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got status %d: %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, s, http.MethodGet, "/skills/list", nil)
	var listBody map[string]interface{}
	json.Unmarshal(rr.Body.Bytes(), &listBody)
	names, _ := listBody["names"].([]interface{})
	if len(names) != 1 || names[0] != "web-search" {
		t.Fatalf("expected [web-search], got %+v", listBody)
	}

	rr = doRequest(t, s, http.MethodPost, "/skills/delete", deleteRequest{Name: "web-search"})
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: got status %d", rr.Code)
	}
}

func TestSkillsCreate_InvalidNameRejected(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/skills/create", createRequest{Name: "Not Valid!", Body: "x"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}
}

func TestAgentsDelete_UnknownReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rr := doRequest(t, s, http.MethodPost, "/agents/delete", deleteRequest{Name: "ghost"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rr.Code)
	}
}
