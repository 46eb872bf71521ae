// Package toolserver exposes the HTTP surface the Agent calls back into:
// sending messages, channel actions (typing/react/edit/delete), user
// lookups, and skill/agent definition management. The reverse direction of
// the health server — requests originate from the Agent, not from an
// operator.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/gatewayerr"
)

// requestTimeout bounds every Tool Server request end to end.
const requestTimeout = 10 * time.Second

// Server serves the Agent-facing tool callback endpoints.
type Server struct {
	channels *channels.Manager
	skills   *DefinitionStore
	agents   *DefinitionStore
	limiter  *channels.WebhookRateLimiter

	httpServer *http.Server
}

// New creates a Server. skillsDir and agentsDir hold one file per
// definition, named "{name}.md".
func New(chanMgr *channels.Manager, skillsDir, agentsDir string) *Server {
	return &Server{
		channels: chanMgr,
		skills:   NewDefinitionStore(skillsDir),
		agents:   NewDefinitionStore(agentsDir),
		limiter:  channels.NewWebhookRateLimiter(),
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tool/send-message", s.handleSendMessage)
	mux.HandleFunc("POST /tool/channel-action", s.handleChannelAction)
	mux.HandleFunc("POST /tool/user-info", s.handleUserInfo)
	mux.HandleFunc("GET /tool/list-channels", s.handleListChannels)

	mux.HandleFunc("POST /skills/create", s.handleCreate(s.skills))
	mux.HandleFunc("POST /skills/delete", s.handleDelete(s.skills))
	mux.HandleFunc("GET /skills/list", s.handleList(s.skills))

	mux.HandleFunc("POST /agents/create", s.handleCreate(s.agents))
	mux.HandleFunc("POST /agents/delete", s.handleDelete(s.agents))
	mux.HandleFunc("GET /agents/list", s.handleList(s.agents))

	return withTimeout(s.withRateLimit(mux), requestTimeout)
}

// withRateLimit rejects callers exceeding the per-remote-address hit
// budget. The Agent process is the only expected caller, but a misbehaving
// or compromised one should not be able to exhaust the tool server.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(r.RemoteAddr) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("tool server: %w", err)
	}
	return nil
}

func withTimeout(next http.Handler, d time.Duration) *http.ServeMux {
	wrapped := http.NewServeMux()
	wrapped.Handle("/", http.TimeoutHandler(next, d, `{"error":"request timed out"}`))
	return wrapped
}

type sendMessageRequest struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chatId"`
	Text      string `json:"text"`
	ReplyToID string `json:"replyToId,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Channel == "" || req.ChatID == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel, chatId and text are required"})
		return
	}

	err := s.channels.SendToChannel(r.Context(), req.Channel, bus.OutboundMessage{
		ChatID: req.ChatID, Content: req.Text, ReplyToID: req.ReplyToID,
	})
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type channelActionRequest struct {
	Channel   string `json:"channel"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
	Action    string `json:"action"` // "typing", "react", "edit", "delete"
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
}

func (s *Server) handleChannelAction(w http.ResponseWriter, r *http.Request) {
	var req channelActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Channel == "" || req.ChatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channel and chatId are required"})
		return
	}

	ch, ok := s.channels.GetChannel(req.Channel)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel not found"})
		return
	}

	var err error
	switch req.Action {
	case "typing":
		typingCh, supported := ch.(channels.TypingChannel)
		if !supported {
			err = &gatewayerr.CapabilityError{Channel: req.Channel, Operation: "typing"}
			break
		}
		err = typingCh.SendTyping(r.Context(), req.ChatID)
	case "react":
		reactCh, supported := ch.(channels.ReactionChannel)
		if !supported {
			err = &gatewayerr.CapabilityError{Channel: req.Channel, Operation: "react"}
			break
		}
		if req.MessageID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messageId is required for react"})
			return
		}
		err = reactCh.OnReactionEvent(r.Context(), req.ChatID, req.MessageID, req.Status)
	case "edit":
		editCh, supported := ch.(channels.EditChannel)
		if !supported {
			err = &gatewayerr.CapabilityError{Channel: req.Channel, Operation: "edit"}
			break
		}
		if req.MessageID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messageId is required for edit"})
			return
		}
		err = editCh.EditMessage(r.Context(), req.ChatID, req.MessageID, req.Text)
	case "delete":
		deleteCh, supported := ch.(channels.DeleteChannel)
		if !supported {
			err = &gatewayerr.CapabilityError{Channel: req.Channel, Operation: "delete"}
			break
		}
		if req.MessageID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "messageId is required for delete"})
			return
		}
		err = deleteCh.DeleteMessage(r.Context(), req.ChatID, req.MessageID)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown action: " + req.Action})
		return
	}

	if err != nil {
		if _, capErr := err.(*gatewayerr.CapabilityError); capErr {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type userInfoRequest struct {
	Channel string `json:"channel"`
	UserID  string `json:"userId"`
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	var req userInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	ch, ok := s.channels.GetChannel(req.Channel)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "channel not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel": req.Channel,
		"userId":  req.UserID,
		"allowed": ch.IsAllowed(req.UserID),
	})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	status := s.channels.GetStatus()
	list := make([]map[string]interface{}, 0, len(status))
	for name, running := range status {
		ch, _ := s.channels.GetChannel(name)
		caps := channels.Capabilities{}
		if ch != nil {
			caps = ch.Capabilities()
		}
		list = append(list, map[string]interface{}{
			"name": name, "connected": running, "capabilities": caps,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": list})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
