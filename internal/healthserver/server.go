// Package healthserver exposes the gateway's read-only health and metrics
// surface: /health, /ready, /channels, /metrics.
package healthserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/channels"
)

// Version is set at build time via -ldflags, matching the teacher's upgrade
// checker's version variable.
var Version = "dev"

// AgentHealthChecker reports whether the Agent runtime is reachable.
type AgentHealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Server serves the health/ready/channels/metrics endpoints on its own
// listener, separate from the Tool Server's Agent-facing surface.
type Server struct {
	channels  *channels.Manager
	agent     AgentHealthChecker
	startedAt time.Time

	httpServer *http.Server
}

// New creates a Server bound to chanMgr and agent.
func New(chanMgr *channels.Manager, agent AgentHealthChecker) *Server {
	return &Server{channels: chanMgr, agent: agent, startedAt: time.Now()}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /channels", s.handleChannels)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
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
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) agentHealthy(ctx context.Context) bool {
	if s.agent == nil {
		return true
	}
	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.agent.CheckHealth(checkCtx) == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.channels.GetStatus()
	connected := 0
	names := make([]string, 0, len(status))
	for name, running := range status {
		names = append(names, name)
		if running {
			connected++
		}
	}

	opencodeHealthy := s.agentHealthy(r.Context())

	overall := "ok"
	if connected == 0 || !opencodeHealthy {
		overall = "degraded"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   overall,
		"version":  Version,
		"uptime":   time.Since(s.startedAt).Seconds(),
		"channels": names,
		"opencode": map[string]bool{"healthy": opencodeHealthy},
		"system": map[string]interface{}{
			"memoryMB": mem.Alloc / (1024 * 1024),
		},
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.channels.GetStatus()
	anyConnected := false
	for _, running := range status {
		if running {
			anyConnected = true
			break
		}
	}

	opencodeHealthy := s.agentHealthy(r.Context())

	if !anyConnected {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "reason": "no channel connected"})
		return
	}
	if !opencodeHealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ready": false, "reason": "agent runtime unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	status := s.channels.GetStatus()
	list := make([]map[string]interface{}, 0, len(status))
	for name, running := range status {
		list = append(list, map[string]interface{}{"name": name, "connected": running})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": list})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	status := s.channels.GetStatus()
	connected := 0
	for _, running := range status {
		if running {
			connected++
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "# HELP iris_uptime_seconds Time since the gateway started.\n")
	fmt.Fprintf(w, "# TYPE iris_uptime_seconds gauge\n")
	fmt.Fprintf(w, "iris_uptime_seconds %f\n", time.Since(s.startedAt).Seconds())

	fmt.Fprintf(w, "# HELP iris_channels_connected Number of channel adapters currently running.\n")
	fmt.Fprintf(w, "# TYPE iris_channels_connected gauge\n")
	fmt.Fprintf(w, "iris_channels_connected %d\n", connected)

	fmt.Fprintf(w, "# HELP iris_memory_rss_bytes Resident set size reported by the Go runtime's sys memory.\n")
	fmt.Fprintf(w, "# TYPE iris_memory_rss_bytes gauge\n")
	fmt.Fprintf(w, "iris_memory_rss_bytes %d\n", mem.Sys)

	fmt.Fprintf(w, "# HELP iris_memory_heap_used_bytes Heap bytes currently allocated.\n")
	fmt.Fprintf(w, "# TYPE iris_memory_heap_used_bytes gauge\n")
	fmt.Fprintf(w, "iris_memory_heap_used_bytes %d\n", mem.HeapAlloc)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
