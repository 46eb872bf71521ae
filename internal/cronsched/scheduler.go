package cronsched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/agentclient"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/outboundqueue"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

const pollInterval = 15 * time.Second

// Scheduler polls Store's jobs against a common ticker and fires each due
// job through the Agent client. A job already running when its expression
// comes due again is skipped — each job has at most one in-flight run.
type Scheduler struct {
	store    *Store
	agent    *agentclient.Client
	sessions *sessions.Map
	outbound *outboundqueue.Queue
	gron     gronx.Gronx

	mu      sync.Mutex
	running map[string]bool

	stop context.CancelFunc
}

// New wires a Scheduler from its dependencies.
func New(store *Store, agent *agentclient.Client, sessionMap *sessions.Map, outbound *outboundqueue.Queue) *Scheduler {
	return &Scheduler{
		store:    store,
		agent:    agent,
		sessions: sessionMap,
		outbound: outbound,
		gron:     gronx.New(),
		running:  make(map[string]bool),
	}
}

// Start begins polling. Stop cancels it.
func (s *Scheduler) Start(ctx context.Context) {
	sctx, cancel := context.WithCancel(ctx)
	s.stop = cancel
	go s.loop(sctx)
}

// Stop halts the poll loop and cancels the context that in-flight runs use
// for their Agent calls.
func (s *Scheduler) Stop() {
	if s.stop != nil {
		s.stop()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, job := range s.store.List() {
		if !job.Enabled {
			continue
		}
		due, err := s.gron.IsDue(job.Expression, now)
		if err != nil {
			slog.Warn("cronsched: invalid cron expression", "job", job.ID, "expression", job.Expression, "error", err)
			continue
		}
		if !due {
			continue
		}
		if !s.tryLock(job.ID) {
			continue
		}
		go func(j *Job) {
			defer s.unlock(j.ID)
			s.run(ctx, j)
		}(job)
	}
}

func (s *Scheduler) tryLock(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[jobID] {
		return false
	}
	s.running[jobID] = true
	return true
}

func (s *Scheduler) unlock(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
}

func (s *Scheduler) run(ctx context.Context, job *Job) {
	agentID := job.AgentID
	if agentID == "" {
		agentID = config.DefaultAgentID
	}

	entry := RunLogEntry{JobID: job.ID, StartedAt: time.Now()}

	key := sessionKeyFor(agentID, job.ID)
	sess, err := s.sessions.Resolve(key, fmt.Sprintf("cron: %s", job.ID), s.agent)
	if err != nil {
		s.fail(entry, fmt.Errorf("resolve cron session: %w", err))
		return
	}
	s.sessions.Touch(key)

	reply, err := s.agent.SendMessage(ctx, sess.AgentSessionID, job.Prompt)
	if err != nil {
		s.fail(entry, fmt.Errorf("agent turn: %w", err))
		return
	}

	if job.Channel != "" && job.ChatID != "" && reply != "" {
		s.outbound.Enqueue(outboundqueue.Item{ChannelID: job.Channel, ChatID: job.ChatID, Text: reply})
	}

	entry.CompletedAt = time.Now()
	entry.Success = true
	s.store.RecordRun(entry)
}

func (s *Scheduler) fail(entry RunLogEntry, err error) {
	entry.CompletedAt = time.Now()
	entry.Success = false
	entry.Error = err.Error()
	s.store.RecordRun(entry)
	slog.Error("cronsched: job run failed", "job", entry.JobID, "error", err)
}

// sessionKeyFor builds the stable per-job session key the scheduler reuses
// across firings, created on first fire and never rotated.
func sessionKeyFor(agentID, jobID string) string {
	return fmt.Sprintf("agent:%s:cron:%s", agentID, jobID)
}
