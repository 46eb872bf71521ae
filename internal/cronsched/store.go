// Package cronsched persists scheduled prompts and drives them off a
// standard 5-field cron expression, reusing one Agent session per job and
// writing a bounded run log.
package cronsched

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Job is one persisted scheduled prompt.
type Job struct {
	ID         string `json:"id"`
	Enabled    bool   `json:"enabled"`
	Expression string `json:"expression"`
	Prompt     string `json:"prompt"`
	Channel    string `json:"channel"`
	ChatID     string `json:"chatId"`
	AgentID    string `json:"agentId,omitempty"`
}

// RunLogEntry records one firing of a job.
type RunLogEntry struct {
	JobID       string    `json:"jobId"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
}

const maxRunLogEntries = 500

// Store holds cron-jobs.json and a bounded run log, both persisted under
// the gateway's state directory with atomic write-to-temp-then-rename,
// matching the session map's persistence pattern.
type Store struct {
	mu       sync.Mutex
	jobsPath string
	runsPath string
	jobs     map[string]*Job
	runs     []RunLogEntry
}

// NewStore loads cron-jobs.json and cron-runs.json from dir, seeding jobs
// from seed (typically the config file's cron[] key) on first run.
func NewStore(dir string, seed []Job) (*Store, error) {
	s := &Store{
		jobsPath: filepath.Join(dir, "cron-jobs.json"),
		runsPath: filepath.Join(dir, "cron-runs.json"),
		jobs:     make(map[string]*Job),
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}

	if err := s.loadJobs(); err != nil {
		return nil, err
	}
	if len(s.jobs) == 0 {
		for _, j := range seed {
			job := j
			s.jobs[job.ID] = &job
		}
		if len(seed) > 0 {
			if err := s.saveJobsLocked(); err != nil {
				return nil, err
			}
		}
	}
	if err := s.loadRuns(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadJobs() error {
	data, err := os.ReadFile(s.jobsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cron jobs: %w", err)
	}
	var list []*Job
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("parse cron jobs: %w", err)
	}
	for _, j := range list {
		s.jobs[j.ID] = j
	}
	return nil
}

func (s *Store) loadRuns() error {
	data, err := os.ReadFile(s.runsPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cron run log: %w", err)
	}
	return json.Unmarshal(data, &s.runs)
}

func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (s *Store) saveJobsLocked() error {
	if s.jobsPath == "" {
		return nil
	}
	list := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	return atomicWriteJSON(s.jobsPath, list)
}

func (s *Store) saveRunsLocked() error {
	if s.runsPath == "" {
		return nil
	}
	return atomicWriteJSON(s.runsPath, s.runs)
}

// List returns all jobs.
func (s *Store) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Upsert adds job or replaces the existing job with the same id.
func (s *Store) Upsert(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &job
	return s.saveJobsLocked()
}

// Remove deletes the job with the given id. No-op if unknown.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return nil
	}
	delete(s.jobs, id)
	return s.saveJobsLocked()
}

// RecordRun appends a run log entry, trimming to maxRunLogEntries.
func (s *Store) RecordRun(entry RunLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, entry)
	if len(s.runs) > maxRunLogEntries {
		s.runs = s.runs[len(s.runs)-maxRunLogEntries:]
	}
	if err := s.saveRunsLocked(); err != nil {
		slog.Warn("cronsched: failed to persist run log", "error", err)
	}
}

// Runs returns the run log, most recent last.
func (s *Store) Runs() []RunLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RunLogEntry, len(s.runs))
	copy(out, s.runs)
	return out
}
