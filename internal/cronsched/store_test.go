package cronsched

import (
	"testing"
)

func TestNewStore_SeedsFromConfigOnFirstLoad(t *testing.T) {
	dir := t.TempDir()
	seed := []Job{{ID: "daily-digest", Enabled: true, Expression: "0 9 * * *", Prompt: "summarize"}}

	s, err := NewStore(dir, seed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.List()
	if len(jobs) != 1 || jobs[0].ID != "daily-digest" {
		t.Fatalf("got %+v", jobs)
	}
}

func TestStore_UpsertReplacesSameID(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Upsert(Job{ID: "j1", Expression: "* * * * *"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Upsert(Job{ID: "j1", Expression: "*/5 * * * *"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := s.List()
	if len(jobs) != 1 || jobs[0].Expression != "*/5 * * * *" {
		t.Fatalf("got %+v", jobs)
	}
}

func TestStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Upsert(Job{ID: "j1", Expression: "0 * * * *", Prompt: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	jobs := reloaded.List()
	if len(jobs) != 1 || jobs[0].Prompt != "hi" {
		t.Fatalf("got %+v", jobs)
	}
}

func TestStore_RemoveUnknownIsNoop(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Remove("does-not-exist"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_RecordRunTrimsToMax(t *testing.T) {
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < maxRunLogEntries+10; i++ {
		s.RecordRun(RunLogEntry{JobID: "j1", Success: true})
	}
	if got := len(s.Runs()); got != maxRunLogEntries {
		t.Fatalf("got %d entries, want %d", got, maxRunLogEntries)
	}
}
