package store

import (
	"context"
	"sort"
	"sync"

	"github.com/joelkehle/stratscope/internal/pipeline"
)

// MemoryStore keeps every run version in memory, keyed by session. It backs
// tests and the one-shot CLI, and is the runtime cache inside SQLiteStore.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]*pipeline.Run // per session, ascending by version
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]*pipeline.Run)}
}

func (s *MemoryStore) SaveRun(_ context.Context, run *pipeline.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	versions := s.runs[run.SessionID]
	for i, existing := range versions {
		if existing.Version == run.Version {
			versions[i] = &cp
			return nil
		}
	}
	versions = append(versions, &cp)
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
	s.runs[run.SessionID] = versions
	return nil
}

// GetRun returns the latest version for the session.
func (s *MemoryStore) GetRun(_ context.Context, sessionID string) (*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.runs[sessionID]
	if len(versions) == 0 {
		return nil, pipeline.ErrNotFound
	}
	cp := *versions[len(versions)-1]
	return &cp, nil
}

// GetRunVersion returns one specific version for the session.
func (s *MemoryStore) GetRunVersion(_ context.Context, sessionID string, version int) (*pipeline.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.runs[sessionID] {
		if r.Version == version {
			cp := *r
			return &cp, nil
		}
	}
	return nil, pipeline.ErrNotFound
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ pipeline.RunStore = (*MemoryStore)(nil)
