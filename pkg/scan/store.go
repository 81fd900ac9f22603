package scan

import (
	"context"
	"sync"

	"github.com/defendx/defendx/pkg/finding"
)

// Store persists finished scan results.
type Store interface {
	Save(ctx context.Context, result *Result) error
}

// HistoryReader reads a target's accumulated findings for health
// scoring.
type HistoryReader interface {
	History(ctx context.Context, target string) ([]finding.Finding, error)
}

// MemoryStore keeps results in memory, keyed by target. It backs
// single-process deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	results map[string][]*Result
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: map[string][]*Result{}}
}

func (s *MemoryStore) Save(ctx context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.Target] = append(s.results[result.Target], result)
	return nil
}

// History returns every finding recorded for the target across all
// saved scans, in save order. Callers deduplicate.
func (s *MemoryStore) History(ctx context.Context, target string) ([]finding.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []finding.Finding
	for _, r := range s.results[target] {
		out = append(out, r.Findings...)
	}
	return out, nil
}

// Results returns the saved results for a target, newest last.
func (s *MemoryStore) Results(target string) []*Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Result(nil), s.results[target]...)
}
