package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/signalsfoundry/junctionbox-simulator/internal/rollout"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]map[string]rollout.Result
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]map[string]rollout.Result)
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, res rollout.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	byEpisode, ok := s.runs[res.RunID]
	if !ok {
		byEpisode = make(map[string]rollout.Result)
		s.runs[res.RunID] = byEpisode
	}
	byEpisode[res.EpisodeID] = res
	return nil
}

func (s *MemoryStore) ListResults(_ context.Context, runID string) ([]rollout.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	byEpisode := s.runs[runID]
	out := make([]rollout.Result, 0, len(byEpisode))
	for _, res := range byEpisode {
		out = append(out, res)
	}
	sortResults(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortResults(results []rollout.Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Seed != results[j].Seed {
			return results[i].Seed < results[j].Seed
		}
		return results[i].EpisodeID < results[j].EpisodeID
	})
}
