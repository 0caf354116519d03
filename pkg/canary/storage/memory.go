package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mercator-hq/promptcanary/pkg/canary"
)

// MemoryStorage implements the Storage interface using in-memory maps.
// State is lost on restart; use it for tests and ephemeral deployments.
type MemoryStorage struct {
	mu          sync.RWMutex
	versions    map[string]*canary.PromptVersion
	releases    map[string]*canary.Release
	evaluations []*canary.EvaluationRecord
	events      []*canary.TransitionEvent
	stats       map[statsKey]*canary.BucketState
	closed      bool
}

type statsKey struct {
	releaseID string
	versionID string
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		versions: make(map[string]*canary.PromptVersion),
		releases: make(map[string]*canary.Release),
		stats:    make(map[statsKey]*canary.BucketState),
	}
}

// SaveVersion upserts a prompt version.
func (s *MemoryStorage) SaveVersion(ctx context.Context, v *canary.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageError("memory", "save_version", ErrClosed)
	}

	cp := *v
	s.versions[v.ID] = &cp
	return nil
}

// SaveRelease upserts a release snapshot.
func (s *MemoryStorage) SaveRelease(ctx context.Context, r *canary.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageError("memory", "save_release", ErrClosed)
	}

	cp := *r
	s.releases[r.ID] = &cp
	return nil
}

// SaveEvaluation appends an evaluation record.
func (s *MemoryStorage) SaveEvaluation(ctx context.Context, rec *canary.EvaluationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageError("memory", "save_evaluation", ErrClosed)
	}

	cp := *rec
	cp.CategoryScores = make(map[string]float64, len(rec.CategoryScores))
	for k, v := range rec.CategoryScores {
		cp.CategoryScores[k] = v
	}
	s.evaluations = append(s.evaluations, &cp)
	return nil
}

// SaveEvent appends a transition event.
func (s *MemoryStorage) SaveEvent(ctx context.Context, evt *canary.TransitionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageError("memory", "save_event", ErrClosed)
	}

	cp := *evt
	s.events = append(s.events, &cp)
	return nil
}

// SaveStats upserts a statistics bucket unless the stored state supersedes it.
func (s *MemoryStorage) SaveStats(ctx context.Context, st *canary.BucketState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NewStorageError("memory", "save_stats", ErrClosed)
	}

	key := statsKey{st.ReleaseID, st.VersionID}
	if prev, ok := s.stats[key]; ok && !st.Supersedes(prev) {
		return nil
	}
	cp := *st
	s.stats[key] = &cp
	return nil
}

// Versions returns all stored versions ordered by prompt and number.
func (s *MemoryStorage) Versions(ctx context.Context) ([]*canary.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*canary.PromptVersion, 0, len(s.versions))
	for _, v := range s.versions {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PromptID != out[j].PromptID {
			return out[i].PromptID < out[j].PromptID
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// Releases returns all stored releases ordered by ID.
func (s *MemoryStorage) Releases(ctx context.Context) ([]*canary.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*canary.Release, 0, len(s.releases))
	for _, r := range s.releases {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Evaluations returns matching evaluation records, oldest first.
func (s *MemoryStorage) Evaluations(ctx context.Context, releaseID string, since time.Time) ([]*canary.EvaluationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*canary.EvaluationRecord
	for _, rec := range s.evaluations {
		if releaseID != "" && rec.ReleaseID != releaseID {
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Events returns the most recent transition events of a release, newest first.
func (s *MemoryStorage) Events(ctx context.Context, releaseID string, limit int) ([]*canary.TransitionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*canary.TransitionEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ReleaseID != releaseID {
			continue
		}
		cp := *s.events[i]
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Stats returns all stored statistics buckets ordered by release and version.
func (s *MemoryStorage) Stats(ctx context.Context) ([]*canary.BucketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*canary.BucketState, 0, len(s.stats))
	for _, st := range s.stats {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReleaseID != out[j].ReleaseID {
			return out[i].ReleaseID < out[j].ReleaseID
		}
		return out[i].VersionID < out[j].VersionID
	})
	return out, nil
}

// PruneEvaluations deletes evaluation records older than before.
func (s *MemoryStorage) PruneEvaluations(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.evaluations[:0]
	var deleted int64
	for _, rec := range s.evaluations {
		if rec.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	for i := len(kept); i < len(s.evaluations); i++ {
		s.evaluations[i] = nil
	}
	s.evaluations = kept
	return deleted, nil
}

// Ping fails once the storage is closed.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return NewStorageError("memory", "ping", ErrClosed)
	}
	return nil
}

// Close marks the storage closed. Subsequent writes fail with ErrClosed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
