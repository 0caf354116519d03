package canary

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// bucketKey identifies a statistics bucket. Buckets belong to a release but are
// keyed by version so active-version history survives new canary cycles.
type bucketKey struct {
	releaseID string
	versionID string
}

// bucket is a Welford accumulator guarded by its own lock.
type bucket struct {
	mu          sync.RWMutex
	since       time.Time
	count       int64
	mean        float64
	m2          float64
	lastUpdated time.Time
}

// add folds x into the bucket and returns the resulting state.
func (b *bucket) add(key bucketKey, x float64, at time.Time) BucketState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	delta := x - b.mean
	b.mean += delta / float64(b.count)
	b.m2 += delta * (x - b.mean)
	b.lastUpdated = at
	return b.stateLocked(key)
}

func (b *bucket) stateLocked(key bucketKey) BucketState {
	return BucketState{
		ReleaseID:   key.releaseID,
		VersionID:   key.versionID,
		Since:       b.since,
		Count:       b.count,
		Mean:        b.mean,
		M2:          b.m2,
		LastUpdated: b.lastUpdated,
	}
}

func (b *bucket) snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return snapshotOf(b.count, b.mean, b.m2, b.lastUpdated)
}

func snapshotOf(count int64, mean, m2 float64, at time.Time) Snapshot {
	if count == 0 {
		return Snapshot{Mean: math.NaN()}
	}
	variance := 0.0
	if count > 1 {
		variance = m2 / float64(count-1)
	}
	return Snapshot{Count: count, Mean: mean, Variance: variance, LastUpdated: at}
}

// StatsStore holds running statistics per (release, version).
//
// Updates to one bucket are serialised by that bucket's lock; updates to
// different buckets never contend. The store-level lock is only taken to
// look up or create buckets.
type StatsStore struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*bucket
	now     func() time.Time
}

// NewStatsStore creates an empty statistics store.
func NewStatsStore() *StatsStore {
	return &StatsStore{
		buckets: make(map[bucketKey]*bucket),
		now:     time.Now,
	}
}

func (s *StatsStore) get(key bucketKey) *bucket {
	s.mu.RLock()
	b := s.buckets[key]
	s.mu.RUnlock()
	return b
}

func (s *StatsStore) getOrCreate(key bucketKey) *bucket {
	if b := s.get(key); b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.buckets[key]; ok {
		return b
	}
	b := &bucket{}
	s.buckets[key] = b
	return b
}

// Update folds one composite score into the version's bucket.
func (s *StatsStore) Update(releaseID, versionID string, score float64) {
	s.UpdateAt(releaseID, versionID, score, s.now().UTC())
}

// UpdateAt folds a score recorded at a specific time and returns the bucket
// state after the update.
func (s *StatsStore) UpdateAt(releaseID, versionID string, score float64, at time.Time) BucketState {
	key := bucketKey{releaseID, versionID}
	return s.getOrCreate(key).add(key, score, at)
}

// Snapshot returns the current statistics for a version.
// An unknown bucket yields a zero-count snapshot with a NaN mean.
func (s *StatsStore) Snapshot(releaseID, versionID string) Snapshot {
	b := s.get(bucketKey{releaseID, versionID})
	if b == nil {
		return snapshotOf(0, 0, 0, time.Time{})
	}
	return b.snapshot()
}

// Reset replaces the bucket for a version with an empty one started at at,
// used when a canary cycle starts. It returns the new bucket's state.
func (s *StatsStore) Reset(releaseID, versionID string, at time.Time) BucketState {
	key := bucketKey{releaseID, versionID}
	b := &bucket{since: at}

	s.mu.Lock()
	s.buckets[key] = b
	s.mu.Unlock()
	return b.stateLocked(key)
}

// State returns the persisted form of a version's bucket. An unknown bucket
// yields a zero-count state.
func (s *StatsStore) State(releaseID, versionID string) BucketState {
	key := bucketKey{releaseID, versionID}
	b := s.get(key)
	if b == nil {
		return BucketState{ReleaseID: releaseID, VersionID: versionID}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stateLocked(key)
}

// Load replaces a bucket with a previously persisted state.
func (s *StatsStore) Load(st BucketState) {
	key := bucketKey{st.ReleaseID, st.VersionID}
	b := &bucket{
		since:       st.Since,
		count:       st.Count,
		mean:        st.Mean,
		m2:          st.M2,
		lastUpdated: st.LastUpdated,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets[key] = b
}

// MarshalJSON encodes an empty snapshot's mean as null since JSON has no NaN.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type wire struct {
		Count       int64      `json:"count"`
		Mean        *float64   `json:"mean"`
		Variance    float64    `json:"variance"`
		LastUpdated *time.Time `json:"last_updated,omitempty"`
	}
	w := wire{Count: s.Count, Variance: s.Variance}
	if s.Valid() {
		mean := s.Mean
		w.Mean = &mean
	}
	if !s.LastUpdated.IsZero() {
		at := s.LastUpdated
		w.LastUpdated = &at
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a snapshot produced by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w struct {
		Count       int64     `json:"count"`
		Mean        *float64  `json:"mean"`
		Variance    float64   `json:"variance"`
		LastUpdated time.Time `json:"last_updated"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Count = w.Count
	s.Variance = w.Variance
	s.LastUpdated = w.LastUpdated
	s.Mean = math.NaN()
	if w.Mean != nil {
		s.Mean = *w.Mean
	}
	return nil
}
