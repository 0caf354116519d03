package canary

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// RandSource supplies uniformly distributed integers for traffic splitting.
// Implementations must be safe for concurrent use.
type RandSource interface {
	// NextInt returns a uniform integer in [min, max].
	NextInt(min, max int) int
}

// SeededSource is a RandSource backed by a PCG generator.
// Two sources created with the same seed produce identical sequences.
type SeededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSeededSource creates a deterministic source for the given seed.
func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NextInt returns a uniform integer in [min, max].
func (s *SeededSource) NextInt(min, max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rng.IntN(max-min+1)
}

// globalSource draws from the runtime's shared generator.
type globalSource struct{}

// NewRandomSource returns a non-deterministic RandSource for production use.
func NewRandomSource() RandSource {
	return globalSource{}
}

func (globalSource) NextInt(min, max int) int {
	return min + rand.IntN(max-min+1)
}

// TrafficRouter decides whether a request is served by the active or the canary
// version of a release. It never mutates the release.
type TrafficRouter struct {
	registry Registry
}

// NewTrafficRouter creates a router resolving version texts through the registry.
func NewTrafficRouter(registry Registry) *TrafficRouter {
	return &TrafficRouter{registry: registry}
}

// Route picks a version for one request.
//
// One integer in [1,100] is drawn from src; the canary is chosen when the draw
// is <= CanaryPercent. No draw happens when no canary is running, so a
// percentage of 0 never selects the canary.
func (t *TrafficRouter) Route(rel *Release, src RandSource) (Selection, error) {
	if rel.CanaryPercent < 0 || rel.CanaryPercent > 100 {
		return Selection{}, validationf("canary_percent", "must be 0-100, got %d", rel.CanaryPercent)
	}

	versionID := rel.ActiveVersionID
	isCanary := false
	if rel.HasCanary() && src.NextInt(1, 100) <= rel.CanaryPercent {
		versionID = rel.CanaryVersionID
		isCanary = true
	}

	v, err := t.registry.GetVersion(versionID)
	if err != nil {
		return Selection{}, err
	}

	return Selection{Text: v.Text, IsCanary: isCanary, VersionID: v.ID}, nil
}

// RouteCounters tracks served requests per release using atomic counters.
type RouteCounters struct {
	active sync.Map // map[string]*atomic.Int64
	canary sync.Map // map[string]*atomic.Int64
}

// Increment counts one served request for the release.
func (c *RouteCounters) Increment(releaseID string, isCanary bool) {
	m := &c.active
	if isCanary {
		m = &c.canary
	}
	val, _ := m.LoadOrStore(releaseID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// Get returns the counts for a release.
func (c *RouteCounters) Get(releaseID string) RouteCounts {
	var out RouteCounts
	if val, ok := c.active.Load(releaseID); ok {
		out.Active = val.(*atomic.Int64).Load()
	}
	if val, ok := c.canary.Load(releaseID); ok {
		out.Canary = val.(*atomic.Int64).Load()
	}
	return out
}

// Reset clears the counts for a release, used when a new canary cycle starts.
func (c *RouteCounters) Reset(releaseID string) {
	c.active.Delete(releaseID)
	c.canary.Delete(releaseID)
}
