package canary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoutedRelease(t *testing.T, percent int) (*MemoryRegistry, *Release) {
	t.Helper()

	reg := NewMemoryRegistry()
	active, err := reg.CreateVersion("p1", "active text")
	require.NoError(t, err)
	cand, err := reg.CreateVersion("p1", "canary text")
	require.NoError(t, err)

	rel := &Release{
		ID:              "r1",
		PromptID:        "p1",
		ActiveVersionID: active.ID,
		State:           StateStable,
	}
	if percent > 0 {
		rel.CanaryVersionID = cand.ID
		rel.CanaryPercent = percent
		rel.State = StateCanary
	}
	return reg, rel
}

func TestTrafficRouter_FractionConverges(t *testing.T) {
	const n = 20000

	for _, p := range []int{0, 1, 10, 25, 50, 75, 99, 100} {
		reg, rel := newRoutedRelease(t, p)
		router := NewTrafficRouter(reg)
		src := NewSeededSource(uint64(1000 + p))

		canaryHits := 0
		for i := 0; i < n; i++ {
			sel, err := router.Route(rel, src)
			require.NoError(t, err)
			if sel.IsCanary {
				canaryHits++
				assert.Equal(t, "canary text", sel.Text)
			}
		}

		got := float64(canaryHits) / n
		switch p {
		case 0:
			assert.Equal(t, 0, canaryHits, "p=0 must never select the canary")
		case 100:
			assert.Equal(t, n, canaryHits, "p=100 must always select the canary")
		default:
			assert.InDelta(t, float64(p)/100, got, 0.02, "percent %d", p)
		}
	}
}

func TestTrafficRouter_Deterministic(t *testing.T) {
	reg, rel := newRoutedRelease(t, 30)
	router := NewTrafficRouter(reg)

	run := func() []bool {
		src := NewSeededSource(7)
		out := make([]bool, 500)
		for i := range out {
			sel, err := router.Route(rel, src)
			require.NoError(t, err)
			out[i] = sel.IsCanary
		}
		return out
	}

	assert.Equal(t, run(), run())
}

type countingSource struct {
	calls int
	value int
}

func (s *countingSource) NextInt(min, max int) int {
	s.calls++
	return s.value
}

func TestTrafficRouter_NoCanaryNoDraw(t *testing.T) {
	reg, rel := newRoutedRelease(t, 0)
	router := NewTrafficRouter(reg)
	src := &countingSource{value: 1}

	sel, err := router.Route(rel, src)
	require.NoError(t, err)
	assert.False(t, sel.IsCanary)
	assert.Equal(t, rel.ActiveVersionID, sel.VersionID)
	assert.Equal(t, 0, src.calls)
}

func TestTrafficRouter_DrawBoundary(t *testing.T) {
	reg, rel := newRoutedRelease(t, 40)
	router := NewTrafficRouter(reg)

	tests := []struct {
		draw       int
		wantCanary bool
	}{
		{draw: 1, wantCanary: true},
		{draw: 40, wantCanary: true},
		{draw: 41, wantCanary: false},
		{draw: 100, wantCanary: false},
	}
	for _, tt := range tests {
		sel, err := router.Route(rel, &countingSource{value: tt.draw})
		require.NoError(t, err)
		assert.Equal(t, tt.wantCanary, sel.IsCanary, "draw %d", tt.draw)
	}
}

func TestTrafficRouter_InvalidPercent(t *testing.T) {
	reg, rel := newRoutedRelease(t, 10)
	rel.CanaryPercent = 150

	_, err := NewTrafficRouter(reg).Route(rel, NewSeededSource(1))
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "got 150")
}

func TestTrafficRouter_UnknownVersion(t *testing.T) {
	reg := NewMemoryRegistry()
	rel := &Release{ID: "r1", ActiveVersionID: "missing", State: StateStable}

	_, err := NewTrafficRouter(reg).Route(rel, NewSeededSource(1))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSeededSource_Range(t *testing.T) {
	src := NewSeededSource(99)
	seen := map[int]bool{}
	for i := 0; i < 10000; i++ {
		v := src.NextInt(1, 100)
		require.GreaterOrEqual(t, v, 1)
		require.LessOrEqual(t, v, 100)
		seen[v] = true
	}
	assert.Len(t, seen, 100)
}

func TestRouteCounters(t *testing.T) {
	var c RouteCounters
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Increment("r1", i%5 == 0)
		}(i)
	}
	wg.Wait()

	got := c.Get("r1")
	assert.Equal(t, int64(40), got.Active)
	assert.Equal(t, int64(10), got.Canary)

	c.Reset("r1")
	assert.Equal(t, RouteCounts{}, c.Get("r1"))
}
