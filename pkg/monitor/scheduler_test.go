package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/canary/storage"
)

type fakeChecker struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeChecker) CheckAll(ctx context.Context) []*canary.CheckResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []*canary.CheckResult{{ReleaseID: "r1", Action: canary.ActionRolledBack}}
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "defaults",
			config:      DefaultConfig(),
			wantRunning: true,
		},
		{
			name:        "check only",
			config:      &Config{CheckSchedule: "@every 1m"},
			wantRunning: true,
		},
		{
			name:        "nothing configured",
			config:      &Config{},
			wantRunning: false,
		},
		{
			name:      "invalid check schedule",
			config:    &Config{CheckSchedule: "invalid cron"},
			wantError: true,
		},
		{
			name:      "invalid prune schedule",
			config:    &Config{PruneSchedule: "61 * * * *", RetentionDays: 1},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&fakeChecker{}, storage.NewMemoryStorage(), tt.config)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Start(ctx)
			if tt.wantError {
				require.Error(t, err)
				assert.False(t, s.IsRunning())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRunning, s.IsRunning())
			s.Stop()
			assert.False(t, s.IsRunning())
		})
	}
}

func TestScheduler_NextRuns(t *testing.T) {
	s := NewScheduler(&fakeChecker{}, storage.NewMemoryStorage(), DefaultConfig())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	runs := s.NextRuns()
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.True(t, r.After(time.Now()))
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(&fakeChecker{}, nil, &Config{CheckSchedule: "@every 1h"})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestScheduler_RunsCheckJob(t *testing.T) {
	checker := &fakeChecker{}
	s := NewScheduler(checker, nil, &Config{CheckSchedule: "@every 1s"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return checker.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunPrune(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, age := range []int{1, 10, 40, 100} {
		require.NoError(t, store.SaveEvaluation(ctx, &canary.EvaluationRecord{
			ID:        string(rune('a' + i)),
			ReleaseID: "r1",
			Timestamp: now.AddDate(0, 0, -age),
		}))
	}

	s := NewScheduler(&fakeChecker{}, store, &Config{RetentionDays: 30})
	s.now = func() time.Time { return now }

	deleted, err := s.RunPrune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	left, err := store.Evaluations(ctx, "", time.Time{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

type brokenPruner struct{}

func (brokenPruner) PruneEvaluations(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestScheduler_RunPruneErrors(t *testing.T) {
	s := NewScheduler(&fakeChecker{}, brokenPruner{}, &Config{RetentionDays: 7})
	_, err := s.RunPrune(context.Background())
	require.Error(t, err)

	disabled := NewScheduler(&fakeChecker{}, brokenPruner{}, &Config{RetentionDays: 0})
	deleted, err := disabled.RunPrune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestScheduler_RunCheckAgainstController(t *testing.T) {
	ctx := context.Background()
	policy := canary.Policy{MinSamples: 3, Threshold: 0.55, AutoRollback: true}
	ctrl, err := canary.NewController(canary.Options{Policy: &policy})
	require.NoError(t, err)

	rel, err := ctrl.CreateRelease(ctx, "p1", "v1 text")
	require.NoError(t, err)
	v2, err := ctrl.CreateVersion(ctx, rel.ID, "v2 text")
	require.NoError(t, err)
	_, err = ctrl.StartCanary(ctx, rel.ID, v2.ID, 50)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := ctrl.RecordEvaluation(ctx, rel.ID, v2.ID, map[string]float64{canary.CategoryHeuristic: 0.2})
		require.NoError(t, err)
	}

	s := NewScheduler(ctrl, nil, &Config{})
	results := s.RunCheck(ctx)
	require.Len(t, results, 1)
	assert.Equal(t, canary.ActionRolledBack, results[0].Action)

	got, err := ctrl.GetRelease(rel.ID)
	require.NoError(t, err)
	assert.Equal(t, canary.StateStable, got.State)
}
