package canary

import (
	"sort"
	"time"
)

// RestoreData is the persisted state used to rebuild a controller at startup.
type RestoreData struct {
	Versions    []*PromptVersion
	Releases    []*Release
	Evaluations []*EvaluationRecord
	Events      []*TransitionEvent
	Stats       []*BucketState
}

// versionAdder is implemented by registries that accept pre-existing versions.
type versionAdder interface {
	Add(v *PromptVersion)
}

// Restore loads releases, versions and history into an empty controller.
//
// Each statistics bucket is rebuilt from the start of the cycle that last
// reset it: the latest canary_started event for the version, or the creation
// of the release for its first version. A persisted bucket state from that
// cycle is loaded as is; buckets without one are rebuilt by replaying the
// evaluation records of the cycle. Nothing is written back to the audit sink.
func (c *Controller) Restore(data RestoreData) error {
	for _, r := range data.Releases {
		if r.CanaryVersionID != "" && r.State != StateCanary {
			return validationf("release", "release %q has canary version in state %s", r.ID, r.State)
		}
	}

	if adder, ok := c.registry.(versionAdder); ok {
		for _, v := range data.Versions {
			adder.Add(v)
		}
	}

	c.mu.Lock()
	for _, r := range data.Releases {
		c.releases[r.ID] = &releaseEntry{rel: *r}
		c.byPrompt[r.PromptID] = r.ID
	}
	c.mu.Unlock()

	cycles := cycleStarts(data.Releases, data.Events)

	loaded := make(map[bucketKey]bool)
	for _, st := range data.Stats {
		key := bucketKey{st.ReleaseID, st.VersionID}
		if _, err := c.entry(st.ReleaseID); err != nil {
			continue
		}
		// A state from an earlier cycle was superseded by a reset that never
		// reached storage.
		if st.Since.Before(cycles[key]) {
			continue
		}
		c.stats.Load(*st)
		loaded[key] = true
	}
	for key, start := range cycles {
		if loaded[key] {
			continue
		}
		if _, err := c.entry(key.releaseID); err == nil {
			c.stats.Reset(key.releaseID, key.versionID, start)
		}
	}

	evals := append([]*EvaluationRecord(nil), data.Evaluations...)
	sort.SliceStable(evals, func(i, j int) bool { return evals[i].Timestamp.Before(evals[j].Timestamp) })
	replayed := 0
	for _, rec := range evals {
		key := bucketKey{rec.ReleaseID, rec.VersionID}
		if loaded[key] {
			continue
		}
		if _, err := c.entry(rec.ReleaseID); err != nil {
			continue
		}
		if rec.Timestamp.Before(cycles[key]) {
			continue
		}
		c.stats.UpdateAt(rec.ReleaseID, rec.VersionID, rec.CompositeScore, rec.Timestamp)
		replayed++
	}

	events := append([]*TransitionEvent(nil), data.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })
	for _, evt := range events {
		e, err := c.entry(evt.ReleaseID)
		if err != nil {
			continue
		}
		e.events = append(e.events, *evt)
		if len(e.events) > maxRecentEvents {
			e.events = e.events[len(e.events)-maxRecentEvents:]
		}
	}

	c.logger.Info("controller state restored",
		"releases", len(data.Releases),
		"versions", len(data.Versions),
		"buckets_loaded", len(loaded),
		"evaluations_replayed", replayed,
		"events", len(data.Events),
	)
	return nil
}

// cycleStarts returns when each bucket was last reset, keyed by release and
// version. Versions that never ran as a canary are absent and count from the
// beginning.
func cycleStarts(releases []*Release, events []*TransitionEvent) map[bucketKey]time.Time {
	starts := make(map[bucketKey]time.Time)
	later := func(key bucketKey, at time.Time) {
		if at.After(starts[key]) {
			starts[key] = at
		}
	}
	for _, evt := range events {
		if evt.Kind == EventCanaryStarted && evt.ToVersionID != "" {
			later(bucketKey{evt.ReleaseID, evt.ToVersionID}, evt.At)
		}
	}
	for _, r := range releases {
		if r.State == StateCanary && r.CanaryVersionID != "" {
			later(bucketKey{r.ID, r.CanaryVersionID}, r.CycleStartedAt)
		}
	}
	return starts
}
