package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/canary/storage"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a single entry to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

type entryKind int

const (
	kindVersion entryKind = iota
	kindRelease
	kindEvaluation
	kindTransition
	kindStats
)

func (k entryKind) String() string {
	switch k {
	case kindVersion:
		return "version"
	case kindRelease:
		return "release"
	case kindEvaluation:
		return "evaluation"
	case kindStats:
		return "stats"
	default:
		return "transition"
	}
}

type entry struct {
	kind       entryKind
	version    *canary.PromptVersion
	release    *canary.Release
	evaluation *canary.EvaluationRecord
	transition *canary.TransitionEvent
	stats      *canary.BucketState
}

// Recorder implements canary.AuditSink and canary.StatsSink by queueing entries on a buffered
// channel that a single worker drains into storage, so writes land in the
// order the controller produced them.
//
// Record methods never block. When the buffer is full the entry is dropped,
// counted and logged.
type Recorder struct {
	storage storage.Storage
	config  *Config
	entries chan entry
	wg      sync.WaitGroup
	done    chan struct{}
	closed  atomic.Bool
	logger  *slog.Logger

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder creates a recorder and starts its worker.
func NewRecorder(store storage.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	r := &Recorder{
		storage: store,
		config:  config,
		entries: make(chan entry, config.AsyncBuffer),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "canary.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// RecordVersion queues a version upsert.
func (r *Recorder) RecordVersion(v *canary.PromptVersion) {
	cp := *v
	r.enqueue(entry{kind: kindVersion, version: &cp})
}

// RecordRelease queues a release snapshot upsert.
func (r *Recorder) RecordRelease(rel *canary.Release) {
	cp := *rel
	r.enqueue(entry{kind: kindRelease, release: &cp})
}

// RecordEvaluation queues an evaluation record.
func (r *Recorder) RecordEvaluation(rec *canary.EvaluationRecord) {
	cp := *rec
	r.enqueue(entry{kind: kindEvaluation, evaluation: &cp})
}

// RecordTransition queues a transition event.
func (r *Recorder) RecordTransition(evt *canary.TransitionEvent) {
	cp := *evt
	r.enqueue(entry{kind: kindTransition, transition: &cp})
}

// RecordStats queues a statistics bucket upsert.
func (r *Recorder) RecordStats(st *canary.BucketState) {
	cp := *st
	r.enqueue(entry{kind: kindStats, stats: &cp})
}

// Stats reports how many entries were written, dropped and failed.
func (r *Recorder) Stats() (written, dropped, failed int64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

func (r *Recorder) enqueue(e entry) {
	if r.closed.Load() {
		r.dropped.Add(1)
		r.logger.Warn("recorder shut down, dropping entry", "kind", e.kind)
		return
	}

	select {
	case r.entries <- e:
	default:
		r.dropped.Add(1)
		r.logger.Error("audit channel full, dropping entry",
			"kind", e.kind,
			"channel_capacity", r.config.AsyncBuffer,
		)
	}
}

// Close stops accepting entries, drains the buffer and waits for all pending
// writes to complete.
func (r *Recorder) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.logger.Info("shutting down audit recorder")

	close(r.done)
	r.wg.Wait()

	written, dropped, failed := r.Stats()
	r.logger.Info("audit recorder shut down complete",
		"written", written,
		"dropped", dropped,
		"failed", failed,
	)
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.entries:
			r.write(e)

		case <-r.done:
			r.logger.Info("draining audit channel before shutdown",
				"pending_count", len(r.entries),
			)
			for {
				select {
				case e := <-r.entries:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	var err error
	switch e.kind {
	case kindVersion:
		err = r.storage.SaveVersion(ctx, e.version)
	case kindRelease:
		err = r.storage.SaveRelease(ctx, e.release)
	case kindEvaluation:
		err = r.storage.SaveEvaluation(ctx, e.evaluation)
	case kindTransition:
		err = r.storage.SaveEvent(ctx, e.transition)
	case kindStats:
		err = r.storage.SaveStats(ctx, e.stats)
	}
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to persist audit entry", "kind", e.kind, "error", err)
		return
	}
	r.written.Add(1)

	if duration := time.Since(start); duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"kind", e.kind,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
