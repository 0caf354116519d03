package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/promptcanary/pkg/canary"
)

// ErrClosed is returned by backends after Close has been called.
var ErrClosed = errors.New("storage closed")

// Storage persists the canary audit trail.
//
// Versions and releases are upserted by ID so the latest snapshot wins.
// Statistics buckets are upserted by release and version, keeping whichever
// state supersedes the stored one. Evaluation records and transition events
// are append-only.
type Storage interface {
	// SaveVersion upserts a prompt version.
	SaveVersion(ctx context.Context, v *canary.PromptVersion) error

	// SaveRelease upserts a release snapshot.
	SaveRelease(ctx context.Context, r *canary.Release) error

	// SaveEvaluation appends an evaluation record.
	SaveEvaluation(ctx context.Context, rec *canary.EvaluationRecord) error

	// SaveEvent appends a transition event.
	SaveEvent(ctx context.Context, evt *canary.TransitionEvent) error

	// SaveStats upserts a statistics bucket unless the stored state
	// supersedes it.
	SaveStats(ctx context.Context, st *canary.BucketState) error

	// Versions returns all stored versions ordered by prompt and number.
	Versions(ctx context.Context) ([]*canary.PromptVersion, error)

	// Releases returns all stored releases ordered by ID.
	Releases(ctx context.Context) ([]*canary.Release, error)

	// Evaluations returns the evaluation records of a release recorded at or
	// after since, oldest first. An empty releaseID matches every release.
	Evaluations(ctx context.Context, releaseID string, since time.Time) ([]*canary.EvaluationRecord, error)

	// Events returns up to limit transition events of a release, newest first.
	// A limit of zero or less returns all of them.
	Events(ctx context.Context, releaseID string, limit int) ([]*canary.TransitionEvent, error)

	// Stats returns all stored statistics buckets ordered by release and version.
	Stats(ctx context.Context) ([]*canary.BucketState, error)

	// PruneEvaluations deletes evaluation records older than before and
	// returns how many were removed.
	PruneEvaluations(ctx context.Context, before time.Time) (int64, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error
}

// StorageError represents an error from a storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "memory")
	Operation string // Operation that failed ("save_release", "prune", ...)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// Load reads everything needed to rebuild a controller. Every stored
// evaluation record is returned; buckets persisted with SaveStats cover the
// records retention has already pruned.
func Load(ctx context.Context, s Storage) (canary.RestoreData, error) {
	var data canary.RestoreData
	var err error

	if data.Versions, err = s.Versions(ctx); err != nil {
		return data, err
	}
	if data.Releases, err = s.Releases(ctx); err != nil {
		return data, err
	}
	if data.Stats, err = s.Stats(ctx); err != nil {
		return data, err
	}
	if data.Evaluations, err = s.Evaluations(ctx, "", time.Time{}); err != nil {
		return data, err
	}
	for _, r := range data.Releases {
		events, err := s.Events(ctx, r.ID, 0)
		if err != nil {
			return data, err
		}
		data.Events = append(data.Events, events...)
	}
	return data, nil
}
