package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"

	"mercator-hq/promptcanary/pkg/canary"
)

// Supported database/sql driver names.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// Driver selects the database/sql driver: "sqlite3" (mattn, cgo) or
	// "sqlite" (modernc, pure Go).
	// Default: "sqlite3"
	Driver string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/canary.db",
		Driver:       DriverCGO,
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db        *sql.DB
	config    *SQLiteConfig
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewSQLiteStorage opens the database, applies PRAGMAs and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Driver == "" {
		config.Driver = DriverCGO
	}
	if config.Driver != DriverCGO && config.Driver != DriverPureGo {
		return nil, NewStorageError("sqlite", "open", fmt.Errorf("unsupported driver %q", config.Driver))
	}
	if config.Path == "" {
		return nil, NewStorageError("sqlite", "open", fmt.Errorf("db path cannot be empty"))
	}

	logger := slog.Default().With("component", "canary.storage.sqlite")

	db, err := sql.Open(config.Driver, config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"driver", config.Driver,
		"wal_mode", config.WALMode,
	)

	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return NewStorageError("sqlite", "enable_wal", err)
		}
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs)); err != nil {
		return NewStorageError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return NewStorageError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return NewStorageError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// SaveVersion upserts a prompt version.
func (s *SQLiteStorage) SaveVersion(ctx context.Context, v *canary.PromptVersion) error {
	const query = `
		INSERT INTO prompt_versions (id, prompt_id, number, text, created_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query,
		v.ID, v.PromptID, v.Number, v.Text, toNanos(v.CreatedAt), boolToInt(v.IsActive))
	if err != nil {
		return NewStorageError("sqlite", "save_version", err)
	}
	return nil
}

// SaveRelease upserts a release snapshot.
func (s *SQLiteStorage) SaveRelease(ctx context.Context, r *canary.Release) error {
	const query = `
		INSERT INTO releases (
			id, prompt_id, active_version_id, canary_version_id, canary_percent,
			state, cycle_started_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			active_version_id = excluded.active_version_id,
			canary_version_id = excluded.canary_version_id,
			canary_percent = excluded.canary_percent,
			state = excluded.state,
			cycle_started_at = excluded.cycle_started_at,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.PromptID, r.ActiveVersionID, nullString(r.CanaryVersionID), r.CanaryPercent,
		string(r.State), toNanos(r.CycleStartedAt), toNanos(r.UpdatedAt))
	if err != nil {
		return NewStorageError("sqlite", "save_release", err)
	}
	return nil
}

// SaveEvaluation appends an evaluation record.
func (s *SQLiteStorage) SaveEvaluation(ctx context.Context, rec *canary.EvaluationRecord) error {
	scores, err := json.Marshal(rec.CategoryScores)
	if err != nil {
		return NewStorageError("sqlite", "save_evaluation", err)
	}

	const query = `
		INSERT INTO evaluations (
			id, release_id, version_id, is_canary, composite_score, category_scores, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.ReleaseID, rec.VersionID, boolToInt(rec.IsCanary),
		rec.CompositeScore, string(scores), toNanos(rec.Timestamp))
	if err != nil {
		return NewStorageError("sqlite", "save_evaluation", err)
	}
	return nil
}

// SaveEvent appends a transition event.
func (s *SQLiteStorage) SaveEvent(ctx context.Context, evt *canary.TransitionEvent) error {
	const query = `
		INSERT INTO transition_events (
			id, release_id, prompt_id, kind, state, from_version_id, to_version_id,
			percent, trigger_kind, recommendation, reason, canary_mean, active_mean, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		evt.ID, evt.ReleaseID, evt.PromptID, string(evt.Kind), string(evt.State),
		nullString(evt.FromVersionID), nullString(evt.ToVersionID),
		evt.Percent, string(evt.Trigger), nullString(string(evt.Recommendation)),
		nullString(evt.Reason), evt.CanaryMean, evt.ActiveMean, toNanos(evt.At))
	if err != nil {
		return NewStorageError("sqlite", "save_event", err)
	}
	return nil
}

// SaveStats upserts a statistics bucket unless the stored state supersedes it.
func (s *SQLiteStorage) SaveStats(ctx context.Context, st *canary.BucketState) error {
	const query = `
		INSERT INTO bucket_stats (release_id, version_id, since, count, mean, m2, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(release_id, version_id) DO UPDATE SET
			since = excluded.since,
			count = excluded.count,
			mean = excluded.mean,
			m2 = excluded.m2,
			last_updated = excluded.last_updated
		WHERE excluded.since > bucket_stats.since
		   OR (excluded.since = bucket_stats.since AND excluded.count >= bucket_stats.count)
	`
	_, err := s.db.ExecContext(ctx, query,
		st.ReleaseID, st.VersionID, toNanos(st.Since), st.Count, st.Mean, st.M2, toNanos(st.LastUpdated))
	if err != nil {
		return NewStorageError("sqlite", "save_stats", err)
	}
	return nil
}

// Versions returns all stored versions ordered by prompt and number.
func (s *SQLiteStorage) Versions(ctx context.Context) ([]*canary.PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_id, number, text, created_at, is_active
		FROM prompt_versions
		ORDER BY prompt_id, number
	`)
	if err != nil {
		return nil, NewStorageError("sqlite", "query_versions", err)
	}
	defer rows.Close()

	var out []*canary.PromptVersion
	for rows.Next() {
		var (
			v         canary.PromptVersion
			createdAt int64
			active    int64
		)
		if err := rows.Scan(&v.ID, &v.PromptID, &v.Number, &v.Text, &createdAt, &active); err != nil {
			return nil, NewStorageError("sqlite", "scan_version", err)
		}
		v.CreatedAt = fromNanos(createdAt)
		v.IsActive = active != 0
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query_versions", err)
	}
	return out, nil
}

// Releases returns all stored releases ordered by ID.
func (s *SQLiteStorage) Releases(ctx context.Context) ([]*canary.Release, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, prompt_id, active_version_id, canary_version_id, canary_percent,
		       state, cycle_started_at, updated_at
		FROM releases
		ORDER BY id
	`)
	if err != nil {
		return nil, NewStorageError("sqlite", "query_releases", err)
	}
	defer rows.Close()

	var out []*canary.Release
	for rows.Next() {
		var (
			r              canary.Release
			canaryVersion  sql.NullString
			state          string
			cycleStartedAt int64
			updatedAt      int64
		)
		if err := rows.Scan(&r.ID, &r.PromptID, &r.ActiveVersionID, &canaryVersion,
			&r.CanaryPercent, &state, &cycleStartedAt, &updatedAt); err != nil {
			return nil, NewStorageError("sqlite", "scan_release", err)
		}
		r.CanaryVersionID = canaryVersion.String
		r.State = canary.State(state)
		r.CycleStartedAt = fromNanos(cycleStartedAt)
		r.UpdatedAt = fromNanos(updatedAt)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query_releases", err)
	}
	return out, nil
}

// Evaluations returns matching evaluation records, oldest first.
func (s *SQLiteStorage) Evaluations(ctx context.Context, releaseID string, since time.Time) ([]*canary.EvaluationRecord, error) {
	query := `
		SELECT id, release_id, version_id, is_canary, composite_score, category_scores, recorded_at
		FROM evaluations
		WHERE recorded_at >= ?`
	args := []interface{}{toNanos(since)}
	if releaseID != "" {
		query += " AND release_id = ?"
		args = append(args, releaseID)
	}
	query += " ORDER BY recorded_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewStorageError("sqlite", "query_evaluations", err)
	}
	defer rows.Close()

	var out []*canary.EvaluationRecord
	for rows.Next() {
		var (
			rec        canary.EvaluationRecord
			isCanary   int64
			scores     string
			recordedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.ReleaseID, &rec.VersionID, &isCanary,
			&rec.CompositeScore, &scores, &recordedAt); err != nil {
			return nil, NewStorageError("sqlite", "scan_evaluation", err)
		}
		if err := json.Unmarshal([]byte(scores), &rec.CategoryScores); err != nil {
			return nil, NewStorageError("sqlite", "decode_category_scores", err)
		}
		rec.IsCanary = isCanary != 0
		rec.Timestamp = fromNanos(recordedAt)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query_evaluations", err)
	}
	return out, nil
}

// Events returns the most recent transition events of a release, newest first.
func (s *SQLiteStorage) Events(ctx context.Context, releaseID string, limit int) ([]*canary.TransitionEvent, error) {
	query := `
		SELECT id, release_id, prompt_id, kind, state, from_version_id, to_version_id,
		       percent, trigger_kind, recommendation, reason, canary_mean, active_mean, occurred_at
		FROM transition_events
		WHERE release_id = ?
		ORDER BY occurred_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, releaseID)
	if err != nil {
		return nil, NewStorageError("sqlite", "query_events", err)
	}
	defer rows.Close()

	var out []*canary.TransitionEvent
	for rows.Next() {
		var (
			evt                   canary.TransitionEvent
			kind, state, trigger  string
			from, to, rec, reason sql.NullString
			occurredAt            int64
		)
		if err := rows.Scan(&evt.ID, &evt.ReleaseID, &evt.PromptID, &kind, &state, &from, &to,
			&evt.Percent, &trigger, &rec, &reason, &evt.CanaryMean, &evt.ActiveMean, &occurredAt); err != nil {
			return nil, NewStorageError("sqlite", "scan_event", err)
		}
		evt.Kind = canary.EventKind(kind)
		evt.State = canary.State(state)
		evt.Trigger = canary.Trigger(trigger)
		evt.FromVersionID = from.String
		evt.ToVersionID = to.String
		evt.Recommendation = canary.Recommendation(rec.String)
		evt.Reason = reason.String
		evt.At = fromNanos(occurredAt)
		out = append(out, &evt)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query_events", err)
	}
	return out, nil
}

// Stats returns all stored statistics buckets ordered by release and version.
func (s *SQLiteStorage) Stats(ctx context.Context) ([]*canary.BucketState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT release_id, version_id, since, count, mean, m2, last_updated
		FROM bucket_stats
		ORDER BY release_id, version_id
	`)
	if err != nil {
		return nil, NewStorageError("sqlite", "query_stats", err)
	}
	defer rows.Close()

	var out []*canary.BucketState
	for rows.Next() {
		var (
			st                 canary.BucketState
			since, lastUpdated int64
		)
		if err := rows.Scan(&st.ReleaseID, &st.VersionID, &since, &st.Count,
			&st.Mean, &st.M2, &lastUpdated); err != nil {
			return nil, NewStorageError("sqlite", "scan_stats", err)
		}
		st.Since = fromNanos(since)
		st.LastUpdated = fromNanos(lastUpdated)
		out = append(out, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("sqlite", "query_stats", err)
	}
	return out, nil
}

// PruneEvaluations deletes evaluation records older than before.
func (s *SQLiteStorage) PruneEvaluations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM evaluations WHERE recorded_at < ?", toNanos(before))
	if err != nil {
		return 0, NewStorageError("sqlite", "prune", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "prune", err)
	}
	return count, nil
}

// Ping checks the database connection.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStorageError("sqlite", "ping", err)
	}
	return nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if cerr := s.db.Close(); cerr != nil {
			err = NewStorageError("sqlite", "close", cerr)
			return
		}
		s.logger.Info("SQLite storage closed")
	})
	return err
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
