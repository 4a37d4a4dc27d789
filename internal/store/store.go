// Package store persists accepted events in SQLite and serves the predicate
// queries used by the scheduler and the retrieval engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"eventforge/internal/core"
	"eventforge/internal/logger"
)

// Candidate pairs a generated record with its provenance and quality metadata
// for persistence.
type Candidate struct {
	Record    core.EventRecord
	Source    core.SourceInfo
	Quality   float64
	Validated bool
}

// Store is the SQLite-backed event repository.
type Store struct {
	db   *sql.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

// New opens (or creates) the database under dataDir and ensures the schema.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "eventforge.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
		log:  logger.Get(),
		now:  time.Now,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// initialize creates the necessary tables. Rank bounds are denormalized to
// integer columns so rank-window predicates stay plain comparisons.
func (s *Store) initialize() error {
	eventsTable := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		options TEXT NOT NULL,
		min_rank TEXT NOT NULL,
		max_rank TEXT NOT NULL,
		min_rank_idx INTEGER NOT NULL,
		max_rank_idx INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		source_url TEXT,
		source_title TEXT,
		base_weight REAL NOT NULL DEFAULT 1.0,
		quality_score REAL NOT NULL,
		validated INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		last_used_at DATETIME,
		usage_count INTEGER NOT NULL DEFAULT 0
	);`

	poolIndex := `
	CREATE INDEX IF NOT EXISTS idx_events_pool
	ON events (source_type, created_at);`

	usageTable := `
	CREATE TABLE IF NOT EXISTS usage_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		used_at DATETIME NOT NULL
	);`

	for _, stmt := range []string{eventsTable, poolIndex, usageTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one candidate and returns its generated id.
func (s *Store) Save(ctx context.Context, c Candidate) (string, error) {
	options, err := json.Marshal(c.Record.Options)
	if err != nil {
		return "", fmt.Errorf("failed to encode options: %w", err)
	}

	now := s.now().UTC()
	id := newEventID(c.Source.Type, now)

	query := `
	INSERT INTO events
	(id, title, description, options, min_rank, max_rank, min_rank_idx, max_rank_idx,
	 source_type, source_url, source_title, base_weight, quality_score, validated,
	 created_at, usage_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`

	_, err = s.db.ExecContext(ctx, query,
		id,
		c.Record.Title,
		c.Record.Description,
		string(options),
		string(c.Record.MinRank),
		string(c.Record.MaxRank),
		core.RankIndex(c.Record.MinRank),
		core.RankIndex(c.Record.MaxRank),
		string(c.Source.Type),
		c.Source.URL,
		c.Source.Title,
		1.0,
		c.Quality,
		c.Validated,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	return id, nil
}

// SaveBatch persists candidates best-effort: a failing item is logged and
// skipped. The returned ids cover persisted rows only, in input order.
func (s *Store) SaveBatch(ctx context.Context, candidates []Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		id, err := s.Save(ctx, c)
		if err != nil {
			s.log.Warn("Skipping event that failed to persist",
				"title", c.Record.Title, "error", err.Error())
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Get returns the event with the given id, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*core.StoredEvent, error) {
	query := selectColumns().Where(sq.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	event, err := scanEvent(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return event, nil
}

// SelectPool returns the candidates of one pool created at or after since,
// optionally restricted to events whose rank window contains rank, ordered
// by base weight descending.
func (s *Store) SelectPool(ctx context.Context, sourceType core.SourceType, rank core.Rank, since time.Time) ([]core.StoredEvent, error) {
	query := selectColumns().
		Where(sq.Eq{"source_type": string(sourceType)}).
		Where(sq.GtOrEq{"created_at": since.UTC()}).
		OrderBy("base_weight DESC")

	if idx := core.RankIndex(rank); idx >= 0 {
		query = query.
			Where(sq.LtOrEq{"min_rank_idx": idx}).
			Where(sq.GtOrEq{"max_rank_idx": idx})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pool: %w", err)
	}
	defer rows.Close()

	var events []core.StoredEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// CountAll returns the total number of persisted events.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountByType returns per-pool event counts.
func (s *Store) CountByType(ctx context.Context) (map[core.SourceType]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source_type, COUNT(*) FROM events GROUP BY source_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count events by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.SourceType]int)
	for rows.Next() {
		var sourceType string
		var count int
		if err := rows.Scan(&sourceType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[core.SourceType(sourceType)] = count
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes events created before cutoff and returns the number
// of rows removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	return res.RowsAffected()
}

// DeleteUsageOlderThan removes usage-log rows older than cutoff and returns
// the number of rows removed.
func (s *Store) DeleteUsageOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM usage_log WHERE used_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old usage rows: %w", err)
	}
	return res.RowsAffected()
}

// MarkUsed records one consumption of the event: bumps usage_count, sets
// last_used_at, and appends a usage_log row.
func (s *Store) MarkUsed(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE events SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("event %q not found", id)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO usage_log (event_id, used_at) VALUES (?, ?)", id, now); err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}

	return tx.Commit()
}

// newEventID builds a unique id embedding source type and UTC creation time,
// with a random suffix so ids within one second stay distinct.
func newEventID(sourceType core.SourceType, now time.Time) string {
	return fmt.Sprintf("evt-%s-%s-%s",
		sourceType, now.Format("20060102150405"), uuid.NewString()[:8])
}

var eventColumns = []string{
	"id", "title", "description", "options", "min_rank", "max_rank",
	"source_type", "source_url", "source_title", "base_weight",
	"quality_score", "validated", "created_at", "last_used_at", "usage_count",
}

func selectColumns() sq.SelectBuilder {
	return sq.Select(eventColumns...).From("events")
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*core.StoredEvent, error) {
	var event core.StoredEvent
	var options string
	var lastUsed sql.NullTime

	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&options,
		&event.MinRank,
		&event.MaxRank,
		&event.SourceType,
		&event.SourceURL,
		&event.SourceTitle,
		&event.BaseWeight,
		&event.QualityScore,
		&event.Validated,
		&event.CreatedAt,
		&lastUsed,
		&event.UsageCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(options), &event.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options for %s: %w", event.ID, err)
	}
	if lastUsed.Valid {
		event.LastUsedAt = &lastUsed.Time
	}

	return &event, nil
}
