package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramdev/engram/pkg/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements EpisodicStore and ContextRegistry on local
// SQLite. Uses a single connection (SetMaxOpenConns(1)) so SQLite's
// internal serialization handles concurrency. No application-level mutex
// needed.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the episodic store at dsn.
// Use ":memory:" for tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// PRAGMAs are per-connection and in-memory DBs don't share state
	// across connections, so pin to one.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		text       TEXT NOT NULL,
		source     TEXT DEFAULT '',
		tenant_id  TEXT DEFAULT '',
		project_id TEXT DEFAULT '',
		context_id TEXT DEFAULT '',
		task_id    TEXT DEFAULT '',
		metadata   TEXT DEFAULT '{}',
		ts         TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS event_tags (
		event_id TEXT NOT NULL,
		tag      TEXT NOT NULL,
		PRIMARY KEY (event_id, tag),
		FOREIGN KEY (event_id) REFERENCES events(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS contexts (
		name       TEXT PRIMARY KEY,
		tenant_id  TEXT DEFAULT '',
		project_id TEXT DEFAULT '',
		context_id TEXT DEFAULT '',
		task_id    TEXT DEFAULT '',
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_scope ON events(tenant_id, project_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append writes one event. A missing ID or timestamp is filled in.
func (s *SQLiteStore) Append(ctx context.Context, ev Event) error {
	if strings.TrimSpace(ev.Text) == "" {
		return ErrEmptyText
	}
	if ev.ID == "" {
		ev.ID = generateID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	metaJSON, _ := json.Marshal(ev.Metadata)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO events (id, text, source, tenant_id, project_id, context_id, task_id, metadata, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Text, ev.Source,
		ev.Scope.TenantID, ev.Scope.ProjectID, ev.Scope.ContextID, ev.Scope.TaskID,
		string(metaJSON), ev.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	for _, tag := range ev.Tags {
		if _, err := s.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO event_tags (event_id, tag) VALUES (?, ?)", ev.ID, tag,
		); err != nil {
			return fmt.Errorf("insert tag: %w", err)
		}
	}
	return nil
}

// Query filters by scope, tags, and time range in SQL, then scores the
// surviving rows in Go: keyword hit ratio blended with recency.
func (s *SQLiteStore) Query(ctx context.Context, q EventQuery) ([]ScoredEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	w := q.RecencyWeight
	if w < 0 {
		w = 0
	}
	if w > 1 {
		w = 1
	}

	query := "SELECT id, text, source, tenant_id, project_id, context_id, task_id, metadata, ts FROM events"
	var conditions []string
	var args []interface{}

	addScope := func(col, val string) {
		if val != "" {
			conditions = append(conditions, col+" = ?")
			args = append(args, val)
		}
	}
	addScope("tenant_id", q.Scope.TenantID)
	addScope("project_id", q.Scope.ProjectID)
	addScope("context_id", q.Scope.ContextID)
	addScope("task_id", q.Scope.TaskID)

	if !q.From.IsZero() {
		conditions = append(conditions, "ts >= ?")
		args = append(args, q.From.UTC().Format(time.RFC3339Nano))
	}
	if !q.To.IsZero() {
		conditions = append(conditions, "ts <= ?")
		args = append(args, q.To.UTC().Format(time.RFC3339Nano))
	}
	if len(q.Tags) > 0 {
		placeholders := make([]string, len(q.Tags))
		for i, tag := range q.Tags {
			placeholders[i] = "?"
			args = append(args, tag)
		}
		conditions = append(conditions, "id IN (SELECT event_id FROM event_tags WHERE tag IN ("+strings.Join(placeholders, ",")+"))")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	// Scan all rows before issuing follow-up queries: the single SQLite
	// connection must be free for the per-event tag lookups.
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scored := make([]ScoredEvent, 0, len(events))
	for _, ev := range events {
		tags, _ := s.loadTags(ctx, ev.ID)
		ev.Tags = tags

		relevance := keywordScore(ev.Text, q.Keywords)
		age := now.Sub(ev.Timestamp).Hours()
		recency := 1.0
		if age > 0 {
			recency = 1.0 / (1.0 + age/24.0)
		}
		score := (1.0-w)*relevance + w*recency
		scored = append(scored, ScoredEvent{Event: ev, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		// Newest first among equals.
		return scored[i].Timestamp.After(scored[j].Timestamp)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Count returns the number of stored events.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Scan visits every event oldest first.
func (s *SQLiteStore) Scan(ctx context.Context, fn func(Event) error) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, source, tenant_id, project_id, context_id, task_id, metadata, ts FROM events ORDER BY ts ASC")
	if err != nil {
		return fmt.Errorf("scan events: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return err
	}
	for _, ev := range events {
		tags, _ := s.loadTags(ctx, ev.ID)
		ev.Tags = tags
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

// SetContext stores named scope defaults.
func (s *SQLiteStore) SetContext(ctx context.Context, name string, scope types.Scope) error {
	if name == "" {
		name = "default"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO contexts (name, tenant_id, project_id, context_id, task_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		name, scope.TenantID, scope.ProjectID, scope.ContextID, scope.TaskID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}

// GetContext loads named scope defaults. A missing name returns
// ErrNotFound.
func (s *SQLiteStore) GetContext(ctx context.Context, name string) (types.Scope, error) {
	if name == "" {
		name = "default"
	}
	var scope types.Scope
	err := s.db.QueryRowContext(ctx,
		"SELECT tenant_id, project_id, context_id, task_id FROM contexts WHERE name = ?", name,
	).Scan(&scope.TenantID, &scope.ProjectID, &scope.ContextID, &scope.TaskID)
	if err == sql.ErrNoRows {
		return types.Scope{}, ErrNotFound
	}
	if err != nil {
		return types.Scope{}, fmt.Errorf("get context: %w", err)
	}
	return scope, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var metaJSON, ts string
		if err := rows.Scan(&ev.ID, &ev.Text, &ev.Source,
			&ev.Scope.TenantID, &ev.Scope.ProjectID, &ev.Scope.ContextID, &ev.Scope.TaskID,
			&metaJSON, &ts); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if metaJSON != "" && metaJSON != "{}" {
			_ = json.Unmarshal([]byte(metaJSON), &ev.Metadata)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) loadTags(ctx context.Context, eventID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag FROM event_tags WHERE event_id = ? ORDER BY tag", eventID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// keywordScore is the fraction of keywords present in text,
// case-insensitive. No keywords means a neutral score so pure
// scope/time queries still rank by recency.
func keywordScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
