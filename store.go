package dialectic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hyperengineering/dialectic/internal/store/migrations"
)

const schemaVersion = "1"

// Metadata keys.
const (
	MetaSchemaVersion = "schema_version"
	MetaStoreID       = "store_id"
	MetaCreatedAt     = "created_at"
	MetaImportedFrom  = "imported_from"
)

// Store is the SQLite learning-state backend. Each Save replaces all four
// records in a single transaction.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
	logger *Logger
}

// NewStore opens or creates a SQLite learning store at path. A database
// file that SQLite reports as corrupt is moved aside to
// <path>.corrupt-<unix seconds> and a fresh store is created in its place.
func NewStore(path string, logger *Logger) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %w", ErrStorageUnavailable, err)
	}

	s, err := openStore(path, logger)
	if err == nil || !isCorruptDatabase(err) {
		return s, err
	}

	moved, qerr := quarantineDatabase(path)
	if qerr != nil {
		return nil, fmt.Errorf("%w: move corrupt database aside: %w", ErrStorageUnavailable, qerr)
	}
	logger.Warn("resetting corrupt learning database", logrus.Fields{
		"path":     path,
		"moved_to": moved,
		"error":    err.Error(),
	})
	return openStore(path, logger)
}

func openStore(path string, logger *Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrStorageUnavailable, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL mode: %w", ErrStorageUnavailable, err)
	}

	s := &Store{db: db, path: path, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate schema: %w", ErrStorageUnavailable, err)
	}

	return s, nil
}

// isCorruptDatabase reports whether err means the file exists but is not a
// usable SQLite database.
func isCorruptDatabase(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_CORRUPT:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

// quarantineDatabase renames path and its WAL sidecars aside and returns
// the new name of the database file.
func quarantineDatabase(path string) (string, error) {
	suffix := fmt.Sprintf(".corrupt-%d", time.Now().Unix())
	moved := path + suffix
	if err := os.Rename(path, moved); err != nil {
		return "", err
	}
	for _, side := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + side); err == nil {
			_ = os.Rename(path+side, moved+side)
		}
	}
	return moved, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "."); err != nil {
		return fmt.Errorf("store: run migrations: %w", err)
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO metadata (key, value) VALUES (?, ?), (?, ?)
	`, MetaSchemaVersion, schemaVersion, MetaCreatedAt, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Load implements Backend. A record whose rows cannot be read is reset to
// empty with a warning; the other records are still returned.
func (s *Store) Load(ctx context.Context) (*LearningState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	st := NewLearningState()

	if patterns, err := s.loadPatterns(ctx); err != nil {
		s.reset(RecordPatterns, err)
	} else {
		st.Patterns = patterns
	}

	if m, err := s.loadMetrics(ctx); err != nil {
		s.reset(RecordMetrics, err)
	} else {
		st.Metrics = m
	}

	if agents, err := s.loadAgents(ctx); err != nil {
		s.reset(RecordEffectiveness, err)
	} else {
		st.Agents = agents
	}

	if entries, err := s.loadLog(ctx); err != nil {
		s.reset(RecordLog, err)
	} else {
		st.Log = entries
	}

	return st, nil
}

func (s *Store) reset(record string, err error) {
	s.logger.Warn("resetting unreadable learning record", logrus.Fields{
		"record": record,
		"error":  err.Error(),
	})
}

func (s *Store) loadPatterns(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pattern_key, occurrence_count FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("store: query patterns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("store: scan pattern: %w", err)
		}
		out[key] = count
	}
	return out, rows.Err()
}

func (s *Store) loadMetrics(ctx context.Context) (GlobalMetrics, error) {
	var m GlobalMetrics
	err := s.db.QueryRowContext(ctx, `
		SELECT total_events, successful_updates, failed_updates, total_patterns
		FROM metrics WHERE id = 1
	`).Scan(&m.TotalEvents, &m.SuccessfulUpdates, &m.FailedUpdates, &m.TotalPatterns)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalMetrics{}, nil
	}
	if err != nil {
		return GlobalMetrics{}, fmt.Errorf("store: query metrics: %w", err)
	}
	return m, nil
}

func (s *Store) loadAgents(ctx context.Context) (map[string]AgentEffectiveness, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_type, total_spawned, successful_updates, average_confidence, last_used
		FROM agent_effectiveness
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query agent effectiveness: %w", err)
	}
	defer rows.Close()

	out := make(map[string]AgentEffectiveness)
	for rows.Next() {
		var agentType string
		var rec AgentEffectiveness
		var lastUsed sql.NullString
		if err := rows.Scan(&agentType, &rec.TotalSpawned, &rec.SuccessfulUpdates, &rec.AverageConfidence, &lastUsed); err != nil {
			return nil, fmt.Errorf("store: scan agent effectiveness: %w", err)
		}
		if lastUsed.Valid {
			if t, ok := parseTimestamp(lastUsed.String); ok {
				rec.LastUsed = &t
			}
		}
		out[agentType] = rec
	}
	return out, rows.Err()
}

func (s *Store) loadLog(ctx context.Context) ([]LearningEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, pattern_key, agents_spawned, outcome, updates_count, event_summary
		FROM learning_log ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("store: query learning log: %w", err)
	}
	defer rows.Close()

	out := []LearningEvent{}
	for rows.Next() {
		var e LearningEvent
		var ts, agents, summary, outcome string
		if err := rows.Scan(&ts, &e.PatternKey, &agents, &outcome, &e.UpdatesCount, &summary); err != nil {
			return nil, fmt.Errorf("store: scan learning log: %w", err)
		}
		e.Timestamp, _ = parseTimestamp(ts)
		e.Outcome = Outcome(outcome)
		if err := json.Unmarshal([]byte(agents), &e.AgentsSpawned); err != nil {
			return nil, fmt.Errorf("store: decode agents_spawned: %w", err)
		}
		if err := json.Unmarshal([]byte(summary), &e.EventSummary); err != nil {
			return nil, fmt.Errorf("store: decode event_summary: %w", err)
		}
		e.AgentsSpawned = nonNil(e.AgentsSpawned)
		if e.EventSummary.Files == nil {
			e.EventSummary.Files = []string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Save implements Backend.
func (s *Store) Save(ctx context.Context, st *LearningState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistError{Record: "learning state", Err: fmt.Errorf("%w: begin transaction: %w", ErrStorageUnavailable, err)}
	}
	defer tx.Rollback() // no-op if committed

	steps := []struct {
		record string
		fn     func(*sql.Tx) error
	}{
		{RecordPatterns, func(tx *sql.Tx) error { return savePatterns(ctx, tx, st.Patterns) }},
		{RecordMetrics, func(tx *sql.Tx) error { return saveMetrics(ctx, tx, st.Metrics) }},
		{RecordEffectiveness, func(tx *sql.Tx) error { return saveAgents(ctx, tx, st.Agents) }},
		{RecordLog, func(tx *sql.Tx) error { return saveLog(ctx, tx, st.Log) }},
	}
	for _, step := range steps {
		if err := step.fn(tx); err != nil {
			return &PersistError{Record: step.record, Err: fmt.Errorf("%w: %w", ErrStorageUnavailable, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistError{Record: "learning state", Err: fmt.Errorf("%w: commit: %w", ErrStorageUnavailable, err)}
	}
	return nil
}

func savePatterns(ctx context.Context, tx *sql.Tx, patterns map[string]int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM patterns`); err != nil {
		return fmt.Errorf("store: clear patterns: %w", err)
	}
	for _, k := range sortedKeys(patterns) {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO patterns (pattern_key, occurrence_count) VALUES (?, ?)
		`, k, patterns[k]); err != nil {
			return fmt.Errorf("store: insert pattern: %w", err)
		}
	}
	return nil
}

func saveMetrics(ctx context.Context, tx *sql.Tx, m GlobalMetrics) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO metrics (id, total_events, successful_updates, failed_updates, total_patterns)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			total_events = excluded.total_events,
			successful_updates = excluded.successful_updates,
			failed_updates = excluded.failed_updates,
			total_patterns = excluded.total_patterns
	`, m.TotalEvents, m.SuccessfulUpdates, m.FailedUpdates, m.TotalPatterns)
	if err != nil {
		return fmt.Errorf("store: upsert metrics: %w", err)
	}
	return nil
}

func saveAgents(ctx context.Context, tx *sql.Tx, agents map[string]AgentEffectiveness) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM agent_effectiveness`); err != nil {
		return fmt.Errorf("store: clear agent effectiveness: %w", err)
	}
	for _, k := range sortedKeys(agents) {
		rec := agents[k]
		var lastUsed *string
		if rec.LastUsed != nil {
			v := rec.LastUsed.UTC().Format(time.RFC3339Nano)
			lastUsed = &v
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO agent_effectiveness (agent_type, total_spawned, successful_updates, average_confidence, last_used)
			VALUES (?, ?, ?, ?, ?)
		`, k, rec.TotalSpawned, rec.SuccessfulUpdates, rec.AverageConfidence, lastUsed); err != nil {
			return fmt.Errorf("store: insert agent effectiveness: %w", err)
		}
	}
	return nil
}

func saveLog(ctx context.Context, tx *sql.Tx, entries []LearningEvent) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM learning_log`); err != nil {
		return fmt.Errorf("store: clear learning log: %w", err)
	}
	for i, e := range entries {
		agents, err := json.Marshal(nonNil(e.AgentsSpawned))
		if err != nil {
			return fmt.Errorf("store: encode agents_spawned: %w", err)
		}
		summary := e.EventSummary
		if summary.Files == nil {
			summary.Files = []string{}
		}
		summaryJSON, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("store: encode event_summary: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO learning_log (seq, timestamp, pattern_key, agents_spawned, outcome, updates_count, event_summary)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, i, e.Timestamp.UTC().Format(time.RFC3339Nano), e.PatternKey, string(agents), string(e.Outcome), e.UpdatesCount, string(summaryJSON)); err != nil {
			return fmt.Errorf("store: insert learning log: %w", err)
		}
	}
	return nil
}

// IsEmpty reports whether no event has ever been saved.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStoreClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM patterns) + (SELECT COUNT(*) FROM learning_log) + (SELECT COUNT(*) FROM metrics)
	`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: count rows: %w", err)
	}
	return n == 0, nil
}

// Metadata returns a metadata value, or "" when unset.
func (s *Store) Metadata(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrStoreClosed
	}
	var v string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata sets a metadata value.
func (s *Store) SetMetadata(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: write metadata %s: %w", key, err)
	}
	return nil
}

// Close implements Backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
