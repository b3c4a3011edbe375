package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/gommon/log"
	_ "modernc.org/sqlite"

	"github.com/eringen/pagetrack/tracker"
)

// Store provides database operations for analytics events.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *log.Logger
}

// NewStore creates a new event store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{
		db:     db,
		now:    time.Now,
		logger: log.New("events"),
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(l *log.Logger) {
	s.logger = l
}

// SetClock sets the time source for event timestamps and retention.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates the necessary tables if they don't exist.
func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			params TEXT NOT NULL DEFAULT '{}',
			timestamp DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_name ON events(name);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// currentSchemaVersion is the latest schema version. Increment when adding migrations.
const currentSchemaVersion = 1

// migrate applies incremental schema migrations based on a version stored in the settings table.
func (s *Store) migrate() error {
	verStr, err := s.GetSetting("schema_version")
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	version := 0
	if verStr != "" {
		version, err = strconv.Atoi(verStr)
		if err != nil {
			return fmt.Errorf("parse schema version %q: %w", verStr, err)
		}
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	if version < 1 {
		version = 1
	}

	return s.SetSetting("schema_version", strconv.Itoa(version))
}

// GetSetting retrieves a setting value by key. Returns empty string if not found.
func (s *Store) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&val)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return val, err
}

// SetSetting stores a setting value by key (upsert).
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Record stores an event with its parameters.
func (s *Store) Record(name string, params tracker.Params) error {
	if params == nil {
		params = tracker.Params{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params for %s: %w", name, err)
	}
	_, err = s.db.Exec(`INSERT INTO events (name, params, timestamp) VALUES (?, ?, ?)`,
		name, string(encoded), s.now().UTC())
	return err
}

// Sink returns a tracker.Sink that records every event in the store.
// Failures are logged, never surfaced to the tracker.
func (s *Store) Sink() tracker.Sink {
	return tracker.SinkFunc(func(event string, params tracker.Params) {
		if err := s.Record(event, params); err != nil {
			s.logger.Errorf("record event %s: %v", event, err)
		}
	})
}

// Summary returns per-event counts between from and to.
func (s *Store) Summary(from, to time.Time) (*Summary, error) {
	summary := &Summary{
		Period: from.Format("2006-01-02") + " to " + to.Format("2006-01-02"),
		Events: []EventCount{},
	}

	rows, err := s.db.Query(`
		SELECT name, COUNT(*) AS count FROM events
		WHERE timestamp >= ? AND timestamp < ?
		GROUP BY name ORDER BY count DESC, name ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ec EventCount
		if err := rows.Scan(&ec.Name, &ec.Count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		summary.Total += ec.Count
		summary.Events = append(summary.Events, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	return summary, nil
}

// Recent returns up to limit of the newest events, newest first.
func (s *Store) Recent(limit int) ([]Event, error) {
	rows, err := s.db.Query(`SELECT id, name, params, timestamp FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	result := []Event{}
	for rows.Next() {
		var e Event
		var params string
		if err := rows.Scan(&e.ID, &e.Name, &params, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("decode params of event %d: %w", e.ID, err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CleanupOldEvents removes events older than the retention period.
func (s *Store) CleanupOldEvents(retentionDays int) error {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	if _, err := s.db.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("cleanup events: %w", err)
	}
	return nil
}

// StartCleanupScheduler runs periodic cleanup of old events. Returns a stop function.
func (s *Store) StartCleanupScheduler(retentionDays int, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := s.CleanupOldEvents(retentionDays); err != nil {
					s.logger.Errorf("cleanup error: %v", err)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
