// Package store persists the conversation transcript and an audit log of
// dispatched actions in SQLite. Tasks themselves are never persisted.
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

	_ "github.com/mattn/go-sqlite3"
)

// DefaultRetention is how long transcript and audit rows are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Config configures the database.
type Config struct {
	// Path is the SQLite file. Default ~/deskclaw_data/deskclaw.db.
	Path string `yaml:"path"`

	// Retention prunes older rows on open. Zero means DefaultRetention.
	Retention time.Duration `yaml:"retention"`
}

// DefaultConfig returns the default database location.
func DefaultConfig() Config {
	path := filepath.Join("deskclaw_data", "deskclaw.db")
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, path)
	}
	return Config{Path: path, Retention: DefaultRetention}
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_created ON transcript(created_at);

CREATE TABLE IF NOT EXISTS action_audit (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	action      TEXT NOT NULL,
	params_json TEXT NOT NULL DEFAULT '{}',
	source      TEXT NOT NULL DEFAULT '',
	result      TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_action_audit_created ON action_audit(created_at);
`

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript row.
type Message struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Action is one audit row.
type Action struct {
	ID        int64             `json:"id"`
	Action    string            `json:"action"`
	Params    map[string]string `json:"params"`
	Source    string            `json:"source"`
	Result    string            `json:"result"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store wraps the database handle. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// Open opens or creates the database, applies the schema and prunes rows
// older than the retention window.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := OpenDatabase(cfg.Path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db, now: time.Now, logger: logger.With("component", "store")}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if n, err := s.Prune(context.Background(), cfg.Retention); err != nil {
		s.logger.Warn("pruning old rows failed", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned old rows", "rows", n)
	}
	return s, nil
}

// OpenDatabase opens a SQLite file with WAL journaling, a busy timeout and
// foreign keys enabled.
func OpenDatabase(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Prune deletes transcript and audit rows older than retention and
// returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().UTC().Add(-retention)
	var total int64
	for _, table := range []string{"transcript", "action_audit"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE created_at < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// Append adds a transcript message.
func (s *Store) Append(ctx context.Context, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO transcript (role, content, created_at) VALUES (?, ?, ?)",
		role, content, s.now().UTC())
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// Recent returns up to limit transcript messages, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM (
			SELECT id, role, content, created_at FROM transcript ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordAction appends an audit entry.
func (s *Store) RecordAction(ctx context.Context, action string, params map[string]string, source, result string) error {
	if params == nil {
		params = map[string]string{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO action_audit (action, params_json, source, result, created_at) VALUES (?, ?, ?, ?, ?)",
		action, string(raw), source, result, s.now().UTC())
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// RecentActions returns up to limit audit entries, newest first.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, action, params_json, source, result, created_at FROM action_audit ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var (
			a   Action
			raw string
		)
		if err := rows.Scan(&a.ID, &a.Action, &raw, &a.Source, &a.Result, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &a.Params); err != nil {
			s.logger.Warn("bad audit params", "id", a.ID, "error", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
