// internal/history/sqlite.go
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/signalnine/logsentry/internal/protocol"
	_ "modernc.org/sqlite"
)

// HistoryKey is the storage slot holding the history document
const HistoryKey = "log-analysis-history"

// SQLiteBackend stores history as a JSON document in a key-value table
type SQLiteBackend struct {
	db  *sql.DB
	key string
}

// NewSQLiteBackend opens or creates the SQLite database
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode so the dashboard can read while a CLI run writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT DEFAULT (datetime('now'))
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteBackend{db: db, key: HistoryKey}, nil
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load reads the history document. A missing or empty slot is an empty history.
func (b *SQLiteBackend) Load(ctx context.Context) ([]protocol.AnalysisResult, error) {
	var value sql.NullString
	err := b.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, b.key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return []protocol.AnalysisResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !value.Valid || value.String == "" {
		return []protocol.AnalysisResult{}, nil
	}

	var history []protocol.AnalysisResult
	if err := json.Unmarshal([]byte(value.String), &history); err != nil {
		return nil, fmt.Errorf("decode %s: %w", b.key, err)
	}
	if history == nil {
		history = []protocol.AnalysisResult{}
	}
	return history, nil
}

// Save replaces the history document
func (b *SQLiteBackend) Save(ctx context.Context, history []protocol.AnalysisResult) error {
	if history == nil {
		history = []protocol.AnalysisResult{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return err
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, b.key, string(data))
	return err
}
