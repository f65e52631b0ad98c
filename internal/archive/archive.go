// Package archive keeps an audit copy of ended sessions in SQLite.
// Archived sessions are read back for inspection only; they never become
// live sessions again.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"VoiceChat/internal/conversation"
)

// Record is an archived session
type Record struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Reason    string
	Turns     []conversation.Turn
}

// Archive writes ended sessions to a SQLite database
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the archive database at path
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME,
		end_time DATETIME,
		reason TEXT
	);`

	createTurnsTable := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		seq INTEGER,
		speaker TEXT,
		text TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	if _, err := db.Exec(createTurnsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create turns table: %w", err)
	}

	return &Archive{db: db, logger: logger}, nil
}

// Save stores a session and its turns, replacing any earlier copy
func (a *Archive) Save(ctx context.Context, rec Record) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO sessions (id, start_time, end_time, reason) VALUES (?, ?, ?, ?)",
		rec.ID, rec.StartTime, rec.EndTime, rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", rec.ID); err != nil {
		return fmt.Errorf("failed to clear turns: %w", err)
	}

	for i, t := range rec.Turns {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO turns (session_id, seq, speaker, text, timestamp) VALUES (?, ?, ?, ?, ?)",
			rec.ID, i, t.Speaker.Label(), t.Text, t.At,
		)
		if err != nil {
			return fmt.Errorf("failed to save turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	a.logger.Info("session archived", "session_id", rec.ID, "turn_count", len(rec.Turns))
	return nil
}

// Load reads an archived session back for inspection
func (a *Archive) Load(ctx context.Context, id string) (*Record, error) {
	rec := &Record{ID: id}

	err := a.db.QueryRowContext(ctx, "SELECT start_time, end_time, reason FROM sessions WHERE id = ?", id).
		Scan(&rec.StartTime, &rec.EndTime, &rec.Reason)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	rows, err := a.db.QueryContext(ctx,
		"SELECT speaker, text, timestamp FROM turns WHERE session_id = ? ORDER BY seq",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var t conversation.Turn
		if err := rows.Scan(&label, &t.Text, &t.At); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if t.Speaker, err = conversation.ParseSpeaker(label); err != nil {
			return nil, err
		}
		rec.Turns = append(rec.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return rec, nil
}

// List returns archived session IDs, newest first
func (a *Archive) List(ctx context.Context, limit int) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY start_time DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}
