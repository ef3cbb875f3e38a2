package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kiliankoe/playtutor/internal/game"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_results (
	session_id  TEXT PRIMARY KEY,
	game_id     TEXT NOT NULL,
	style       TEXT NOT NULL DEFAULT '',
	cause       TEXT NOT NULL,
	attempted   INTEGER NOT NULL DEFAULT 0,
	correct     INTEGER NOT NULL DEFAULT 0,
	wrong       INTEGER NOT NULL DEFAULT 0,
	closed_at   INTEGER NOT NULL,
	result_json TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_results_closed ON session_results(closed_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_results_game ON session_results(game_id);
`

// SQLiteStore persists results in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the store at path. ":memory:" works
// for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("results db path is required")
	}
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create results dir: %w", err)
			}
		}
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// each connection would get its own database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores r, replacing an earlier row for the same session.
func (s *SQLiteStore) Record(ctx context.Context, r game.Result) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_results (session_id, game_id, style, cause, attempted, correct, wrong, closed_at, result_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		    game_id = excluded.game_id,
		    style = excluded.style,
		    cause = excluded.cause,
		    attempted = excluded.attempted,
		    correct = excluded.correct,
		    wrong = excluded.wrong,
		    closed_at = excluded.closed_at,
		    result_json = excluded.result_json`,
		r.SessionID, r.Stats.GameID, r.Stats.SelectedStyle, string(r.Cause),
		r.Stats.QuestionsAttempted, r.Stats.CorrectAnswers, r.Stats.WrongAnswers,
		r.ClosedAt.UnixMilli(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	GameID string
	Limit  int
}

// List returns stored results, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]game.Result, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT result_json FROM session_results`
	args := []any{}
	if f.GameID != "" {
		query += ` WHERE game_id = ?`
		args = append(args, f.GameID)
	}
	query += ` ORDER BY closed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	out := []game.Result{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		var r game.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
