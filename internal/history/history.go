package history

import (
	"context"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"

	"github.com/jaminalder/tictactoe-web/internal/domain"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	winner TEXT NOT NULL,
	line TEXT NOT NULL,
	moves INTEGER NOT NULL,
	finished_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS results_session_idx ON results (session_id)`,
}

// Result is one finished game. Winner is empty for a draw.
type Result struct {
	ID         int64     `db:"id" json:"-"`
	SessionID  string    `db:"session_id" json:"-"`
	Mode       string    `db:"mode" json:"mode"`
	Winner     string    `db:"winner" json:"winner"`
	Line       string    `db:"line" json:"line,omitempty"`
	Moves      int       `db:"moves" json:"moves"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

// Tally counts finished games for one session.
type Tally struct {
	X     int `db:"x_wins"`
	O     int `db:"o_wins"`
	Draws int `db:"draws"`
}

// Recorder stores finished games.
type Recorder interface {
	Record(ctx context.Context, sessionID string, s domain.Session) error
	Tally(ctx context.Context, sessionID string) (Tally, error)
	Recent(ctx context.Context, sessionID string, limit int) ([]Result, error)
}

// SQLite is a Recorder backed by a local database file.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the database at path and creates the schema.
func Open(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err = db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLite{db: db, now: time.Now}, nil
}

// Record stores a finished session. Sessions still in play are rejected.
func (r *SQLite) Record(ctx context.Context, sessionID string, s domain.Session) error {
	res := Result{
		SessionID:  sessionID,
		Mode:       string(s.Mode()),
		Moves:      s.Board.Count(),
		FinishedAt: r.now().UTC(),
	}
	switch s.Outcome.Kind {
	case domain.Win:
		res.Winner = s.Outcome.Winner.String()
		res.Line = fmt.Sprintf("%d,%d,%d", s.Outcome.Line[0], s.Outcome.Line[1], s.Outcome.Line[2])
	case domain.Draw:
	default:
		return fmt.Errorf("session %s is not finished", sessionID)
	}

	query := `INSERT INTO results (session_id, mode, winner, line, moves, finished_at)
		VALUES (:session_id, :mode, :winner, :line, :moves, :finished_at)`
	if _, err := r.db.NamedExecContext(ctx, query, res); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

// Tally returns the win and draw counts for a session.
func (r *SQLite) Tally(ctx context.Context, sessionID string) (Tally, error) {
	var t Tally
	query := `SELECT
		COALESCE(SUM(CASE WHEN winner = 'X' THEN 1 ELSE 0 END), 0) AS x_wins,
		COALESCE(SUM(CASE WHEN winner = 'O' THEN 1 ELSE 0 END), 0) AS o_wins,
		COALESCE(SUM(CASE WHEN winner = '' THEN 1 ELSE 0 END), 0) AS draws
		FROM results WHERE session_id = ?`
	if err := r.db.GetContext(ctx, &t, query, sessionID); err != nil {
		return Tally{}, fmt.Errorf("failed to tally results: %w", err)
	}
	return t, nil
}

// Recent returns the latest results for a session, newest first.
func (r *SQLite) Recent(ctx context.Context, sessionID string, limit int) ([]Result, error) {
	var out []Result
	query := `SELECT id, session_id, mode, winner, line, moves, finished_at
		FROM results WHERE session_id = ? ORDER BY id DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &out, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return out, nil
}

func (r *SQLite) Close() error {
	return r.db.Close()
}
