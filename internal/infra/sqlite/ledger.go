package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"trivia-engine/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS game_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    category_id TEXT NOT NULL,
    difficulty_id INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    final_score INTEGER
);
`

// QuestionSource supplies the question pool handed out with a new session.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error)
}

// Ledger is a file-backed scoring authority for offline play.
type Ledger struct {
	db        *sql.DB
	questions QuestionSource
	clock     func() time.Time
}

func Open(path string, questions QuestionSource) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer avoids SQLITE_BUSY on concurrent finishes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Ledger{db: db, questions: questions, clock: time.Now}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) StartSession(ctx context.Context, userID, categoryID string, difficultyID int) (domain.StartedSession, error) {
	questions, err := l.questions.LoadQuestions(ctx, categoryID, difficultyID)
	if err != nil && !errors.Is(err, domain.ErrCatalogNotFound) {
		return domain.StartedSession{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.StartedSession{}, err
	}
	now := l.clock().UTC()

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO game_sessions (id, user_id, category_id, difficulty_id, started_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), userID, categoryID, difficultyID, now.Format(time.RFC3339Nano))
	if err != nil {
		return domain.StartedSession{}, fmt.Errorf("insert session: %w", err)
	}

	return domain.StartedSession{
		SessionID: id.String(),
		StartedAt: now,
		Questions: questions,
	}, nil
}

func (l *Ledger) FinishSession(ctx context.Context, sessionID string, finalScore int) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE game_sessions SET final_score = ?, finished_at = ? WHERE id = ? AND finished_at IS NULL`,
		finalScore, l.clock().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM game_sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if exists > 0 {
		return domain.ErrAlreadyFinished
	}
	return domain.ErrSessionNotFound
}

// Result is a finished session as stored in the ledger.
type Result struct {
	SessionID    string
	UserID       string
	CategoryID   string
	DifficultyID int
	FinalScore   int
}

// Results lists a user's finished sessions, best score first.
func (l *Ledger) Results(ctx context.Context, userID string) ([]Result, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, category_id, difficulty_id, final_score FROM game_sessions
		 WHERE user_id = ? AND finished_at IS NOT NULL
		 ORDER BY final_score DESC, finished_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.CategoryID, &r.DifficultyID, &r.FinalScore); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
