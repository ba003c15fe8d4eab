package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-engine/internal/domain"
)

// QuestionSource supplies the question pool handed out with a new session.
type QuestionSource interface {
	LoadQuestions(ctx context.Context, categoryID string, difficultyID int) ([]domain.Question, error)
}

// SessionRepository is a scoring authority backed by the game_sessions ledger.
type SessionRepository struct {
	pool      *pgxpool.Pool
	questions QuestionSource
}

func NewSessionRepository(pool *pgxpool.Pool, questions QuestionSource) *SessionRepository {
	return &SessionRepository{pool: pool, questions: questions}
}

func (r *SessionRepository) StartSession(ctx context.Context, userID, categoryID string, difficultyID int) (domain.StartedSession, error) {
	questions, err := r.questions.LoadQuestions(ctx, categoryID, difficultyID)
	if err != nil && !errors.Is(err, domain.ErrCatalogNotFound) {
		return domain.StartedSession{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.StartedSession{}, err
	}

	var startedAt time.Time
	err = r.pool.QueryRow(ctx,
		`INSERT INTO game_sessions (id, user_id, category_id, difficulty_id) VALUES ($1, $2, $3, $4) RETURNING started_at`,
		id.String(), userID, categoryID, difficultyID).Scan(&startedAt)
	if err != nil {
		return domain.StartedSession{}, fmt.Errorf("insert session: %w", err)
	}

	return domain.StartedSession{
		SessionID: id.String(),
		StartedAt: startedAt,
		Questions: questions,
	}, nil
}

// FinishSession records the final score once; a repeated finish is rejected.
func (r *SessionRepository) FinishSession(ctx context.Context, sessionID string, finalScore int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE game_sessions SET final_score=$2, finished_at=now() WHERE id=$1 AND finished_at IS NULL`,
		sessionID, finalScore)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM game_sessions WHERE id=$1)`, sessionID).Scan(&exists); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if exists {
		return domain.ErrAlreadyFinished
	}
	return domain.ErrSessionNotFound
}

// FinalScore returns the recorded score, or false while the session is open.
func (r *SessionRepository) FinalScore(ctx context.Context, sessionID string) (int, bool, error) {
	var score *int
	err := r.pool.QueryRow(ctx, `SELECT final_score FROM game_sessions WHERE id=$1`, sessionID).Scan(&score)
	if err != nil {
		return 0, false, fmt.Errorf("final score: %w", err)
	}
	if score == nil {
		return 0, false, nil
	}
	return *score, true, nil
}
