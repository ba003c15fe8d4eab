package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-engine/internal/domain"
)

// SessionRecord is one row of the in-memory session ledger.
type SessionRecord struct {
	SessionID    string
	UserID       string
	CategoryID   string
	DifficultyID int
	StartedAt    time.Time
	FinishedAt   time.Time
	FinalScore   int
	Finished     bool
}

// Authority is an in-process scoring authority: it hands out session ids and
// question pools and records final scores.
type Authority struct {
	catalog CatalogLoader
	clock   func() time.Time

	mu       sync.Mutex
	sessions map[string]SessionRecord
}

func NewAuthority(catalog CatalogLoader) *Authority {
	return &Authority{
		catalog:  catalog,
		clock:    time.Now,
		sessions: make(map[string]SessionRecord),
	}
}

func (a *Authority) StartSession(ctx context.Context, userID, categoryID string, difficultyID int) (domain.StartedSession, error) {
	questions, err := a.catalog.LoadQuestions(ctx, categoryID, difficultyID)
	if err != nil && !errors.Is(err, domain.ErrCatalogNotFound) {
		return domain.StartedSession{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.StartedSession{}, err
	}

	now := a.clock()
	a.mu.Lock()
	a.sessions[id.String()] = SessionRecord{
		SessionID:    id.String(),
		UserID:       userID,
		CategoryID:   categoryID,
		DifficultyID: difficultyID,
		StartedAt:    now,
	}
	a.mu.Unlock()

	return domain.StartedSession{
		SessionID: id.String(),
		StartedAt: now,
		Questions: questions,
	}, nil
}

func (a *Authority) FinishSession(_ context.Context, sessionID string, finalScore int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if rec.Finished {
		return domain.ErrAlreadyFinished
	}
	rec.Finished = true
	rec.FinishedAt = a.clock()
	rec.FinalScore = finalScore
	a.sessions[sessionID] = rec
	return nil
}

// Session returns the ledger entry for sessionID.
func (a *Authority) Session(sessionID string) (SessionRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.sessions[sessionID]
	return rec, ok
}
