package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"trivia-engine/internal/domain"
	"trivia-engine/internal/engine"
)

// SessionRegistry abstracts where live engine sessions are tracked (in-memory, Redis, etc).
type SessionRegistry interface {
	Put(engineID string, m *engine.Machine)
	Get(engineID string) (*engine.Machine, bool)
	Delete(engineID string)
	List() []string
}

// ErrServiceClosed is returned by Start once Shutdown has begun.
var ErrServiceClosed = errors.New("session service is shut down")

// MachineFactory builds a fresh, unstarted session machine.
type MachineFactory func() *engine.Machine

// SessionService hosts many independent engine sessions, one Machine each,
// keyed by a local engine id. Settled sessions leave the registry but keep
// their final snapshot until Abandon, so late answers stay no-ops.
type SessionService struct {
	sessions   SessionRegistry
	newMachine MachineFactory
	logger     *slog.Logger
	wg         sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	settled map[string]domain.Snapshot
}

func NewSessionService(registry SessionRegistry, factory MachineFactory, logger *slog.Logger) *SessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		sessions:   registry,
		newMachine: factory,
		logger:     logger,
		settled:    make(map[string]domain.Snapshot),
	}
}

// Start creates a session and drives it to its first question. On failure the
// returned snapshot carries the Lost outcome and the session is not kept.
func (s *SessionService) Start(ctx context.Context, userID, categoryID string, difficultyID int) (string, domain.Snapshot, error) {
	engineID, err := uuid.NewV7()
	if err != nil {
		return "", domain.Snapshot{}, err
	}
	id := engineID.String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", domain.Snapshot{}, ErrServiceClosed
	}
	// reserved for reap; released below if the session never starts
	s.wg.Add(1)
	s.mu.Unlock()

	m := s.newMachine()
	s.sessions.Put(id, m)

	snap, err := m.Start(ctx, userID, categoryID, difficultyID)
	if err != nil {
		s.sessions.Delete(id)
		m.Close()
		s.wg.Done()
		return "", snap, err
	}

	go s.reap(id, m)

	// Shutdown may have listed the registry before Put.
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		m.Close()
		s.sessions.Delete(id)
		return "", m.Snapshot(), ErrServiceClosed
	}

	s.logger.Debug("app: session started",
		"engine_id", id,
		"session_id", snap.SessionID,
		"difficulty_id", difficultyID,
	)
	return id, snap, nil
}

// reap drops a session from the registry once it is settled. A session that
// reached an outcome leaves its final snapshot behind.
func (s *SessionService) reap(id string, m *engine.Machine) {
	defer s.wg.Done()
	<-m.Done()
	snap := m.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions.Get(id)
	if !ok || current != m {
		return
	}
	s.sessions.Delete(id)
	if snap.Status.Terminal() && !s.closed {
		s.settled[id] = snap
	}
}

func (s *SessionService) settledSnapshot(engineID string) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.settled[engineID]
	return snap, ok
}

// SubmitAnswer forwards an answer to the session's machine. Answers for a
// settled session are ignored and return its final snapshot.
func (s *SessionService) SubmitAnswer(_ context.Context, engineID, optionID string) (domain.Snapshot, error) {
	m, ok := s.sessions.Get(engineID)
	if !ok {
		if snap, settled := s.settledSnapshot(engineID); settled {
			return snap, nil
		}
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return m.SubmitAnswer(optionID)
}

// Snapshot returns the current view of a session.
func (s *SessionService) Snapshot(engineID string) (domain.Snapshot, error) {
	m, ok := s.sessions.Get(engineID)
	if !ok {
		if snap, settled := s.settledSnapshot(engineID); settled {
			return snap, nil
		}
		return domain.Snapshot{}, domain.ErrSessionNotFound
	}
	return m.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(engineID string) (<-chan domain.Snapshot, func(), error) {
	m, ok := s.sessions.Get(engineID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := m.Subscribe()
	return ch, cancel, nil
}

// Sync returns the channel carrying the session's finalize result.
func (s *SessionService) Sync(engineID string) (<-chan domain.SyncResult, error) {
	m, ok := s.sessions.Get(engineID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return m.SyncResults(), nil
}

// Abandon tears a session down. A session that already reached an outcome
// keeps its in-flight finalize; otherwise nothing is reported.
func (s *SessionService) Abandon(engineID string) {
	if m, ok := s.sessions.Get(engineID); ok {
		m.Close()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Delete(engineID)
	delete(s.settled, engineID)
}

// Shutdown refuses new sessions, abandons every live one and waits for
// in-flight finalize calls.
func (s *SessionService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	clear(s.settled)
	s.mu.Unlock()

	for _, id := range s.sessions.List() {
		if m, ok := s.sessions.Get(id); ok {
			m.Close()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
