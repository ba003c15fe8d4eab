package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"trivia-engine/internal/difficulty"
	"trivia-engine/internal/domain"
	"trivia-engine/internal/metrics"
)

const defaultCallTimeout = 10 * time.Second

// SessionRepository is the remote scoring authority.
type SessionRepository interface {
	StartSession(ctx context.Context, userID, categoryID string, difficultyID int) (domain.StartedSession, error)
	FinishSession(ctx context.Context, sessionID string, finalScore int) error
}

// Resolver maps a difficulty id to its parameters.
type Resolver interface {
	Resolve(difficultyID int) domain.DifficultyParameters
}

type Config struct {
	Repository    SessionRepository
	Policy        Resolver
	StartTimeout  time.Duration
	FinishTimeout time.Duration
	NewTickerFunc NewTickerFunc
	Rand          *rand.Rand
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Machine drives one timed session from start to a decided outcome.
// All mutations happen under mu, including timer callbacks.
type Machine struct {
	repo          SessionRepository
	policy        Resolver
	startTimeout  time.Duration
	finishTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu            sync.Mutex
	rnd           *rand.Rand
	timer         *Timer
	seq           *Sequencer
	params        domain.DifficultyParameters
	sessionID     string
	status        domain.Status
	reason        domain.Reason
	current       *domain.Question
	score         int
	timeRemaining int
	finalizeSent  bool
	started       bool
	closed        bool
	subscribers   map[chan domain.Snapshot]struct{}

	syncCh   chan domain.SyncResult
	done     chan struct{}
	syncOnce sync.Once
	wg       sync.WaitGroup
}

func NewMachine(c Config) *Machine {
	rnd := c.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	policy := c.Policy
	if policy == nil {
		policy = difficulty.DefaultPolicy()
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		repo:          c.Repository,
		policy:        policy,
		startTimeout:  orDefault(c.StartTimeout),
		finishTimeout: orDefault(c.FinishTimeout),
		metrics:       c.Metrics,
		logger:        logger,
		rnd:           rnd,
		seq:           NewSequencer(rnd),
		status:        domain.StatusLoading,
		subscribers:   make(map[chan domain.Snapshot]struct{}),
		syncCh:        make(chan domain.SyncResult, 1),
		done:          make(chan struct{}),
	}
	m.timer = NewTimer(c.NewTickerFunc, &m.mu)
	return m
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultCallTimeout
	}
	return d
}

// Start resolves difficulty parameters once, asks the authority for a session
// and shows the first question. Any failure ends in Lost with no finalize.
func (m *Machine) Start(ctx context.Context, userID, categoryID string, difficultyID int) (domain.Snapshot, error) {
	m.mu.Lock()
	if m.closed {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, domain.ErrSessionAbandoned
	}
	if m.started {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, domain.ErrAlreadyStarted
	}
	m.started = true
	m.params = m.policy.Resolve(difficultyID)
	m.mu.Unlock()

	m.metrics.SessionStarted()

	callCtx, cancel := context.WithTimeout(ctx, m.startTimeout)
	started, err := m.repo.StartSession(callCtx, userID, categoryID, difficultyID)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return m.snapshotLocked(), domain.ErrSessionAbandoned
	}

	if err != nil {
		m.logger.Warn("engine: start session failed",
			"user_id", userID,
			"category_id", categoryID,
			"difficulty_id", difficultyID,
			"error", err,
		)
		m.abortLocked(domain.ReasonStartFailed)
		return m.snapshotLocked(), fmt.Errorf("%w: %w", domain.ErrStartFailed, err)
	}

	m.sessionID = started.SessionID
	if err := m.seq.Load(started.Questions); err != nil {
		m.abortLocked(domain.ReasonEmptyCatalog)
		return m.snapshotLocked(), err
	}

	m.presentCurrentLocked()
	return m.snapshotLocked(), nil
}

// SubmitAnswer evaluates optionID against the current question. It is a no-op
// outside AwaitingAnswer. The countdown is cancelled before evaluation.
func (m *Machine) SubmitAnswer(optionID string) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitAnswerLocked(optionID)
}

func (m *Machine) submitAnswerLocked(optionID string) (domain.Snapshot, error) {
	if m.closed || m.status != domain.StatusAwaitingAnswer || m.current == nil {
		return m.snapshotLocked(), nil
	}
	opt, ok := findOption(*m.current, optionID)
	if !ok {
		return m.snapshotLocked(), domain.ErrOptionNotFound
	}

	m.timer.Cancel()
	m.metrics.Answer(opt.Correct)

	if !opt.Correct {
		m.terminateLocked(domain.StatusLost, domain.ReasonWrongAnswer)
		return m.snapshotLocked(), nil
	}

	m.score += m.current.BaseScore * m.params.ScoreMultiplier
	if m.seq.Index()+1 < m.seq.Len() {
		// announced while the answered question and its index are still current
		m.status = domain.StatusAdvancing
		m.broadcastLocked()
	}
	m.seq.Advance()
	if !m.seq.HasMore() {
		m.current = nil
		m.terminateLocked(domain.StatusWon, domain.ReasonCompleted)
		return m.snapshotLocked(), nil
	}

	m.presentCurrentLocked()
	return m.snapshotLocked(), nil
}

// Close abandons the session: the countdown stops, observers are released and
// nothing is reported to the authority unless a finalize was already sent.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timer.Cancel()
	if m.closed {
		return
	}
	m.closed = true
	if !m.status.Terminal() {
		m.reason = domain.ReasonAbandoned
		m.broadcastLocked()
	}
	if !m.finalizeSent {
		m.closeSync()
	}
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}

// Snapshot returns the current observer view.
func (m *Machine) Snapshot() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Parameters returns the difficulty parameters frozen at start.
func (m *Machine) Parameters() domain.DifficultyParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// SyncResults yields at most one finalize result, then closes. It closes
// without a value when there is nothing to report.
func (m *Machine) SyncResults() <-chan domain.SyncResult {
	return m.syncCh
}

// Done is closed once the session is settled: the finalize call returned,
// there was nothing to report, or the session was abandoned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until an in-flight finalize call returns.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Subscribe returns a channel of snapshots starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (m *Machine) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	m.mu.Lock()
	ch <- m.snapshotLocked()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

func (m *Machine) presentCurrentLocked() {
	q, ok := m.seq.Current()
	if !ok {
		return
	}
	presented, repaired := presentQuestion(q, m.rnd)
	if repaired {
		m.logger.Warn("engine: malformed question normalized",
			"session_id", m.sessionID,
			"question_id", q.ID,
			"options", len(q.Options),
			"error", domain.ErrMalformedQuestion,
		)
	}

	m.current = &presented
	m.timeRemaining = m.params.TimeLimitSeconds
	m.status = domain.StatusAwaitingAnswer
	m.timer.Start(m.params.TimeLimitSeconds, m.onTickLocked, m.onExpireLocked)
	m.broadcastLocked()
}

// onTickLocked and onExpireLocked run under mu via the timer guard.
func (m *Machine) onTickLocked(remaining int) {
	if m.status != domain.StatusAwaitingAnswer || remaining == m.timeRemaining {
		return
	}
	m.timeRemaining = remaining
	m.broadcastLocked()
}

func (m *Machine) onExpireLocked() {
	if m.status != domain.StatusAwaitingAnswer {
		return
	}
	m.timeRemaining = 0
	m.terminateLocked(domain.StatusLost, domain.ReasonTimeout)
}

// abortLocked ends a session that never got going; there is nothing to report.
func (m *Machine) abortLocked(reason domain.Reason) {
	m.finalizeSent = true
	m.terminateLocked(domain.StatusLost, reason)
	m.closeSync()
}

func (m *Machine) terminateLocked(status domain.Status, reason domain.Reason) {
	m.timer.Cancel()
	m.status = status
	m.reason = reason
	m.metrics.SessionFinished(status, reason)
	m.broadcastLocked()
	m.finalizeLocked()
}

// finalizeLocked reports the score at most once. finalizeSent is set before
// the call is issued and never reset.
func (m *Machine) finalizeLocked() {
	if m.finalizeSent {
		return
	}
	if m.sessionID == "" {
		m.finalizeSent = true
		m.closeSync()
		return
	}
	m.finalizeSent = true

	sessionID, score := m.sessionID, m.score
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.finishTimeout)
		defer cancel()

		err := m.repo.FinishSession(ctx, sessionID, score)
		if err != nil {
			err = fmt.Errorf("%w: %w", domain.ErrFinishFailed, err)
			m.logger.Warn("engine: finish session failed",
				"session_id", sessionID,
				"final_score", score,
				"error", err,
			)
		}
		m.metrics.Finalized(err)

		m.syncOnce.Do(func() {
			m.syncCh <- domain.SyncResult{SessionID: sessionID, FinalScore: score, Err: err}
			close(m.syncCh)
			close(m.done)
		})
	}()
}

func (m *Machine) closeSync() {
	m.syncOnce.Do(func() {
		close(m.syncCh)
		close(m.done)
	})
}

func (m *Machine) broadcastLocked() {
	snap := m.snapshotLocked()
	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the stale update so slow observers never block transitions
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (m *Machine) snapshotLocked() domain.Snapshot {
	var current *domain.Question
	if m.current != nil {
		q := *m.current
		q.Options = append([]domain.Option(nil), m.current.Options...)
		current = &q
	}
	return domain.Snapshot{
		SessionID:       m.sessionID,
		Status:          m.status,
		Reason:          m.reason,
		CurrentQuestion: current,
		TimeRemaining:   m.timeRemaining,
		Score:           m.score,
		QuestionIndex:   m.seq.Index(),
		TotalQuestions:  m.seq.Len(),
	}
}
