package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trivia-engine/internal/domain"
)

const waitFor = 2 * time.Second

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

type fakeTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.stopped) })
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	t := &fakeTicker{c: make(chan time.Time), stopped: make(chan struct{})}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *fakeClock) latest(t *testing.T) *fakeTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.tickers, "no countdown was started")
	return c.tickers[len(c.tickers)-1]
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// Tick advances the latest countdown by n seconds.
func (c *fakeClock) Tick(t *testing.T, n int) {
	t.Helper()
	tk := c.latest(t)
	for i := 0; i < n; i++ {
		select {
		case tk.c <- time.Now():
		case <-time.After(waitFor):
			t.Fatalf("tick %d of %d was not consumed", i+1, n)
		}
	}
}

// consumed reports whether a tick on tk is picked up within a short window.
func consumed(tk *fakeTicker) bool {
	select {
	case tk.c <- time.Now():
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

// stopped waits for the countdown owning tk to exit.
func stopped(tk *fakeTicker) bool {
	select {
	case <-tk.stopped:
		return true
	case <-time.After(waitFor):
		return false
	}
}

type finishCall struct {
	sessionID string
	score     int
}

type fakeRepository struct {
	mu         sync.Mutex
	sessionID  string
	questions  []domain.Question
	startErr   error
	finishErr  error
	startGate  chan struct{}
	finishGate chan struct{}
	starts     int
	finishes   []finishCall
}

func (r *fakeRepository) StartSession(ctx context.Context, _, _ string, _ int) (domain.StartedSession, error) {
	if r.startGate != nil {
		select {
		case <-r.startGate:
		case <-ctx.Done():
			return domain.StartedSession{}, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return domain.StartedSession{}, r.startErr
	}
	return domain.StartedSession{
		SessionID: r.sessionID,
		StartedAt: time.Now(),
		Questions: r.questions,
	}, nil
}

func (r *fakeRepository) FinishSession(ctx context.Context, sessionID string, finalScore int) error {
	if r.finishGate != nil {
		select {
		case <-r.finishGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, finishCall{sessionID: sessionID, score: finalScore})
	return r.finishErr
}

func (r *fakeRepository) finishCalls() []finishCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finishCall(nil), r.finishes...)
}

var errNetwork = errors.New("connection refused")

func makeQuestions(n, baseScore int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		questions = append(questions, domain.Question{
			ID:        "q-" + id,
			Statement: "Question " + id,
			BaseScore: baseScore,
			Options: []domain.Option{
				{ID: id + "-1", Text: "wrong"},
				{ID: id + "-2", Text: "right", Correct: true},
				{ID: id + "-3", Text: "also wrong"},
			},
		})
	}
	return questions
}

func makeMachine(repo *fakeRepository, clk *fakeClock) *Machine {
	return NewMachine(Config{
		Repository:    repo,
		NewTickerFunc: clk.NewTicker,
		Rand:          rand.New(rand.NewSource(1)),
		FinishTimeout: time.Second,
	})
}

func correctOption(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	require.NotNil(t, snap.CurrentQuestion)
	for _, opt := range snap.CurrentQuestion.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	t.Fatalf("question %s has no correct option", snap.CurrentQuestion.ID)
	return ""
}

func wrongOption(t *testing.T, snap domain.Snapshot) string {
	t.Helper()
	require.NotNil(t, snap.CurrentQuestion)
	for _, opt := range snap.CurrentQuestion.Options {
		if !opt.Correct {
			return opt.ID
		}
	}
	t.Fatalf("question %s has no wrong option", snap.CurrentQuestion.ID)
	return ""
}

func awaitSync(t *testing.T, m *Machine) (domain.SyncResult, bool) {
	t.Helper()
	select {
	case res, ok := <-m.SyncResults():
		return res, ok
	case <-time.After(waitFor):
		t.Fatalf("sync result not delivered")
		return domain.SyncResult{}, false
	}
}
