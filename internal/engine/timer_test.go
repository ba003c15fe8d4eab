package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	ticks   []int
	expired int
}

func (r *recorder) onTick(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *recorder) onExpire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
}

func (r *recorder) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), r.expired
}

func TestTimer_CountsDownAndExpiresOnce(t *testing.T) {
	clk := &fakeClock{}
	timer := NewTimer(clk.NewTicker, nil)
	rec := &recorder{}

	timer.Start(3, rec.onTick, rec.onExpire)
	require.True(t, timer.Active())
	clk.Tick(t, 3)

	tk := clk.latest(t)
	require.True(t, stopped(tk))

	ticks, expired := rec.snapshot()
	require.Equal(t, []int{3, 2, 1, 0}, ticks)
	require.Equal(t, 1, expired)
	require.False(t, timer.Active())
}

func TestTimer_ZeroExpiresImmediately(t *testing.T) {
	clk := &fakeClock{}
	timer := NewTimer(clk.NewTicker, nil)
	rec := &recorder{}

	timer.Start(0, rec.onTick, rec.onExpire)
	require.True(t, stopped(clk.latest(t)))

	ticks, expired := rec.snapshot()
	require.Equal(t, []int{0}, ticks)
	require.Equal(t, 1, expired)
}

func TestTimer_RestartDiscardsPreviousCountdown(t *testing.T) {
	clk := &fakeClock{}
	timer := NewTimer(clk.NewTicker, nil)
	first := &recorder{}
	second := &recorder{}

	timer.Start(1, first.onTick, first.onExpire)
	firstTicker := clk.latest(t)

	timer.Start(2, second.onTick, second.onExpire)
	require.True(t, stopped(firstTicker))
	require.False(t, consumed(firstTicker))

	clk.Tick(t, 2)
	require.True(t, stopped(clk.latest(t)))

	_, firstExpired := first.snapshot()
	require.Zero(t, firstExpired)

	ticks, expired := second.snapshot()
	require.Equal(t, []int{2, 1, 0}, ticks)
	require.Equal(t, 1, expired)
}

func TestTimer_CancelSuppressesPendingDelivery(t *testing.T) {
	clk := &fakeClock{}
	var guard sync.Mutex
	timer := NewTimer(clk.NewTicker, &guard)
	rec := &recorder{}

	timer.Start(1, rec.onTick, rec.onExpire)
	tk := clk.latest(t)
	require.Eventually(t, func() bool {
		ticks, _ := rec.snapshot()
		return len(ticks) == 1
	}, waitFor, 5*time.Millisecond)

	guard.Lock()
	tk.c <- time.Now()
	timer.Cancel()
	timer.Cancel()
	guard.Unlock()

	require.True(t, stopped(tk))
	ticks, expired := rec.snapshot()
	require.Equal(t, []int{1}, ticks)
	require.Zero(t, expired)
	require.False(t, timer.Active())
}

func TestTimer_CancelWithoutStart(t *testing.T) {
	timer := NewTimer(nil, nil)
	require.NotPanics(t, timer.Cancel)
	require.False(t, timer.Active())
}
