package engine

import (
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc builds the ticker driving a countdown.
type NewTickerFunc func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker.
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Timer is a single-flight cancellable countdown. Starting a countdown cancels
// the previous one, and once Cancel returns no callback of the cancelled
// countdown is delivered.
//
// Callbacks run while holding guard. When the owner passes its own mutex as
// guard and calls Start/Cancel with it held, delivery is serialized with the
// owner's mutations.
type Timer struct {
	newTicker NewTickerFunc
	interval  time.Duration
	guard     sync.Locker

	mu   sync.Mutex
	gen  uint64
	stop chan struct{}
}

// NewTimer returns a Timer ticking once per second. A nil newTicker uses the
// wall clock and a nil guard uses a private mutex.
func NewTimer(newTicker NewTickerFunc, guard sync.Locker) *Timer {
	if newTicker == nil {
		newTicker = NewStdTicker
	}
	if guard == nil {
		guard = new(sync.Mutex)
	}
	return &Timer{
		newTicker: newTicker,
		interval:  time.Second,
		guard:     guard,
	}
}

// Start counts down from seconds to 0, calling onTick for every value
// (including the initial one) and onExpire once at 0.
func (t *Timer) Start(seconds int, onTick func(remaining int), onExpire func()) {
	if seconds < 0 {
		seconds = 0
	}

	t.mu.Lock()
	t.cancelLocked()
	t.gen++
	gen := t.gen
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	ticker := t.newTicker(t.interval)
	go t.run(gen, stop, ticker, seconds, onTick, onExpire)
}

// Cancel stops the in-flight countdown. Safe to call at any time.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

// Active reports whether a countdown is live.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Timer) cancelLocked() {
	if t.stop == nil {
		return
	}
	t.gen++
	close(t.stop)
	t.stop = nil
}

func (t *Timer) run(gen uint64, stop <-chan struct{}, ticker Ticker, remaining int, onTick func(int), onExpire func()) {
	defer ticker.Stop()

	if !t.deliver(gen, false, func() { onTick(remaining) }) {
		return
	}
	for remaining > 0 {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}
		remaining--
		if !t.deliver(gen, false, func() { onTick(remaining) }) {
			return
		}
	}
	t.deliver(gen, true, onExpire)
}

// deliver runs fn under guard if gen is still the live countdown.
func (t *Timer) deliver(gen uint64, last bool, fn func()) bool {
	t.guard.Lock()
	defer t.guard.Unlock()

	t.mu.Lock()
	live := t.gen == gen && t.stop != nil
	if live && last {
		t.stop = nil
	}
	t.mu.Unlock()

	if !live {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}
