package runtime

import (
	"chat-relay/contract"
	"sort"
	"sync"
	"time"
)

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) NewTicker(d time.Duration) contract.Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// ManualClock only moves when Advance is called.
// It records every delay passed to After so timer schedules can be asserted.
type ManualClock struct {
	mu        sync.Mutex
	cond      *sync.Cond
	now       time.Time
	waiters   []*manualWaiter
	scheduled []time.Duration
}

type manualWaiter struct {
	deadline time.Time
	period   time.Duration
	ch       chan time.Time
	stopped  bool
}

func NewManualClock(start time.Time) *ManualClock {
	c := &ManualClock{now: start}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &manualWaiter{deadline: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, w)
	c.scheduled = append(c.scheduled, d)
	c.cond.Broadcast()
	return w.ch
}

func (c *ManualClock) NewTicker(d time.Duration) contract.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &manualWaiter{deadline: c.now.Add(d), period: d, ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, w)
	c.cond.Broadcast()
	return &manualTicker{clock: c, w: w}
}

// Advance moves the clock forward and fires every timer whose deadline has passed.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(c.now) {
			remaining = append(remaining, w)
			continue
		}
		select {
		case w.ch <- c.now:
		default:
		}
		if w.period > 0 {
			for !w.deadline.After(c.now) {
				w.deadline = w.deadline.Add(w.period)
			}
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// BlockUntil waits until at least n timers are pending.
func (c *ManualClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending() < n {
		c.cond.Wait()
	}
}

// Scheduled returns the delays requested through After, in call order.
func (c *ManualClock) Scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.scheduled...)
}

// NextDeadline returns the earliest pending deadline, if any.
func (c *ManualClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var deadlines []time.Time
	for _, w := range c.waiters {
		if !w.stopped {
			deadlines = append(deadlines, w.deadline)
		}
	}
	if len(deadlines) == 0 {
		return time.Time{}, false
	}
	sort.Slice(deadlines, func(i, j int) bool { return deadlines[i].Before(deadlines[j]) })
	return deadlines[0], true
}

func (c *ManualClock) pending() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

type manualTicker struct {
	clock *ManualClock
	w     *manualWaiter
}

func (t *manualTicker) C() <-chan time.Time { return t.w.ch }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
	t.clock.cond.Broadcast()
}
