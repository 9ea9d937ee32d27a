// Package timeutil lets the gates, the session log and the transmitter's
// summary ticker run against a clock that tests can drive by hand.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the part of the time package the bridge depends on.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors *time.Ticker behind an interface.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// MockClock only moves when told to. Tickers created from it fire during
// Advance once their interval has elapsed; like time.Ticker, a tick that
// nobody has read yet is not queued twice.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*MockTicker]struct{}
}

// NewMockClock returns a clock frozen at start.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{now: start, tickers: make(map[*MockTicker]struct{})}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set jumps to t. Tickers are not fired.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every ticker that became
// due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := make([]*MockTicker, 0, len(c.tickers))
	for t := range c.tickers {
		if !now.Before(t.next) {
			t.next = now.Add(t.period)
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		clock:  c,
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers[t] = struct{}{}
	return t
}

// MockTicker is a Ticker driven by its MockClock.
type MockTicker struct {
	clock  *MockClock
	ch     chan time.Time
	period time.Duration
	next   time.Time // guarded by clock.mu
}

func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop detaches the ticker from its clock.
func (t *MockTicker) Stop() {
	t.clock.mu.Lock()
	delete(t.clock.tickers, t)
	t.clock.mu.Unlock()
}
