// Package gate rate-limits packets per category. Each category owns an
// independent throttle window; a sample is accepted when no sample of the
// same category was accepted within the window's interval.
package gate

import (
	"sync"
	"time"

	"github.com/banshee-data/museosc/internal/packet"
)

// Default intervals per category.
const (
	DefaultWaveInterval      = 200 * time.Millisecond
	DefaultHorseshoeInterval = time.Second
	DefaultForeheadInterval  = time.Second
	DefaultBatteryInterval   = 10 * time.Second
)

// DefaultIntervals returns the standard window set: 200ms for each waveband
// and 1s for horseshoe and touching-forehead. Battery and unknown packets have
// no window and are never throttled.
func DefaultIntervals() map[packet.Category]time.Duration {
	intervals := map[packet.Category]time.Duration{
		packet.Horseshoe:        DefaultHorseshoeInterval,
		packet.TouchingForehead: DefaultForeheadInterval,
	}
	for _, c := range packet.Wavebands {
		intervals[c] = DefaultWaveInterval
	}
	return intervals
}

// WithBattery returns a copy of intervals whose battery window is set only
// when gated is true, using DefaultBatteryInterval for a non-positive
// interval. Any battery entry already in intervals is replaced or removed.
func WithBattery(intervals map[packet.Category]time.Duration, gated bool, interval time.Duration) map[packet.Category]time.Duration {
	out := make(map[packet.Category]time.Duration, len(intervals)+1)
	for c, d := range intervals {
		out[c] = d
	}
	delete(out, packet.Battery)
	if gated {
		if interval <= 0 {
			interval = DefaultBatteryInterval
		}
		out[packet.Battery] = interval
	}
	return out
}

// Window is the throttle state of one category.
type Window struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	fired    bool
	accepted int64
	dropped  int64
}

func (w *Window) accept(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fired && now.Sub(w.last) < w.interval {
		w.dropped++
		return false
	}
	w.fired = true
	w.last = now
	w.accepted++
	return true
}

// WindowStats is a snapshot of one window's counters.
type WindowStats struct {
	Interval time.Duration
	LastFire time.Time
	Accepted int64
	Dropped  int64
}

// Gate holds one Window per throttled category. The window map is fixed at
// construction so lookups need no lock; each window serialises only its own
// category.
type Gate struct {
	windows map[packet.Category]*Window
}

// New creates a gate with a window for every category in intervals.
// Non-positive intervals are skipped, leaving that category unthrottled.
func New(intervals map[packet.Category]time.Duration) *Gate {
	g := &Gate{windows: make(map[packet.Category]*Window, len(intervals))}
	for c, d := range intervals {
		if d <= 0 {
			continue
		}
		g.windows[c] = &Window{interval: d}
	}
	return g
}

// Accept reports whether a sample of category c observed at now should be
// processed. The first sample of a category is always accepted; later ones
// only once the interval has elapsed since the last accepted sample, which
// then becomes the new reference. Categories without a window always pass.
func (g *Gate) Accept(c packet.Category, now time.Time) bool {
	w, ok := g.windows[c]
	if !ok {
		return true
	}
	return w.accept(now)
}

// Throttled reports whether c has a window.
func (g *Gate) Throttled(c packet.Category) bool {
	_, ok := g.windows[c]
	return ok
}

// Interval returns the configured interval for c.
func (g *Gate) Interval(c packet.Category) (time.Duration, bool) {
	w, ok := g.windows[c]
	if !ok {
		return 0, false
	}
	return w.interval, true
}

// Stats snapshots all windows.
func (g *Gate) Stats() map[packet.Category]WindowStats {
	out := make(map[packet.Category]WindowStats, len(g.windows))
	for c, w := range g.windows {
		w.mu.Lock()
		out[c] = WindowStats{
			Interval: w.interval,
			LastFire: w.last,
			Accepted: w.accepted,
			Dropped:  w.dropped,
		}
		w.mu.Unlock()
	}
	return out
}
