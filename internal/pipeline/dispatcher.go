// Package pipeline routes headband packets by category through throttling,
// normalization and encoding to the display and the transmitter.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/gate"
	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/normalize"
	"github.com/banshee-data/museosc/internal/osc"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/timeutil"
)

// ErrUnknownCategory is logged for packets the dispatcher has no route for.
var ErrUnknownCategory = errors.New("unknown packet category")

// Sender accepts encoded messages for transmission. Send must not block.
type Sender interface {
	Send(msg osc.Message)
}

// Outcome is what Dispatch did with a packet.
type Outcome int

const (
	// Sent means a message was handed to the Sender (and the display updated).
	Sent Outcome = iota
	// Displayed means only the display was updated.
	Displayed
	// Throttled means the gate rejected the packet.
	Throttled
	// Paused means transmission is paused and the packet was dropped.
	Paused
	// Closed means the dispatcher was closed.
	Closed
	// Dropped means the packet had no route.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Displayed:
		return "displayed"
	case Throttled:
		return "throttled"
	case Paused:
		return "paused"
	case Closed:
		return "closed"
	case Dropped:
		return "dropped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Stats observes every dispatch. Implementations must be safe for concurrent
// use.
type Stats interface {
	ObserveDispatch(c packet.Category, o Outcome)
	// ObserveInvalid counts a channel whose reading was missing or not
	// finite and was replaced by the invalid sentinel.
	ObserveInvalid(c packet.Category, ch packet.Channel)
}

type noopStats struct{}

func (noopStats) ObserveDispatch(packet.Category, Outcome)       {}
func (noopStats) ObserveInvalid(packet.Category, packet.Channel) {}

// Config wires a Dispatcher. Gate and Sender are required.
type Config struct {
	Namespace     string
	Gate          *gate.Gate
	Sender        Sender
	Display       display.Sink
	BatteryPolicy BatteryPolicy
	Clock         timeutil.Clock
	Stats         Stats
}

// Dispatcher is the per-session packet router. Dispatch may be called from
// any number of producer goroutines; it never blocks on the display or the
// network.
type Dispatcher struct {
	addrs   *osc.Addresses
	gate    *gate.Gate
	sender  Sender
	display display.Sink
	battery BatteryPolicy
	clock   timeutil.Clock
	stats   Stats
	logf    func(format string, v ...interface{})

	paused atomic.Bool
	closed atomic.Bool
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Display == nil {
		cfg.Display = display.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.New(gate.DefaultIntervals())
	}
	return &Dispatcher{
		addrs:   osc.NewAddresses(cfg.Namespace),
		gate:    cfg.Gate,
		sender:  cfg.Sender,
		display: cfg.Display,
		battery: cfg.BatteryPolicy,
		clock:   cfg.Clock,
		stats:   cfg.Stats,
		logf:    monitoring.Prefixed("pipeline"),
	}
}

// Dispatch routes one packet and reports what happened to it.
func (d *Dispatcher) Dispatch(p packet.Packet) Outcome {
	o := d.dispatch(p)
	d.stats.ObserveDispatch(p.Category, o)
	return o
}

func (d *Dispatcher) dispatch(p packet.Packet) Outcome {
	if d.closed.Load() {
		return Closed
	}
	if d.paused.Load() {
		return Paused
	}

	switch {
	case p.Category.IsWaveband():
		if !d.accept(p) {
			return Throttled
		}
		return d.waveband(p)
	case p.Category == packet.Horseshoe:
		if !d.accept(p) {
			return Throttled
		}
		return d.horseshoe(p)
	case p.Category == packet.TouchingForehead:
		if !d.accept(p) {
			return Throttled
		}
		return d.contact(p)
	case p.Category == packet.Battery:
		if d.battery == BatteryGated && !d.accept(p) {
			return Throttled
		}
		return d.batteryLevel(p)
	}

	d.logf("Dropping packet: %v", fmt.Errorf("%w: %s", ErrUnknownCategory, p.Category))
	return Dropped
}

// accept consults the gate with the packet's own timestamp, falling back to
// the clock for packets that carry none.
func (d *Dispatcher) accept(p packet.Packet) bool {
	now := p.Timestamp
	if now.IsZero() {
		now = d.clock.Now()
	}
	return d.gate.Accept(p.Category, now)
}

func (d *Dispatcher) observeInvalid(c packet.Category, valid [packet.NumChannels]bool) {
	for i, ok := range valid {
		if !ok {
			d.stats.ObserveInvalid(c, packet.Channels[i])
		}
	}
}

func (d *Dispatcher) waveband(p packet.Packet) Outcome {
	quad, valid := normalize.Channels(p.Values)
	d.observeInvalid(p.Category, valid)
	for i, ch := range packet.Channels {
		d.display.Display(display.WaveField(p.Category, ch), normalize.FormatDisplay(quad[i]))
	}
	addr, _ := d.addrs.For(p.Category)
	return d.send(osc.EncodeQuad(addr, quad))
}

func (d *Dispatcher) horseshoe(p packet.Packet) Outcome {
	for _, ch := range packet.Channels {
		code, ok := p.Channel(ch)
		if !ok {
			code = math.NaN()
		}
		d.display.Display(display.HorseshoeField(ch), normalize.HorseshoeString(code))
	}
	quad, valid := normalize.Channels(p.Values)
	d.observeInvalid(packet.Horseshoe, valid)
	addr, _ := d.addrs.For(packet.Horseshoe)
	return d.send(osc.EncodeQuad(addr, quad))
}

func (d *Dispatcher) contact(p packet.Packet) Outcome {
	label := "NO"
	if p.HeadbandOn {
		label = "YES"
	}
	d.display.Display(display.FieldTouchingForehead, label)
	addr, _ := d.addrs.For(packet.TouchingForehead)
	return d.send(osc.EncodeBool(addr, p.HeadbandOn))
}

func (d *Dispatcher) batteryLevel(p packet.Packet) Outcome {
	soc := math.NaN()
	if len(p.Values) > 0 {
		soc = p.Values[0]
	}
	d.display.Display(display.FieldBattery, normalize.BatteryPercent(soc))
	if d.battery != BatteryForward {
		return Displayed
	}
	return d.send(osc.EncodeInt(d.addrs.Battery(), normalize.BatteryLevel(soc)))
}

func (d *Dispatcher) send(msg osc.Message) Outcome {
	if d.sender == nil {
		return Displayed
	}
	d.sender.Send(msg)
	return Sent
}

// SetPaused stops (true) or resumes (false) processing. Packets dispatched
// while paused are dropped before the gate, so throttle windows do not move.
func (d *Dispatcher) SetPaused(paused bool) {
	if d.paused.Swap(paused) != paused {
		if paused {
			d.logf("Transmission paused")
		} else {
			d.logf("Transmission resumed")
		}
	}
}

// Paused reports whether transmission is paused.
func (d *Dispatcher) Paused() bool { return d.paused.Load() }

// Close makes every later Dispatch a no-op.
func (d *Dispatcher) Close() { d.closed.Store(true) }

// GateStats exposes the throttle counters of this dispatcher's gate.
func (d *Dispatcher) GateStats() map[packet.Category]gate.WindowStats {
	return d.gate.Stats()
}

