// Package session owns the connect/disconnect lifecycle of one headband and
// the per-session pipeline: throttle gate, dispatcher and transmitter.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/gate"
	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
	"github.com/banshee-data/museosc/internal/timeutil"
)

var (
	// ErrAlreadyConnected is returned by Connect while a session is active.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected is returned by Disconnect when there is no session.
	ErrNotConnected = errors.New("not connected")
)

// Info describes a session. It is immutable once the session has started,
// except for Ended which is set on disconnect.
type Info struct {
	ID        string           `json:"id"`
	DeviceID  string           `json:"device_id"`
	Endpoint  network.Endpoint `json:"endpoint"`
	Namespace string           `json:"namespace"`
	Started   time.Time        `json:"started"`
	Ended     time.Time        `json:"ended"`
}

// Recorder persists session history. All methods are best effort; errors are
// logged and never abort the session.
type Recorder interface {
	StartSession(ctx context.Context, info Info) error
	EndSession(ctx context.Context, info Info, counters network.Counters) error
	RecordConnection(ctx context.Context, sessionID string, evt packet.ConnectionEvent, at time.Time) error
}

// StatusSink is told about every device connection change.
type StatusSink interface {
	ConnectionChanged(evt packet.ConnectionEvent)
}

// Config configures a Manager. The battery window is derived from
// BatteryPolicy and BatteryInterval; a battery entry in Intervals is ignored.
type Config struct {
	Namespace       string
	Intervals       map[packet.Category]time.Duration
	BatteryPolicy   pipeline.BatteryPolicy
	BatteryInterval time.Duration
	QueueDepth      int
	Workers         int
	LogInterval     time.Duration

	Display       display.Sink
	Dialer        network.Dialer
	Clock         timeutil.Clock
	TransmitStats network.TransmitStats
	DispatchStats pipeline.Stats
	Recorder      Recorder
	StatusSinks   []StatusSink
}

type active struct {
	info       Info
	tx         *network.Transmitter
	dispatcher *pipeline.Dispatcher
	cancel     context.CancelFunc
}

// Manager runs at most one session at a time. Connect, Disconnect and
// SetPaused may be called from any goroutine; Dispatch may be called
// concurrently with all of them.
type Manager struct {
	cfg Config

	mu      sync.RWMutex
	current *active
	paused  bool
}

// NewManager creates a manager with no active session.
func NewManager(cfg Config) *Manager {
	if cfg.Intervals == nil {
		cfg.Intervals = gate.DefaultIntervals()
	}
	cfg.Intervals = gate.WithBattery(cfg.Intervals, cfg.BatteryPolicy == pipeline.BatteryGated, cfg.BatteryInterval)
	if cfg.Display == nil {
		cfg.Display = display.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Manager{cfg: cfg}
}

// Connect starts a session sending to ep. The endpoint is resolved once and
// fixed for the session. Each session gets its own throttle gate, so the
// first sample of every category after a reconnect is accepted.
func (m *Manager) Connect(ctx context.Context, ep network.Endpoint, deviceID string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		monitoring.Logf("Connect refused: session %s with %s is active", m.current.info.ID, m.current.info.DeviceID)
		return Info{}, ErrAlreadyConnected
	}

	tx, err := network.NewTransmitter(network.Config{
		Endpoint:    ep,
		QueueDepth:  m.cfg.QueueDepth,
		Workers:     m.cfg.Workers,
		LogInterval: m.cfg.LogInterval,
		Stats:       m.cfg.TransmitStats,
		Dialer:      m.cfg.Dialer,
		Clock:       m.cfg.Clock,
	})
	if err != nil {
		return Info{}, fmt.Errorf("connect %s: %w", deviceID, err)
	}

	dispatcher := pipeline.New(pipeline.Config{
		Namespace:     m.cfg.Namespace,
		Gate:          gate.New(m.cfg.Intervals),
		Sender:        tx,
		Display:       m.cfg.Display,
		BatteryPolicy: m.cfg.BatteryPolicy,
		Clock:         m.cfg.Clock,
		Stats:         m.cfg.DispatchStats,
	})
	dispatcher.SetPaused(m.paused)

	txCtx, cancel := context.WithCancel(context.Background())
	tx.Start(txCtx)

	info := Info{
		ID:        uuid.New().String(),
		DeviceID:  deviceID,
		Endpoint:  ep,
		Namespace: m.cfg.Namespace,
		Started:   m.cfg.Clock.Now(),
	}
	m.current = &active{info: info, tx: tx, dispatcher: dispatcher, cancel: cancel}

	m.cfg.Display.Display(display.FieldDevice, deviceID)
	m.cfg.Display.Display(display.FieldSession, info.ID)
	if m.cfg.Recorder != nil {
		if err := m.cfg.Recorder.StartSession(ctx, info); err != nil {
			monitoring.Logf("Failed to record session start: %v", err)
		}
	}
	monitoring.Logf("Session %s started: %s -> %s", info.ID, deviceID, ep)
	return info, nil
}

// Disconnect tears the active session down: no further packets are accepted,
// queued sends are discarded and the socket is closed.
func (m *Manager) Disconnect(ctx context.Context) (Info, error) {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	if cur != nil {
		cur.dispatcher.Close()
	}
	m.mu.Unlock()

	if cur == nil {
		return Info{}, ErrNotConnected
	}

	err := cur.tx.Close()
	cur.cancel()

	cur.info.Ended = m.cfg.Clock.Now()
	counters := cur.tx.Counters()
	if m.cfg.Recorder != nil {
		if rerr := m.cfg.Recorder.EndSession(ctx, cur.info, counters); rerr != nil {
			monitoring.Logf("Failed to record session end: %v", rerr)
		}
	}
	monitoring.Logf("Session %s ended after %s: sent %d, dropped %d, failed %d",
		cur.info.ID, cur.info.Ended.Sub(cur.info.Started).Round(time.Millisecond),
		counters.Sent, counters.Dropped, counters.Failed)
	return cur.info, err
}

// Dispatch routes p through the active session. Without a session the packet
// is dropped.
func (m *Manager) Dispatch(p packet.Packet) pipeline.Outcome {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()
	if cur == nil {
		return pipeline.Closed
	}
	return cur.dispatcher.Dispatch(p)
}

// SetPaused toggles data transmission. The setting survives reconnects.
func (m *Manager) SetPaused(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = paused
	if m.current != nil {
		m.current.dispatcher.SetPaused(paused)
	}
}

// Paused reports whether transmission is paused.
func (m *Manager) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Current returns the active session, if any.
func (m *Manager) Current() (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return Info{}, false
	}
	return m.current.info, true
}

// Counters returns the active session's transmitter counters.
func (m *Manager) Counters() (network.Counters, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return network.Counters{}, false
	}
	return m.current.tx.Counters(), true
}

// GateStats returns the active session's throttle counters, or nil without
// a session.
func (m *Manager) GateStats() map[packet.Category]gate.WindowStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	return m.current.dispatcher.GateStats()
}

// HandleConnection reports a device connection change to the display, the log,
// the recorder and every status sink. It does not start or stop sessions.
func (m *Manager) HandleConnection(ctx context.Context, evt packet.ConnectionEvent) {
	monitoring.Logf("%s", evt)
	m.cfg.Display.Display(display.FieldConnection, evt.Transition())
	m.cfg.Display.Display(display.FieldVersion, evt.HeadsetVersion())

	var sessionID string
	if info, ok := m.Current(); ok {
		sessionID = info.ID
	}
	if m.cfg.Recorder != nil {
		if err := m.cfg.Recorder.RecordConnection(ctx, sessionID, evt, m.cfg.Clock.Now()); err != nil {
			monitoring.Logf("Failed to record connection event: %v", err)
		}
	}
	for _, s := range m.cfg.StatusSinks {
		s.ConnectionChanged(evt)
	}
}
