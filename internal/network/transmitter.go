package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/osc"
	"github.com/banshee-data/museosc/internal/timeutil"
)

const (
	DefaultQueueDepth  = 256
	DefaultWorkers     = 2
	DefaultLogInterval = 10 * time.Second
)

// TransmitStats receives transmitter events. Implementations must be safe for
// concurrent use.
type TransmitStats interface {
	AddSent(address string, bytes int)
	AddDropped(address string)
	AddFailed(address string)
}

type noopStats struct{}

func (noopStats) AddSent(string, int) {}
func (noopStats) AddDropped(string)   {}
func (noopStats) AddFailed(string)    {}

// Config configures a Transmitter. Zero values take the defaults.
type Config struct {
	Endpoint    Endpoint
	QueueDepth  int
	Workers     int
	LogInterval time.Duration
	Stats       TransmitStats
	Dialer      Dialer
	Clock       timeutil.Clock
}

// Counters is a snapshot of transmitter activity.
type Counters struct {
	Queued  uint64 `json:"queued"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Transmitter sends encoded OSC messages to one endpoint. Send never blocks:
// messages go onto a bounded queue drained by a small worker pool, and a full
// queue drops the message.
type Transmitter struct {
	endpoint    Endpoint
	conn        Conn
	queue       chan osc.Message
	workers     int
	logInterval time.Duration
	stats       TransmitStats
	clock       timeutil.Clock

	mu      sync.RWMutex
	closed  bool
	started bool
	stop    chan struct{}
	wg      sync.WaitGroup

	queued  atomic.Uint64
	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	// interval counters, reset by the summary ticker
	windowDropped atomic.Uint64
	windowFailed  atomic.Uint64
	lastErr       atomic.Value // error
}

// NewTransmitter resolves the endpoint and dials it.
func NewTransmitter(cfg Config) (*Transmitter, error) {
	addr, err := cfg.Endpoint.Resolve()
	if err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		cfg.Dialer = UDPDialer{}
	}
	conn, err := cfg.Dialer.DialUDP(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create send connection: %w", err)
	}
	return newTransmitter(cfg, conn), nil
}

func newTransmitter(cfg Config, conn Conn) *Transmitter {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultLogInterval
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Transmitter{
		endpoint:    cfg.Endpoint,
		conn:        conn,
		queue:       make(chan osc.Message, cfg.QueueDepth),
		workers:     cfg.Workers,
		logInterval: cfg.LogInterval,
		stats:       cfg.Stats,
		clock:       cfg.Clock,
		stop:        make(chan struct{}),
	}
}

// Endpoint returns the destination this transmitter was created for.
func (t *Transmitter) Endpoint() Endpoint { return t.endpoint }

// Start launches the sender workers and the error summary loop. They run until
// ctx is cancelled or Close is called.
func (t *Transmitter) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.started {
		return
	}
	t.started = true

	for i := 0; i < t.workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx)
	}
	t.wg.Add(1)
	go t.summarize(ctx)

	monitoring.Logf("Sending OSC to %s (%d workers, queue %d)", t.endpoint, t.workers, cap(t.queue))
}

// Send queues msg without blocking. Messages sent after Close, or while the
// queue is full, are dropped.
func (t *Transmitter) Send(msg osc.Message) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- msg:
		t.queued.Add(1)
	default:
		t.dropped.Add(1)
		t.windowDropped.Add(1)
		t.stats.AddDropped(msg.Address)
	}
}

func (t *Transmitter) worker(ctx context.Context) {
	defer t.wg.Done()
	for {
		// stop takes priority over queued work
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case msg := <-t.queue:
			t.write(msg)
		}
	}
}

func (t *Transmitter) write(msg osc.Message) {
	b, err := msg.MarshalBinary()
	if err == nil {
		_, err = t.conn.Write(b)
	}
	if err != nil {
		t.failed.Add(1)
		t.windowFailed.Add(1)
		t.lastErr.Store(err)
		t.stats.AddFailed(msg.Address)
		return
	}
	t.sent.Add(1)
	t.stats.AddSent(msg.Address, len(b))
}

func (t *Transmitter) summarize(ctx context.Context) {
	defer t.wg.Done()
	ticker := t.clock.NewTicker(t.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C():
			t.logWindow()
		}
	}
}

// logWindow emits one warning line for the drops and write failures seen since
// the previous call.
func (t *Transmitter) logWindow() {
	if n := t.windowDropped.Swap(0); n > 0 {
		monitoring.Warnf("Dropped %d OSC messages to %s: send queue full", n, t.endpoint)
	}
	if n := t.windowFailed.Swap(0); n > 0 {
		err, _ := t.lastErr.Load().(error)
		monitoring.Warnf("Failed to send %d OSC messages to %s (latest: %v)", n, t.endpoint, err)
	}
}

// Counters returns the lifetime counters.
func (t *Transmitter) Counters() Counters {
	return Counters{
		Queued:  t.queued.Load(),
		Sent:    t.sent.Load(),
		Dropped: t.dropped.Load(),
		Failed:  t.failed.Load(),
	}
}

// Pending returns the number of queued, unsent messages.
func (t *Transmitter) Pending() int { return len(t.queue) }

// Close stops accepting messages, waits for in-flight writes and discards
// whatever is still queued. It is safe to call more than once.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.stop)
	t.mu.Unlock()

	t.wg.Wait()

	discarded := 0
	for {
		select {
		case <-t.queue:
			discarded++
			continue
		default:
		}
		break
	}
	if discarded > 0 {
		monitoring.Logf("Discarded %d queued OSC messages to %s on close", discarded, t.endpoint)
	}
	t.logWindow()

	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("failed to close send connection: %w", err)
	}
	return nil
}
