package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/osc"
)

// MessageHandler receives each decoded OSC message.
type MessageHandler func(msg osc.Message, from *net.UDPAddr)

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Handler     MessageHandler
	Factory     UDPSocketFactory
}

// Listener receives OSC datagrams on a UDP port. It is the consumer side used
// by the osc-listen tool and by loopback tests of the bridge.
type Listener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	handler     MessageHandler
	factory     UDPSocketFactory

	mu       sync.Mutex
	conn     UDPSocket
	received map[string]uint64
	bytes    uint64
	invalid  uint64
}

// ListenerStats is a snapshot of received traffic.
type ListenerStats struct {
	Received  map[string]uint64
	Bytes     uint64
	Malformed uint64
}

// Total returns the number of decoded messages across all addresses.
func (s ListenerStats) Total() uint64 {
	var n uint64
	for _, c := range s.Received {
		n += c
	}
	return n
}

// NewListener creates a listener. Nothing is bound until Start.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = time.Second
	}
	if cfg.Factory == nil {
		cfg.Factory = RealUDPSocketFactory{}
	}
	return &Listener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		handler:     cfg.Handler,
		factory:     cfg.Factory,
		received:    make(map[string]uint64),
	}
}

// Start binds the socket and reads until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	monitoring.Logf("OSC listener started on %s", conn.LocalAddr())

	go l.logStats(ctx)

	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			monitoring.Logf("UDP read error: %v", err)
			continue
		}
		l.handleDatagram(buf[:n], from)
	}
}

func (l *Listener) handleDatagram(b []byte, from *net.UDPAddr) {
	msg, err := osc.Decode(b)
	l.mu.Lock()
	l.bytes += uint64(len(b))
	if err != nil {
		l.invalid++
	} else {
		l.received[msg.Address]++
	}
	l.mu.Unlock()

	if err != nil {
		monitoring.Logf("Malformed OSC datagram from %v: %v", from, err)
		return
	}
	if l.handler != nil {
		l.handler(msg, from)
	}
}

func (l *Listener) logStats(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := l.Stats()
			total := s.Total()
			if total != last {
				monitoring.Logf("OSC listener: %d messages (%d new), %d bytes, %d malformed",
					total, total-last, s.Bytes, s.Malformed)
				last = total
			}
		}
	}
}

// Stats returns a copy of the counters.
func (l *Listener) Stats() ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	received := make(map[string]uint64, len(l.received))
	for k, v := range l.received {
		received[k] = v
	}
	return ListenerStats{Received: received, Bytes: l.bytes, Malformed: l.invalid}
}

// Close closes the socket, unblocking Start.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
