package network

import (
	"net"
	"sync"
	"time"
)

var loopback5000 = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}

// MockConn records the datagrams a Transmitter writes.
type MockConn struct {
	mu       sync.Mutex
	written  [][]byte
	writeErr error
	closed   bool
	remote   *net.UDPAddr
}

// NewMockConn returns a MockConn whose peer is 127.0.0.1:5000.
func NewMockConn() *MockConn {
	return &MockConn{remote: loopback5000}
}

func (m *MockConn) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return 0, net.ErrClosed
	case m.writeErr != nil:
		return 0, m.writeErr
	}
	m.written = append(m.written, append([]byte(nil), b...))
	return len(b), nil
}

func (m *MockConn) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockConn) RemoteAddr() net.Addr { return m.remote }

// SetWriteError makes every later Write fail with err. Pass nil to recover.
func (m *MockConn) SetWriteError(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Written returns a copy of the datagrams recorded so far.
func (m *MockConn) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

func (m *MockConn) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockDialer hands out Conn, or fails with Error, and records each target.
type MockDialer struct {
	Conn   *MockConn
	Error  error
	Dialed []*net.UDPAddr
}

func (d *MockDialer) DialUDP(raddr *net.UDPAddr) (Conn, error) {
	d.Dialed = append(d.Dialed, raddr)
	if d.Error != nil {
		return nil, d.Error
	}
	return d.Conn, nil
}

// MockUDPPacket is one datagram queued on a MockUDPSocket.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket replays queued datagrams and then reports read timeouts,
// which is what a quiet real socket with a deadline does.
type MockUDPSocket struct {
	queue []MockUDPPacket

	// Closed and ReadBufferSize record what the listener did to the socket.
	Closed         bool
	ReadBufferSize int
}

func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{queue: packets}
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.Closed {
		return 0, nil, net.ErrClosed
	}
	if len(m.queue) == 0 {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.queue[0]
	m.queue = m.queue[1:]
	return copy(b, pkt.Data), pkt.Addr, nil
}

func (m *MockUDPSocket) SetReadBuffer(n int) error {
	m.ReadBufferSize = n
	return nil
}

func (m *MockUDPSocket) SetReadDeadline(time.Time) error { return nil }

func (m *MockUDPSocket) LocalAddr() net.Addr { return loopback5000 }

func (m *MockUDPSocket) Close() error {
	m.Closed = true
	return nil
}

// MockUDPSocketFactory returns Socket, or Error when set.
type MockUDPSocketFactory struct {
	Socket *MockUDPSocket
	Error  error
}

func (f *MockUDPSocketFactory) ListenUDP(string, *net.UDPAddr) (UDPSocket, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Socket, nil
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}
