package network

import (
	"net"
	"time"
)

// Conn is a connected UDP send socket. *net.UDPConn satisfies it.
type Conn interface {
	Write(b []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Dialer opens send sockets; tests substitute MockDialer.
type Dialer interface {
	DialUDP(raddr *net.UDPAddr) (Conn, error)
}

// UDPDialer dials with net.DialUDP from an ephemeral local port.
type UDPDialer struct{}

func (UDPDialer) DialUDP(raddr *net.UDPAddr) (Conn, error) {
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// UDPSocket is the receive socket read by Listener. *net.UDPConn satisfies
// it.
type UDPSocket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	LocalAddr() net.Addr
	Close() error
}

// UDPSocketFactory opens receive sockets.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory listens with net.ListenUDP.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	conn, err := net.ListenUDP(network, laddr)
	if err != nil {
		// avoid returning a typed nil inside the interface
		return nil, err
	}
	return conn, nil
}
