package network

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidEndpoint is returned when a host or port cannot be used as a send
// target.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Endpoint is the OSC consumer a session sends to. It is resolved once when a
// session starts and does not change for the session's lifetime.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Validate checks that the endpoint has a host and a port in 1..65535.
func (e Endpoint) Validate() error {
	host := strings.TrimSpace(e.Host)
	if host == "" || strings.EqualFold(host, "none") {
		return fmt.Errorf("%w: host is required", ErrInvalidEndpoint)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidEndpoint, e.Port)
	}
	return nil
}

// String returns host:port, bracketing IPv6 literals.
func (e Endpoint) String() string {
	return net.JoinHostPort(strings.TrimSpace(e.Host), strconv.Itoa(e.Port))
}

// Resolve validates the endpoint and looks up its UDP address.
func (e Endpoint) Resolve() (*net.UDPAddr, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	addr, err := net.ResolveUDPAddr("udp", e.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve endpoint %s: %w", e, err)
	}
	return addr, nil
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: port %q is not a number", ErrInvalidEndpoint, portStr)
	}
	e := Endpoint{Host: host, Port: port}
	return e, e.Validate()
}
