package packet

import (
	"fmt"
	"strings"
)

// ConnectionState mirrors the device SDK's connection states.
type ConnectionState int

const (
	StateUnknown ConnectionState = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateNeedsUpdate
)

var stateNames = map[ConnectionState]string{
	StateUnknown:      "UNKNOWN",
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateNeedsUpdate:  "NEEDS_UPDATE",
}

func (s ConnectionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// ParseConnectionState is case-insensitive; unrecognised names map to
// StateUnknown.
func ParseConnectionState(name string) ConnectionState {
	name = strings.ToUpper(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return s
		}
	}
	return StateUnknown
}

// ConnectionEvent is a device connection-state transition. It flows straight
// to status sinks and never through the dispatch pipeline.
type ConnectionEvent struct {
	Previous ConnectionState
	Current  ConnectionState
	DeviceID string
	// Version is the headset firmware description reported on connect,
	// e.g. "Consumer - 7.3.4 - 2". Empty when unknown.
	Version string
}

// HeadsetVersion is what the status display shows for the headset: the
// firmware description while connected and "undefined" otherwise.
func (e ConnectionEvent) HeadsetVersion() string {
	if e.Current != StateConnected || e.Version == "" {
		return "undefined"
	}
	return e.Version
}

// Transition renders the event as "PREVIOUS -> CURRENT".
func (e ConnectionEvent) Transition() string {
	return e.Previous.String() + " -> " + e.Current.String()
}

func (e ConnectionEvent) String() string {
	return "Muse " + e.DeviceID + " " + e.Transition()
}
