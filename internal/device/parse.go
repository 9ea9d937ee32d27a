// Package device turns the headband bridge's text line protocol into packets
// and connection events.
//
// Each line is comma separated, the first field naming the record:
//
//	alpha_absolute,0.12,0.30,0.28,0.11
//	horseshoe,1,2,1,4
//	artifacts,1
//	battery,53.67,3900,3800,25
//	connection,CONNECTING,CONNECTED,00:06:66:aa:bb:cc,Consumer - 7.3.4 - 2
//
// Blank lines and lines starting with '#' are ignored.
package device

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/museosc/internal/packet"
)

var (
	// ErrMalformedLine is returned for lines that cannot be decoded.
	ErrMalformedLine = errors.New("malformed device line")
	// ErrSkipLine is returned for blank and comment lines.
	ErrSkipLine = errors.New("skip line")
)

const connectionRecord = "connection"

// Event is one decoded line: either a data packet or a connection change.
type Event struct {
	Packet     *packet.Packet
	Connection *packet.ConnectionEvent
}

// ParseLine decodes one line, stamping packets with now. Unrecognised record
// names decode to an Unknown packet so the pipeline can account for them.
func ParseLine(line string, now time.Time) (Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, ErrSkipLine
	}

	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	if name == connectionRecord {
		evt, err := parseConnection(args)
		if err != nil {
			return Event{}, err
		}
		return Event{Connection: &evt}, nil
	}

	c := packet.ParseCategory(name)
	var p packet.Packet
	switch {
	case c.IsWaveband(), c == packet.Horseshoe:
		values, err := parseValues(name, args)
		if err != nil {
			return Event{}, err
		}
		if len(values) != packet.NumChannels {
			return Event{}, fmt.Errorf("%w: %s has %d values, want %d", ErrMalformedLine, name, len(values), packet.NumChannels)
		}
		p = packet.Packet{Category: c, Values: values, Timestamp: now}

	case c == packet.TouchingForehead:
		if len(args) != 1 {
			return Event{}, fmt.Errorf("%w: %s needs one flag", ErrMalformedLine, name)
		}
		on, err := parseFlag(args[0])
		if err != nil {
			return Event{}, fmt.Errorf("%w: %s: %v", ErrMalformedLine, name, err)
		}
		p = packet.NewContact(now, on)

	case c == packet.Battery:
		values, err := parseValues(name, args)
		if err != nil {
			return Event{}, err
		}
		if len(values) == 0 {
			return Event{}, fmt.Errorf("%w: battery has no values", ErrMalformedLine)
		}
		p = packet.NewBattery(now, values...)

	default:
		// keep whatever numbers are there; the dispatcher drops it
		values, _ := parseValues(name, args)
		p = packet.Packet{Category: packet.Unknown, Values: values, Timestamp: now}
	}
	return Event{Packet: &p}, nil
}

func parseValues(name string, args []string) ([]float64, error) {
	values := make([]float64, 0, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value %d %q is not a number", ErrMalformedLine, name, i, a)
		}
		values = append(values, v)
	}
	return values, nil
}

func parseFlag(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	// the SDK reports headband_on as a float in some firmware
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("flag %q is not boolean", s)
	}
	return v != 0, nil
}

func parseConnection(args []string) (packet.ConnectionEvent, error) {
	if len(args) < 2 {
		return packet.ConnectionEvent{}, fmt.Errorf("%w: connection needs previous and current state", ErrMalformedLine)
	}
	evt := packet.ConnectionEvent{
		Previous: packet.ParseConnectionState(args[0]),
		Current:  packet.ParseConnectionState(args[1]),
	}
	if len(args) > 2 {
		evt.DeviceID = args[2]
	}
	if len(args) > 3 {
		// the version string may itself contain commas
		evt.Version = strings.Join(args[3:], ",")
	}
	return evt, nil
}
