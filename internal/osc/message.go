// Package osc builds the address-tagged messages sent to OSC consumers and
// serializes them with github.com/hypebeast/go-osc.
package osc

import (
	"errors"
	"fmt"
	"strings"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/banshee-data/museosc/internal/packet"
)

// DefaultNamespace is the first address element used by the headband tools.
const DefaultNamespace = "muse"

// Shape is the payload layout of a message.
type Shape int

const (
	// ShapeInt is a single int32 argument (contact status, battery level).
	ShapeInt Shape = iota + 1
	// ShapeQuad is four float32 arguments in TP9, FP1, FP2, TP10 order.
	ShapeQuad
)

func (s Shape) String() string {
	switch s {
	case ShapeInt:
		return "i"
	case ShapeQuad:
		return "ffff"
	}
	return "invalid"
}

// Message is one outgoing OSC message. It is built per accepted sample and has
// no identity beyond its single transmission.
type Message struct {
	Address string
	Shape   Shape
	Int     int32
	Quad    [packet.NumChannels]float32
}

// Encode builds a message from an address and its arguments. Exactly one
// int32, or exactly four float32, are accepted; anything else is a programming
// error and panics.
func Encode(address string, values ...interface{}) Message {
	switch len(values) {
	case 1:
		v, ok := values[0].(int32)
		if !ok {
			panic(fmt.Sprintf("osc: single-value message %s needs int32, got %T", address, values[0]))
		}
		return EncodeInt(address, v)
	case packet.NumChannels:
		var quad [packet.NumChannels]float32
		for i, raw := range values {
			v, ok := raw.(float32)
			if !ok {
				panic(fmt.Sprintf("osc: four-value message %s needs float32 at %d, got %T", address, i, raw))
			}
			quad[i] = v
		}
		return EncodeQuad(address, quad)
	}
	panic(fmt.Sprintf("osc: message %s has %d values, want 1 or %d", address, len(values), packet.NumChannels))
}

// EncodeInt builds a single-int message.
func EncodeInt(address string, v int32) Message {
	return Message{Address: address, Shape: ShapeInt, Int: v}
}

// EncodeBool builds a single-int message carrying 1 for true and 0 for false.
func EncodeBool(address string, b bool) Message {
	if b {
		return EncodeInt(address, 1)
	}
	return EncodeInt(address, 0)
}

// EncodeQuad builds a four-float message.
func EncodeQuad(address string, quad [packet.NumChannels]float32) Message {
	return Message{Address: address, Shape: ShapeQuad, Quad: quad}
}

// Arguments returns the message arguments in wire order.
func (m Message) Arguments() []interface{} {
	switch m.Shape {
	case ShapeInt:
		return []interface{}{m.Int}
	case ShapeQuad:
		return []interface{}{m.Quad[0], m.Quad[1], m.Quad[2], m.Quad[3]}
	}
	return nil
}

// MarshalBinary encodes the message as an OSC 1.0 datagram.
func (m Message) MarshalBinary() ([]byte, error) {
	if m.Shape != ShapeInt && m.Shape != ShapeQuad {
		return nil, fmt.Errorf("osc: message %q has no payload shape", m.Address)
	}
	return goosc.NewMessage(m.Address, m.Arguments()...).MarshalBinary()
}

func (m Message) String() string {
	args := m.Arguments()
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return m.Address + " " + m.Shape.String() + " " + strings.Join(parts, " ")
}

// ErrUnsupportedPacket is returned by Decode for bundles and for messages
// whose arguments fit neither payload shape.
var ErrUnsupportedPacket = errors.New("osc: unsupported packet")

// Decode parses one datagram produced by MarshalBinary.
func Decode(b []byte) (Message, error) {
	p, err := goosc.ParsePacket(string(b))
	if err != nil {
		return Message{}, fmt.Errorf("osc: parse datagram: %w", err)
	}
	msg, ok := p.(*goosc.Message)
	if !ok {
		return Message{}, fmt.Errorf("%w: %T", ErrUnsupportedPacket, p)
	}

	switch len(msg.Arguments) {
	case 1:
		if v, ok := msg.Arguments[0].(int32); ok {
			return EncodeInt(msg.Address, v), nil
		}
	case packet.NumChannels:
		var quad [packet.NumChannels]float32
		for i, a := range msg.Arguments {
			v, ok := a.(float32)
			if !ok {
				return Message{}, fmt.Errorf("%w: %s argument %d is %T", ErrUnsupportedPacket, msg.Address, i, a)
			}
			quad[i] = v
		}
		return EncodeQuad(msg.Address, quad), nil
	}
	return Message{}, fmt.Errorf("%w: %s with %d arguments", ErrUnsupportedPacket, msg.Address, len(msg.Arguments))
}
