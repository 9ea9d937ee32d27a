// Package packet defines the headband data model shared by the device input,
// the dispatch pipeline and the status sinks.
package packet

import (
	"fmt"
	"strings"
	"time"
)

// Category identifies which kind of sensor-derived packet was received.
type Category int

const (
	Unknown Category = iota
	AlphaAbsolute
	BetaAbsolute
	DeltaAbsolute
	GammaAbsolute
	ThetaAbsolute
	Horseshoe
	TouchingForehead
	Battery
)

var categoryNames = map[Category]string{
	Unknown:          "unknown",
	AlphaAbsolute:    "alpha_absolute",
	BetaAbsolute:     "beta_absolute",
	DeltaAbsolute:    "delta_absolute",
	GammaAbsolute:    "gamma_absolute",
	ThetaAbsolute:    "theta_absolute",
	Horseshoe:        "horseshoe",
	TouchingForehead: "touching_forehead",
	Battery:          "battery",
}

// Wavebands lists the five absolute band-power categories in display order.
var Wavebands = []Category{AlphaAbsolute, BetaAbsolute, DeltaAbsolute, GammaAbsolute, ThetaAbsolute}

// String returns the wire name of the category, which is also the last
// element of its OSC address.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// IsWaveband reports whether c is one of the five band-power categories.
func (c Category) IsWaveband() bool {
	return c >= AlphaAbsolute && c <= ThetaAbsolute
}

// Band returns the short band name ("alpha", "beta", ...) for a waveband
// category and "" otherwise.
func (c Category) Band() string {
	if !c.IsWaveband() {
		return ""
	}
	return strings.TrimSuffix(c.String(), "_absolute")
}

// ParseCategory maps a wire name to its Category. The device SDK calls the
// contact packet "artifacts", so that alias is accepted too. Anything else is
// Unknown.
func ParseCategory(name string) Category {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "artifacts" {
		return TouchingForehead
	}
	for c, n := range categoryNames {
		if n == name {
			return c
		}
	}
	return Unknown
}

// Channel is an electrode position. The numeric value is the slot the reading
// occupies in every four-value message.
type Channel int

const (
	TP9 Channel = iota
	FP1
	FP2
	TP10
)

// NumChannels is the arity of waveband and horseshoe packets.
const NumChannels = 4

// Channels lists the electrodes in wire order.
var Channels = [NumChannels]Channel{TP9, FP1, FP2, TP10}

func (ch Channel) String() string {
	switch ch {
	case TP9:
		return "tp9"
	case FP1:
		return "fp1"
	case FP2:
		return "fp2"
	case TP10:
		return "tp10"
	}
	return fmt.Sprintf("channel(%d)", int(ch))
}

// Packet is one event from the device. It is immutable once produced and is
// owned by the dispatch call that receives it.
type Packet struct {
	Category Category
	// Values holds the raw readings. Wavebands and Horseshoe carry one value per
	// Channel; Battery carries the raw battery vector with state of charge first.
	Values []float64
	// HeadbandOn is only meaningful for TouchingForehead.
	HeadbandOn bool
	Timestamp  time.Time
}

// NewWaveband builds a four-channel band-power packet.
func NewWaveband(c Category, ts time.Time, tp9, fp1, fp2, tp10 float64) Packet {
	return Packet{Category: c, Values: []float64{tp9, fp1, fp2, tp10}, Timestamp: ts}
}

// NewHorseshoe builds a signal-quality packet from four status codes.
func NewHorseshoe(ts time.Time, codes [NumChannels]float64) Packet {
	return Packet{Category: Horseshoe, Values: codes[:], Timestamp: ts}
}

// NewContact builds a headband-on/off packet.
func NewContact(ts time.Time, on bool) Packet {
	return Packet{Category: TouchingForehead, HeadbandOn: on, Timestamp: ts}
}

// NewBattery builds a battery telemetry packet.
func NewBattery(ts time.Time, raw ...float64) Packet {
	return Packet{Category: Battery, Values: raw, Timestamp: ts}
}

// Channel returns the raw reading for ch, or false when the packet is short.
func (p Packet) Channel(ch Channel) (float64, bool) {
	if int(ch) < 0 || int(ch) >= len(p.Values) {
		return 0, false
	}
	return p.Values[ch], true
}
