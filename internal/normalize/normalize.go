// Package normalize converts raw headband readings into the fixed-precision
// values that are displayed and transmitted.
//
// Rounding is round-half-up applied to the shortest decimal representation
// that round-trips the input, so 1.005 becomes 1.01 and 2.345 becomes 2.35.
// This is what the reference host's "%6.2f" formatting produced, and what OSC
// consumers built against it expect. Go's fmt would instead round the exact
// binary value (1.005 -> 1.00).
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Invalid is the sentinel sent in place of a reading that is not a finite
// number. Consumers cannot tell it apart from a genuine -1.00 on the wire;
// Value.Valid carries the distinction inside the process.
const Invalid float32 = -1

// Decimals is the fixed precision of every normalized value.
const Decimals = 2

// Value is a normalized reading.
type Value struct {
	Float float32
	// Valid is false when the raw reading was NaN, infinite, or out of float32
	// range and Float holds the Invalid sentinel.
	Valid bool
}

// Normalize rounds raw to two decimals. Non-finite input yields the Invalid
// sentinel rather than an error so that a message can always be built.
func Normalize(raw float64) Value {
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Value{Float: Invalid}
	}
	s := roundHalfUp(raw, 64, Decimals)
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return Value{Float: Invalid}
	}
	return Value{Float: float32(f), Valid: true}
}

// Float is Normalize without the validity flag.
func Float(raw float64) float32 {
	return Normalize(raw).Float
}

// Channels normalizes a four-channel reading in order.
func Channels(raw []float64) ([4]float32, [4]bool) {
	var out [4]float32
	var valid [4]bool
	for i := range out {
		if i >= len(raw) {
			out[i] = Invalid
			continue
		}
		v := Normalize(raw[i])
		out[i], valid[i] = v.Float, v.Valid
	}
	return out, valid
}

// Format renders a normalized value with exactly two decimals.
func Format(v float32) string {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nonFinite(float64(v))
	}
	return roundHalfUp(float64(v), 32, Decimals)
}

// FormatDisplay is Format right-aligned to six columns, as shown on the
// status display.
func FormatDisplay(v float32) string {
	return fmt.Sprintf("%6s", Format(v))
}

// Horseshoe status codes reported per electrode.
const (
	HorseshoeGood = 1.0
	HorseshoeOkay = 2.0
	HorseshoeBad  = 3.0
	HorseshoeNone = 4.0
)

// HorseshoeString maps a signal-quality code to its label. Codes outside the
// known set produce an error string embedding the raw code.
func HorseshoeString(code float64) string {
	switch code {
	case HorseshoeGood:
		return "GOOD"
	case HorseshoeOkay:
		return "OKAY"
	case HorseshoeBad:
		return "BAD"
	case HorseshoeNone:
		return "NONE"
	}
	return fmt.Sprintf("ERROR, value = %6s", formatRaw(code, Decimals))
}

// BatteryPercent formats the state-of-charge reading, already a percentage,
// in the %6.0f% display form, e.g. 53.67 -> "    54%".
func BatteryPercent(stateOfCharge float64) string {
	return fmt.Sprintf("%6s%%", formatRaw(stateOfCharge, 0))
}

// BatteryLevel returns the state of charge as a whole percentage clamped to
// 0..100, for forwarding as an integer argument.
func BatteryLevel(stateOfCharge float64) int32 {
	if math.IsNaN(stateOfCharge) {
		return int32(Invalid)
	}
	pct, err := strconv.ParseFloat(roundHalfUp(stateOfCharge, 64, 0), 64)
	if err != nil {
		return int32(Invalid)
	}
	return int32(math.Max(0, math.Min(100, pct)))
}

func formatRaw(x float64, decimals int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nonFinite(x)
	}
	return roundHalfUp(x, 64, decimals)
}

func nonFinite(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "Infinity"
	case math.IsInf(x, -1):
		return "-Infinity"
	}
	return "NaN"
}

// roundHalfUp rounds the shortest representation of x (at the given float bit
// size) to the requested number of decimals, ties away from zero. The sign of
// negative values that round to zero is kept ("-0.00").
func roundHalfUp(x float64, bitSize, decimals int) string {
	s := strconv.FormatFloat(x, 'f', -1, bitSize)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	if len(frac) <= decimals {
		frac += strings.Repeat("0", decimals-len(frac))
		return sign(neg) + joinDecimal(intPart, frac)
	}

	digits := []byte(intPart + frac[:decimals])
	if frac[decimals] >= '5' {
		i := len(digits) - 1
		for ; i >= 0; i-- {
			if digits[i] < '9' {
				digits[i]++
				break
			}
			digits[i] = '0'
		}
		if i < 0 {
			digits = append([]byte{'1'}, digits...)
		}
	}
	split := len(digits) - decimals
	return sign(neg) + joinDecimal(string(digits[:split]), string(digits[split:]))
}

func joinDecimal(intPart, frac string) string {
	if frac == "" {
		return intPart
	}
	return intPart + "." + frac
}

func sign(neg bool) string {
	if neg {
		return "-"
	}
	return ""
}
