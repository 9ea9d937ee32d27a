package pipeline

import (
	"fmt"
	"strings"
)

// BatteryPolicy decides what happens to battery packets.
type BatteryPolicy int

const (
	// BatteryDisplay shows the percentage on the display and sends nothing.
	BatteryDisplay BatteryPolicy = iota
	// BatteryForward also sends the percentage as one int32 to /<ns>/batt.
	BatteryForward
	// BatteryGated displays only, through the battery throttle window.
	BatteryGated
)

func (p BatteryPolicy) String() string {
	switch p {
	case BatteryDisplay:
		return "display"
	case BatteryForward:
		return "forward"
	case BatteryGated:
		return "gated"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParseBatteryPolicy accepts "display", "forward" or "gated". The empty string
// is BatteryDisplay.
func ParseBatteryPolicy(s string) (BatteryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "display":
		return BatteryDisplay, nil
	case "forward":
		return BatteryForward, nil
	case "gated":
		return BatteryGated, nil
	}
	return BatteryDisplay, fmt.Errorf("unknown battery policy %q (want display, forward or gated)", s)
}
