package osc

import (
	"strings"

	"github.com/banshee-data/museosc/internal/packet"
)

// Address returns the element address for a category, e.g.
// "/muse/elements/alpha_absolute". An empty namespace falls back to
// DefaultNamespace.
func Address(namespace string, c packet.Category) string {
	return "/" + cleanNamespace(namespace) + "/elements/" + c.String()
}

// BatteryAddress is where battery levels go when forwarding is enabled.
func BatteryAddress(namespace string) string {
	return "/" + cleanNamespace(namespace) + "/batt"
}

func cleanNamespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), "/")
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// Addresses precomputes the element address of every category for one
// namespace so the dispatch path does no string building.
type Addresses struct {
	byCategory map[packet.Category]string
	battery    string
}

// NewAddresses builds the address table for namespace.
func NewAddresses(namespace string) *Addresses {
	a := &Addresses{
		byCategory: make(map[packet.Category]string),
		battery:    BatteryAddress(namespace),
	}
	for _, c := range packet.Wavebands {
		a.byCategory[c] = Address(namespace, c)
	}
	a.byCategory[packet.Horseshoe] = Address(namespace, packet.Horseshoe)
	a.byCategory[packet.TouchingForehead] = Address(namespace, packet.TouchingForehead)
	return a
}

// For returns the address of c and whether c is ever sent.
func (a *Addresses) For(c packet.Category) (string, bool) {
	addr, ok := a.byCategory[c]
	return addr, ok
}

// Battery returns the battery address.
func (a *Addresses) Battery() string { return a.battery }
