// Package display carries formatted readings to whatever presents them: a log,
// the terminal UI or the debug monitor. Sinks are write-only; the pipeline
// never reads anything back.
package display

import (
	"sort"
	"strings"
	"sync"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/packet"
)

// Sink receives display updates.
type Sink interface {
	Display(field, value string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(field, value string)

// Display calls f.
func (f SinkFunc) Display(field, value string) { f(field, value) }

// Discard drops every update.
var Discard Sink = SinkFunc(func(string, string) {})

// Field names.
const (
	FieldTouchingForehead = "touching_forehead"
	FieldBattery          = "battery_life"
	FieldConnection       = "con_status"
	FieldDevice           = "device_id"
	FieldVersion          = "headset_version"
	FieldSession          = "session"
)

// WaveField names the display field for one waveband channel, e.g. "alpha_tp9".
func WaveField(c packet.Category, ch packet.Channel) string {
	return c.Band() + "_" + strings.ToLower(ch.String())
}

// HorseshoeField names the signal-quality field for a channel.
func HorseshoeField(ch packet.Channel) string {
	return "horseshoe_" + strings.ToLower(ch.String())
}

// Multi fans each update out to every sink in order.
func Multi(sinks ...Sink) Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return multi(out)
}

type multi []Sink

func (m multi) Display(field, value string) {
	for _, s := range m {
		s.Display(field, value)
	}
}

// LogSink writes every update as a "[display] field=value" line.
type LogSink struct {
	logf func(format string, v ...interface{})
}

// NewLogSink creates a sink that logs through the monitoring logger.
func NewLogSink() *LogSink {
	return &LogSink{logf: monitoring.Prefixed("display")}
}

// Display logs the update.
func (l *LogSink) Display(field, value string) {
	l.logf("%s=%s", field, strings.TrimSpace(value))
}

// Board keeps the latest value of every field. It is the shared state read by
// the terminal UI and the debug monitor.
type Board struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{values: make(map[string]string)}
}

// Display records value as the latest for field.
func (b *Board) Display(field, value string) {
	b.mu.Lock()
	b.values[field] = value
	b.mu.Unlock()
}

// Get returns the latest value of field.
func (b *Board) Get(field string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[field]
	return v, ok
}

// Snapshot returns a copy of all fields.
func (b *Board) Snapshot() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Fields returns the recorded field names, sorted.
func (b *Board) Fields() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.values))
	for k := range b.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
