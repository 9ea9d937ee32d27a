package device

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
	"github.com/banshee-data/museosc/internal/serialmux"
	"github.com/banshee-data/museosc/internal/timeutil"
)

// Sink consumes decoded device events. *session.Manager implements it.
type Sink interface {
	Dispatch(p packet.Packet) pipeline.Outcome
	HandleConnection(ctx context.Context, evt packet.ConnectionEvent)
}

// Transmission commands understood by the bridge firmware.
const (
	CommandTransmitOn  = "transmit,on"
	CommandTransmitOff = "transmit,off"
)

// SourceStats counts lines seen by a Source.
type SourceStats struct {
	Lines       uint64
	Packets     uint64
	Connections uint64
	Malformed   uint64
}

// Source subscribes to a serial mux and feeds every decoded line to a Sink.
type Source struct {
	mux   serialmux.SerialMuxInterface
	sink  Sink
	clock timeutil.Clock
	logf  func(format string, v ...interface{})
	ready chan struct{}

	lines       atomic.Uint64
	packets     atomic.Uint64
	connections atomic.Uint64
	malformed   atomic.Uint64
}

// NewSource creates a source. A nil clock uses the real clock.
func NewSource(mux serialmux.SerialMuxInterface, sink Sink, clock timeutil.Clock) *Source {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Source{
		mux:   mux,
		sink:  sink,
		clock: clock,
		logf:  monitoring.Prefixed("device"),
		ready: make(chan struct{}),
	}
}

// Run consumes lines until ctx is done or the mux closes the subscription.
// It must be called at most once.
func (s *Source) Run(ctx context.Context) error {
	id, lines := s.mux.Subscribe()
	defer s.mux.Unsubscribe(id)
	close(s.ready)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			s.HandleLine(ctx, line)
		}
	}
}

// Ready is closed once Run has subscribed, so the mux can be started without
// losing the first lines.
func (s *Source) Ready() <-chan struct{} { return s.ready }

// HandleLine decodes and delivers a single line.
func (s *Source) HandleLine(ctx context.Context, line string) {
	s.lines.Add(1)
	evt, err := ParseLine(line, s.clock.Now())
	switch {
	case errors.Is(err, ErrSkipLine):
		return
	case err != nil:
		s.malformed.Add(1)
		s.logf("Ignoring line %q: %v", line, err)
		return
	}

	if evt.Connection != nil {
		s.connections.Add(1)
		s.sink.HandleConnection(ctx, *evt.Connection)
		return
	}
	s.packets.Add(1)
	s.sink.Dispatch(*evt.Packet)
}

// SetTransmission asks the device to start or stop streaming data.
func (s *Source) SetTransmission(on bool) error {
	cmd := CommandTransmitOff
	if on {
		cmd = CommandTransmitOn
	}
	if err := s.mux.SendCommand(cmd); err != nil {
		return fmt.Errorf("failed to set transmission: %w", err)
	}
	return nil
}

// Stats returns the line counters.
func (s *Source) Stats() SourceStats {
	return SourceStats{
		Lines:       s.lines.Load(),
		Packets:     s.packets.Load(),
		Connections: s.connections.Load(),
		Malformed:   s.malformed.Load(),
	}
}

// LoadFixture reads a recorded line file for replay, dropping blank and
// comment lines.
func LoadFixture(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return lines, nil
}
