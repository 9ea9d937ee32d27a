// Package serialmux multiplexes a line-oriented serial device: many
// subscribers receive every line read from the port, and commands from any
// of them are written to the single device.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// SubscriberBuffer is the per-subscriber line queue. A subscriber that falls
// further behind loses lines rather than stalling the reader.
const SubscriberBuffer = 256

// Stats counts line traffic through a mux.
type Stats struct {
	Lines       uint64 `json:"lines"`
	Subscribers int    `json:"subscribers"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// SerialMuxInterface is what the bridge and the admin routes need from a
// serial mux.
type SerialMuxInterface interface {
	// Subscribe returns an id and a channel carrying every line read from
	// the device. The id is passed back to Unsubscribe.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one command line to the device.
	SendCommand(string) error
	// Initialize writes the start-up commands in order.
	Initialize(commands ...string) error
	// Monitor reads lines and fans them out until ctx is done or the port
	// reaches EOF.
	Monitor(context.Context) error
	Stats() Stats
	// Close closes every subscriber channel and then the port.
	Close() error
}

// SerialMux fans the lines of one serial port out to many subscribers.
type SerialMux[T SerialPorter] struct {
	port  T
	subs  *fanout
	lines atomic.Uint64

	writeMu sync.Mutex
}

// NewSerialMux creates a SerialMux backed by port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: newFanout(SubscriberBuffer)}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.subs.add() }

func (s *SerialMux[T]) Unsubscribe(id string) { s.subs.remove(id) }

func (s *SerialMux[T]) Stats() Stats {
	st := s.subs.stats()
	st.Lines = s.lines.Load()
	return st
}

// Initialize sends each command in order and stops at the first failure.
func (s *SerialMux[T]) Initialize(commands ...string) error {
	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand writes command, newline terminated, as a single write.
func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	buf := []byte(command)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write(buf)
	switch {
	case err != nil:
		return err
	case n < len(buf):
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrWriteFailed, n, len(buf))
	}
	return nil
}

type readResult struct {
	line string
	err  error
	eof  bool
}

// readLines scans the port on its own goroutine, since a serial read cannot
// be interrupted by ctx. The final result carries either eof or err.
func (s *SerialMux[T]) readLines(ctx context.Context) <-chan readResult {
	out := make(chan readResult)
	go func() {
		defer close(out)
		send := func(r readResult) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			if !send(readResult{line: strings.TrimRight(scan.Text(), "\r")}) {
				return
			}
		}
		if err := scan.Err(); err != nil {
			send(readResult{err: err})
			return
		}
		send(readResult{eof: true})
	}()
	return out
}

// Monitor delivers each line read from the port to every subscriber. It
// returns nil at EOF or after Close, the read error if the port fails, and
// ctx.Err() on cancellation.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := s.readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			switch {
			case !ok:
				return ctx.Err()
			case r.err != nil:
				if s.subs.isClosed() {
					return nil
				}
				return r.err
			case r.eof:
				return nil
			}
			if s.subs.isClosed() {
				return nil
			}
			s.lines.Add(1)
			s.subs.publish(r.line)
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.subs.shutdown()
	return s.port.Close()
}
