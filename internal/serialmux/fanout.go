package serialmux

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
)

// subscriber is one registered line consumer.
type subscriber struct {
	ch      chan string
	dropped uint64
}

// fanout tracks subscribers and delivers lines to them without blocking.
// Once shut down it hands out closed channels so late readers never hang.
type fanout struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	buffer int
	closed bool

	delivered uint64
	dropped   uint64
}

func newFanout(buffer int) *fanout {
	return &fanout{subs: make(map[string]*subscriber), buffer: buffer}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	var b [8]byte
	crand.Read(b[:])
	return hex.EncodeToString(b[:])
}

func (f *fanout) add() (string, chan string) {
	id := randomID()
	ch := make(chan string, f.buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return id, ch
	}
	f.subs[id] = &subscriber{ch: ch}
	return id, ch
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(sub.ch)
	}
}

// publish offers line to every subscriber. Full queues lose the line.
func (f *fanout) publish(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, sub := range f.subs {
		select {
		case sub.ch <- line:
			f.delivered++
		default:
			sub.dropped++
			f.dropped++
		}
	}
}

// shutdown closes every subscriber channel. It reports false when the fanout
// was already shut down.
func (f *fanout) shutdown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.closed = true
	for id, sub := range f.subs {
		delete(f.subs, id)
		close(sub.ch)
	}
	return true
}

func (f *fanout) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fanout) stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		Subscribers: len(f.subs),
		Delivered:   f.delivered,
		Dropped:     f.dropped,
	}
}
