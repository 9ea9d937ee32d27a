package display

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the update queue length used when none is configured.
const DefaultBuffer = 128

// Update is one queued display write.
type Update struct {
	Field string
	Value string
}

// Async hands updates to a single presentation goroutine through a bounded
// queue. Display never blocks: when the queue is full the update is dropped,
// which is harmless because a fresher value for the same field follows.
type Async struct {
	sink  Sink
	queue chan Update
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsync starts the presentation goroutine that forwards to sink.
func NewAsync(sink Sink, buffer int) *Async {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	a := &Async{
		sink:  sink,
		queue: make(chan Update, buffer),
		done:  make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case u := <-a.queue:
			a.sink.Display(u.Field, u.Value)
		case <-a.done:
			// flush what is already queued, then stop
			for {
				select {
				case u := <-a.queue:
					a.sink.Display(u.Field, u.Value)
				default:
					return
				}
			}
		}
	}
}

// Display queues an update without blocking.
func (a *Async) Display(field, value string) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- Update{Field: field, Value: value}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of updates lost to a full queue.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting updates, delivers those already queued and waits for
// the presentation goroutine to exit.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.done)
	a.mu.Unlock()
	a.wg.Wait()
}
