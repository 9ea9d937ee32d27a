package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// TestableSerialPort is an in-memory SerialPorter. Tests load it with
// AddReadData and inspect GetWrittenData; ReplayPort drives it for fixture
// runs.
type TestableSerialPort struct {
	mu    sync.Mutex
	ready *sync.Cond
	in    bytes.Buffer
	out   bytes.Buffer

	// WriteError fails the next Write only.
	WriteError error
	// CloseError is returned by Close.
	CloseError error
	// Closed is set by Close. Reads and writes on a closed port fail.
	Closed bool
	// BlockReads makes an empty port wait for data instead of reading EOF.
	BlockReads bool
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.ready = sync.NewCond(&p.mu)
	return p
}

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.Closed && p.in.Len() == 0 && p.BlockReads {
		p.ready.Wait()
	}
	switch {
	case p.Closed:
		return 0, errPortClosed
	case p.in.Len() == 0:
		return 0, io.EOF
	}
	return p.in.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errPortClosed
	}
	if err := p.WriteError; err != nil {
		p.WriteError = nil
		return 0, err
	}
	return p.out.Write(b)
}

// Close marks the port closed and wakes any blocked Read.
func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.ready.Broadcast()
	return p.CloseError
}

// AddReadData queues data for Read.
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	p.in.Write(data)
	p.ready.Broadcast()
	p.mu.Unlock()
}

// GetWrittenData returns a copy of everything written so far.
func (p *TestableSerialPort) GetWrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.out.Bytes())
}

func (p *TestableSerialPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// finish lets Read return EOF once the queued data is drained.
func (p *TestableSerialPort) finish() {
	p.mu.Lock()
	p.BlockReads = false
	p.ready.Broadcast()
	p.mu.Unlock()
}
