package serialmux

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// SerialPorter is the subset of serial.Port the mux uses.
type SerialPorter interface {
	io.ReadWriteCloser
}

// DefaultBaudRate matches the headband bridge firmware.
const DefaultBaudRate = 115200

// PortOptions are the line settings used to open a real device.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	DataBits int    `json:"data_bits" yaml:"data_bits"`
	StopBits int    `json:"stop_bits" yaml:"stop_bits"`
	Parity   string `json:"parity" yaml:"parity"`
}

var parities = map[string]struct {
	code string
	mode serial.Parity
}{
	"":     {"N", serial.NoParity},
	"N":    {"N", serial.NoParity},
	"NONE": {"N", serial.NoParity},
	"E":    {"E", serial.EvenParity},
	"EVEN": {"E", serial.EvenParity},
	"O":    {"O", serial.OddParity},
	"ODD":  {"O", serial.OddParity},
}

// Normalize fills unset fields with 115200 8N1 and rejects settings the
// driver cannot apply. Parity is reduced to its single-letter code.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("data bits %d out of range 5-8", o.DataBits)
	}
	if o.StopBits != 1 && o.StopBits != 2 {
		return o, fmt.Errorf("stop bits %d not supported, use 1 or 2", o.StopBits)
	}
	p, ok := parities[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("parity %q not supported, use N, E or O", o.Parity)
	}
	o.Parity = p.code
	return o, nil
}

// SerialMode converts the options for serial.Open.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	stop := serial.OneStopBit
	if n.StopBits == 2 {
		stop = serial.TwoStopBits
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: stop,
		Parity:   parities[n.Parity].mode,
	}, nil
}

// NewRealSerialMux opens the device at path and wraps it in a mux.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialMux(port), nil
}

// ListPorts lists the serial devices present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
