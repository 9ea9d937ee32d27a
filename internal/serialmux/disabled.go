package serialmux

import "context"

// DisabledSerialMux stands in when no serial device is configured. It never
// produces lines and accepts every command, but still closes subscriber
// channels on Unsubscribe and Close so readers unblock at shutdown.
type DisabledSerialMux struct {
	subs *fanout
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: newFanout(0)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) { return d.subs.add() }

func (d *DisabledSerialMux) Unsubscribe(id string) { d.subs.remove(id) }

func (d *DisabledSerialMux) SendCommand(string) error { return nil }

func (d *DisabledSerialMux) Initialize(...string) error { return nil }

func (d *DisabledSerialMux) Stats() Stats { return d.subs.stats() }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.subs.shutdown()
	return nil
}
