// Package capture reads and writes pcap files of OSC traffic so a session's
// output can be recorded and inspected offline without libpcap.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/osc"
)

// Captured is one OSC message recovered from a capture.
type Captured struct {
	Timestamp time.Time
	Src       *net.UDPAddr
	Dst       *net.UDPAddr
	Message   osc.Message
}

// Stats counts what a read saw.
type Stats struct {
	Packets   int
	UDP       int
	Messages  int
	Malformed int
}

// Filter restricts which UDP datagrams are decoded. A zero Port matches any
// destination port.
type Filter struct {
	Port int
}

func (f Filter) match(udp *layers.UDP) bool {
	return f.Port == 0 || int(udp.DstPort) == f.Port
}

// ReadFile decodes every OSC datagram in a pcap file, calling fn in capture
// order. It stops early when ctx is cancelled or fn returns an error.
func ReadFile(ctx context.Context, path string, filter Filter, fn func(Captured) error) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()
	return Read(ctx, f, filter, fn)
}

// Read is ReadFile over an already-open pcap stream.
func Read(ctx context.Context, r io.Reader, filter Filter, fn func(Captured) error) (Stats, error) {
	var stats Stats
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return stats, fmt.Errorf("failed to read pcap header: %w", err)
	}

	source := gopacket.NewPacketSource(pr, pr.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pkt, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read packet %d: %w", stats.Packets+1, err)
		}
		stats.Packets++

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok || !filter.match(udp) {
			continue
		}
		stats.UDP++

		msg, err := osc.Decode(udp.Payload)
		if err != nil {
			stats.Malformed++
			monitoring.Logf("capture: skipping packet %d: %v", stats.Packets, err)
			continue
		}
		stats.Messages++

		c := Captured{Timestamp: pkt.Metadata().Timestamp, Message: msg}
		if nl := pkt.NetworkLayer(); nl != nil {
			src, dst := nl.NetworkFlow().Endpoints()
			c.Src = &net.UDPAddr{IP: net.IP(src.Raw()), Port: int(udp.SrcPort)}
			c.Dst = &net.UDPAddr{IP: net.IP(dst.Raw()), Port: int(udp.DstPort)}
		}
		if err := fn(c); err != nil {
			return stats, err
		}
	}
}
