package capture

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/museosc/internal/osc"
)

const snapLen = 65536

// Writer appends UDP datagrams to a pcap stream, synthesizing Ethernet and
// IPv4 headers so standard tools can open the result.
type Writer struct {
	mu  sync.Mutex
	w   *pcapgo.Writer
	buf gopacket.SerializeBuffer
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{w: pw, buf: gopacket.NewSerializeBuffer()}, nil
}

// WriteDatagram records one datagram from src to dst. Only IPv4 addresses
// are supported.
func (w *Writer) WriteDatagram(ts time.Time, src, dst *net.UDPAddr, payload []byte) error {
	srcIP, dstIP := src.IP.To4(), dst.IP.To4()
	if srcIP == nil || dstIP == nil {
		return fmt.Errorf("capture: %s -> %s is not IPv4", src, dst)
	}

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(src.Port), DstPort: layers.UDPPort(dst.Port)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(w.buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return fmt.Errorf("capture: serialize: %w", err)
	}
	data := w.buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	return w.w.WritePacket(ci, data)
}

// WriteMessage encodes msg and records it.
func (w *Writer) WriteMessage(ts time.Time, src, dst *net.UDPAddr, msg osc.Message) error {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return err
	}
	return w.WriteDatagram(ts, src, dst, payload)
}
