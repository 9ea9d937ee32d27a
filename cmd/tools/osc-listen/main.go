// Command osc-listen is a downstream test consumer: it prints every OSC
// message the bridge sends and can record them to a pcap file for osc-dump.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/museosc/internal/capture"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/osc"
)

var (
	addr     = flag.String("addr", ":5000", "UDP address to listen on")
	prefix   = flag.String("prefix", "", "Only print messages whose address starts with this prefix")
	quiet    = flag.Bool("quiet", false, "Print only the periodic rate summary")
	pcapOut  = flag.String("pcap", "", "Record received messages to this pcap file")
	interval = flag.Duration("interval", time.Second, "Rate summary interval")
)

func main() {
	flag.Parse()

	local, err := net.ResolveUDPAddr("udp", *addr)
	if err != nil {
		log.Fatalf("invalid -addr: %v", err)
	}
	if local.IP == nil || local.IP.IsUnspecified() {
		local = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: local.Port}
	}

	var rec *capture.Writer
	if *pcapOut != "" {
		f, err := os.Create(*pcapOut)
		if err != nil {
			log.Fatalf("failed to create capture: %v", err)
		}
		defer f.Close()
		if rec, err = capture.NewWriter(f); err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("recording to %s", *pcapOut)
	}

	handler := func(msg osc.Message, from *net.UDPAddr) {
		if rec != nil {
			if err := rec.WriteMessage(time.Now(), from, local, msg); err != nil {
				log.Printf("capture: %v", err)
			}
		}
		if *quiet || !strings.HasPrefix(msg.Address, *prefix) {
			return
		}
		fmt.Printf("%s %-21s %s\n", time.Now().Format("15:04:05.000"), from, msg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := network.NewListener(network.ListenerConfig{
		Address:     *addr,
		RcvBuf:      1 << 20,
		LogInterval: *interval,
		Handler:     handler,
	})
	if err := l.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("listener: %v", err)
	}

	s := l.Stats()
	log.Printf("received %d messages (%d bytes, %d malformed)", s.Total(), s.Bytes, s.Malformed)
}
