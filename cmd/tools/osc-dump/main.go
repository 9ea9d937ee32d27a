// Command osc-dump prints the OSC messages in a pcap capture of bridge
// output, one per line, with capture timestamps.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/banshee-data/museosc/internal/capture"
)

var (
	port    = flag.Int("port", 0, "Only decode UDP datagrams to this port (0 = any)")
	prefix  = flag.String("prefix", "", "Only print messages whose address starts with this prefix")
	summary = flag.Bool("summary", false, "Print per-address counts instead of messages")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: osc-dump [flags] capture.pcap\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counts := map[string]int{}
	stats, err := capture.ReadFile(ctx, flag.Arg(0), capture.Filter{Port: *port}, func(c capture.Captured) error {
		if !strings.HasPrefix(c.Message.Address, *prefix) {
			return nil
		}
		counts[c.Message.Address]++
		if !*summary {
			fmt.Printf("%s %s -> %s %s\n", c.Timestamp.Format("15:04:05.000000"), c.Src, c.Dst, c.Message)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("osc-dump: %v", err)
	}

	if *summary {
		addrs := make([]string, 0, len(counts))
		for a := range counts {
			addrs = append(addrs, a)
		}
		sort.Strings(addrs)
		for _, a := range addrs {
			fmt.Printf("%8d %s\n", counts[a], a)
		}
	}
	log.Printf("%d packets, %d UDP, %d OSC messages, %d malformed", stats.Packets, stats.UDP, stats.Messages, stats.Malformed)
}
