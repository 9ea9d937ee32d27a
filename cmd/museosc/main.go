// Command museosc bridges a Muse EEG headband to OSC over UDP. Device lines
// arrive from a serial bridge (or a recorded fixture), are throttled and
// normalized, and are sent to a single downstream endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/museosc/internal/config"
	"github.com/banshee-data/museosc/internal/store"
	"github.com/banshee-data/museosc/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to a JSON or YAML config file (defaults apply when empty)")
	host           = flag.String("host", "", "Destination host for OSC messages (falls back to the stored endpoint)")
	port           = flag.Int("port", 0, "Destination UDP port for OSC messages")
	namespace      = flag.String("namespace", "", "OSC address namespace (default muse)")
	batteryPolicy  = flag.String("battery", "", "Battery handling: display, forward or gated")
	serialPort     = flag.String("serial", "", "Serial device of the headband bridge")
	fixtures       = flag.String("fixtures", "", "Replay device lines from this file instead of a serial device")
	replayInterval = flag.Duration("replay-interval", defaultReplayInterval, "Delay between replayed fixture lines")
	deviceID       = flag.String("device", "", "Device identifier recorded with the session")
	dbFile         = flag.String("db", "museosc.db", "SQLite database for preferences and session history (empty disables)")
	listen         = flag.String("listen", "localhost:8080", "Debug HTTP and /metrics listen address (empty disables)")
	grpcListen     = flag.String("grpc", "", "gRPC health service listen address (empty disables)")
	useTUI         = flag.Bool("tui", false, "Show the live terminal display")
	logFile        = flag.String("log", "museosc.log", "Log file used while the terminal display is active")
	verbose        = flag.Bool("verbose", false, "Log every display update")
	save           = flag.Bool("save", false, "Store the resolved endpoint as the default for later runs")
	listPorts      = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("museosc"))
		return
	}
	if *listPorts {
		if err := printPorts(os.Stdout); err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		return
	}
	if flag.NArg() > 0 {
		if err := runStoreCommand(*dbFile, flag.Args()); err != nil {
			log.Fatalf("museosc %s: %v", flag.Arg(0), err)
		}
		return
	}

	cfg, err := loadConfig(*configFile, config.Overrides{
		Namespace:     *namespace,
		Host:          *host,
		Port:          *port,
		SerialPort:    *serialPort,
		BatteryPolicy: *batteryPolicy,
	})
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		fixtures:       *fixtures,
		replayInterval: *replayInterval,
		deviceID:       *deviceID,
		dbFile:         *dbFile,
		listen:         *listen,
		grpcListen:     *grpcListen,
		tui:            *useTUI,
		logFile:        *logFile,
		verbose:        *verbose,
		save:           *save,
	}
	if err := run(ctx, cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("museosc: %v", err)
	}
}

// runStoreCommand runs a database maintenance subcommand such as
// "migrate status" or "sessions".
func runStoreCommand(dbPath string, args []string) error {
	if dbPath == "" {
		return errors.New("no database configured; pass -db")
	}
	open := store.Open
	if args[0] == "migrate" {
		open = store.OpenUnmigrated
	}
	db, err := open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return store.RunCommand(context.Background(), os.Stdout, db, args)
}

func loadConfig(path string, o config.Overrides) (*config.BridgeConfig, error) {
	cfg := &config.BridgeConfig{}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}
