package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/museosc/internal/config"
	"github.com/banshee-data/museosc/internal/device"
	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/display/tui"
	"github.com/banshee-data/museosc/internal/metrics"
	"github.com/banshee-data/museosc/internal/monitor"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/serialmux"
	"github.com/banshee-data/museosc/internal/session"
	"github.com/banshee-data/museosc/internal/status"
	"github.com/banshee-data/museosc/internal/store"
	"github.com/banshee-data/museosc/internal/version"
)

const defaultReplayInterval = 20 * time.Millisecond

type options struct {
	fixtures       string
	replayInterval time.Duration
	deviceID       string
	dbFile         string
	listen         string
	grpcListen     string
	tui            bool
	logFile        string
	verbose        bool
	save           bool
}

// endpointStore is the slice of *store.DB used to resolve the destination.
type endpointStore interface {
	LoadEndpoint(ctx context.Context) (network.Endpoint, bool, error)
	SaveEndpoint(ctx context.Context, ep network.Endpoint) error
}

// resolveEndpoint picks the destination: an explicit host from flags or the
// config file wins, then the stored preference, then store.DefaultEndpoint.
// An explicit port always overrides the port of a stored endpoint.
func resolveEndpoint(ctx context.Context, cfg *config.BridgeConfig, prefs endpointStore) (network.Endpoint, error) {
	ep := cfg.GetEndpoint()
	if ep.Host == "" {
		base := store.DefaultEndpoint
		if prefs != nil {
			stored, ok, err := prefs.LoadEndpoint(ctx)
			if err != nil {
				log.Printf("failed to load stored endpoint: %v", err)
			} else if ok {
				base = stored
			}
		}
		if cfg.Port != nil {
			base.Port = *cfg.Port
		}
		ep = base
	}
	if err := ep.Validate(); err != nil {
		return network.Endpoint{}, err
	}
	return ep, nil
}

// openMux returns the device line source: a fixture replay, a real serial
// port, or a disabled mux when neither is configured.
func openMux(cfg *config.BridgeConfig, opts options) (serialmux.SerialMuxInterface, string, error) {
	switch {
	case opts.fixtures != "":
		lines, err := device.LoadFixture(opts.fixtures)
		if err != nil {
			return nil, "", err
		}
		log.Printf("replaying %d fixture lines from %s every %v", len(lines), opts.fixtures, opts.replayInterval)
		return serialmux.NewSerialMux(serialmux.ReplayPort(lines, opts.replayInterval, true)), "fixture", nil
	case cfg.GetSerialPort() != "":
		m, err := serialmux.NewRealSerialMux(cfg.GetSerialPort(), cfg.GetSerialOptions())
		if err != nil {
			return nil, "", err
		}
		return m, cfg.GetSerialPort(), nil
	default:
		log.Print("no serial device or fixture configured; waiting without input")
		return serialmux.NewDisabledSerialMux(), "none", nil
	}
}

func printPorts(w io.Writer) error {
	ports, err := serialmux.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func run(ctx context.Context, cfg *config.BridgeConfig, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.tui {
		f, err := tea.LogToFile(opts.logFile, "museosc ")
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
	}
	log.Print(version.String("museosc"))

	var db *store.DB
	if opts.dbFile != "" {
		var err error
		db, err = store.Open(opts.dbFile)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	var prefs endpointStore
	if db != nil {
		prefs = db
	}
	ep, err := resolveEndpoint(ctx, cfg, prefs)
	if err != nil {
		return err
	}
	if opts.save {
		if prefs == nil {
			return errors.New("-save needs a database")
		}
		if err := prefs.SaveEndpoint(ctx, ep); err != nil {
			return fmt.Errorf("failed to save endpoint: %w", err)
		}
		log.Printf("saved %s as the default endpoint", ep)
	}

	mux, source, err := openMux(cfg, opts)
	if err != nil {
		return err
	}
	defer mux.Close()

	collector := metrics.New()
	board := display.NewBoard()
	history := monitor.NewHistory(monitor.DefaultCapacity)

	// manager and src are assigned below; pause is only reachable after that.
	var (
		manager *session.Manager
		src     *device.Source
	)
	pause := func(paused bool) {
		manager.SetPaused(paused)
		collector.SetPaused(paused)
		if err := src.SetTransmission(!paused); err != nil {
			log.Printf("failed to toggle device transmission: %v", err)
		}
	}

	sinks := []display.Sink{board}
	var ui *tui.UI
	if opts.tui {
		ui = tui.New(tui.Options{Title: fmt.Sprintf("museosc -> %s", ep), OnPause: pause})
		sinks = append(sinks, ui)
	}
	if opts.verbose {
		sinks = append(sinks, display.NewLogSink())
	}
	presenter := display.NewAsync(display.Multi(sinks...), cfg.GetDisplayBuffer())
	defer presenter.Close()

	statusSinks := []session.StatusSink{collector}
	var health *status.Server
	if opts.grpcListen != "" {
		health = status.NewServer()
		if err := health.Start(opts.grpcListen); err != nil {
			return err
		}
		defer health.Stop()
		statusSinks = append(statusSinks, health)
	}

	mcfg := session.Config{
		Namespace:       cfg.GetNamespace(),
		Intervals:       cfg.Intervals(),
		BatteryPolicy:   cfg.GetBatteryPolicy(),
		BatteryInterval: cfg.GetBatteryInterval(),
		QueueDepth:      cfg.GetQueueDepth(),
		Workers:         cfg.GetWorkers(),
		LogInterval:     cfg.GetLogInterval(),
		Display:         presenter,
		TransmitStats:   collector,
		DispatchStats:   collector,
		StatusSinks:     statusSinks,
	}
	if db != nil {
		mcfg.Recorder = db
	}
	manager = session.NewManager(mcfg)
	src = device.NewSource(mux, history.Tap(manager), nil)

	id := opts.deviceID
	if id == "" {
		id = source
	}
	if _, err := manager.Connect(ctx, ep, id); err != nil {
		return err
	}
	defer func() {
		c, _ := manager.Counters()
		info, err := manager.Disconnect(context.Background())
		if err != nil {
			log.Printf("disconnect: %v", err)
			return
		}
		log.Printf("session %s ended after %v (%d sent, %d dropped)", info.ID, info.Ended.Sub(info.Started).Round(time.Second), c.Sent, c.Dropped)
	}()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("device source stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-src.Ready()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if err := mux.Initialize(cfg.SerialStartup...); err != nil {
		log.Printf("failed to initialize device: %v", err)
	}

	if opts.listen != "" {
		httpMux := http.NewServeMux()
		httpMux.Handle("/metrics", collector.Handler())
		monitor.AttachAdminRoutes(httpMux, monitor.Options{
			State:     manager,
			Board:     board,
			History:   history,
			SetPaused: pause,
		})
		serialmux.AttachAdminRoutes(httpMux, mux)
		if db != nil {
			if err := db.AttachAdminRoutes(httpMux); err != nil {
				log.Printf("failed to attach database routes: %v", err)
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, opts.listen, httpMux)
		}()
	}

	if ui != nil {
		err := ui.Run(ctx)
		cancel()
		wg.Wait()
		return err
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{Addr: addr, Handler: h}

	go func() {
		log.Printf("debug HTTP listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
