package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/ground.control/internal/api"
	"github.com/banshee-data/ground.control/internal/config"
	"github.com/banshee-data/ground.control/internal/flightlog"
	"github.com/banshee-data/ground.control/internal/link"
	"github.com/banshee-data/ground.control/internal/mavlink"
	"github.com/banshee-data/ground.control/internal/series"
	"github.com/banshee-data/ground.control/internal/simulator"
	"github.com/banshee-data/ground.control/internal/telemetry"
	"github.com/banshee-data/ground.control/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a .json or .yaml config file")
	listen      = flag.String("listen", config.DefaultListenAddr, "HTTP listen address")
	grpcAddr    = flag.String("grpc", config.DefaultGRPCAddr, "gRPC health listen address (empty to disable)")
	port        = flag.String("port", "", "Serial port to connect to at startup")
	baud        = flag.Int("baud", link.DefaultBaudRate, "Serial baud rate")
	devMode     = flag.Bool("dev", false, "Replace the serial hardware with the flight simulator")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	exportPlots = flag.String("export-plots", "", "Directory to write sensor plots to on shutdown")
	flightLog   = flag.String("flight-log", "", "Record received samples to this sqlite database")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, setFlags())
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	factory, enum, err := newBackend(cfg)
	if err != nil {
		log.Fatalf("failed to set up serial backend: %v", err)
	}

	if *listPorts {
		if err := printPorts(os.Stdout, enum); err != nil {
			log.Fatalf("failed to list ports: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("ground.control %s", version.String())
	if err := run(ctx, cfg, factory, enum, *exportPlots); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// setFlags returns the names of flags given on the command line.
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

// applyFlags overrides cfg with the flags the user set explicitly, so file
// values win over flag defaults.
func applyFlags(cfg *config.Config, set map[string]bool) {
	if set["listen"] {
		cfg.ListenAddr = listen
	}
	if set["grpc"] {
		cfg.GRPCAddr = grpcAddr
	}
	if set["port"] {
		cfg.SerialPort = port
	}
	if set["baud"] {
		cfg.BaudRate = baud
	}
	if set["dev"] {
		cfg.Dev = devMode
	}
	if set["flight-log"] {
		cfg.FlightLogPath = flightLog
	}
}

// newBackend returns the real serial hardware, or the simulator in dev mode.
func newBackend(cfg *config.Config) (link.SerialPortFactory, link.Enumerator, error) {
	if !cfg.GetDev() {
		f := link.NewRealSerialPortFactory()
		f.ReadTimeout = cfg.GetReadTimeout()
		return f, link.SystemEnumerator{}, nil
	}

	newSource := func() simulator.Source { return simulator.NewFlight(20, uint64(time.Now().UnixNano())) }
	if path := cfg.GetSimulatorCSV(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open simulator data: %w", err)
		}
		defer f.Close()
		records, err := simulator.LoadCSV(f)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("dev mode: replaying %d records from %s", len(records), path)
		newSource = func() simulator.Source { return &simulator.SliceSource{Records: records, Loop: true} }
	}
	if cfg.SerialPort == nil {
		name := simulator.PortName
		cfg.SerialPort = &name
	}
	return &simulator.Factory{NewSource: newSource, Options: simulator.Options{NoiseEvery: 25}}, simulator.Enumerator{}, nil
}

func printPorts(w io.Writer, enum link.Enumerator) error {
	ports, err := enum.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		line := p.Name
		if p.IsUSB {
			line += fmt.Sprintf("  USB %s:%s", p.VID, p.PID)
			if p.Product != "" {
				line += " " + p.Product
			}
		} else if p.Product != "" {
			line += "  " + p.Product
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config, factory link.SerialPortFactory, enum link.Enumerator, plotDir string) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	manager, err := link.NewManager(factory, enum, cfg.Link(), link.WithReadTimeout(cfg.GetReadTimeout()))
	if err != nil {
		return fmt.Errorf("failed to create link manager: %w", err)
	}
	defer manager.Close()
	if err := manager.RefreshKnownPorts(); err != nil {
		log.Printf("failed to enumerate ports: %v", err)
	}

	store := series.NewTelemetryStore(cfg.GetMaxSamples())
	opts := []telemetry.Option{telemetry.WithInterval(cfg.GetPollInterval())}
	var serverOpts []api.Option

	var fl *flightlog.Log
	if path := cfg.GetFlightLogPath(); path != "" {
		fl, err = flightlog.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to open flight log: %w", err)
		}
		defer func() {
			if err := fl.Close(); err != nil {
				log.Printf("flight log close error: %v", err)
			}
			st := fl.Stats()
			log.Printf("flight log: %s samples written, %d dropped", humanize.Comma(int64(st.Written)), st.Dropped)
		}()
		fl.Start(ctx)
		fl.Follow(ctx, manager)
		opts = append(opts, telemetry.WithRecorder(fl))
		serverOpts = append(serverOpts, api.WithFlightLog(fl))
	}

	pipeline := telemetry.New(manager, mavlink.NewDecoder(nil), store, opts...)

	var wg sync.WaitGroup

	// poll loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("poll loop error: %v", err)
		}
		log.Print("poll loop terminated")
	}()

	if addr := cfg.GetGRPCAddr(); addr != "" {
		hs := api.NewHealthServer(addr, manager)
		if err := hs.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer hs.Stop()
	}

	mux := api.NewServer(manager, pipeline, serverOpts...).ServeMux()
	manager.AttachAdminRoutes(mux)
	if fl != nil {
		if err := fl.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach flight log routes: %v", err)
		}
	}
	server := &http.Server{
		Addr:              cfg.GetListenAddr(),
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if p := cfg.GetSerialPort(); p != "" {
		manager.Connect(p)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Printf("HTTP server error: %v", err)
		runErr = fmt.Errorf("HTTP server: %w", err)
	}
	stop()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	if plotDir != "" {
		if err := writePlots(plotDir, store); err != nil {
			log.Printf("failed to export plots: %v", err)
		}
	}
	return runErr
}

// writePlots writes one PNG per sensor group, named after the group.
func writePlots(dir string, store *series.Store) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var errs []error
	for _, g := range store.Groups() {
		name := strings.ToLower(strings.ReplaceAll(g.Title, " ", "_")) + ".png"
		path := filepath.Join(dir, name)
		if err := series.SavePlot(path, g.Title+" ("+g.Unit+")", g.Series...); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("wrote %s", path)
	}
	return errors.Join(errs...)
}
