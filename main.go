package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/audera-data/quietwatch/internal/api"
	"github.com/audera-data/quietwatch/internal/capture"
	"github.com/audera-data/quietwatch/internal/db"
	"github.com/audera-data/quietwatch/internal/log"
	"github.com/audera-data/quietwatch/internal/monitor"
	"github.com/audera-data/quietwatch/internal/noise"
	"github.com/audera-data/quietwatch/internal/timeutil"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (reads fixture readings instead of the meter)")
	fixtures   = flag.String("fixtures", "fixtures.txt", "Fixture readings file for dev mode")
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "quietwatch.db", "Path to the SQLite database")
	configFile = flag.String("config", "", "Path to a JSON monitoring config (defaults apply when empty)")
	meterPort  = flag.String("port", "/dev/ttyUSB0", "Serial port of the sound level meter (ignored in dev mode)")
	meterBaud  = flag.Int("baud", 115200, "Baud rate of the sound level meter")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

// refreshBudget bounds how long a background refresh cycle may run.
const refreshBudget = 30 * time.Second

func main() {
	// Subcommands bypass the server flag set entirely.
	if len(os.Args) > 1 && !isFlag(os.Args[1]) {
		runCommand(os.Args[1], os.Args[2:])
		return
	}

	flag.Parse()

	if *listen == "" {
		fmt.Fprintln(os.Stderr, "Listen address is required")
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := loadMonitorConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var device capture.Device
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		device, err = capture.NewFixtureDevice(data)
		if err != nil {
			log.Fatalf("failed to parse fixtures file: %v", err)
		}
	} else {
		device = capture.NewSerialDevice(*meterPort, *meterBaud)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	clock := &timeutil.RealClock{}
	logger := log.GetSugaredLogger()

	refresh := monitor.NewTimerRefresh(clock, refreshBudget, logger)
	mon, err := monitor.New(cfg, database, device, capture.StaticPermission(true), refresh, clock, logger)
	if err != nil {
		log.Fatalf("failed to create monitor: %v", err)
	}
	refresh.Bind(mon)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon.Start()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(database, mon, cfg).ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LogRequest(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()
		log.Infof("listening on %s", *listen)

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Info("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Errorf("HTTP server force close error: %v", err)
			}
		}

		log.Info("HTTP server routine stopped")
	}()

	<-ctx.Done()
	mon.Stop()

	wg.Wait()
	log.Info("Graceful shutdown complete")
}

func isFlag(arg string) bool {
	return len(arg) > 0 && arg[0] == '-'
}

// loadMonitorConfig reads the JSON config file when one is given, otherwise
// falls back to defaults.
func loadMonitorConfig(path string) (noise.Config, error) {
	if path == "" {
		return noise.DefaultConfig(), nil
	}
	return noise.LoadConfig(path)
}
