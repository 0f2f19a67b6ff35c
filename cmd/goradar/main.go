package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shaunagostinho/goradar/internal/geo"
	"github.com/shaunagostinho/goradar/internal/geocode"
	"github.com/shaunagostinho/goradar/internal/gps"
	"github.com/shaunagostinho/goradar/internal/nav"
	"github.com/shaunagostinho/goradar/internal/server"
	"github.com/shaunagostinho/goradar/web"
)

func main() {
	configPath := flag.String("config", "/etc/goradar/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated walker heading for a fixed target")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	dest := flag.String("dest", "", "Initial destination as \"lat,lon\"")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	// Load config
	cfg := server.LoadConfig(*configPath)

	if *demo {
		cfg.GPS.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[main] %v", err)
	}
	settings := cfg.Snapshot()

	if settings.Logging.File != "" {
		lj := &lumberjack.Logger{
			Filename:   settings.Logging.File,
			MaxSize:    settings.Logging.MaxSizeMB, // MB
			MaxBackups: settings.Logging.MaxBackups,
			MaxAge:     settings.Logging.MaxAgeDays,
		}
		defer lj.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, lj))
	}
	log.Println("[main] goradar starting")

	// Create context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	// Navigation session owns all pipeline state
	session := nav.NewSession(settings.Navigation.Config, settings.Navigation.QueueSize)
	go session.Run(ctx)

	pub, err := server.NewPublisher(settings.MQTT)
	if err != nil {
		log.Printf("[main] state publishing disabled: %v", err)
	} else if pub != nil {
		defer pub.Close()
		session.OnUpdate(pub.Publish)
	}

	// Initialize GPS provider
	var gpsProv gps.Provider
	var initial *geo.Point
	switch settings.GPS.Type {
	case "nmea":
		gpsProv = gps.NewNMEA(gps.NMEAConfig{
			PortPath: settings.GPS.PortPath,
			BaudRate: settings.GPS.BaudRate,
			UERE:     settings.GPS.UERE,
		})
	case "mqtt":
		gpsProv = gps.NewMQTT(gps.MQTTConfig{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID + "-gps",
			Topic:    settings.MQTT.FixTopic,
		})
	case "disabled":
		gpsProv = nil
	default:
		d := gps.NewDemoGPS(settings.GPS.Demo)
		target := d.Target()
		initial = &target
		gpsProv = d
	}

	if gpsProv != nil {
		go connectWithRetry(ctx, "GPS", gpsProv, 10)
		defer gpsProv.Close()
	}

	if *dest != "" {
		p, ok := geocode.ParseCoordinates(*dest)
		if !ok {
			log.Fatalf("[main] bad -dest %q, want \"lat,lon\"", *dest)
		}
		initial = &p
	}
	if initial != nil {
		setCtx, setCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := session.SetDestination(setCtx, *initial); err != nil {
			log.Printf("[main] initial destination: %v", err)
		}
		setCancel()
	}

	geocoder, closeGeocoder, err := geocode.New(settings.Geocode)
	if err != nil {
		log.Printf("[main] geocode cache unavailable, using coordinates only: %v", err)
		geocoder, closeGeocoder = geocode.Literal{}, func() error { return nil }
	}
	defer closeGeocoder()

	// Start server; it works immediately even if the GPS is still connecting
	srv := server.New(cfg, session, gpsProv, geocoder, web.FS)
	if err := srv.Run(ctx); err != nil {
		log.Printf("[main] server exited: %v", err)
	}
}

// connectable is satisfied by gps.Provider.
type connectable interface {
	Connect() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) bool {
	return retry(ctx, name, c.Connect, maxAttempts, time.Second, 60*time.Second)
}

// retry calls fn until it succeeds or ctx ends, and reports which happened.
// Past maxAttempts it keeps trying but logs without the attempt budget.
func retry(ctx context.Context, name string, fn func() error, maxAttempts int, delay, maxDelay time.Duration) bool {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		err := fn()
		if err == nil {
			log.Printf("[%s] connected successfully (attempt %d)", name, attempt)
			return true
		}
		if attempt <= maxAttempts {
			log.Printf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
				name, attempt, maxAttempts, err, delay)
		} else {
			log.Printf("[%s] connect attempt %d failed: %v (retry in %v)",
				name, attempt, err, delay)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
