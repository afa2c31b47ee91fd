package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yutaka0114/telepose/internal/api"
	"github.com/yutaka0114/telepose/internal/config"
	"github.com/yutaka0114/telepose/internal/db"
	"github.com/yutaka0114/telepose/internal/httputil"
	"github.com/yutaka0114/telepose/internal/ingest"
	"github.com/yutaka0114/telepose/internal/placement"
	"github.com/yutaka0114/telepose/internal/sample"
	"github.com/yutaka0114/telepose/internal/timeutil"
)

// observerState holds the most recent local observer pose, posted by
// the rendering client via /api/observer. The engine reads it every
// tick; until the first post it stays at the frame origin.
type observerState struct {
	mu   sync.Mutex
	pose placement.ObserverPose
}

type observerUpdate struct {
	Pos struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		Z float64 `json:"z"`
	} `json:"pos"`
	YawDeg            float64  `json:"yaw_deg"`
	CompassHeadingDeg *float64 `json:"compass_heading_deg,omitempty"`
}

func (o *observerState) Current() placement.ObserverPose {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

func (o *observerState) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var upd observerUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		httputil.BadRequest(w, "failed to decode observer pose")
		return
	}
	o.mu.Lock()
	o.pose.Position.X = upd.Pos.X
	o.pose.Position.Y = upd.Pos.Y
	o.pose.Position.Z = upd.Pos.Z
	o.pose.YawDeg = upd.YawDeg
	if upd.CompassHeadingDeg != nil {
		o.pose.CompassHeadingDeg = *upd.CompassHeadingDeg
	}
	o.mu.Unlock()
	httputil.WriteJSONOK(w, map[string]bool{"ok": true})
}

func main() {
	var (
		listen        = flag.String("listen", ":8080", "Listen address")
		dbFile        = flag.String("db", "telepose.db", "Sqlite sample log path")
		configPath    = flag.String("config", "", "Tuning config path (defaults to bundled defaults)")
		migrationsDir = flag.String("migrations", "", "Run file migrations from this directory before start")
	)
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var cfg *config.TuningConfig
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else {
		cfg = config.MustLoadDefaultConfig()
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *migrationsDir != "" {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
	}

	clock := timeutil.RealClock{}
	mailbox := sample.NewMailbox()
	engine := placement.NewEngine(placement.EngineConfigFromTuning(cfg), nil)
	observer := &observerState{}

	if err := database.CreateSession(engine.SessionID(), clock.Now()); err != nil {
		log.Fatalf("failed to create session: %v", err)
	}
	store := ingest.NewRecorder(database, engine.SessionID())
	log.Printf("session %s started", engine.SessionID())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// poll the remote pose source
	if url := cfg.GetSourceURL(); url != "" {
		poller := ingest.NewPoller(ingest.PollerConfig{
			SourceURL: url,
			Interval:  cfg.GetPollInterval(),
			Timeout:   cfg.GetPollTimeout(),
		}, httputil.NewStandardClient(&http.Client{}), mailbox, clock, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
			log.Print("poller routine terminated")
		}()
	}

	// low-latency datagram channel
	if addr := cfg.GetUDPListenAddr(); addr != "" {
		listener := ingest.NewDatagramListener(ingest.DatagramListenerConfig{
			Address: addr,
			RcvBuf:  cfg.GetUDPRcvBuf(),
		}, mailbox, clock, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("udp listener error: %v", err)
			}
			log.Print("udp routine terminated")
		}()
	}

	// engine tick loop: single consumer of the mailbox
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(cfg.GetTickInterval())
		defer ticker.Stop()
		marked := false
		for {
			select {
			case <-ctx.Done():
				log.Print("tick routine terminated")
				return
			case now := <-ticker.C():
				snap, ok := mailbox.Latest()
				engine.Tick(now, placement.TickInput{
					Snapshot:     snap,
					HasSample:    ok,
					EverReceived: mailbox.EverReceived(),
					Observer:     observer.Current(),
				})
				if !marked {
					if frame, calibrated := engine.Calibrated(); calibrated {
						marked = true
						log.Printf("calibrated: origin=(%.6f, %.6f) theta=%.2f",
							frame.OriginLat, frame.OriginLon, frame.RotationOffsetDeg)
						if err := database.MarkCalibrated(engine.SessionID(), frame.OriginLat, frame.OriginLon, now); err != nil {
							log.Printf("failed to mark session calibrated: %v", err)
						}
					}
				}
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(mailbox, engine, cfg, store, clock).ServeMux()
		mux.HandleFunc("/api/observer", observer.handleUpdate)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
