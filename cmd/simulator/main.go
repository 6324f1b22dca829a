package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/config"
	"github.com/mie-lab/car-sharing-simulator/internal/db"
	"github.com/mie-lab/car-sharing-simulator/internal/metrics"
	"github.com/mie-lab/car-sharing-simulator/internal/publisher"
	"github.com/mie-lab/car-sharing-simulator/internal/sim"
)

func main() {
	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Connect to the trips database
	dsn := cfg.DatabaseURL
	if cfg.DatabaseName != "" {
		dsn, err = db.WithDBName(dsn, cfg.DatabaseName)
		if err != nil {
			log.Fatalf("compose DSN: %v", err)
		}
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	defer sqlDB.Close()
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := db.EnsureOutputTables(ctx, sqlDB); err != nil {
		log.Fatalf("db schema error: %v", err)
	}

	// Metrics setup
	var mcol *metrics.Collector
	var metricsSrvCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.AvgDriveSpeedKmh, cfg.StationDetourRatio)
		mctx, mcancel := context.WithCancel(ctx)
		metricsSrvCancel = mcancel
		srv := mcol.Serve(cfg.MetricsAddr)
		go func() {
			<-mctx.Done()
			// Shutdown with timeout
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Initialize NATS publisher
	pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
	if err != nil {
		log.Fatalf("nats error: %v", err)
	}
	defer pub.Close()

	// Load input tables
	stations, err := db.FetchStations(ctx, sqlDB)
	if err != nil {
		log.Fatalf("fetch stations error: %v", err)
	}
	if len(stations) == 0 {
		log.Fatalf("station scenario is empty")
	}
	trips, annotated, err := db.FetchTrips(ctx, sqlDB)
	if err != nil {
		log.Fatalf("fetch trips error: %v", err)
	}
	if len(trips) == 0 {
		log.Fatalf("trips table is empty")
	}
	// Render arrival times in the configured zone; decision times and the
	// persisted logs derive from these.
	for i := range trips {
		trips[i].ArrivalTime = trips[i].ArrivalTime.In(cfg.Location)
	}
	if !annotated {
		log.Printf("trips carry no nearest-station fields; annotating against %d stations", len(stations))
		trips, err = sim.AnnotateNearestStations(trips, stations)
		if err != nil {
			log.Fatalf("annotate stations error: %v", err)
		}
	}
	fleet := 0
	for _, s := range stations {
		fleet += len(s.VehicleIDs)
	}
	log.Printf("loaded %d trips, %d stations, fleet of %d vehicles", len(trips), len(stations), fleet)

	// Resolve the scenario set
	scenarios := []config.Scenario{cfg.DefaultScenario()}
	if cfg.ScenariosPath != "" {
		scenarios, err = config.LoadScenarios(cfg.ScenariosPath, cfg)
		if err != nil {
			log.Fatalf("scenarios error: %v", err)
		}
	}
	runs := make([]sim.RunOptions, len(scenarios))
	for i, sc := range scenarios {
		runs[i] = runOptions(sc)
	}

	// Run all scenarios; each owns its inventory, schedule and random source
	mgr := sim.NewManager(pub, mcol, nil)
	results, err := mgr.RunAll(ctx, runs, trips, stations)
	if err != nil {
		log.Fatalf("simulation error: %v", err)
	}

	// Persist outputs
	for _, r := range results {
		if r == nil {
			continue
		}
		if err := db.InsertModeLog(ctx, sqlDB, r.Name, r.Trips); err != nil {
			log.Fatalf("persist mode log for %q: %v", r.Name, err)
		}
		if err := db.InsertReservations(ctx, sqlDB, r.Name, r.Reservations); err != nil {
			log.Fatalf("persist reservations for %q: %v", r.Name, err)
		}
		log.Printf("scenario %q: persisted %d mode rows and %d reservations", r.Name, len(r.Trips), len(r.Reservations))
	}

	if metricsSrvCancel != nil {
		metricsSrvCancel()
	}
	log.Println("all scenarios complete")
}

func runOptions(sc config.Scenario) sim.RunOptions {
	return sim.RunOptions{
		Name: sc.Name,
		Seed: sc.Seed,
		Decision: sim.DecisionOptions{
			AvgDriveSpeedKmh: sc.AvgDriveSpeedKmh,
			BufferMinutes:    sc.DecisionBufferMin,
			PadMinutes:       sc.CorrectionPadMin,
		},
		Engine: sim.EngineOptions{DetourRatio: sc.StationDetourRatio},
		Reservation: sim.ReservationOptions{
			OnewayMeanHours: sc.OnewayRecoveryMeanH,
			OnewayStdHours:  sc.OnewayRecoveryStdH,
		},
		ShareProbability: sc.ShareProbability,
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
