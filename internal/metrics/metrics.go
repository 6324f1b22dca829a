package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RunsStarted  prometheus.Counter
	RunsFinished prometheus.Counter

	TripsProcessed   prometheus.Counter
	VehiclesBorrowed prometheus.Counter
	VehiclesReturned prometheus.Counter
	HardCutoffs      prometheus.Counter

	ModeAssignments *prometheus.CounterVec // mode label

	Reservations       prometheus.Counter
	OneWayReservations prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	MergePasses     prometheus.Histogram
	RunDuration     prometheus.Histogram
	PublishDuration prometheus.Histogram

	AvgDriveSpeed prometheus.Gauge
	DetourRatio   prometheus.Gauge
}

func NewCollector(avgDriveSpeedKmh, detourRatio float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_runs_started_total",
			Help: "Total scenario runs started.",
		}),
		RunsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_runs_finished_total",
			Help: "Total scenario runs finished.",
		}),
		TripsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_trips_processed_total",
			Help: "Total trip events processed by the mode assignment engine.",
		}),
		VehiclesBorrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_vehicles_borrowed_total",
			Help: "Total vehicle borrow operations.",
		}),
		VehiclesReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_vehicles_returned_total",
			Help: "Total scheduled vehicle returns drained into station inventories.",
		}),
		HardCutoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_hard_cutoffs_total",
			Help: "Times a proposed car-sharing mode was overridden with a private car.",
		}),
		ModeAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_mode_assignments_total",
			Help: "Assigned modes.",
		}, []string{"mode"}),
		Reservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_reservations_total",
			Help: "Total reservations derived.",
		}),
		OneWayReservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_oneway_reservations_total",
			Help: "Reservations that needed the one-way recovery correction.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simulator_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		MergePasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_merge_passes",
			Help:    "Fixed-point passes needed by the reservation merger.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_run_duration_seconds",
			Help:    "Duration of a full scenario run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		AvgDriveSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_avg_drive_speed_kmh",
			Help: "Average drive speed used for decision time derivation.",
		}),
		DetourRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_station_detour_ratio",
			Help: "Hard cutoff ratio of station distance to trip distance.",
		}),
	}

	// Register
	reg.MustRegister(
		c.RunsStarted, c.RunsFinished,
		c.TripsProcessed, c.VehiclesBorrowed, c.VehiclesReturned, c.HardCutoffs,
		c.ModeAssignments,
		c.Reservations, c.OneWayReservations,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.MergePasses, c.RunDuration, c.PublishDuration,
		c.AvgDriveSpeed, c.DetourRatio,
	)

	c.AvgDriveSpeed.Set(avgDriveSpeedKmh)
	c.DetourRatio.Set(detourRatio)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
