package sim

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
	mmetrics "github.com/mie-lab/car-sharing-simulator/internal/metrics"
	"github.com/mie-lab/car-sharing-simulator/internal/predictor"
	"github.com/mie-lab/car-sharing-simulator/internal/publisher"
)

// RunOptions are the parameters of one scenario run.
type RunOptions struct {
	Name             string
	Seed             int64
	Decision         DecisionOptions
	Engine           EngineOptions
	Reservation      ReservationOptions
	ShareProbability float64
}

// RunResult carries the outputs of one completed scenario run.
type RunResult struct {
	Name         string
	Trips        []carshare.Trip // mode-annotated, (person, activity index) order
	Reservations []carshare.Reservation
	Engine       EngineStats
	Merge        ReservationStats
	Elapsed      time.Duration
}

// PredictorFactory builds a mode predictor bound to a run's random source.
type PredictorFactory func(opts RunOptions, rng *rand.Rand) predictor.Predictor

// Manager executes scenario runs. Runs are independent: each owns its
// inventory, return schedule and random source, so they may execute
// concurrently; within a run processing is strictly sequential.
type Manager struct {
	pub          *publisher.NATSPublisher
	metrics      *mmetrics.Collector
	newPredictor PredictorFactory

	mu sync.Mutex
	wg sync.WaitGroup
}

func NewManager(pub *publisher.NATSPublisher, metrics *mmetrics.Collector, factory PredictorFactory) *Manager {
	if factory == nil {
		factory = func(opts RunOptions, rng *rand.Rand) predictor.Predictor {
			return predictor.NewHeuristic(rng, opts.ShareProbability)
		}
	}
	return &Manager{pub: pub, metrics: metrics, newPredictor: factory}
}

// Run executes a single scenario against the shared input tables. The inputs
// are never mutated, so several Runs may use them at once.
func (m *Manager) Run(ctx context.Context, opts RunOptions, trips []carshare.Trip, stations []carshare.Station) (*RunResult, error) {
	start := time.Now()
	if m.metrics != nil {
		m.metrics.RunsStarted.Inc()
	}
	log.Printf("scenario %q: starting with %d trips, %d stations, seed %d", opts.Name, len(trips), len(stations), opts.Seed)

	rng := rand.New(rand.NewSource(opts.Seed))

	derived, err := DeriveDecisionTimes(trips, opts.Decision)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assigned, estats, err := AssignModes(derived, stations, m.newPredictor(opts, rng), opts.Engine)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reservations, rstats, err := DeriveReservations(assigned, opts.Reservation, rng)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Name:         opts.Name,
		Trips:        assigned,
		Reservations: reservations,
		Engine:       estats,
		Merge:        rstats,
		Elapsed:      time.Since(start),
	}
	m.record(result)
	m.publish(result)
	log.Printf("scenario %q: %d trips assigned, %d reservations (%d one-way) in %s",
		opts.Name, estats.TripsProcessed, rstats.Reservations, rstats.OneWay, result.Elapsed)
	return result, nil
}

// RunAll executes all scenarios concurrently and returns their results in
// input order. A failed run does not cancel the others; the first error is
// reported once every run has finished.
func (m *Manager) RunAll(ctx context.Context, runs []RunOptions, trips []carshare.Trip, stations []carshare.Station) ([]*RunResult, error) {
	results := make([]*RunResult, len(runs))
	errs := make([]error, len(runs))
	for i, opts := range runs {
		m.wg.Add(1)
		go func(i int, opts RunOptions) {
			defer m.wg.Done()
			res, err := m.Run(ctx, opts, trips, stations)
			m.mu.Lock()
			results[i], errs[i] = res, err
			m.mu.Unlock()
		}(i, opts)
	}
	m.wg.Wait()
	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (m *Manager) record(r *RunResult) {
	if m.metrics == nil {
		return
	}
	m.metrics.RunsFinished.Inc()
	m.metrics.TripsProcessed.Add(float64(r.Engine.TripsProcessed))
	m.metrics.VehiclesBorrowed.Add(float64(r.Engine.Borrows))
	m.metrics.VehiclesReturned.Add(float64(r.Engine.Returns))
	m.metrics.HardCutoffs.Add(float64(r.Engine.HardCutoffs))
	m.metrics.Reservations.Add(float64(r.Merge.Reservations))
	m.metrics.OneWayReservations.Add(float64(r.Merge.OneWay))
	m.metrics.MergePasses.Observe(float64(r.Merge.MergePasses))
	m.metrics.RunDuration.Observe(r.Elapsed.Seconds())
	for mode, n := range r.Engine.ModeCounts {
		m.metrics.ModeAssignments.WithLabelValues(string(mode)).Add(float64(n))
	}
}

func (m *Manager) publish(r *RunResult) {
	if m.pub == nil {
		return
	}
	for _, res := range r.Reservations {
		if err := m.pub.PublishReservation(r.Name, publisher.ReservationMessage{
			ReservationNo:  res.ReservationNo,
			TripIDs:        res.TripIDs,
			PersonNo:       res.PersonNo,
			VehicleNo:      res.VehicleNo,
			StartStationNo: res.StartStationNo,
			EndStationNo:   res.EndStationNo,
			From:           res.ReservationFrom,
			To:             res.ReservationTo,
			DriveKm:        res.DriveKm,
			DurationHours:  res.DurationHours,
		}); err != nil {
			log.Printf("scenario %q: publish reservation %d: %v", r.Name, res.ReservationNo, err)
		}
	}
	share := make(map[string]int, len(r.Engine.ModeCounts))
	for mode, n := range r.Engine.ModeCounts {
		share[string(mode)] = n
	}
	if err := m.pub.PublishRunSummary(r.Name, publisher.RunSummaryMessage{
		Scenario:     r.Name,
		Trips:        r.Engine.TripsProcessed,
		Reservations: r.Merge.Reservations,
		OneWay:       r.Merge.OneWay,
		ModeShare:    share,
		ElapsedSec:   r.Elapsed.Seconds(),
	}); err != nil {
		log.Printf("scenario %q: publish run summary: %v", r.Name, err)
	}
}
