package sim

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
	"github.com/mie-lab/car-sharing-simulator/internal/predictor"
)

// EngineOptions tune the mode-assignment pass.
type EngineOptions struct {
	// DetourRatio is the hard cutoff: when the distance to the pickup
	// station exceeds DetourRatio times the trip distance, car sharing is
	// overridden with a private car.
	DetourRatio float64
}

// DefaultEngineOptions returns the cutoff used for the published scenarios.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{DetourRatio: 0.5}
}

// EngineStats summarizes one mode-assignment pass.
type EngineStats struct {
	TripsProcessed int
	Borrows        int
	Returns        int
	HardCutoffs    int
	ModeCounts     map[carshare.Mode]int
}

// borrowSession is the open state of a person currently holding a shared
// vehicle: which vehicle, where it was picked up, and the location id of the
// pickup so "back at the origin" is recognized even when the nearest station
// id differs. A pickup without a known location id (the None sentinel) never
// matches by location.
type borrowSession struct {
	vehicle  int
	station  int
	location int64
}

// AssignModes runs the event loop over all trips in decision-time order. For
// every trip it drains due vehicle returns, forces the shared mode while the
// person holds a borrowed vehicle, and otherwise asks the predictor for a
// mode, applying the hard-cutoff override and borrowing a vehicle when car
// sharing wins. The input slice is not mutated; the result is sorted back to
// (person, activity index) order.
//
// Trips must already carry decision times (see DeriveDecisionTimes).
func AssignModes(trips []carshare.Trip, stations []carshare.Station, pred predictor.Predictor, opts EngineOptions) ([]carshare.Trip, EngineStats, error) {
	out := make([]carshare.Trip, len(trips))
	copy(out, trips)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DecisionTime.Before(out[j].DecisionTime)
	})

	inv := NewInventory(stations)
	sessions := make(map[int64]borrowSession)
	var sched returnScheduler
	stats := EngineStats{ModeCounts: make(map[carshare.Mode]int)}

	for i := range out {
		trip := &out[i]
		stats.Returns += sched.drainDue(trip.DecisionTime, inv)

		if sess, held := sessions[trip.PersonID]; held {
			// The person still holds a vehicle, so this leg is
			// necessarily a shared one.
			trip.Mode = carshare.ModeCarsharing
			trip.VehicleNo = sess.vehicle
			trip.StartStationNo = carshare.None
			closesAtPickup := sess.station == trip.ClosestStationDestination ||
				(sess.location != carshare.None && sess.location == trip.LocationIDDestination)
			if closesAtPickup {
				// Back at the pickup station or the pickup
				// location: the loan closes when the person
				// arrives, not at decision time.
				sched.schedule(trip.ArrivalTime, sess.station, sess.vehicle)
				delete(sessions, trip.PersonID)
				trip.EndStationNo = sess.station
			} else {
				// Vehicle keeps floating with the borrower.
				trip.EndStationNo = carshare.None
			}
			stats.ModeCounts[trip.Mode]++
			stats.TripsProcessed++
			if err := checkConservation(inv, sessions, &sched); err != nil {
				return nil, stats, err
			}
			continue
		}

		closest := trip.ClosestStationOrigin
		if closest == carshare.None || inv.Count(closest) < 1 {
			// Precomputed nearest station is empty; re-resolve among
			// stations that still have vehicles and overwrite the
			// trip's station fields for the predictor.
			if st, d, ok := inv.NearestAvailable(trip.OriginGeom); ok {
				closest = st
				trip.ClosestStationOrigin = st
				trip.DistanceToStationOrigin = d
			} else {
				closest = carshare.None
				trip.ClosestStationOrigin = carshare.None
				trip.DistanceToStationOrigin = math.NaN()
			}
		}

		mode, err := pred.Predict(trip)
		if err != nil {
			return nil, stats, fmt.Errorf("assign modes: predict trip %d: %w", trip.ID, err)
		}
		if _, known := carshare.KnownModes[mode]; !known {
			return nil, stats, fmt.Errorf("assign modes: predictor returned unknown mode %q for trip %d", mode, trip.ID)
		}

		// Hard cutoff: no absurd detour to reach a shared vehicle, and no
		// car sharing when the whole fleet is out. A NaN station distance
		// never exceeds the ratio, so the no-station check must be
		// explicit.
		if mode == carshare.ModeCarsharing &&
			(trip.DistanceToStationOrigin > trip.Distance*opts.DetourRatio || closest == carshare.None) {
			mode = carshare.ModeCar
			stats.HardCutoffs++
		}

		if mode == carshare.ModeCarsharing {
			veh, err := inv.Borrow(closest)
			if err != nil {
				return nil, stats, fmt.Errorf("assign modes: trip %d: %w", trip.ID, err)
			}
			sessions[trip.PersonID] = borrowSession{
				vehicle:  veh,
				station:  closest,
				location: trip.LocationIDOrigin,
			}
			trip.VehicleNo = veh
			trip.StartStationNo = closest
			trip.EndStationNo = carshare.None
			stats.Borrows++
		} else {
			trip.VehicleNo = carshare.None
			trip.StartStationNo = carshare.None
			trip.EndStationNo = carshare.None
		}
		trip.Mode = mode
		stats.ModeCounts[mode]++
		stats.TripsProcessed++

		if err := checkConservation(inv, sessions, &sched); err != nil {
			return nil, stats, err
		}
		if stats.TripsProcessed%1000 == 0 {
			log.Printf("assigned %d trips (decision time %s), mode share so far: %v",
				stats.TripsProcessed, trip.DecisionTime.Format("15:04:05"), stats.ModeCounts)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].ActivityIndex < out[j].ActivityIndex
	})
	return out, stats, nil
}

// checkConservation verifies that every vehicle is in exactly one place:
// parked, held by a borrower, or in transit to a scheduled return.
func checkConservation(inv *Inventory, sessions map[int64]borrowSession, sched *returnScheduler) error {
	got := inv.Available() + len(sessions) + sched.len()
	if got != inv.FleetSize() {
		return fmt.Errorf("vehicle conservation violated: %d parked + %d borrowed + %d pending returns != fleet of %d",
			inv.Available(), len(sessions), sched.len(), inv.FleetSize())
	}
	return nil
}
