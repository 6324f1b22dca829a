package sim

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// ReservationOptions tune the one-way correction of the reservation merger.
type ReservationOptions struct {
	// OnewayMeanHours and OnewayStdHours parametrize the normal
	// distribution of the synthetic recovery duration added to loans that
	// never closed before the end of the simulated day.
	OnewayMeanHours float64
	OnewayStdHours  float64
}

// DefaultReservationOptions match the recovery durations observed in
// operational data.
func DefaultReservationOptions() ReservationOptions {
	return ReservationOptions{OnewayMeanHours: 1.7, OnewayStdHours: 0.7}
}

// ReservationStats summarizes one merge pass.
type ReservationStats struct {
	MergePasses  int
	Reservations int
	OneWay       int
}

// DeriveReservations collapses consecutive shared legs of one continuous loan
// into bookings. Two adjacent legs merge when they belong to the same person,
// both are shared, use the same vehicle, and the vehicle was never parked at
// a station between them (earlier end station and later start station are
// both the "none" sentinel). Merges chain across any number of legs via a
// fixed-point propagation of per-leg merge targets.
//
// Trips must be in (person, activity index) order, as returned by AssignModes.
// The rng drives the one-way recovery durations; pass a seeded source for
// reproducible runs.
func DeriveReservations(trips []carshare.Trip, opts ReservationOptions, rng *rand.Rand) ([]carshare.Reservation, ReservationStats, error) {
	var stats ReservationStats
	if rng == nil {
		return nil, stats, errors.New("derive reservations: random source is required")
	}

	target, passes := mergeTargets(trips)
	stats.MergePasses = passes

	// Group shared legs by their final merge target, preserving order.
	groups := make(map[int][]int)
	var order []int
	for i, t := range trips {
		if t.Mode != carshare.ModeCarsharing {
			continue
		}
		if t.VehicleNo == carshare.None {
			return nil, stats, fmt.Errorf("derive reservations: shared leg %d of person %d has no vehicle", t.ID, t.PersonID)
		}
		g := target[i]
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], i)
	}

	res := make([]carshare.Reservation, 0, len(order))
	for n, g := range order {
		members := groups[g]
		first := trips[members[0]]
		last := trips[members[len(members)-1]]
		r := carshare.Reservation{
			ReservationNo:                n,
			PersonNo:                     first.PersonID,
			VehicleNo:                    first.VehicleNo,
			StartStationNo:               first.StartStationNo,
			EndStationNo:                 last.EndStationNo,
			ReservationFrom:              first.DecisionTime,
			ReservationTo:                last.ArrivalTime,
			DistanceToStationOrigin:      first.DistanceToStationOrigin,
			DistanceToStationDestination: last.DistanceToStationDestination,
		}
		for _, i := range members {
			r.TripIDs = append(r.TripIDs, trips[i].ID)
			r.Distance += trips[i].Distance
		}

		// One-way correction: the loan never closed before the horizon
		// ended, so model an eventual return after a recovery duration.
		if r.StartStationNo != r.EndStationNo {
			h := rng.NormFloat64()*opts.OnewayStdHours + opts.OnewayMeanHours
			if h < 0 {
				h = 0
			}
			r.ReservationTo = r.ReservationTo.Add(time.Duration(h * float64(time.Hour)))
			r.EndStationNo = r.StartStationNo
			stats.OneWay++
		}

		r.DriveKm = r.Distance / 1000
		r.DurationHours = r.ReservationTo.Sub(r.ReservationFrom).Hours()
		res = append(res, r)
	}
	stats.Reservations = len(res)
	if len(res) > 0 {
		log.Printf("derived %d reservations (%d one-way) in %d merge passes", len(res), stats.OneWay, passes)
	}
	return res, stats, nil
}

// mergeTargets runs the fixed-point merge propagation: every leg starts as
// its own target; whenever a leg and its immediate successor satisfy the
// merge condition, the leg adopts the successor's current target. Each pass
// works on a snapshot so chains propagate one hop per pass, and iteration
// stops when a full pass changes nothing.
func mergeTargets(trips []carshare.Trip) ([]int, int) {
	target := make([]int, len(trips))
	for i := range target {
		target[i] = i
	}
	passes := 0
	for changed := true; changed; {
		changed = false
		passes++
		snapshot := make([]int, len(target))
		copy(snapshot, target)
		for i := 0; i+1 < len(trips); i++ {
			if snapshot[i] == snapshot[i+1] {
				continue
			}
			if !mergeable(&trips[i], &trips[i+1]) {
				continue
			}
			target[i] = snapshot[i+1]
			changed = true
		}
	}
	return target, passes
}

// mergeable reports whether two adjacent legs belong to the same continuous
// loan.
func mergeable(a, b *carshare.Trip) bool {
	return a.PersonID == b.PersonID &&
		a.Mode == carshare.ModeCarsharing &&
		b.Mode == carshare.ModeCarsharing &&
		a.VehicleNo == b.VehicleNo &&
		a.EndStationNo == carshare.None &&
		b.StartStationNo == carshare.None
}
