package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// Inventory tracks which vehicles are parked at which station. It is the
// single piece of shared state mutated during a simulation run; each run owns
// its own Inventory.
type Inventory struct {
	vehicles map[int][]int
	geoms    map[int]carshare.Point
	fleet    int
}

// NewInventory builds an inventory from a station scenario. Vehicle lists are
// copied; the scenario is not mutated.
func NewInventory(stations []carshare.Station) *Inventory {
	inv := &Inventory{
		vehicles: make(map[int][]int, len(stations)),
		geoms:    make(map[int]carshare.Point, len(stations)),
	}
	for _, s := range stations {
		ids := make([]int, len(s.VehicleIDs))
		copy(ids, s.VehicleIDs)
		inv.vehicles[s.ID] = ids
		inv.geoms[s.ID] = s.Geom
		inv.fleet += len(ids)
	}
	return inv
}

// Count returns the number of vehicles currently parked at a station.
func (inv *Inventory) Count(station int) int {
	return len(inv.vehicles[station])
}

// Available returns the total number of parked vehicles over all stations.
func (inv *Inventory) Available() int {
	n := 0
	for _, ids := range inv.vehicles {
		n += len(ids)
	}
	return n
}

// FleetSize returns the total number of vehicles assigned at initialization.
// It never changes over a run.
func (inv *Inventory) FleetSize() int {
	return inv.fleet
}

// Borrow removes and returns one vehicle from the station. The caller must
// have verified availability; an empty or unknown station is an invariant
// violation, not a recoverable condition.
func (inv *Inventory) Borrow(station int) (int, error) {
	ids, ok := inv.vehicles[station]
	if !ok {
		return carshare.None, fmt.Errorf("borrow: unknown station %d", station)
	}
	if len(ids) == 0 {
		return carshare.None, fmt.Errorf("borrow: station %d has no vehicles", station)
	}
	veh := ids[len(ids)-1]
	inv.vehicles[station] = ids[:len(ids)-1]
	return veh, nil
}

// Return puts a vehicle back into the station's inventory.
func (inv *Inventory) Return(station, vehicle int) {
	inv.vehicles[station] = append(inv.vehicles[station], vehicle)
}

// NearestAvailable returns the station with at least one vehicle whose
// location is closest to p, together with the distance. ok is false when the
// whole fleet is borrowed.
func (inv *Inventory) NearestAvailable(p carshare.Point) (station int, distance float64, ok bool) {
	best := carshare.None
	bestDist := math.MaxFloat64
	for id, ids := range inv.vehicles {
		if len(ids) == 0 {
			continue
		}
		d := inv.geoms[id].DistanceTo(p)
		if d < bestDist || (d == bestDist && (best == carshare.None || id < best)) {
			best = id
			bestDist = d
		}
	}
	if best == carshare.None {
		return carshare.None, math.NaN(), false
	}
	return best, bestDist, true
}

// scheduledReturn is a vehicle due back at a station at a given time.
type scheduledReturn struct {
	due     time.Time
	station int
	vehicle int
}

// returnScheduler keeps pending vehicle returns ordered by due time, ties in
// insertion order.
type returnScheduler struct {
	pending []scheduledReturn
}

func (rs *returnScheduler) schedule(due time.Time, station, vehicle int) {
	rs.pending = append(rs.pending, scheduledReturn{due: due, station: station, vehicle: vehicle})
	sort.SliceStable(rs.pending, func(i, j int) bool {
		return rs.pending[i].due.Before(rs.pending[j].due)
	})
}

// drainDue applies every pending return with due time <= now to the inventory,
// in increasing time order, and reports how many were returned.
func (rs *returnScheduler) drainDue(now time.Time, inv *Inventory) int {
	n := 0
	for _, r := range rs.pending {
		if r.due.After(now) {
			break
		}
		inv.Return(r.station, r.vehicle)
		n++
	}
	rs.pending = rs.pending[n:]
	return n
}

func (rs *returnScheduler) len() int { return len(rs.pending) }
