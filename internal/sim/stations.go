package sim

import (
	"errors"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// AnnotateNearestStations fills the nearest-station fields of every trip
// against a station scenario, for both the origin and the destination point.
// It is needed whenever the station scenario differs from the one the trip
// features were computed with; the engine later overwrites the origin fields
// when the nearest station runs out of vehicles.
func AnnotateNearestStations(trips []carshare.Trip, stations []carshare.Station) ([]carshare.Trip, error) {
	if len(stations) == 0 {
		return nil, errors.New("annotate stations: station scenario is empty")
	}
	out := make([]carshare.Trip, len(trips))
	copy(out, trips)
	for i := range out {
		t := &out[i]
		t.ClosestStationOrigin, t.DistanceToStationOrigin = nearestStation(stations, t.OriginGeom)
		t.ClosestStationDestination, t.DistanceToStationDestination = nearestStation(stations, t.DestinationGeom)
	}
	return out, nil
}

func nearestStation(stations []carshare.Station, p carshare.Point) (int, float64) {
	best := stations[0].ID
	bestDist := stations[0].Geom.DistanceTo(p)
	for _, s := range stations[1:] {
		if d := s.Geom.DistanceTo(p); d < bestDist {
			best = s.ID
			bestDist = d
		}
	}
	return best, bestDist
}
