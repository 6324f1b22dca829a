package sim

import (
	"testing"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// stubPredictor returns a fixed mode per trip id, defaulting to the private
// car.
type stubPredictor struct {
	modes map[int64]carshare.Mode
}

func (s *stubPredictor) Predict(t *carshare.Trip) (carshare.Mode, error) {
	if m, ok := s.modes[t.ID]; ok {
		return m, nil
	}
	return carshare.ModeCar, nil
}

func at(h, m int) time.Time {
	return time.Date(2020, 1, 20, h, m, 0, 0, time.UTC)
}

func TestAssignModesHardCutoff(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{7}},
	}
	trips := []carshare.Trip{{
		ID: 1, PersonID: 1, ActivityIndex: 1,
		DecisionTime: at(10, 0), ArrivalTime: at(10, 20),
		Distance:                1000,
		OriginGeom:              carshare.Point{X: 600, Y: 0},
		ClosestStationOrigin:    1,
		DistanceToStationOrigin: 600, // more than half the trip distance
	}}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.ModeCarsharing}}

	out, stats, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Mode != carshare.ModeCar {
		t.Fatalf("mode = %q, want %q", out[0].Mode, carshare.ModeCar)
	}
	if out[0].VehicleNo != carshare.None {
		t.Fatalf("vehicle = %d, want none", out[0].VehicleNo)
	}
	if stats.Borrows != 0 {
		t.Fatalf("borrows = %d, want 0 (inventory must stay untouched)", stats.Borrows)
	}
	if stats.HardCutoffs != 1 {
		t.Fatalf("hard cutoffs = %d, want 1", stats.HardCutoffs)
	}
}

func TestAssignModesBorrowCloseAndReuse(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{7}},
		{ID: 2, Geom: carshare.Point{X: 5000, Y: 0}, VehicleIDs: nil},
	}
	trips := []carshare.Trip{
		{
			// Person 1 borrows at station 1 and drives off.
			ID: 1, PersonID: 1, ActivityIndex: 1,
			DecisionTime: at(10, 0), ArrivalTime: at(10, 20),
			Distance:   5000,
			OriginGeom: carshare.Point{X: 10, Y: 0}, LocationIDOrigin: 100,
			ClosestStationOrigin: 1, DistanceToStationOrigin: 10,
			ClosestStationDestination: 2, LocationIDDestination: 200,
		},
		{
			// The return leg ends back at the pickup station.
			ID: 2, PersonID: 1, ActivityIndex: 2,
			DecisionTime: at(10, 30), ArrivalTime: at(10, 50),
			Distance:   5000,
			OriginGeom: carshare.Point{X: 5000, Y: 0}, LocationIDOrigin: 200,
			ClosestStationOrigin: 2, DistanceToStationOrigin: 0,
			ClosestStationDestination: 1, LocationIDDestination: 100,
		},
		{
			// Person 2 decides after the vehicle is back.
			ID: 3, PersonID: 2, ActivityIndex: 1,
			DecisionTime: at(11, 0), ArrivalTime: at(11, 30),
			Distance:   4000,
			OriginGeom: carshare.Point{X: 20, Y: 0}, LocationIDOrigin: 300,
			ClosestStationOrigin: 1, DistanceToStationOrigin: 20,
			ClosestStationDestination: 2, LocationIDDestination: 400,
		},
	}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{
		1: carshare.ModeCarsharing,
		3: carshare.ModeCarsharing,
	}}

	out, stats, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out[0].Mode != carshare.ModeCarsharing || out[0].VehicleNo != 7 {
		t.Fatalf("leg 1: mode %q vehicle %d, want shared vehicle 7", out[0].Mode, out[0].VehicleNo)
	}
	if out[0].StartStationNo != 1 || out[0].EndStationNo != carshare.None {
		t.Fatalf("leg 1: stations %d -> %d, want 1 -> none", out[0].StartStationNo, out[0].EndStationNo)
	}
	if out[1].Mode != carshare.ModeCarsharing || out[1].VehicleNo != 7 {
		t.Fatalf("leg 2: mode %q vehicle %d, want shared vehicle 7", out[1].Mode, out[1].VehicleNo)
	}
	if out[1].StartStationNo != carshare.None || out[1].EndStationNo != 1 {
		t.Fatalf("leg 2: stations %d -> %d, want none -> 1", out[1].StartStationNo, out[1].EndStationNo)
	}

	// The drained return makes vehicle 7 available again for person 2.
	if out[2].VehicleNo != 7 || out[2].StartStationNo != 1 {
		t.Fatalf("person 2: vehicle %d at station %d, want 7 at 1", out[2].VehicleNo, out[2].StartStationNo)
	}
	if stats.Returns != 1 || stats.Borrows != 2 {
		t.Fatalf("returns = %d borrows = %d, want 1 and 2", stats.Returns, stats.Borrows)
	}
}

func TestAssignModesClosesLoanByLocation(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{5}},
		{ID: 2, Geom: carshare.Point{X: 9000, Y: 0}, VehicleIDs: nil},
	}
	trips := []carshare.Trip{
		{
			ID: 1, PersonID: 1, ActivityIndex: 1,
			DecisionTime: at(9, 0), ArrivalTime: at(9, 30),
			Distance:   8000,
			OriginGeom: carshare.Point{X: 5, Y: 0}, LocationIDOrigin: 700,
			ClosestStationOrigin: 1, DistanceToStationOrigin: 5,
			ClosestStationDestination: 2, LocationIDDestination: 800,
		},
		{
			// Destination location id matches the pickup location even
			// though the nearest station differs.
			ID: 2, PersonID: 1, ActivityIndex: 2,
			DecisionTime: at(10, 0), ArrivalTime: at(10, 30),
			Distance:                  8000,
			ClosestStationDestination: 2, LocationIDDestination: 700,
		},
	}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.ModeCarsharing}}

	out, _, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[1].EndStationNo != 1 {
		t.Fatalf("loan not closed by location match: end station = %d, want 1", out[1].EndStationNo)
	}
}

func TestAssignModesUnknownLocationsDoNotCloseLoan(t *testing.T) {
	// Both the pickup and a later far-away destination lack a location id.
	// The matching sentinels must not pass for "back at the origin".
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{7}},
		{ID: 2, Geom: carshare.Point{X: 50000, Y: 0}, VehicleIDs: nil},
	}
	trips := []carshare.Trip{
		{
			ID: 1, PersonID: 1, ActivityIndex: 1,
			DecisionTime: at(10, 0), ArrivalTime: at(10, 40),
			Distance:   50000,
			OriginGeom: carshare.Point{X: 10, Y: 0}, LocationIDOrigin: carshare.None,
			ClosestStationOrigin: 1, DistanceToStationOrigin: 10,
			ClosestStationDestination: 2, LocationIDDestination: carshare.None,
		},
		{
			ID: 2, PersonID: 1, ActivityIndex: 2,
			DecisionTime: at(11, 0), ArrivalTime: at(11, 30),
			Distance:                  20000,
			ClosestStationDestination: 2, LocationIDDestination: carshare.None,
		},
	}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.ModeCarsharing}}

	out, stats, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[1].EndStationNo != carshare.None {
		t.Fatalf("loan closed at station %d, want it still floating", out[1].EndStationNo)
	}
	if stats.Returns != 0 {
		t.Fatalf("returns = %d, want 0 (vehicle must stay with the borrower)", stats.Returns)
	}
}

func TestAssignModesNearestAvailableRelookup(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: nil},
		{ID: 2, Geom: carshare.Point{X: 50, Y: 0}, VehicleIDs: []int{9}},
	}
	trips := []carshare.Trip{{
		ID: 1, PersonID: 1, ActivityIndex: 1,
		DecisionTime: at(8, 0), ArrivalTime: at(8, 30),
		Distance:   1000,
		OriginGeom: carshare.Point{X: 0, Y: 0}, LocationIDOrigin: 1,
		ClosestStationOrigin: 1, DistanceToStationOrigin: 0,
		ClosestStationDestination: 1, LocationIDDestination: 2,
	}}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.ModeCarsharing}}

	out, _, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].ClosestStationOrigin != 2 {
		t.Fatalf("closest station not re-resolved: %d, want 2", out[0].ClosestStationOrigin)
	}
	if out[0].DistanceToStationOrigin != 50 {
		t.Fatalf("station distance not overwritten: %v, want 50", out[0].DistanceToStationOrigin)
	}
	if out[0].VehicleNo != 9 || out[0].StartStationNo != 2 {
		t.Fatalf("vehicle %d at station %d, want 9 at 2", out[0].VehicleNo, out[0].StartStationNo)
	}
}

func TestAssignModesNoPhantomBorrow(t *testing.T) {
	// Fleet fully borrowed: the shared proposal must fall back to the car.
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: nil},
	}
	trips := []carshare.Trip{{
		ID: 1, PersonID: 1, ActivityIndex: 1,
		DecisionTime: at(8, 0), ArrivalTime: at(8, 30),
		Distance:             1000,
		OriginGeom:           carshare.Point{X: 0, Y: 0},
		ClosestStationOrigin: 1, DistanceToStationOrigin: 0,
	}}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.ModeCarsharing}}

	out, stats, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Mode != carshare.ModeCar {
		t.Fatalf("mode = %q, want %q", out[0].Mode, carshare.ModeCar)
	}
	if stats.HardCutoffs != 1 {
		t.Fatalf("hard cutoffs = %d, want 1", stats.HardCutoffs)
	}
}

func TestAssignModesReturnPrecedesReuse(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{7}},
		{ID: 2, Geom: carshare.Point{X: 5000, Y: 0}, VehicleIDs: nil},
	}
	trips := []carshare.Trip{
		{
			ID: 1, PersonID: 1, ActivityIndex: 1,
			DecisionTime: at(10, 0), ArrivalTime: at(10, 20),
			Distance:   5000,
			OriginGeom: carshare.Point{X: 10, Y: 0}, LocationIDOrigin: 100,
			ClosestStationOrigin: 1, DistanceToStationOrigin: 10,
			ClosestStationDestination: 2, LocationIDDestination: 200,
		},
		{
			ID: 2, PersonID: 1, ActivityIndex: 2,
			DecisionTime: at(10, 30), ArrivalTime: at(10, 50),
			Distance:                  5000,
			ClosestStationDestination: 1, LocationIDDestination: 100,
		},
		{
			// Person 2 decides before the scheduled return is due.
			ID: 3, PersonID: 2, ActivityIndex: 1,
			DecisionTime: at(10, 40), ArrivalTime: at(11, 0),
			Distance:   4000,
			OriginGeom: carshare.Point{X: 20, Y: 0},
			ClosestStationOrigin: 1, DistanceToStationOrigin: 20,
		},
	}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{
		1: carshare.ModeCarsharing,
		3: carshare.ModeCarsharing,
	}}

	out, _, err := AssignModes(trips, stations, pred, DefaultEngineOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[2].Mode != carshare.ModeCar {
		t.Fatalf("person 2 mode = %q, want %q (vehicle not yet returned)", out[2].Mode, carshare.ModeCar)
	}
	if out[2].VehicleNo != carshare.None {
		t.Fatalf("person 2 vehicle = %d, want none", out[2].VehicleNo)
	}
}

func TestAssignModesRejectsUnknownMode(t *testing.T) {
	stations := []carshare.Station{
		{ID: 1, Geom: carshare.Point{X: 0, Y: 0}, VehicleIDs: []int{7}},
	}
	trips := []carshare.Trip{{
		ID: 1, PersonID: 1, ActivityIndex: 1,
		DecisionTime: at(8, 0), ArrivalTime: at(8, 30),
		Distance:             1000,
		ClosestStationOrigin: 1, DistanceToStationOrigin: 0,
	}}
	pred := &stubPredictor{modes: map[int64]carshare.Mode{1: carshare.Mode("Mode::Teleport")}}

	if _, _, err := AssignModes(trips, stations, pred, DefaultEngineOptions()); err == nil {
		t.Fatal("expected error for unknown mode label")
	}
}
