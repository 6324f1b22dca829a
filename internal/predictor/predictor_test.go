package predictor

import (
	"math/rand"
	"testing"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

func TestHeuristicShortTripNeverShared(t *testing.T) {
	h := NewHeuristic(rand.New(rand.NewSource(1)), 1.0)
	trip := &carshare.Trip{Distance: 500, DistanceToStationOrigin: 400}
	for i := 0; i < 100; i++ {
		mode, err := h.Predict(trip)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if mode != carshare.ModeCar {
			t.Fatalf("mode = %q, want %q for a trip shorter than twice the station detour", mode, carshare.ModeCar)
		}
	}
}

func TestHeuristicShareProbabilityBounds(t *testing.T) {
	trip := &carshare.Trip{Distance: 5000, DistanceToStationOrigin: 100}

	always := NewHeuristic(rand.New(rand.NewSource(1)), 1.0)
	for i := 0; i < 100; i++ {
		mode, _ := always.Predict(trip)
		if mode != carshare.ModeCarsharing {
			t.Fatalf("probability 1.0: mode = %q, want %q", mode, carshare.ModeCarsharing)
		}
	}

	never := NewHeuristic(rand.New(rand.NewSource(1)), 0.0)
	for i := 0; i < 100; i++ {
		mode, _ := never.Predict(trip)
		if mode != carshare.ModeCar {
			t.Fatalf("probability 0.0: mode = %q, want %q", mode, carshare.ModeCar)
		}
	}
}
