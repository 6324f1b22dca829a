package predictor

import (
	"math/rand"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// Predictor maps a trip's features to a mode label. Implementations may wrap
// a trained classifier or apply a fixed heuristic; the engine depends only on
// this interface.
type Predictor interface {
	Predict(t *carshare.Trip) (carshare.Mode, error)
}

// Heuristic is a distance-based mode choice: a trip much shorter than the way
// to the nearest station is done by private car; otherwise car sharing is
// chosen with a fixed probability.
type Heuristic struct {
	rng *rand.Rand
	// ShareProbability is the chance of choosing car sharing when the
	// station detour is acceptable.
	ShareProbability float64
}

// NewHeuristic builds a heuristic predictor with its own random source, so
// concurrent scenario runs do not share state.
func NewHeuristic(rng *rand.Rand, shareProbability float64) *Heuristic {
	return &Heuristic{rng: rng, ShareProbability: shareProbability}
}

func (h *Heuristic) Predict(t *carshare.Trip) (carshare.Mode, error) {
	if t.Distance < 2*t.DistanceToStationOrigin {
		return carshare.ModeCar, nil
	}
	if h.rng.Float64() < h.ShareProbability {
		return carshare.ModeCarsharing, nil
	}
	return carshare.ModeCar, nil
}
