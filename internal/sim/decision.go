package sim

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

// DecisionOptions control the travel-time approximation used to derive the
// instant a person commits to a mode for an upcoming trip.
type DecisionOptions struct {
	AvgDriveSpeedKmh float64 // average driving speed for the approximation
	BufferMinutes    float64 // fixed deliberation time before departure
	PadMinutes       float64 // padding applied when resolving ordering inversions
}

// DefaultDecisionOptions mirror the parameters the reservation data was
// generated with.
func DefaultDecisionOptions() DecisionOptions {
	return DecisionOptions{AvgDriveSpeedKmh: 50, BufferMinutes: 10, PadMinutes: 2}
}

// DeriveDecisionTimes annotates every trip with its mode-decision time:
// arrival time minus the approximate drive duration and a deliberation buffer.
// Trips with non-positive distance represent repeated activities and are
// dropped. Because the drive time is only an approximation, a trip's decision
// time can end up before the previous decision of the same person; those
// inversions are resolved by resetting the offending time to the previous
// decision plus PadMinutes, repeated to a fixed point.
//
// The returned slice is sorted by (person, activity index) and decision times
// are non-decreasing within each person.
func DeriveDecisionTimes(trips []carshare.Trip, opts DecisionOptions) ([]carshare.Trip, error) {
	if opts.AvgDriveSpeedKmh <= 0 {
		return nil, fmt.Errorf("derive decision times: invalid average drive speed %v", opts.AvgDriveSpeedKmh)
	}

	out := make([]carshare.Trip, 0, len(trips))
	for _, t := range trips {
		if math.IsNaN(t.Distance) {
			return nil, fmt.Errorf("derive decision times: trip %d of person %d has no distance; distances between geometries must be computed first", t.ID, t.PersonID)
		}
		if t.Distance <= 0 {
			continue
		}
		driveMinutes := 60 * t.Distance / (1000 * opts.AvgDriveSpeedKmh)
		lead := time.Duration((driveMinutes + opts.BufferMinutes) * float64(time.Minute))
		t.DecisionTime = t.ArrivalTime.Add(-lead)
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return out[i].ActivityIndex < out[j].ActivityIndex
	})

	pad := time.Duration(opts.PadMinutes * float64(time.Minute))
	for changed := true; changed; {
		changed = false
		for i := 1; i < len(out); i++ {
			if out[i].PersonID != out[i-1].PersonID {
				continue
			}
			if out[i-1].DecisionTime.After(out[i].DecisionTime) {
				out[i].DecisionTime = out[i-1].DecisionTime.Add(pad)
				changed = true
			}
		}
	}

	return out, nil
}
