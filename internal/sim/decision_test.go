package sim

import (
	"math"
	"testing"
	"time"

	"github.com/mie-lab/car-sharing-simulator/internal/carshare"
)

func TestDeriveDecisionTimesLeadTime(t *testing.T) {
	arrival := time.Date(2020, 1, 20, 10, 0, 0, 0, time.UTC)
	trips := []carshare.Trip{
		{ID: 1, PersonID: 1, ActivityIndex: 1, ArrivalTime: arrival, Distance: 25000},
	}

	out, err := DeriveDecisionTimes(trips, DefaultDecisionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 trip, got %d", len(out))
	}

	// 25 km at 50 km/h is 30 minutes, plus the 10 minute buffer
	want := arrival.Add(-40 * time.Minute)
	if !out[0].DecisionTime.Equal(want) {
		t.Fatalf("decision time = %v, want %v", out[0].DecisionTime, want)
	}
}

func TestDeriveDecisionTimesDropsZeroDistance(t *testing.T) {
	arrival := time.Date(2020, 1, 20, 10, 0, 0, 0, time.UTC)
	trips := []carshare.Trip{
		{ID: 1, PersonID: 1, ActivityIndex: 1, ArrivalTime: arrival, Distance: 0},
		{ID: 2, PersonID: 1, ActivityIndex: 2, ArrivalTime: arrival.Add(time.Hour), Distance: 1200},
	}

	out, err := DeriveDecisionTimes(trips, DefaultDecisionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected zero-distance trip to be dropped, got %d trips", len(out))
	}
	if out[0].ID != 2 {
		t.Fatalf("kept trip %d, want 2", out[0].ID)
	}
}

func TestDeriveDecisionTimesMissingDistance(t *testing.T) {
	trips := []carshare.Trip{
		{ID: 1, PersonID: 1, ActivityIndex: 1, ArrivalTime: time.Now(), Distance: math.NaN()},
	}
	if _, err := DeriveDecisionTimes(trips, DefaultDecisionOptions()); err == nil {
		t.Fatal("expected error for missing distance")
	}
}

func TestDeriveDecisionTimesCorrectsInversions(t *testing.T) {
	base := time.Date(2020, 1, 20, 10, 0, 0, 0, time.UTC)
	// The second trip's long distance pushes its approximate decision time
	// before the first trip's, which cannot happen in reality.
	trips := []carshare.Trip{
		{ID: 1, PersonID: 7, ActivityIndex: 1, ArrivalTime: base, Distance: 1000},
		{ID: 2, PersonID: 7, ActivityIndex: 2, ArrivalTime: base.Add(5 * time.Minute), Distance: 50000},
	}

	out, err := DeriveDecisionTimes(trips, DefaultDecisionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 trips, got %d", len(out))
	}

	want := out[0].DecisionTime.Add(2 * time.Minute)
	if !out[1].DecisionTime.Equal(want) {
		t.Fatalf("corrected decision time = %v, want previous + 2min = %v", out[1].DecisionTime, want)
	}
}

func TestDeriveDecisionTimesMonotonePerPerson(t *testing.T) {
	base := time.Date(2020, 1, 20, 6, 0, 0, 0, time.UTC)
	var trips []carshare.Trip
	// Cascading inversions across a longer chain require the fixed point.
	distances := []float64{500, 80000, 60000, 40000, 2000}
	for i, d := range distances {
		trips = append(trips, carshare.Trip{
			ID:            int64(i + 1),
			PersonID:      3,
			ActivityIndex: i + 1,
			ArrivalTime:   base.Add(time.Duration(i) * 10 * time.Minute),
			Distance:      d,
		})
	}
	// Another person interleaved; their times must not interact.
	trips = append(trips, carshare.Trip{
		ID: 99, PersonID: 4, ActivityIndex: 1,
		ArrivalTime: base, Distance: 90000,
	})

	out, err := DeriveDecisionTimes(trips, DefaultDecisionOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(out); i++ {
		if out[i].PersonID != out[i-1].PersonID {
			continue
		}
		if out[i-1].DecisionTime.After(out[i].DecisionTime) {
			t.Fatalf("decision times not monotone for person %d: %v > %v",
				out[i].PersonID, out[i-1].DecisionTime, out[i].DecisionTime)
		}
	}
}
