package carshare

import (
	"math"
	"time"
)

// None is the sentinel for "no station" / "no vehicle".
const None = -1

// Mode is a travel mode label. The vocabulary is closed: the engine rejects
// labels outside KnownModes.
type Mode string

const (
	ModeCarsharing Mode = "Mode::CarsharingMobility"
	ModeCar        Mode = "Mode::Car"
	ModeBicycle    Mode = "Mode::Bicycle"
	ModeBus        Mode = "Mode::Bus"
	ModeTrain      Mode = "Mode::Train"
	ModeTram       Mode = "Mode::Tram"
	ModeWalk       Mode = "Mode::Walk"
)

// KnownModes is the recognized mode vocabulary.
var KnownModes = map[Mode]struct{}{
	ModeCarsharing: {},
	ModeCar:        {},
	ModeBicycle:    {},
	ModeBus:        {},
	ModeTrain:      {},
	ModeTram:       {},
	ModeWalk:       {},
}

// Point is a location in projected planar coordinates (meters).
type Point struct {
	X float64
	Y float64
}

// DistanceTo returns the Euclidean distance between two points in meters.
func (p Point) DistanceTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Trip is one leg between two consecutive activities of a person.
// Upstream fields are immutable; the simulation fills DecisionTime, Mode,
// VehicleNo, StartStationNo and EndStationNo, and may overwrite the
// origin-station fields when it re-resolves the nearest available station.
type Trip struct {
	ID                    int64
	PersonID              int64
	ActivityIndex         int
	OriginGeom            Point
	DestinationGeom       Point
	LocationIDOrigin      int64
	LocationIDDestination int64
	// ArrivalTime is the start of the destination activity.
	ArrivalTime        time.Time
	Distance           float64 // meters between origin and destination
	PurposeOrigin      string
	PurposeDestination string
	// Features carries the feature vector consumed by trained mode-choice
	// models. The shipped heuristic only reads the named fields below.
	Features map[string]float64

	DistanceToStationOrigin      float64
	DistanceToStationDestination float64
	ClosestStationOrigin         int
	ClosestStationDestination    int

	DecisionTime   time.Time
	Mode           Mode
	VehicleNo      int
	StartStationNo int
	EndStationNo   int
}

// Station is a car-sharing station with its initial vehicle inventory.
type Station struct {
	ID         int
	Geom       Point
	VehicleIDs []int
}

// Reservation aggregates one continuous vehicle loan, possibly spanning
// several trip legs of the same person.
type Reservation struct {
	ReservationNo                int
	TripIDs                      []int64
	PersonNo                     int64
	VehicleNo                    int
	StartStationNo               int
	EndStationNo                 int
	ReservationFrom              time.Time
	ReservationTo                time.Time
	Distance                     float64 // meters driven over all legs
	DriveKm                      float64
	DurationHours                float64
	DistanceToStationOrigin      float64
	DistanceToStationDestination float64
}
