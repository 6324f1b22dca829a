package publisher

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSPublisher struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("car-sharing-simulator"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// ReservationMessage is one synthetic booking emitted by a scenario run.
type ReservationMessage struct {
	ReservationNo  int       `json:"reservationNo"`
	TripIDs        []int64   `json:"tripIds"`
	PersonNo       int64     `json:"personNo"`
	VehicleNo      int       `json:"vehicleNo"`
	StartStationNo int       `json:"startStationNo"`
	EndStationNo   int       `json:"endStationNo"`
	From           time.Time `json:"reservationFrom"`
	To             time.Time `json:"reservationTo"`
	DriveKm        float64   `json:"driveKm"`
	DurationHours  float64   `json:"durationHours"`
}

// RunSummaryMessage closes a scenario run with its aggregate counters.
type RunSummaryMessage struct {
	Scenario     string         `json:"scenario"`
	Trips        int            `json:"trips"`
	Reservations int            `json:"reservations"`
	OneWay       int            `json:"oneWay"`
	ModeShare    map[string]int `json:"modeShare"`
	ElapsedSec   float64        `json:"elapsedSec"`
}

func (p *NATSPublisher) PublishReservation(scenario string, msg ReservationMessage) error {
	subject := fmt.Sprintf("reservations.%s.%d", subjectToken(scenario), msg.VehicleNo)
	return p.publish(subject, msg)
}

func (p *NATSPublisher) PublishRunSummary(scenario string, msg RunSummaryMessage) error {
	subject := fmt.Sprintf("runs.%s.summary", subjectToken(scenario))
	return p.publish(subject, msg)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
