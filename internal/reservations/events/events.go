package events

import (
	"context"
	"time"

	"agenda/pkg/kafka"
	"agenda/pkg/model"
)

type Type string

const (
	TypeCreated   Type = "reservation.created"
	TypeCancelled Type = "reservation.cancelled"
	TypeUpdated   Type = "reservation.updated"
	TypeConfirmed Type = "reservation.confirmed"
	TypeExpired   Type = "reservation.expired"
	TypeRequested Type = "reservation.requested"
)

const schemaVersion = "1"

// Event describes one reservation lifecycle change.
type Event struct {
	Type        Type                   `json:"type"`
	Reservation model.ReservationView  `json:"reservation"`
	Previous    *model.ReservationView `json:"previous,omitempty"`
	At          time.Time              `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type producer interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher writes events keyed by reservation id so all events of one reservation
// land on the same partition in order.
type KafkaPublisher struct {
	producer producer
	source   string
}

func NewKafkaPublisher(p producer, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, source: source}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg := kafka.NewMessage().
		WithKey(e.Reservation.ID).
		WithEventType(string(e.Type)).
		WithSchemaVersion(schemaVersion).
		WithSource(k.source).
		WithTimestamp(e.At).
		WithValue(e).
		Build()
	return k.producer.Publish(ctx, msg)
}

// Recorder keeps published events in memory.
type Recorder struct {
	events chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

// Publish drops the event when the buffer is full.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.events <- e:
	default:
	}
	return nil
}

// Drain returns the buffered events in publish order.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
