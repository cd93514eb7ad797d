// Package events publishes appointment lifecycle events for downstream
// consumers (reminders, analytics).
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/xid"
)

const (
	AppointmentBooked    = "appointment.booked"
	AppointmentConfirmed = "appointment.confirmed"
	AppointmentCancelled = "appointment.cancelled"
	AppointmentCompleted = "appointment.completed"
	AppointmentExpired   = "appointment.expired"
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, appt domain.Appointment) error
	Close() error
}

type Envelope struct {
	EventID     string             `json:"eventId"`
	EventType   string             `json:"eventType"`
	OccurredAt  time.Time          `json:"occurredAt"`
	Appointment domain.Appointment `json:"appointment"`
}

type KafkaPublisher struct {
	writer      *kafka.Writer
	topicPrefix string
	now         func() time.Time
}

func SplitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func NewKafkaPublisher(brokers []string, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
			WriteTimeout:           5 * time.Second,
		},
		topicPrefix: strings.TrimSuffix(strings.TrimSpace(topicPrefix), "."),
		now:         time.Now,
	}
}

// Topic maps an event type onto its topic, e.g. "barbershop.appointment.booked".
func (p *KafkaPublisher) Topic(eventType string) string {
	if p.topicPrefix == "" {
		return eventType
	}
	return p.topicPrefix + "." + eventType
}

func (p *KafkaPublisher) message(eventType string, appt domain.Appointment) (kafka.Message, error) {
	env := Envelope{
		EventID:     xid.New("evt"),
		EventType:   eventType,
		OccurredAt:  p.now().UTC(),
		Appointment: appt,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: p.Topic(eventType),
		Key:   []byte(appt.Phone),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, appt domain.Appointment) error {
	msg, err := p.message(eventType, appt)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (NoopPublisher) Publish(context.Context, string, domain.Appointment) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
