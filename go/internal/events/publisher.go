package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Event types published on the local bus.
const (
	EventTypeOfferReceived = "OfferReceived"
	EventTypeOfferAccepted = "OfferAccepted"
	EventTypeOfferDeclined = "OfferDeclined"
	EventTypeOfferExpired  = "OfferExpired"
	EventTypeOrderAccepted = "OrderAccepted"
)

// NATS subjects. Offer lifecycle events go out per type; the accepted
// order handoff has its own subject for the tracking side of the app.
const (
	SubjectOfferPrefix   = "partner.offer."
	SubjectOrderAccepted = "partner.order.accepted"
)

// Envelope is the wire shape of every published event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	PartnerID string          `json:"partnerId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Config holds publisher configuration.
type Config struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default publisher configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher emits offer lifecycle and accepted-order events so other
// components of the client application (tracking UI, telemetry) can
// subscribe. A nil Publisher is valid and publishes nothing, so embedders
// without a local bus pay no cost. Publish failures are logged, never
// propagated: the pipeline's forward progress never depends on the bus.
type Publisher struct {
	nc        *nats.Conn
	partnerID string
}

// NewPublisher connects to the local NATS bus.
func NewPublisher(cfg Config, partnerID string) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("event bus disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to event bus: %w", err)
	}
	return &Publisher{nc: nc, partnerID: partnerID}, nil
}

// PublishOffer emits one offer lifecycle event.
func (p *Publisher) PublishOffer(eventType string, payload any) {
	p.publish(SubjectOfferPrefix+subjectSuffix(eventType), eventType, payload)
}

// PublishOrderAccepted emits the accepted-order handoff event.
func (p *Publisher) PublishOrderAccepted(payload any) {
	p.publish(SubjectOrderAccepted, EventTypeOrderAccepted, payload)
}

func (p *Publisher) publish(subject, eventType string, payload any) {
	if p == nil || p.nc == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}
	envelope := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		PartnerID: p.partnerID,
		Timestamp: time.Now(),
		Payload:   body,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event envelope")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		return
	}
	log.Debug().
		Str("subject", subject).
		Str("event_type", eventType).
		Str("event_id", envelope.EventID).
		Msg("event published")
}

// Close drains and closes the bus connection. Safe on a nil Publisher.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Flush(); err != nil {
		log.Warn().Err(err).Msg("event bus flush failed")
	}
	p.nc.Close()
}

func subjectSuffix(eventType string) string {
	switch eventType {
	case EventTypeOfferReceived:
		return "received"
	case EventTypeOfferAccepted:
		return "accepted"
	case EventTypeOfferDeclined:
		return "declined"
	case EventTypeOfferExpired:
		return "expired"
	default:
		return "unknown"
	}
}
