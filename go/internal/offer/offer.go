package offer

import (
	"time"
)

// Source identifies which channel delivered an offer.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// State defines the lifecycle state of the arbitrator.
type State string

const (
	StateIdle State = "IDLE"
	StateLive State = "LIVE"
	// StateAccepting covers the window between the partner's accept and
	// the backend commit resolving. The gate stays shut: no new offer can
	// go live and the claimed offer can no longer be declined.
	StateAccepting State = "ACCEPTING"
)

// Outcome is the terminal result of a single live offer.
type Outcome string

const (
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeDeclined Outcome = "DECLINED"
	OutcomeExpired  Outcome = "EXPIRED"
)

// PlaceholderAddress is shown when the backend has not resolved an address yet.
const PlaceholderAddress = "—"

// DefaultDescription is used when the payload carries no vehicle/parcel summary.
const DefaultDescription = "Delivery"

// Endpoint is one end of a delivery leg.
type Endpoint struct {
	Address string `json:"address"`
}

// Offer is a candidate delivery job surfaced to exactly one partner
// with a bounded response window.
type Offer struct {
	ID          string    `json:"id"`
	Earnings    float64   `json:"earnings"`
	DistanceKm  float64   `json:"distance_km"`
	Pickup      Endpoint  `json:"pickup"`
	Dropoff     Endpoint  `json:"dropoff"`
	Description string    `json:"description"`
	OfferedAt   time.Time `json:"offered_at"`
	Source      Source    `json:"source"`
}

// AcceptedOrder is the hydrated detail of an offer the partner accepted.
// Owned by the downstream tracking context once handed off.
type AcceptedOrder struct {
	OrderID           string    `json:"order_id"`
	CustomerName      string    `json:"customer_name"`
	CustomerPhone     string    `json:"customer_phone"`
	Earnings          float64   `json:"earnings"`
	DistanceKm        float64   `json:"distance_km"`
	Pickup            Endpoint  `json:"pickup"`
	Dropoff           Endpoint  `json:"dropoff"`
	PickupCoordinates []float64 `json:"pickup_coordinates,omitempty"` // [lng, lat]
	Description       string    `json:"description"`
	AcceptedAt        time.Time `json:"accepted_at"`
}
