package offer

import (
	"time"
)

// Raw payload shapes for the two delivery channels. The push and poll
// contracts carry the same data under different field names, so each gets
// its own normalizer producing the one canonical Offer type.

// PushAssignment is the payload of an `order-assigned` socket event.
type PushAssignment struct {
	OrderID     string    `json:"orderId"`
	Price       float64   `json:"price"`
	DistanceKm  float64   `json:"distanceKm"`
	From        *Endpoint `json:"from,omitempty"`
	To          *Endpoint `json:"to,omitempty"`
	VehicleType string    `json:"vehicleType"`
	At          time.Time `json:"at"`
}

// PolledOrder is one element of the assigned-orders polling response.
type PolledOrder struct {
	ID          string    `json:"_id"`
	Price       float64   `json:"price"`
	DistanceKm  float64   `json:"distanceKm"`
	From        *Endpoint `json:"from,omitempty"`
	To          *Endpoint `json:"to,omitempty"`
	VehicleType string    `json:"vehicleType"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromPush normalizes a socket assignment event. OfferedAt is stamped with
// the arbitrator's clock, not the backend event time, so the response
// window is measured from when this client actually learned of the job.
func FromPush(raw PushAssignment, now time.Time) Offer {
	return Offer{
		ID:          raw.OrderID,
		Earnings:    nonNegative(raw.Price),
		DistanceKm:  nonNegative(raw.DistanceKm),
		Pickup:      endpointOrPlaceholder(raw.From),
		Dropoff:     endpointOrPlaceholder(raw.To),
		Description: descriptionOrDefault(raw.VehicleType),
		OfferedAt:   now,
		Source:      SourcePush,
	}
}

// FromPoll normalizes one polled assigned-but-unconfirmed order.
func FromPoll(raw PolledOrder, now time.Time) Offer {
	return Offer{
		ID:          raw.ID,
		Earnings:    nonNegative(raw.Price),
		DistanceKm:  nonNegative(raw.DistanceKm),
		Pickup:      endpointOrPlaceholder(raw.From),
		Dropoff:     endpointOrPlaceholder(raw.To),
		Description: descriptionOrDefault(raw.VehicleType),
		OfferedAt:   now,
		Source:      SourcePoll,
	}
}

func endpointOrPlaceholder(e *Endpoint) Endpoint {
	if e == nil || e.Address == "" {
		return Endpoint{Address: PlaceholderAddress}
	}
	return Endpoint{Address: e.Address}
}

func descriptionOrDefault(vehicleType string) string {
	if vehicleType == "" {
		return DefaultDescription
	}
	return vehicleType
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
