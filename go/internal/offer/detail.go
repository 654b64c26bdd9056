package offer

import (
	"time"
)

// OrderDetail is the backend's full order record, fetched after acceptance
// to enrich the locally-held offer.
type OrderDetail struct {
	ID       string  `json:"_id"`
	Price    float64 `json:"price"`
	Distance float64 `json:"distanceKm"`
	Customer struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer"`
	From struct {
		Address  string `json:"address"`
		Location *struct {
			Coordinates []float64 `json:"coordinates"` // [lng, lat]
		} `json:"location,omitempty"`
	} `json:"from"`
	To struct {
		Address string `json:"address"`
	} `json:"to"`
	VehicleType string `json:"vehicleType"`
}

// BuildAcceptedOrder constructs the handoff record from the original offer
// plus whatever detail hydration produced. detail may be nil (hydrate
// failed or timed out); every field falls back to the offer's own data so
// a slow enrichment call never blocks or degrades the accept.
func BuildAcceptedOrder(o Offer, detail *OrderDetail, acceptedAt time.Time) AcceptedOrder {
	accepted := AcceptedOrder{
		OrderID:     o.ID,
		Earnings:    o.Earnings,
		DistanceKm:  o.DistanceKm,
		Pickup:      o.Pickup,
		Dropoff:     o.Dropoff,
		Description: o.Description,
		AcceptedAt:  acceptedAt,
	}
	if detail == nil {
		return accepted
	}
	accepted.CustomerName = detail.Customer.Name
	accepted.CustomerPhone = detail.Customer.Phone
	if detail.Price > 0 {
		accepted.Earnings = detail.Price
	}
	if detail.Distance > 0 {
		accepted.DistanceKm = detail.Distance
	}
	if detail.From.Address != "" {
		accepted.Pickup = Endpoint{Address: detail.From.Address}
	}
	if detail.To.Address != "" {
		accepted.Dropoff = Endpoint{Address: detail.To.Address}
	}
	if detail.From.Location != nil && len(detail.From.Location.Coordinates) == 2 {
		accepted.PickupCoordinates = detail.From.Location.Coordinates
	}
	if detail.VehicleType != "" {
		accepted.Description = detail.VehicleType
	}
	return accepted
}
