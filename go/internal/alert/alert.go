package alert

import (
	"context"

	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/rs/zerolog/log"
)

// Alerter is the alerting port: given a live offer, produce an
// audible/vibration/visual alert. Implementations swallow their own
// failures; the arbitration gate, not the alert, is the dedup point.
type Alerter interface {
	TriggerOrderAlert(ctx context.Context, o offer.Offer) error
}

// LogAlerter is the default implementation for headless embeddings: it
// records the alert so the surrounding application's notification layer
// can surface it.
type LogAlerter struct{}

// NewLogAlerter returns the logging alerter.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// TriggerOrderAlert logs the new-offer alert. Never returns an error.
func (a *LogAlerter) TriggerOrderAlert(_ context.Context, o offer.Offer) error {
	log.Info().
		Str("order_id", o.ID).
		Float64("earnings", o.Earnings).
		Str("pickup", o.Pickup.Address).
		Msg("new order alert")
	return nil
}
