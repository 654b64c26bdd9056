package tracking

import (
	"context"

	"github.com/openfleet/partner-agent/go/internal/offer"
	"github.com/rs/zerolog/log"
)

// Repository defines what the app layer needs from the journal storage.
type Repository interface {
	SaveAcceptedOrder(ctx context.Context, order offer.AcceptedOrder) error
	GetAcceptedOrder(ctx context.Context, orderID string) (*offer.AcceptedOrder, error)
	LatestAcceptedOrders(ctx context.Context, limit int) ([]offer.AcceptedOrder, error)
}

// App is the downstream order-tracking context: it owns accepted orders
// once the arbitrator hands them off.
type App struct {
	repo Repository
}

// NewApp creates a tracking App over the given journal repository.
func NewApp(repo Repository) *App {
	return &App{repo: repo}
}

// HandleAccepted records an accepted order. This is the arbitrator's
// handoff target; journal failures are logged and swallowed because the
// backend already holds the accepted state and the partner must not be
// blocked on local persistence.
func (a *App) HandleAccepted(order offer.AcceptedOrder) {
	if err := a.repo.SaveAcceptedOrder(context.Background(), order); err != nil {
		log.Error().Err(err).Str("order_id", order.OrderID).
			Msg("failed to journal accepted order")
		return
	}
	log.Info().Str("order_id", order.OrderID).Msg("accepted order journaled")
}

// Latest returns the most recent accepted orders for the status surface.
func (a *App) Latest(ctx context.Context, limit int) ([]offer.AcceptedOrder, error) {
	return a.repo.LatestAcceptedOrders(ctx, limit)
}

// Get returns one accepted order by id.
func (a *App) Get(ctx context.Context, orderID string) (*offer.AcceptedOrder, error) {
	return a.repo.GetAcceptedOrder(ctx, orderID)
}
