package resolver

import (
	"context"

	"github.com/openfleet/partner-agent/go/internal/offer"
)

// StatusAccepted is the backend order status committed on accept.
const StatusAccepted = "accepted"

// DispatchClient is the slice of the dispatch REST client the resolver needs.
type DispatchClient interface {
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	GetOrder(ctx context.Context, orderID string) (*offer.OrderDetail, error)
}

// Resolver commits accept decisions and hydrates order detail. A commit
// failure surfaces only as an error for the caller to log: the backend is
// the source of truth and the partner is never held mid-offer over a
// transient network blip.
type Resolver struct {
	client DispatchClient
}

// New creates a resolver over the dispatch client.
func New(client DispatchClient) *Resolver {
	return &Resolver{client: client}
}

// CommitAccept transitions the order to accepted.
func (r *Resolver) CommitAccept(ctx context.Context, orderID string) error {
	return r.client.UpdateOrderStatus(ctx, orderID, StatusAccepted)
}

// Hydrate fetches full order detail for post-accept enrichment.
func (r *Resolver) Hydrate(ctx context.Context, orderID string) (*offer.OrderDetail, error) {
	return r.client.GetOrder(ctx, orderID)
}
