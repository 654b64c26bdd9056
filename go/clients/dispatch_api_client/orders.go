package dispatch_api_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openfleet/partner-agent/go/internal/offer"
)

// AssignedOrders fetches the partner's assigned-but-unconfirmed orders,
// newest first.
func (c *DispatchApiClient) AssignedOrders(ctx context.Context, partnerID string) ([]offer.PolledOrder, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/partners/%s/orders?status=assigned", partnerID))
	if err != nil {
		return nil, fmt.Errorf("fetch assigned orders: %w", err)
	}

	var orders []offer.PolledOrder
	if err := json.Unmarshal(body, &orders); err != nil {
		return nil, fmt.Errorf("decode assigned orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus transitions an order's status, e.g. to "accepted".
func (c *DispatchApiClient) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("encode status update: %w", err)
	}
	if _, err := c.patch(ctx, fmt.Sprintf("/api/orders/%s/status", orderID), payload); err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// GetOrder fetches the full order record, including resolved customer
// detail and pickup coordinates when available.
func (c *DispatchApiClient) GetOrder(ctx context.Context, orderID string) (*offer.OrderDetail, error) {
	body, err := c.get(ctx, fmt.Sprintf("/api/orders/%s", orderID))
	if err != nil {
		return nil, fmt.Errorf("fetch order: %w", err)
	}

	var detail offer.OrderDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &detail, nil
}
