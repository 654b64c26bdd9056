package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openfleet/partner-agent/go/internal/offer"
)

// ErrNotFound is returned when no accepted order exists for an id.
var ErrNotFound = errors.New("accepted order not found")

// PostgresRepository journals accepted orders in a local Postgres table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the journal table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accepted_orders (
			order_id        TEXT PRIMARY KEY,
			customer_name   TEXT NOT NULL DEFAULT '',
			customer_phone  TEXT NOT NULL DEFAULT '',
			earnings        DOUBLE PRECISION NOT NULL DEFAULT 0,
			distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
			pickup_address  TEXT NOT NULL DEFAULT '',
			dropoff_address TEXT NOT NULL DEFAULT '',
			pickup_lng      DOUBLE PRECISION,
			pickup_lat      DOUBLE PRECISION,
			description     TEXT NOT NULL DEFAULT '',
			accepted_at     TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure accepted_orders schema: %w", err)
	}
	return nil
}

// SaveAcceptedOrder upserts the journal row for an order.
func (r *PostgresRepository) SaveAcceptedOrder(ctx context.Context, order offer.AcceptedOrder) error {
	var lng, lat *float64
	if len(order.PickupCoordinates) == 2 {
		lng = &order.PickupCoordinates[0]
		lat = &order.PickupCoordinates[1]
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accepted_orders (
			order_id, customer_name, customer_phone, earnings, distance_km,
			pickup_address, dropoff_address, pickup_lng, pickup_lat,
			description, accepted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO UPDATE SET
			customer_name   = EXCLUDED.customer_name,
			customer_phone  = EXCLUDED.customer_phone,
			earnings        = EXCLUDED.earnings,
			distance_km     = EXCLUDED.distance_km,
			pickup_address  = EXCLUDED.pickup_address,
			dropoff_address = EXCLUDED.dropoff_address,
			pickup_lng      = EXCLUDED.pickup_lng,
			pickup_lat      = EXCLUDED.pickup_lat,
			description     = EXCLUDED.description,
			accepted_at     = EXCLUDED.accepted_at`,
		order.OrderID, order.CustomerName, order.CustomerPhone,
		order.Earnings, order.DistanceKm,
		order.Pickup.Address, order.Dropoff.Address,
		lng, lat, order.Description, order.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save accepted order: %w", err)
	}
	return nil
}

// GetAcceptedOrder fetches one journal row.
func (r *PostgresRepository) GetAcceptedOrder(ctx context.Context, orderID string) (*offer.AcceptedOrder, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT order_id, customer_name, customer_phone, earnings, distance_km,
		       pickup_address, dropoff_address, pickup_lng, pickup_lat,
		       description, accepted_at
		FROM accepted_orders WHERE order_id = $1`, orderID)
	order, err := scanAcceptedOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get accepted order: %w", err)
	}
	return order, nil
}

// LatestAcceptedOrders returns the most recent journal rows, newest first.
func (r *PostgresRepository) LatestAcceptedOrders(ctx context.Context, limit int) ([]offer.AcceptedOrder, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, customer_name, customer_phone, earnings, distance_km,
		       pickup_address, dropoff_address, pickup_lng, pickup_lat,
		       description, accepted_at
		FROM accepted_orders ORDER BY accepted_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accepted orders: %w", err)
	}
	defer rows.Close()

	var orders []offer.AcceptedOrder
	for rows.Next() {
		order, err := scanAcceptedOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accepted order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanAcceptedOrder(row pgx.Row) (*offer.AcceptedOrder, error) {
	var order offer.AcceptedOrder
	var lng, lat *float64
	err := row.Scan(
		&order.OrderID, &order.CustomerName, &order.CustomerPhone,
		&order.Earnings, &order.DistanceKm,
		&order.Pickup.Address, &order.Dropoff.Address,
		&lng, &lat, &order.Description, &order.AcceptedAt,
	)
	if err != nil {
		return nil, err
	}
	if lng != nil && lat != nil {
		order.PickupCoordinates = []float64{*lng, *lat}
	}
	return &order, nil
}

// MemoryRepository is the in-process journal used by library embeddings
// and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]offer.AcceptedOrder
}

// NewMemoryRepository creates an empty in-memory journal.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]offer.AcceptedOrder)}
}

// SaveAcceptedOrder upserts an order in the journal.
func (r *MemoryRepository) SaveAcceptedOrder(_ context.Context, order offer.AcceptedOrder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.OrderID] = order
	return nil
}

// GetAcceptedOrder fetches one order.
func (r *MemoryRepository) GetAcceptedOrder(_ context.Context, orderID string) (*offer.AcceptedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &order, nil
}

// LatestAcceptedOrders returns the most recent orders, newest first.
func (r *MemoryRepository) LatestAcceptedOrders(_ context.Context, limit int) ([]offer.AcceptedOrder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orders := make([]offer.AcceptedOrder, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].AcceptedAt.After(orders[j].AcceptedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}
