package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/craftisan/marketplace/internal/domain"
)

// ErrSessionAlreadyProcessed means the checkout session referenced by the
// order was already converted to an order. The unique constraint on
// checkout_session_id makes the check-then-insert race-free: redelivered
// webhooks fail the insert instead of duplicating the order.
var ErrSessionAlreadyProcessed = errors.New("checkout session already converted to an order")

const sessionUniqueConstraint = "orders_checkout_session_id_key"

// NewOrderNumber generates a globally unique human-facing order reference.
func NewOrderNumber() string {
	return uuid.NewString()
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order header and all its items as one transaction.
// Either everything is durable or nothing is; a failing item insert rolls
// back the header too.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	var sessionID sql.NullString
	if order.CheckoutSessionID != "" {
		sessionID = sql.NullString{String: order.CheckoutSessionID, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, user_id, total_amount, shipping_address, payment_status, checkout_session_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`, order.OrderNumber, order.UserID, order.TotalAmount, shipping, order.PaymentStatus, sessionID, order.Notes, now).Scan(&order.ID)
	if err != nil {
		if isUniqueViolation(err, sessionUniqueConstraint) {
			return ErrSessionAlreadyProcessed
		}
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		var customization []byte
		if item.Customization != nil {
			customization, err = json.Marshal(item.Customization)
			if err != nil {
				return fmt.Errorf("marshal customization: %w", err)
			}
		}

		var designID sql.NullInt64
		if item.DesignID != nil {
			designID = sql.NullInt64{Int64: *item.DesignID, Valid: true}
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, design_id, quantity, unit_price, customization, artist_commission)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, order.ID, item.ProductID, designID, item.Quantity, item.UnitPrice, customization, item.ArtistCommission).Scan(&item.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	orders, err := r.list(ctx, "WHERE o.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return r.list(ctx, "WHERE o.user_id = $1", userID)
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, "")
}

func (r *OrderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT o.id, o.order_number, o.user_id, o.total_amount, o.shipping_address,
		       o.payment_status, COALESCE(o.checkout_session_id, ''), COALESCE(o.notes, ''),
		       o.created_at, o.updated_at
		FROM orders o
		%s
		ORDER BY o.created_at DESC
	`, where), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		var shipping []byte
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.UserID, &order.TotalAmount, &shipping,
			&order.PaymentStatus, &order.CheckoutSessionID, &order.Notes, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address for order %d: %w", order.ID, err)
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, design_id, quantity, unit_price, customization, artist_commission
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		var designID sql.NullInt64
		var customization []byte
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &designID,
			&item.Quantity, &item.UnitPrice, &customization, &item.ArtistCommission); err != nil {
			return nil, err
		}
		if designID.Valid {
			item.DesignID = &designID.Int64
		}
		if len(customization) > 0 {
			if err := json.Unmarshal(customization, &item.Customization); err != nil {
				return nil, fmt.Errorf("unmarshal customization for item %d: %w", item.ID, err)
			}
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}
