package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront/internal/models"

	"github.com/jackc/pgx/v5"
)

const orderColumns = `
	id::text, user_id::text, customer_name, email, phone, address,
	delivery_type_id, delivery_price, total, payment_method, payment_status,
	status, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders (
			id, user_id, customer_name, email, phone, address,
			delivery_type_id, delivery_price, total, payment_method,
			payment_status, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at
	`,
		order.ID,
		order.UserID,
		order.CustomerName,
		order.Email,
		order.Phone,
		order.Address,
		order.DeliveryTypeID,
		order.DeliveryPrice,
		order.Total,
		order.PaymentMethod,
		order.PaymentStatus,
		order.Status,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range order.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, line, product_id, name, price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, order.ID, i+1, it.ProductID, it.Name, it.Price, it.Quantity); err != nil {
			return fmt.Errorf("insert order item %d: %w", i+1, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if !validID(orderID) {
		return nil, ErrNotFound
	}
	order, err := scanOrder(s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID))
	if err != nil {
		return nil, notFound(err)
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT product_id, name, price, quantity
		FROM order_items WHERE order_id=$1 ORDER BY line
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, it)
	}
	return order, rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	var userID sql.NullString
	var deliveryTypeID sql.NullInt64
	var paymentStatus sql.NullString

	err := row.Scan(
		&order.ID,
		&userID,
		&order.CustomerName,
		&order.Email,
		&order.Phone,
		&order.Address,
		&deliveryTypeID,
		&order.DeliveryPrice,
		&order.Total,
		&order.PaymentMethod,
		&paymentStatus,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		order.UserID = &userID.String
	}
	if deliveryTypeID.Valid {
		order.DeliveryTypeID = &deliveryTypeID.Int64
	}
	if paymentStatus.Valid {
		ps := models.PaymentStatus(paymentStatus.String)
		order.PaymentStatus = &ps
	}
	return &order, nil
}
