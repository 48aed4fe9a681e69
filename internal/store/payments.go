package store

import (
	"context"
	"database/sql"

	"storefront/internal/models"
)

// TransitionPaymentStatus moves an online order out of PENDING. It reports
// false when the order is not an IDRAM order or has already left PENDING, so
// concurrent deliveries of the same callback change the row at most once.
func (s *Store) TransitionPaymentStatus(ctx context.Context, orderID string, to models.PaymentStatus) (bool, error) {
	if !validID(orderID) {
		return false, ErrNotFound
	}
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET payment_status=$2, updated_at=now()
		WHERE id=$1 AND payment_method=$3 AND payment_status=$4
	`, orderID, to, models.PaymentIdram, models.PaymentPending)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// SetPaymentStatus overwrites the status unconditionally and returns the
// value it replaced.
func (s *Store) SetPaymentStatus(ctx context.Context, orderID string, to models.PaymentStatus) (*models.PaymentStatus, error) {
	if !validID(orderID) {
		return nil, ErrNotFound
	}
	var prev sql.NullString
	err := s.Pool.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, payment_status FROM orders WHERE id=$1 FOR UPDATE
		)
		UPDATE orders o
		SET payment_status=$2, updated_at=now()
		FROM prev
		WHERE o.id=prev.id
		RETURNING prev.payment_status
	`, orderID, to).Scan(&prev)
	if err != nil {
		return nil, notFound(err)
	}
	if !prev.Valid {
		return nil, nil
	}
	ps := models.PaymentStatus(prev.String)
	return &ps, nil
}

func (s *Store) InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error {
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	return s.Pool.QueryRow(ctx, `
		INSERT INTO payment_events (order_id, kind, trans_id, payload, note)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, created_at
	`, ev.OrderID, ev.Kind, ev.TransID, string(payload), ev.Note).Scan(&ev.ID, &ev.CreatedAt)
}

func (s *Store) ListPaymentEvents(ctx context.Context, orderID string) ([]models.PaymentEvent, error) {
	if !validID(orderID) {
		return nil, ErrNotFound
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, order_id::text, kind, trans_id, payload::text, note, created_at
		FROM payment_events WHERE order_id=$1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.PaymentEvent
	for rows.Next() {
		var ev models.PaymentEvent
		var oid sql.NullString
		var payload string
		if err := rows.Scan(&ev.ID, &oid, &ev.Kind, &ev.TransID, &payload, &ev.Note, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if oid.Valid {
			ev.OrderID = &oid.String
		}
		ev.Payload = []byte(payload)
		events = append(events, ev)
	}
	return events, rows.Err()
}
