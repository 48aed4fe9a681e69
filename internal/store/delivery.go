package store

import (
	"context"

	"storefront/internal/models"
)

func (s *Store) GetDeliveryType(ctx context.Context, id int64) (*models.DeliveryType, error) {
	var dt models.DeliveryType
	err := s.Pool.QueryRow(ctx, `
		SELECT id, name, price, active FROM delivery_types WHERE id=$1
	`, id).Scan(&dt.ID, &dt.Name, &dt.Price, &dt.Active)
	if err != nil {
		return nil, notFound(err)
	}
	return &dt, nil
}

func (s *Store) ListDeliveryTypes(ctx context.Context) ([]models.DeliveryType, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, price, active FROM delivery_types WHERE active ORDER BY price, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DeliveryType
	for rows.Next() {
		var dt models.DeliveryType
		if err := rows.Scan(&dt.ID, &dt.Name, &dt.Price, &dt.Active); err != nil {
			return nil, err
		}
		out = append(out, dt)
	}
	return out, rows.Err()
}
