package pricing

import (
	"errors"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNoItems       = errors.New("order has no items")
	ErrInvalidItem   = errors.New("item price must be positive and quantity at least 1")
	ErrInvalidCharge = errors.New("delivery price must not be negative")
)

type Service struct{}

type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Delivery decimal.Decimal `json:"delivery"`
	Total    decimal.Decimal `json:"total"`
}

// Quote sums the order lines and adds the delivery charge.
func (Service) Quote(items []models.OrderItem, delivery decimal.Decimal) (Breakdown, error) {
	if len(items) == 0 {
		return Breakdown{}, ErrNoItems
	}
	if delivery.IsNegative() {
		return Breakdown{}, ErrInvalidCharge
	}

	subtotal := decimal.Zero
	for _, it := range items {
		if !it.Price.IsPositive() || it.Quantity < 1 {
			return Breakdown{}, ErrInvalidItem
		}
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	return Breakdown{
		Subtotal: subtotal.Round(2),
		Delivery: delivery.Round(2),
		Total:    subtotal.Add(delivery).Round(2),
	}, nil
}

// Recompute quotes a stored order from its snapshotted lines and delivery price.
func (s Service) Recompute(order *models.Order) (Breakdown, error) {
	return s.Quote(order.Items, order.DeliveryPrice)
}
