package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	GetDeliveryType(ctx context.Context, id int64) (*models.DeliveryType, error)
	ListDeliveryTypes(ctx context.Context) ([]models.DeliveryType, error)
}

type OrderService struct {
	Store   OrderStore
	Pricing pricing.Service
	Log     logger.Logger
}

type OrderLine struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

type CreateOrderInput struct {
	CustomerName   string
	Email          string
	Phone          string
	Address        string
	DeliveryTypeID *int64
	PaymentMethod  models.PaymentMethod
	Items          []OrderLine
}

// CreateOrder fixes the total at checkout. Online orders start out PENDING;
// other methods carry no payment status.
func (s *OrderService) CreateOrder(ctx context.Context, caller *auth.Identity, in CreateOrderInput) (*models.Order, error) {
	if !in.PaymentMethod.Valid() {
		return nil, ErrInvalidPaymentMethod
	}

	delivery := decimal.Zero
	if in.DeliveryTypeID != nil {
		dt, err := s.Store.GetDeliveryType(ctx, *in.DeliveryTypeID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrDeliveryUnavailable
		}
		if err != nil {
			return nil, err
		}
		if !dt.Active {
			return nil, ErrDeliveryUnavailable
		}
		delivery = dt.Price
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	for _, l := range in.Items {
		items = append(items, models.OrderItem{
			ProductID: l.ProductID,
			Name:      strings.TrimSpace(l.Name),
			Price:     l.Price,
			Quantity:  l.Quantity,
		})
	}

	quote, err := s.Pricing.Quote(items, delivery)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	order := &models.Order{
		ID:             uuid.NewString(),
		CustomerName:   strings.TrimSpace(in.CustomerName),
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		Address:        strings.TrimSpace(in.Address),
		DeliveryTypeID: in.DeliveryTypeID,
		DeliveryPrice:  quote.Delivery,
		Items:          items,
		Total:          quote.Total,
		PaymentMethod:  in.PaymentMethod,
		Status:         models.OrderPending,
	}
	if caller != nil {
		uid := caller.UserID
		order.UserID = &uid
	}
	if in.PaymentMethod.Online() {
		ps := models.PaymentPending
		order.PaymentStatus = &ps
	}

	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.Log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("payment_method", string(order.PaymentMethod)),
		zap.String("total", order.Total.StringFixed(2)),
	)
	return order, nil
}

// GetOrder hides owned orders from everyone but the owner and admins.
func (s *OrderService) GetOrder(ctx context.Context, caller *auth.Identity, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if order.UserID == nil || caller.IsAdmin() {
		return order, nil
	}
	if caller == nil {
		return nil, ErrUnauthorized
	}
	if !order.OwnedBy(caller.UserID) {
		return nil, ErrForbidden
	}
	return order, nil
}

func (s *OrderService) DeliveryTypes(ctx context.Context) ([]models.DeliveryType, error) {
	return s.Store.ListDeliveryTypes(ctx)
}
