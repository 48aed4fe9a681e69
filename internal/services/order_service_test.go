package services

import (
	"context"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(st *storetest.Memory) *OrderService {
	return &OrderService{Store: st, Log: logger.Noop()}
}

func mugLine(qty int) OrderLine {
	return OrderLine{ProductID: "p-1", Name: " Mug ", Price: decimal.RequireFromString("500"), Quantity: qty}
}

func TestCreateOrder_Idram(t *testing.T) {
	st := storetest.New()
	dt := int64(1)
	st.PutDeliveryType(models.DeliveryType{ID: dt, Name: "Courier", Price: decimal.RequireFromString("500"), Active: true})
	svc := newOrderService(st)

	order, err := svc.CreateOrder(context.Background(), owner, CreateOrderInput{
		CustomerName:   "Ani",
		Email:          "ani@example.com",
		DeliveryTypeID: &dt,
		PaymentMethod:  models.PaymentIdram,
		Items:          []OrderLine{mugLine(2)},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, "1500.00", order.Total.StringFixed(2))
	assert.Equal(t, "Mug", order.Items[0].Name)
	require.NotNil(t, order.PaymentStatus)
	assert.Equal(t, models.PaymentPending, *order.PaymentStatus)
	assert.True(t, order.OwnedBy(owner.UserID))

	stored, err := st.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(order.Total))
}

func TestCreateOrder_CashHasNoPaymentStatus(t *testing.T) {
	svc := newOrderService(storetest.New())
	order, err := svc.CreateOrder(context.Background(), nil, CreateOrderInput{
		PaymentMethod: models.PaymentCash,
		Items:         []OrderLine{mugLine(1)},
	})
	require.NoError(t, err)
	assert.Nil(t, order.PaymentStatus)
	assert.Nil(t, order.UserID)
}

func TestCreateOrder_Invalid(t *testing.T) {
	st := storetest.New()
	off := int64(2)
	st.PutDeliveryType(models.DeliveryType{ID: off, Price: decimal.Zero, Active: false})
	missing := int64(3)
	svc := newOrderService(st)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, nil, CreateOrderInput{PaymentMethod: "BITCOIN", Items: []OrderLine{mugLine(1)}})
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)

	_, err = svc.CreateOrder(ctx, nil, CreateOrderInput{PaymentMethod: models.PaymentIdram})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.CreateOrder(ctx, nil, CreateOrderInput{PaymentMethod: models.PaymentIdram, Items: []OrderLine{mugLine(0)}})
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.CreateOrder(ctx, nil, CreateOrderInput{PaymentMethod: models.PaymentIdram, DeliveryTypeID: &off, Items: []OrderLine{mugLine(1)}})
	assert.ErrorIs(t, err, ErrDeliveryUnavailable)

	_, err = svc.CreateOrder(ctx, nil, CreateOrderInput{PaymentMethod: models.PaymentIdram, DeliveryTypeID: &missing, Items: []OrderLine{mugLine(1)}})
	assert.ErrorIs(t, err, ErrDeliveryUnavailable)
}

func TestGetOrder_Visibility(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("mine", ptr(owner.UserID)))
	st.Put(pendingOrder("guest", nil))
	svc := newOrderService(st)
	ctx := context.Background()

	_, err := svc.GetOrder(ctx, owner, "mine")
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, admin, "mine")
	assert.NoError(t, err)
	_, err = svc.GetOrder(ctx, nil, "guest")
	assert.NoError(t, err)

	_, err = svc.GetOrder(ctx, nil, "mine")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.GetOrder(ctx, other, "mine")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetOrder(ctx, owner, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestAccount_RegisterLogin(t *testing.T) {
	st := storetest.New()
	tokens := auth.NewTokens("test-secret", time.Hour)
	svc := &AccountService{Store: st, Tokens: tokens, Log: logger.Noop()}
	ctx := context.Background()

	sess, err := svc.Register(ctx, " Ani@Example.com ", "hunter22", "Ani")
	require.NoError(t, err)
	assert.Equal(t, "ani@example.com", sess.User.Email)
	assert.Equal(t, models.RoleUser, sess.User.Role)

	id, err := tokens.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id.UserID)

	_, err = svc.Register(ctx, "ani@example.com", "other", "Ani")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, "ani@example.com", "hunter22")
	assert.NoError(t, err)
	_, err = svc.Login(ctx, "ANI@Example.com", "hunter22")
	assert.NoError(t, err)
	_, err = svc.Register(ctx, "ANI@EXAMPLE.COM", "hunter22", "Ani")
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = svc.Login(ctx, "ani@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
