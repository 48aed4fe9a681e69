package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testRecAccount = "110000601"
	testSecret     = "SECRET"
)

var (
	owner = &auth.Identity{UserID: "u-1", Role: models.RoleUser}
	other = &auth.Identity{UserID: "u-2", Role: models.RoleUser}
	admin = &auth.Identity{UserID: "a-1", Role: models.RoleAdmin}
)

func newPaymentService(st *storetest.Memory) (*PaymentService, *storetest.Publisher) {
	pub := &storetest.Publisher{}
	return &PaymentService{
		Store:    st,
		Gateway:  payments.Gateway{RecAccount: testRecAccount, SecretKey: testSecret},
		Checksum: payments.MD5Checksummer{},
		Notifier: pub,
		Log:      logger.Noop(),
	}, pub
}

func pendingOrder(id string, userID *string) *models.Order {
	ps := models.PaymentPending
	return &models.Order{
		ID:            id,
		UserID:        userID,
		DeliveryPrice: decimal.RequireFromString("500"),
		Items: []models.OrderItem{
			{ProductID: "p-1", Name: "Mug", Price: decimal.RequireFromString("500"), Quantity: 2},
		},
		Total:         decimal.RequireFromString("1500"),
		PaymentMethod: models.PaymentIdram,
		PaymentStatus: &ps,
		Status:        models.OrderPending,
	}
}

func ptr(s string) *string { return &s }

func signedCallback(billNo, amount string) *payments.Callback {
	cb := &payments.Callback{
		RecAccount:   testRecAccount,
		Amount:       amount,
		BillNo:       billNo,
		PayerAccount: "3700000001",
		TransID:      "TX-" + billNo,
		TransDate:    "01/10/2026 12:00:00",
	}
	cb.Checksum = payments.MD5Checksummer{}.Checksum(cb.SignedFields(decimal.RequireFromString(amount)), testSecret)
	return cb
}

func TestHandleCallback_SuccessThenDuplicate(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	svc, pub := newPaymentService(st)
	ctx := context.Background()

	out, err := svc.HandleCallback(ctx, signedCallback("O1", "1500.00"))
	require.NoError(t, err)
	assert.Equal(t, CallbackAccepted, out)
	assert.Equal(t, models.PaymentSuccess, *st.PaymentStatus("O1"))

	out, err = svc.HandleCallback(ctx, signedCallback("O1", "1500.00"))
	require.NoError(t, err)
	assert.Equal(t, CallbackDuplicate, out)
	assert.Equal(t, models.PaymentSuccess, *st.PaymentStatus("O1"))

	assert.Equal(t, 1, pub.Count())
	assert.Equal(t, []models.PaymentEventKind{
		models.EventCallback, models.EventTransition, models.EventCallback,
	}, st.EventKinds())
}

func TestHandleCallback_BadChecksumLeavesPending(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O2", nil))
	svc, pub := newPaymentService(st)

	cb := signedCallback("O2", "1500.00")
	cb.Checksum = "00000000000000000000000000000000"

	out, err := svc.HandleCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, CallbackRejected, out)
	assert.Equal(t, models.PaymentPending, *st.PaymentStatus("O2"))
	assert.Zero(t, pub.Count())
}

func TestHandleCallback_ChecksumMismatchIsLogged(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O2", nil))
	svc, _ := newPaymentService(st)
	core, logs := observer.New(zapcore.DebugLevel)
	svc.Log = logger.FromZap(zap.New(core))

	cb := signedCallback("O2", "1500.00")
	cb.Checksum = "00000000000000000000000000000000"
	_, err := svc.HandleCallback(context.Background(), cb)
	require.NoError(t, err)

	rejected := logs.FilterMessage("payment callback rejected")
	require.Equal(t, 1, rejected.Len())
	entry := rejected.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "checksum mismatch", fields["reason"])
	assert.Equal(t, "O2", fields["order_id"])
	assert.Equal(t, "TX-O2", fields["trans_id"])
	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			assert.NotContains(t, fmt.Sprint(v), testSecret, "field %q of %q", k, e.Message)
		}
	}
}

func TestHandleCallback_RejectionsLookAlike(t *testing.T) {
	cases := map[string]func(st *storetest.Memory) *payments.Callback{
		"unknown bill": func(*storetest.Memory) *payments.Callback {
			return signedCallback("missing", "1500.00")
		},
		"tampered amount": func(st *storetest.Memory) *payments.Callback {
			st.Put(pendingOrder("O3", nil))
			// Signed over the claimed amount instead of the stored total.
			return signedCallback("O3", "1.00")
		},
		"wrong secret": func(st *storetest.Memory) *payments.Callback {
			st.Put(pendingOrder("O4", nil))
			cb := signedCallback("O4", "1500.00")
			cb.Checksum = payments.MD5Checksummer{}.Checksum(cb.SignedFields(decimal.RequireFromString("1500")), "OTHER")
			return cb
		},
		"cash order": func(st *storetest.Memory) *payments.Callback {
			o := pendingOrder("O5", nil)
			o.PaymentMethod = models.PaymentCash
			o.PaymentStatus = nil
			st.Put(o)
			return signedCallback("O5", "1500.00")
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			st := storetest.New()
			svc, _ := newPaymentService(st)
			out, err := svc.HandleCallback(context.Background(), setup(st))
			require.NoError(t, err)
			assert.Equal(t, CallbackRejected, out)
			assert.Contains(t, st.EventKinds(), models.EventRejected)
		})
	}
}

func TestHandleCallback_AmountFormattingDoesNotMatter(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	svc, _ := newPaymentService(st)

	// The checksum is over the stored total, so a differently rendered claim still verifies.
	cb := signedCallback("O1", "1500.00")
	cb.Amount = "1500"

	out, err := svc.HandleCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, CallbackAccepted, out)
	assert.Equal(t, models.PaymentSuccess, *st.PaymentStatus("O1"))
}

func TestHandleCallback_ConcurrentDuplicates(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	svc, pub := newPaymentService(st)

	const n = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.HandleCallback(context.Background(), signedCallback("O1", "1500.00"))
			assert.NoError(t, err)
			if out == CallbackAccepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, pub.Count())
	assert.Equal(t, models.PaymentSuccess, *st.PaymentStatus("O1"))
}

func TestHandleCallback_NeverRevivesTerminal(t *testing.T) {
	st := storetest.New()
	o := pendingOrder("O1", nil)
	failed := models.PaymentFailed
	o.PaymentStatus = &failed
	st.Put(o)
	svc, _ := newPaymentService(st)

	out, err := svc.HandleCallback(context.Background(), signedCallback("O1", "1500.00"))
	require.NoError(t, err)
	assert.Equal(t, CallbackDuplicate, out)
	assert.Equal(t, models.PaymentFailed, *st.PaymentStatus("O1"))
}

func TestHandleCallback_StoreError(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	st.FailNext(errors.New("connection reset"))
	svc, _ := newPaymentService(st)

	_, err := svc.HandleCallback(context.Background(), signedCallback("O1", "1500.00"))
	require.Error(t, err)
	assert.Equal(t, models.PaymentPending, *st.PaymentStatus("O1"))
}

func TestHandleCallback_Unconfigured(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	svc, _ := newPaymentService(st)
	svc.Gateway.SecretKey = ""

	out, err := svc.HandleCallback(context.Background(), signedCallback("O1", "1500.00"))
	require.NoError(t, err)
	assert.Equal(t, CallbackRejected, out)
	assert.Equal(t, models.PaymentPending, *st.PaymentStatus("O1"))
}

func TestHandleCallback_Precheck(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", nil))
	svc, pub := newPaymentService(st)
	ctx := context.Background()

	pre := &payments.Callback{Precheck: true, RecAccount: testRecAccount, Amount: "1500.00", BillNo: "O1"}
	out, err := svc.HandleCallback(ctx, pre)
	require.NoError(t, err)
	assert.Equal(t, CallbackAccepted, out)
	assert.Equal(t, models.PaymentPending, *st.PaymentStatus("O1"))
	assert.Zero(t, pub.Count())

	pre.Amount = "1499.99"
	out, err = svc.HandleCallback(ctx, pre)
	require.NoError(t, err)
	assert.Equal(t, CallbackRejected, out)

	pre.Amount = "1500.00"
	pre.RecAccount = "999"
	out, err = svc.HandleCallback(ctx, pre)
	require.NoError(t, err)
	assert.Equal(t, CallbackRejected, out)
}

func TestInitiate(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", ptr(owner.UserID)))
	st.Put(pendingOrder("guest", nil))
	zero := pendingOrder("zero", nil)
	zero.Total = decimal.Zero
	st.Put(zero)
	svc, _ := newPaymentService(st)
	ctx := context.Background()

	form, err := svc.Initiate(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, payments.DefaultFormURL, form.URL)
	assert.Equal(t, "1500.00", form.Fields[payments.FieldAmount])
	assert.Equal(t, "O1", form.Fields[payments.FieldBillNo])
	assert.Equal(t, testRecAccount, form.Fields[payments.FieldRecAccount])

	again, err := svc.Initiate(ctx, "O1", owner)
	require.NoError(t, err)
	assert.Equal(t, form, again)

	_, err = svc.Initiate(ctx, "guest", other)
	assert.NoError(t, err)

	_, err = svc.Initiate(ctx, "O1", other)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Initiate(ctx, "missing", owner)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = svc.Initiate(ctx, "zero", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestInitiate_PreconditionOrder(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", ptr(owner.UserID)))
	svc, _ := newPaymentService(st)
	svc.Gateway = payments.Gateway{}
	ctx := context.Background()

	// Configuration is checked before the order is even looked up.
	_, err := svc.Initiate(ctx, "missing", other)
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
	_, err = svc.Initiate(ctx, "O1", other)
	assert.ErrorIs(t, err, ErrGatewayNotConfigured)
}

func TestInitiate_SettledOrder(t *testing.T) {
	st := storetest.New()
	o := pendingOrder("O1", nil)
	paid := models.PaymentSuccess
	o.PaymentStatus = &paid
	st.Put(o)
	svc, _ := newPaymentService(st)

	_, err := svc.Initiate(context.Background(), "O1", nil)
	assert.ErrorIs(t, err, ErrPaymentSettled)
}

func TestMarkFailed(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", ptr(owner.UserID)))
	cash := pendingOrder("cash", ptr(owner.UserID))
	cash.PaymentMethod = models.PaymentCash
	cash.PaymentStatus = nil
	st.Put(cash)
	svc, pub := newPaymentService(st)
	ctx := context.Background()

	_, err := svc.MarkFailed(ctx, nil, "O1")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.MarkFailed(ctx, other, "O1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = svc.MarkFailed(ctx, owner, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = svc.MarkFailed(ctx, owner, "cash")
	assert.ErrorIs(t, err, ErrNotOnlinePayment)

	order, err := svc.MarkFailed(ctx, owner, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, *order.PaymentStatus)
	assert.Equal(t, 1, pub.Count())

	order, err = svc.MarkFailed(ctx, owner, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, *order.PaymentStatus)
	assert.Equal(t, 1, pub.Count())
}

func TestMarkFailed_DoesNotUndoSuccess(t *testing.T) {
	st := storetest.New()
	st.Put(pendingOrder("O1", ptr(owner.UserID)))
	svc, _ := newPaymentService(st)
	ctx := context.Background()

	_, err := svc.HandleCallback(ctx, signedCallback("O1", "1500.00"))
	require.NoError(t, err)

	order, err := svc.MarkFailed(ctx, owner, "O1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSuccess, *order.PaymentStatus)
	assert.Equal(t, models.PaymentSuccess, *st.PaymentStatus("O1"))
}

func TestOverrideStatus(t *testing.T) {
	st := storetest.New()
	o := pendingOrder("O1", ptr(owner.UserID))
	paid := models.PaymentSuccess
	o.PaymentStatus = &paid
	st.Put(o)
	svc, pub := newPaymentService(st)
	svc.Pricing = pricing.Service{}
	ctx := context.Background()

	_, _, err := svc.OverrideStatus(ctx, owner, "O1", "FAILED")
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = svc.OverrideStatus(ctx, admin, "O1", "REFUNDED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, _, err = svc.OverrideStatus(ctx, admin, "missing", "FAILED")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	// Overrides may leave terminal states, including back to PENDING.
	order, quote, err := svc.OverrideStatus(ctx, admin, "O1", "PENDING")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, *order.PaymentStatus)
	assert.Equal(t, "1500.00", quote.Total.StringFixed(2))
	assert.Equal(t, "1000.00", quote.Subtotal.StringFixed(2))
	assert.Equal(t, 1, pub.Count())

	events := st.Events()
	last := events[len(events)-1]
	assert.Equal(t, models.EventAdminOverride, last.Kind)
	assert.JSONEq(t, `{"actor":"a-1","from":"SUCCESS","to":"PENDING"}`, string(last.Payload))
}
