package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	"storefront/internal/store"

	"go.uber.org/zap"
)

type PaymentStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	TransitionPaymentStatus(ctx context.Context, orderID string, to models.PaymentStatus) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID string, to models.PaymentStatus) (*models.PaymentStatus, error)
	InsertPaymentEvent(ctx context.Context, ev *models.PaymentEvent) error
	ListPaymentEvents(ctx context.Context, orderID string) ([]models.PaymentEvent, error)
}

type StatusPublisher interface {
	PublishPaymentStatus(orderID string, status models.PaymentStatus)
}

type CallbackOutcome int

const (
	// CallbackAccepted covers a passed precheck and the first valid confirmation.
	CallbackAccepted CallbackOutcome = iota
	// CallbackDuplicate is a valid confirmation for an order that already left PENDING.
	CallbackDuplicate
	// CallbackRejected covers every rejection cause alike.
	CallbackRejected
)

type PaymentService struct {
	Store    PaymentStore
	Gateway  payments.Gateway
	Checksum payments.Checksummer
	Pricing  pricing.Service
	Notifier StatusPublisher
	Log      logger.Logger
}

// Initiate builds the hosted payment form. Nothing is persisted, so it can
// be repeated while the order is PENDING.
func (s *PaymentService) Initiate(ctx context.Context, orderID string, caller *auth.Identity) (*payments.Form, error) {
	if !s.Gateway.Configured() {
		return nil, ErrGatewayNotConfigured
	}
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Ownerless orders (guest checkout) are payable by anyone holding the id.
	if caller != nil && order.UserID != nil && !order.OwnedBy(caller.UserID) {
		return nil, ErrForbidden
	}
	if !order.Total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !order.PaymentMethod.Online() {
		return nil, ErrNotOnlinePayment
	}
	if !order.PaymentPending() {
		return nil, ErrPaymentSettled
	}
	return s.Gateway.BuildForm(order.ID, order.Total), nil
}

// HandleCallback processes both gateway phases. Rejections are logged and
// reported as CallbackRejected with a nil error; only store failures return
// an error.
func (s *PaymentService) HandleCallback(ctx context.Context, cb *payments.Callback) (CallbackOutcome, error) {
	log := s.Log.With(zap.String("bill_no", cb.BillNo), zap.String("trans_id", cb.TransID))

	if !s.Gateway.Configured() {
		log.Error("payment callback received but gateway credentials are not configured")
		return CallbackRejected, nil
	}

	order, err := s.Store.GetOrder(ctx, cb.BillNo)
	if errors.Is(err, store.ErrNotFound) {
		return s.reject(ctx, log, nil, cb, "unknown bill number"), nil
	}
	if err != nil {
		return 0, fmt.Errorf("load order: %w", err)
	}
	if !order.PaymentMethod.Online() {
		return s.reject(ctx, log, order, cb, "not an online payment order"), nil
	}

	if cb.Precheck {
		return s.precheck(ctx, log, order, cb), nil
	}

	if !s.Checksum.Verify(cb.SignedFields(order.Total), s.Gateway.SecretKey, cb.Checksum) {
		return s.reject(ctx, log, order, cb, "checksum mismatch"), nil
	}
	if !cb.AmountMatches(order.Total) {
		log.Warn("callback amount differs from order total",
			zap.String("claimed", cb.Amount),
			zap.String("total", payments.FormatAmount(order.Total)),
		)
	}
	s.record(ctx, log, order.ID, models.EventCallback, cb.TransID, cb.Values(), "")

	if order.PaymentStatus != nil && order.PaymentStatus.Terminal() {
		log.Info("duplicate payment callback", zap.String("payment_status", string(*order.PaymentStatus)))
		return CallbackDuplicate, nil
	}

	// Idram only sends a signed confirmation once the transfer went through.
	to := models.PaymentSuccess
	changed, err := s.Store.TransitionPaymentStatus(ctx, order.ID, to)
	if err != nil {
		return 0, fmt.Errorf("transition payment status: %w", err)
	}
	if !changed {
		log.Info("payment callback lost race to another delivery")
		return CallbackDuplicate, nil
	}

	log.Info("order payment status changed", zap.String("order_id", order.ID), zap.String("payment_status", string(to)))
	s.record(ctx, log, order.ID, models.EventTransition, cb.TransID, transition(models.PaymentPending, to), "callback")
	s.publish(order.ID, to)
	return CallbackAccepted, nil
}

func (s *PaymentService) precheck(ctx context.Context, log logger.Logger, order *models.Order, cb *payments.Callback) CallbackOutcome {
	switch {
	case !order.PaymentPending():
		return s.reject(ctx, log, order, cb, "precheck for settled order")
	case !cb.AmountMatches(order.Total):
		return s.reject(ctx, log, order, cb, "precheck amount mismatch")
	case cb.RecAccount != s.Gateway.RecAccount:
		return s.reject(ctx, log, order, cb, "precheck merchant account mismatch")
	}
	s.record(ctx, log, order.ID, models.EventPrecheck, "", cb.Values(), "")
	return CallbackAccepted
}

func (s *PaymentService) reject(ctx context.Context, log logger.Logger, order *models.Order, cb *payments.Callback, reason string) CallbackOutcome {
	fields := []zap.Field{zap.String("reason", reason), zap.Bool("precheck", cb.Precheck)}
	if order != nil {
		fields = append(fields,
			zap.String("order_id", order.ID),
			zap.String("claimed_amount", cb.Amount),
			zap.String("total", payments.FormatAmount(order.Total)),
		)
	}
	log.Warn("payment callback rejected", fields...)

	if order != nil {
		s.record(ctx, log, order.ID, models.EventRejected, cb.TransID, cb.Values(), reason)
	} else {
		s.record(ctx, log, "", models.EventRejected, cb.TransID, cb.Values(), reason)
	}
	return CallbackRejected
}

// MarkFailed lets the owner give up on a PENDING online payment after being
// sent back on the failure URL. It never touches settled orders.
func (s *PaymentService) MarkFailed(ctx context.Context, caller *auth.Identity, orderID string) (*models.Order, error) {
	if caller == nil {
		return nil, ErrUnauthorized
	}
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.OwnedBy(caller.UserID) {
		return nil, ErrOrderNotFound
	}
	if !order.PaymentMethod.Online() {
		return nil, ErrNotOnlinePayment
	}
	if !order.PaymentPending() {
		return order, nil
	}

	changed, err := s.Store.TransitionPaymentStatus(ctx, order.ID, models.PaymentFailed)
	if err != nil {
		return nil, fmt.Errorf("transition payment status: %w", err)
	}
	if !changed {
		return s.getOrder(ctx, orderID)
	}

	failed := models.PaymentFailed
	order.PaymentStatus = &failed
	log := s.Log.With(zap.String("order_id", order.ID), zap.String("user_id", caller.UserID))
	log.Info("payment marked failed by payer")
	s.record(ctx, log, order.ID, models.EventUserFailed, "", transition(models.PaymentPending, failed), "")
	s.publish(order.ID, failed)
	return order, nil
}

// OverrideStatus is the back-office correction path: unconditional, and
// audited instead of guarded.
func (s *PaymentService) OverrideStatus(ctx context.Context, admin *auth.Identity, orderID, status string) (*models.Order, pricing.Breakdown, error) {
	if !admin.IsAdmin() {
		return nil, pricing.Breakdown{}, ErrForbidden
	}
	to, ok := models.ParsePaymentStatus(status)
	if !ok {
		return nil, pricing.Breakdown{}, ErrInvalidStatus
	}

	prev, err := s.Store.SetPaymentStatus(ctx, orderID, to)
	if errors.Is(err, store.ErrNotFound) {
		return nil, pricing.Breakdown{}, ErrOrderNotFound
	}
	if err != nil {
		return nil, pricing.Breakdown{}, fmt.Errorf("set payment status: %w", err)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, pricing.Breakdown{}, err
	}

	from := ""
	if prev != nil {
		from = string(*prev)
	}
	log := s.Log.With(zap.String("order_id", orderID), zap.String("actor", admin.UserID))
	log.Info("payment status overridden", zap.String("from", from), zap.String("to", string(to)))
	s.record(ctx, log, orderID, models.EventAdminOverride, "", map[string]string{
		"actor": admin.UserID,
		"from":  from,
		"to":    string(to),
	}, "")
	s.publish(orderID, to)

	quote, err := s.Pricing.Recompute(order)
	if err != nil {
		log.Warn("order total could not be recomputed", zap.Error(err))
		quote = pricing.Breakdown{Subtotal: order.Total.Sub(order.DeliveryPrice), Delivery: order.DeliveryPrice, Total: order.Total}
	}
	return order, quote, nil
}

// Events is the audit trail of one order, oldest first.
func (s *PaymentService) Events(ctx context.Context, admin *auth.Identity, orderID string) ([]models.PaymentEvent, error) {
	if !admin.IsAdmin() {
		return nil, ErrForbidden
	}
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return nil, err
	}
	events, err := s.Store.ListPaymentEvents(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	return events, nil
}

func (s *PaymentService) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	return order, nil
}

// record writes to the audit trail. The payment state is already decided at
// this point, so a failed insert is only logged.
func (s *PaymentService) record(ctx context.Context, log logger.Logger, orderID string, kind models.PaymentEventKind, transID string, payload any, note string) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("payment event payload not encodable", zap.Error(err))
		data = nil
	}
	ev := &models.PaymentEvent{Kind: kind, TransID: transID, Payload: data, Note: note}
	if orderID != "" {
		ev.OrderID = &orderID
	}
	if err := s.Store.InsertPaymentEvent(ctx, ev); err != nil {
		log.Warn("payment event not recorded", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *PaymentService) publish(orderID string, status models.PaymentStatus) {
	if s.Notifier != nil {
		s.Notifier.PublishPaymentStatus(orderID, status)
	}
}

func transition(from, to models.PaymentStatus) map[string]string {
	return map[string]string{"from": string(from), "to": string(to)}
}
