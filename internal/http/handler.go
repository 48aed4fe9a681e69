package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/payments"
	"storefront/internal/pricing"
	"storefront/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Plain-text replies expected by the gateway on the callback URL.
const (
	callbackOK       = "OK"
	callbackRejected = "REJECTED"
	callbackError    = "ERROR"
)

type Handler struct {
	Orders   *services.OrderService
	Payments *services.PaymentService
	Accounts *services.AccountService
	Hub      *notify.Hub
	Log      logger.Logger

	validate *validator.Validate
}

type itemRequest struct {
	ProductID string          `json:"productId" validate:"required,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity" validate:"min=1,max=1000"`
}

type createOrderRequest struct {
	CustomerName   string        `json:"customerName" validate:"required,max=200"`
	Email          string        `json:"email" validate:"required,email"`
	Phone          string        `json:"phone" validate:"omitempty,max=32"`
	Address        string        `json:"address" validate:"omitempty,max=500"`
	DeliveryTypeID *int64        `json:"deliveryTypeId" validate:"omitempty,gt=0"`
	PaymentMethod  string        `json:"paymentMethod" validate:"required"`
	Items          []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type sessionRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type overrideRequest struct {
	Status string `json:"status" validate:"required"`
}

type itemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CustomerName   string         `json:"customerName"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone,omitempty"`
	Address        string         `json:"address,omitempty"`
	DeliveryTypeID *int64         `json:"deliveryTypeId,omitempty"`
	DeliveryPrice  string         `json:"deliveryPrice"`
	Items          []itemResponse `json:"items"`
	Total          string         `json:"total"`
	PaymentMethod  string         `json:"paymentMethod"`
	PaymentStatus  *string        `json:"paymentStatus"`
	CreatedAt      string         `json:"createdAt,omitempty"`
}

type overrideResponse struct {
	orderResponse
	Subtotal string `json:"subtotal"`
}

type paymentEventResponse struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	TransID   string          `json:"transId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt string          `json:"createdAt,omitempty"`
}

type deliveryTypeResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

func NewHandler(orders *services.OrderService, pays *services.PaymentService, accounts *services.AccountService, hub *notify.Hub, log logger.Logger) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{Orders: orders, Payments: pays, Accounts: accounts, Hub: hub, Log: log, validate: v}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.Accounts.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			h.Log.Error("register failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "register failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toSession(sess))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			h.Log.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, toSession(sess))
}

func (h *Handler) DeliveryTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Orders.DeliveryTypes(r.Context())
	if err != nil {
		h.Log.Error("list delivery types failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list delivery types failed")
		return
	}
	resp := make([]deliveryTypeResponse, 0, len(types))
	for _, dt := range types {
		resp = append(resp, deliveryTypeResponse{ID: dt.ID, Name: dt.Name, Price: dt.Price.StringFixed(2)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := services.CreateOrderInput{
		CustomerName:   req.CustomerName,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		DeliveryTypeID: req.DeliveryTypeID,
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, services.OrderLine{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}

	order, err := h.Orders.CreateOrder(r.Context(), auth.FromContext(r.Context()), in)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidPaymentMethod):
			writeError(w, http.StatusBadRequest, "unknown payment method")
		case errors.Is(err, services.ErrDeliveryUnavailable):
			writeError(w, http.StatusBadRequest, "delivery type unavailable")
		case errors.Is(err, services.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.Log.Error("create order failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "create order failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toOrder(order))
}

// StreamOrder pushes payment status changes over a websocket until the
// payment settles.
func (h *Handler) StreamOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	if !order.PaymentMethod.Online() || order.PaymentStatus == nil {
		writeError(w, http.StatusBadRequest, "order is not an online payment order")
		return
	}
	caller := auth.FromContext(r.Context())
	h.Hub.Serve(w, r, order.ID, func() (notify.Update, error) {
		fresh, err := h.Orders.GetOrder(r.Context(), caller, order.ID)
		if err != nil {
			return notify.Update{}, err
		}
		u := notify.Update{OrderID: fresh.ID}
		if fresh.PaymentStatus != nil {
			u.PaymentStatus = string(*fresh.PaymentStatus)
		}
		return u, nil
	})
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	orderID := chi.URLParam(r, "orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return nil, false
	}
	order, err := h.Orders.GetOrder(r.Context(), auth.FromContext(r.Context()), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "order belongs to another user")
		default:
			h.Log.Error("get order failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get order failed")
		}
		return nil, false
	}
	return order, true
}

func (h *Handler) CreatePaymentSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	form, err := h.Payments.Initiate(r.Context(), req.OrderID, auth.FromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrGatewayNotConfigured):
			h.Log.Error("payment session requested but gateway is not configured")
			writeError(w, http.StatusInternalServerError, "payment gateway not configured")
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "order belongs to another user")
		case errors.Is(err, services.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "order amount is not payable")
		case errors.Is(err, services.ErrNotOnlinePayment):
			writeError(w, http.StatusBadRequest, "order is not an online payment order")
		case errors.Is(err, services.ErrPaymentSettled):
			writeError(w, http.StatusConflict, "order payment already settled")
		default:
			h.Log.Error("payment session failed", zap.String("order_id", req.OrderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "payment session failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// PaymentCallback answers the gateway in plain text. Every rejection gets
// the same body.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.Log.Warn("payment callback body unreadable", zap.Error(err))
		writeText(w, http.StatusOK, callbackRejected)
		return
	}
	cb, err := payments.ParseCallback(r.PostForm)
	if err != nil {
		h.Log.Warn("payment callback malformed",
			zap.String("bill_no", r.PostForm.Get(payments.FieldBillNo)),
			zap.String("trans_id", r.PostForm.Get(payments.FieldTransID)),
		)
		writeText(w, http.StatusOK, callbackRejected)
		return
	}

	outcome, err := h.Payments.HandleCallback(r.Context(), cb)
	if err != nil {
		h.Log.Error("payment callback failed", zap.String("bill_no", cb.BillNo), zap.Error(err))
		writeText(w, http.StatusInternalServerError, callbackError)
		return
	}
	switch outcome {
	case services.CallbackAccepted, services.CallbackDuplicate:
		writeText(w, http.StatusOK, callbackOK)
	default:
		writeText(w, http.StatusOK, callbackRejected)
	}
}

func (h *Handler) MarkPaymentFailed(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	order, err := h.Payments.MarkFailed(r.Context(), auth.FromContext(r.Context()), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, services.ErrNotOnlinePayment):
			writeError(w, http.StatusBadRequest, "order is not an online payment order")
		default:
			h.Log.Error("mark payment failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "update payment failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]orderResponse{"order": toOrder(order)})
}

func (h *Handler) OverridePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !h.decode(w, r, &req) {
		return
	}
	orderID := chi.URLParam(r, "orderId")
	order, quote, err := h.Payments.OverrideStatus(r.Context(), auth.FromContext(r.Context()), orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "admin only")
		case errors.Is(err, services.ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "status must be one of PENDING, SUCCESS, FAILED")
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			h.Log.Error("override payment status failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "update payment failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, toOverride(order, quote))
}

func (h *Handler) PaymentEvents(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	events, err := h.Payments.Events(r.Context(), auth.FromContext(r.Context()), orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrForbidden):
			writeError(w, http.StatusForbidden, "admin only")
		case errors.Is(err, services.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			h.Log.Error("list payment events failed", zap.String("order_id", orderID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list payment events failed")
		}
		return
	}
	resp := make([]paymentEventResponse, 0, len(events))
	for _, ev := range events {
		item := paymentEventResponse{ID: ev.ID, Kind: string(ev.Kind), TransID: ev.TransID, Payload: ev.Payload, Note: ev.Note}
		if !ev.CreatedAt.IsZero() {
			item.CreatedAt = ev.CreatedAt.Format(time.RFC3339)
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func toOrder(o *models.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		Status:         string(o.Status),
		CustomerName:   o.CustomerName,
		Email:          o.Email,
		Phone:          o.Phone,
		Address:        o.Address,
		DeliveryTypeID: o.DeliveryTypeID,
		DeliveryPrice:  o.DeliveryPrice.StringFixed(2),
		Items:          make([]itemResponse, 0, len(o.Items)),
		Total:          o.Total.StringFixed(2),
		PaymentMethod:  string(o.PaymentMethod),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, itemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price.StringFixed(2),
			Quantity:  it.Quantity,
		})
	}
	if o.PaymentStatus != nil {
		ps := string(*o.PaymentStatus)
		resp.PaymentStatus = &ps
	}
	if !o.CreatedAt.IsZero() {
		resp.CreatedAt = o.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func toOverride(o *models.Order, quote pricing.Breakdown) overrideResponse {
	resp := overrideResponse{orderResponse: toOrder(o), Subtotal: quote.Subtotal.StringFixed(2)}
	resp.DeliveryPrice = quote.Delivery.StringFixed(2)
	resp.Total = quote.Total.StringFixed(2)
	return resp
}

func toSession(s *services.Session) sessionResponse {
	var resp sessionResponse
	resp.Token = s.Token
	resp.User.ID = s.User.ID
	resp.User.Email = s.User.Email
	resp.User.Name = s.User.Name
	resp.User.Role = string(s.User.Role)
	return resp
}
