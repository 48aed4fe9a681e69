package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash           PaymentMethod = "CASH"
	PaymentCardOnDelivery PaymentMethod = "CARD_ON_DELIVERY"
	PaymentIdram          PaymentMethod = "IDRAM"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCardOnDelivery, PaymentIdram:
		return true
	}
	return false
}

// Online reports whether the method goes through the hosted payment page.
func (m PaymentMethod) Online() bool {
	return m == PaymentIdram
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

func (s PaymentStatus) Terminal() bool {
	return s == PaymentSuccess || s == PaymentFailed
}

func ParsePaymentStatus(v string) (PaymentStatus, bool) {
	switch s := PaymentStatus(v); s {
	case PaymentPending, PaymentSuccess, PaymentFailed:
		return s, true
	}
	return "", false
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderShipped   OrderStatus = "SHIPPED"
	OrderDelivered OrderStatus = "DELIVERED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type Order struct {
	ID             string
	UserID         *string
	CustomerName   string
	Email          string
	Phone          string
	Address        string
	DeliveryTypeID *int64
	DeliveryPrice  decimal.Decimal
	Items          []OrderItem
	Total          decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentStatus  *PaymentStatus
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OwnedBy is false for ownerless orders.
func (o *Order) OwnedBy(userID string) bool {
	return o.UserID != nil && *o.UserID == userID
}

func (o *Order) PaymentPending() bool {
	return o.PaymentStatus != nil && *o.PaymentStatus == PaymentPending
}

type OrderItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
}

type DeliveryType struct {
	ID     int64
	Name   string
	Price  decimal.Decimal
	Active bool
}

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Role         Role
	CreatedAt    time.Time
}

type PaymentEventKind string

const (
	EventPrecheck      PaymentEventKind = "PRECHECK"
	EventCallback      PaymentEventKind = "CALLBACK"
	EventRejected      PaymentEventKind = "REJECTED"
	EventTransition    PaymentEventKind = "TRANSITION"
	EventUserFailed    PaymentEventKind = "USER_FAILED"
	EventAdminOverride PaymentEventKind = "ADMIN_OVERRIDE"
)

type PaymentEvent struct {
	ID        int64
	OrderID   *string
	Kind      PaymentEventKind
	TransID   string
	Payload   json.RawMessage
	Note      string
	CreatedAt time.Time
}
