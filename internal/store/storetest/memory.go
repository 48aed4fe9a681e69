// Package storetest is an in-memory store with the same conditional update
// semantics as store.Store, for tests of the layers above it.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"storefront/internal/models"
	"storefront/internal/store"
)

type Memory struct {
	mu       sync.Mutex
	orders   map[string]*models.Order
	users    map[string]*models.User
	delivery map[int64]*models.DeliveryType
	events   []models.PaymentEvent
	failNext error
}

func New() *Memory {
	return &Memory{
		orders:   map[string]*models.Order{},
		users:    map[string]*models.User{},
		delivery: map[int64]*models.DeliveryType{},
	}
}

func (m *Memory) Put(o *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(o)
}

// PaymentStatus returns a copy of the stored status.
func (m *Memory) PaymentStatus(id string) *models.PaymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.orders[id].PaymentStatus
	if ps == nil {
		return nil
	}
	v := *ps
	return &v
}

func (m *Memory) EventKinds() []models.PaymentEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.PaymentEventKind, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Kind)
	}
	return out
}

// FailNext makes the next store call return err.
func (m *Memory) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *Memory) PutDeliveryType(dt models.DeliveryType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivery[dt.ID] = &dt
}

func (m *Memory) Events() []models.PaymentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PaymentEvent(nil), m.events...)
}

func (m *Memory) takeErr() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *Memory) CreateOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return err
	}
	m.orders[o.ID] = cloneOrder(o)
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) TransitionPaymentStatus(_ context.Context, id string, to models.PaymentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return false, err
	}
	o, ok := m.orders[id]
	if !ok || o.PaymentMethod != models.PaymentIdram || !o.PaymentPending() {
		return false, nil
	}
	o.PaymentStatus = &to
	return true, nil
}

func (m *Memory) SetPaymentStatus(_ context.Context, id string, to models.PaymentStatus) (*models.PaymentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	prev := o.PaymentStatus
	o.PaymentStatus = &to
	return prev, nil
}

func (m *Memory) InsertPaymentEvent(_ context.Context, ev *models.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.events) + 1)
	m.events = append(m.events, *ev)
	return nil
}

func (m *Memory) ListPaymentEvents(_ context.Context, orderID string) ([]models.PaymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeErr(); err != nil {
		return nil, err
	}
	var out []models.PaymentEvent
	for _, ev := range m.events {
		if ev.OrderID != nil && *ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) GetDeliveryType(_ context.Context, id int64) (*models.DeliveryType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dt, ok := m.delivery[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := *dt
	return &v, nil
}

func (m *Memory) ListDeliveryTypes(context.Context) ([]models.DeliveryType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DeliveryType
	for _, dt := range m.delivery {
		if dt.Active {
			out = append(out, *dt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.users[key]; ok {
		return store.ErrEmailTaken
	}
	v := *u
	v.Email = key
	m.users[key] = &v
	return nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	v := *u
	return &v, nil
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaymentStatus != nil {
		ps := *o.PaymentStatus
		c.PaymentStatus = &ps
	}
	if o.UserID != nil {
		uid := *o.UserID
		c.UserID = &uid
	}
	return &c
}

// Publisher records published payment statuses.
type Publisher struct {
	mu      sync.Mutex
	updates []models.PaymentStatus
}

func (p *Publisher) PublishPaymentStatus(_ string, status models.PaymentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, status)
}

func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}
