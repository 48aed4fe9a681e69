package notify

import (
	"net/http"
	"sync"
	"time"

	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait   = 5 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	subscriberQ = 4
)

type Update struct {
	OrderID       string `json:"orderId"`
	PaymentStatus string `json:"paymentStatus"`
}

// Hub fans payment status changes out to browsers watching an order.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[chan Update]struct{}
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		subs: map[string]map[chan Update]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Hub) Subscribe(orderID string) (<-chan Update, func()) {
	ch := make(chan Update, subscriberQ)
	h.mu.Lock()
	set, ok := h.subs[orderID]
	if !ok {
		set = map[chan Update]struct{}{}
		h.subs[orderID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[orderID], ch)
			if len(h.subs[orderID]) == 0 {
				delete(h.subs, orderID)
			}
		})
	}
}

// PublishPaymentStatus never blocks; a subscriber whose queue is full misses the update.
func (h *Hub) PublishPaymentStatus(orderID string, status models.PaymentStatus) {
	u := Update{OrderID: orderID, PaymentStatus: string(status)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[orderID] {
		select {
		case ch <- u:
		default:
			h.log.Warn("dropping status update for slow subscriber", zap.String("order_id", orderID))
		}
	}
}

func (h *Hub) Subscribers(orderID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[orderID])
}

// Serve upgrades the request and streams updates for orderID. The first frame
// comes from current, which runs only after the subscription is in place so a
// change landing in between is still delivered.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID string, current func() (Update, error)) {
	updates, unsubscribe := h.Subscribe(orderID)
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	first, err := current()
	if err != nil {
		h.log.Warn("ws initial status unavailable", zap.String("order_id", orderID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "status unavailable"),
			time.Now().Add(writeWait))
		return
	}
	if err := writeJSON(conn, first); err != nil {
		return
	}
	if models.PaymentStatus(first.PaymentStatus).Terminal() {
		closeNormal(conn)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case u := <-updates:
			if err := writeJSON(conn, u); err != nil {
				return
			}
			if models.PaymentStatus(u.PaymentStatus).Terminal() {
				closeNormal(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func closeNormal(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		time.Now().Add(writeWait))
}
