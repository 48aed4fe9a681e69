package http

import (
	"net/http"

	"storefront/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, tokens *auth.Tokens) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(handler.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The gateway posts here without credentials.
	r.Post("/payments/idram/callback", handler.PaymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(tokens, handler.Log))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handler.Register)
			r.Post("/login", handler.Login)
		})

		r.Get("/delivery-types", handler.DeliveryTypes)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrder)
			r.Get("/{orderId}", handler.GetOrder)
			r.Get("/{orderId}/stream", handler.StreamOrder)
			r.With(requireUser).Post("/{orderId}/payment/fail", handler.MarkPaymentFailed)
		})

		r.Post("/payments/idram/session", handler.CreatePaymentSession)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Patch("/orders/{orderId}/payment-status", handler.OverridePaymentStatus)
			r.Get("/orders/{orderId}/payment-events", handler.PaymentEvents)
		})
	})

	return &Server{Router: r}
}
