package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/api/health", h.Health)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/federated-login", h.FederatedLogin)
		r.Post("/google-login", h.FederatedLogin)
		r.Post("/send-otp", h.SendCode)
		r.Post("/verify-otp", h.VerifyCode)

		r.With(h.authMiddleware.Middleware).Get("/profile", h.Profile)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.With(h.authMiddleware.Optional).Post("/", h.CreateOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/", h.GetOrders)
			r.With(h.authMiddleware.RequireAdmin).Get("/all", h.GetAllOrders)
			r.Get("/{id}", h.GetOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.writeMessage(w, r, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.writeMessage(w, r, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
