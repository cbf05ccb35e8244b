package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/afrobirthday/storefront/internal/config"
	"github.com/afrobirthday/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.Use(h.MetricsContext)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")
	r.HandleFunc("/paypal/return", h.PayPalReturn).Methods("GET").Name("paypal.return")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}` + "\n"))
	})

	// Buyer-facing API, called from the storefront pages
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/pricing", h.Pricing).Methods("GET").Name("api.pricing")
	buyerRouter := apiRouter.NewRoute().Subrouter()
	buyerRouter.Use(h.RequireSameOrigin)
	buyerRouter.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("api.checkout")
	buyerRouter.HandleFunc("/payments/stripe/confirm", h.StripeConfirm).Methods("POST").Name("api.payments.stripe.confirm")

	apiRouter.HandleFunc("/admin/login", h.AdminLogin).Methods("POST").Name("admin.login")

	// Protected admin routes - require a bearer token
	adminRouter := apiRouter.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.RequireAdmin)
	adminRouter.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/{id}", h.AdminGetOrder).Methods("GET").Name("admin.orders.get")
	adminRouter.HandleFunc("/orders/{id}", h.AdminUpdateOrder).Methods("PATCH").Name("admin.orders.update")
	adminRouter.HandleFunc("/orders/{id}", h.AdminDeleteOrder).Methods("DELETE").Name("admin.orders.delete")
	adminRouter.HandleFunc("/orders/{id}/refresh", h.AdminRefreshOrder).Methods("POST").Name("admin.orders.refresh")
	adminRouter.HandleFunc("/pricing", h.AdminPricing).Methods("GET").Name("admin.pricing")
	adminRouter.HandleFunc("/pricing", h.AdminUpdatePricing).Methods("PUT").Name("admin.pricing.update")
	adminRouter.HandleFunc("/stripe-settings", h.AdminStripeSettings).Methods("GET").Name("admin.stripe_settings")
	adminRouter.HandleFunc("/stripe-settings", h.AdminUpdateStripeSettings).Methods("PUT").Name("admin.stripe_settings.update")

	return r
}
