package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/threadlane/threadlane/internal/config"
	"github.com/threadlane/threadlane/internal/handlers"
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
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/payment", h.PaymentWebhook).Methods("POST").Name("webhooks.payment")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// Everything below requires a bearer token.
	api := r.PathPrefix("").Subrouter()
	api.Use(h.RequireAuth)
	api.Use(h.MetricsContext)

	api.HandleFunc("/checkout/preview", h.PreviewCheckout).Methods("POST").Name("checkout.preview")
	api.HandleFunc("/checkout", h.PlaceOrder).Methods("POST").Name("checkout.place")

	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("orders.list")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("orders.get")
	api.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("POST").Name("orders.cancel")
	api.HandleFunc("/orders/{id}/complete", h.CompleteOrder).Methods("POST").Name("orders.complete")
	api.HandleFunc("/orders/{id}/retry-payment", h.RetryPayment).Methods("POST").Name("orders.retry_payment")
	api.HandleFunc("/orders/{id}/refund-request", h.RequestRefund).Methods("POST").Name("orders.refund_request")
	api.HandleFunc("/orders/{id}/refunds", h.ListOrderRefunds).Methods("GET").Name("orders.refunds")
	api.HandleFunc("/refunds/{id}", h.GetRefund).Methods("GET").Name("refunds.get")

	admin := api.PathPrefix("").Subrouter()
	admin.Use(h.RequireAdmin)
	admin.HandleFunc("/orders/{id}/advance", h.AdvanceOrder).Methods("POST").Name("admin.orders.advance")
	admin.HandleFunc("/orders/{id}/mark-cod-paid", h.MarkCODPaid).Methods("POST").Name("admin.orders.mark_cod_paid")
	admin.HandleFunc("/refunds", h.ListPendingRefunds).Methods("GET").Name("admin.refunds.list")
	admin.HandleFunc("/refunds/{id}/approve", h.ApproveRefund).Methods("POST").Name("admin.refunds.approve")
	admin.HandleFunc("/refunds/{id}/reject", h.RejectRefund).Methods("POST").Name("admin.refunds.reject")
	admin.HandleFunc("/refunds/{id}/mark-refunded", h.MarkRefunded).Methods("POST").Name("admin.refunds.mark_refunded")
	admin.HandleFunc("/vouchers", h.ListVouchers).Methods("GET").Name("admin.vouchers.list")
	admin.HandleFunc("/vouchers", h.CreateVoucher).Methods("POST").Name("admin.vouchers.create")
	admin.HandleFunc("/vouchers/{code}", h.GetVoucher).Methods("GET").Name("admin.vouchers.get")
	admin.HandleFunc("/vouchers/{code}", h.UpdateVoucher).Methods("PUT").Name("admin.vouchers.update")

	return r
}
