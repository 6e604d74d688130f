package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadlane/threadlane/internal/auth"
	"github.com/threadlane/threadlane/internal/config"
	"github.com/threadlane/threadlane/internal/logging"
	"github.com/threadlane/threadlane/internal/services"
	"github.com/threadlane/threadlane/internal/shoperr"
)

const maxBodyBytes = 1 << 20 // 1 MB

// Handlers provides the JSON HTTP surface of the settlement engine.
type Handlers struct {
	config          *config.Config
	db              *pgxpool.Pool
	verifier        *auth.Verifier
	checkoutService *services.CheckoutService
	orderService    *services.OrderService
	refundService   *services.RefundService
	paymentService  *services.PaymentService
	voucherService  *services.VoucherService
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              *pgxpool.Pool
	Verifier        *auth.Verifier
	CheckoutService *services.CheckoutService
	OrderService    *services.OrderService
	RefundService   *services.RefundService
	PaymentService  *services.PaymentService
	VoucherService  *services.VoucherService
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("handlers dependencies: verifier is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.RefundService == nil {
		return nil, fmt.Errorf("handlers dependencies: refundService is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.VoucherService == nil {
		return nil, fmt.Errorf("handlers dependencies: voucherService is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		verifier:        deps.Verifier,
		checkoutService: deps.CheckoutService,
		orderService:    deps.OrderService,
		refundService:   deps.RefundService,
		paymentService:  deps.PaymentService,
		voucherService:  deps.VoucherService,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.db.Ping(ctx); err != nil {
		h.loggerFromContext(ctx).Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err, "path", r.URL.Path)
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Anything that is not a
// domain error is a 500 with no details leaked.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shoperr.Error
	if !errors.As(err, &domainErr) {
		h.loggerFromContext(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
		h.writeJSON(w, r, http.StatusInternalServerError, errorBody{
			Error: errorDetail{Kind: "internal", Message: "internal server error"},
		})
		return
	}

	h.writeJSON(w, r, statusForKind(domainErr.Kind), errorBody{
		Error: errorDetail{
			Kind:    string(domainErr.Kind),
			Message: domainErr.Reason,
			Field:   domainErr.Field,
		},
	})
}

func statusForKind(kind shoperr.Kind) int {
	switch kind {
	case shoperr.KindValidation:
		return http.StatusBadRequest
	case shoperr.KindVoucherIneligible, shoperr.KindPriceChanged:
		return http.StatusUnprocessableEntity
	case shoperr.KindInvalidTransition, shoperr.KindInvalidRefundTransition, shoperr.KindConflict:
		return http.StatusConflict
	case shoperr.KindNotFound:
		return http.StatusNotFound
	case shoperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return shoperr.Validation("request body is not valid JSON: " + err.Error())
	}
	return nil
}
