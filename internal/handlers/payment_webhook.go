package handlers

import (
	"net/http"

	"github.com/threadlane/threadlane/internal/payments"
)

// PaymentWebhook receives signed gateway callbacks. Deduplication and the
// amount check live in the payment service; this handler only verifies the
// signature and translates the outcome to a status code. A non-2xx response
// makes the gateway redeliver, so only real processing failures return one.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	event, err := payments.ReadWebhookEvent(r, h.config.GatewayWebhookSecret)
	if err != nil {
		logger.Error("failed to read gateway callback", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}
	if event.ID == "" {
		logger.Error("gateway callback has no event id")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	if err := h.paymentService.HandleCallback(ctx, event); err != nil {
		logger.Error("failed to process gateway callback", "error", err, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
