package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/services"
	"github.com/threadlane/threadlane/internal/shoperr"
)

func orderIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shoperr.Validation("order id must be a UUID")
	}
	return orderID, nil
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.Get(r.Context(), actorFromContext(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orderService.ListForActor(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var input services.CancelInput
	if err := h.decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.Cancel(r.Context(), actorFromContext(r.Context()), orderID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

type advanceRequest struct {
	Target models.OrderStatus `json:"target"`
}

func (h *Handlers) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req advanceRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.Advance(r.Context(), actorFromContext(r.Context()), orderID, req.Target)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.Complete(r.Context(), actorFromContext(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

func (h *Handlers) MarkCODPaid(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orderService.MarkCODPaid(r.Context(), actorFromContext(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, order)
}

// RetryPayment issues a fresh payment session for an unpaid gateway order.
func (h *Handlers) RetryPayment(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	redirectURL, err := h.paymentService.Retry(r.Context(), actorFromContext(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"redirect_url": redirectURL})
}
