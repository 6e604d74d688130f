package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/threadlane/threadlane/internal/services"
	"github.com/threadlane/threadlane/internal/shoperr"
)

func refundIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	refundID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shoperr.Validation("refund id must be a UUID")
	}
	return refundID, nil
}

// RequestRefund opens a refund on a shipped order.
func (h *Handlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var input services.RefundRequestInput
	if err := h.decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.Request(r.Context(), actorFromContext(r.Context()), orderID, input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, refund)
}

func (h *Handlers) ListOrderRefunds(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	refunds, err := h.refundService.ListByOrder(r.Context(), actorFromContext(r.Context()), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"refunds": refunds})
}

func (h *Handlers) GetRefund(w http.ResponseWriter, r *http.Request) {
	refundID, err := refundIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.Get(r.Context(), actorFromContext(r.Context()), refundID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, refund)
}

func (h *Handlers) ListPendingRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.refundService.ListPending(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"refunds": refunds})
}

func (h *Handlers) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	refundID, err := refundIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.Approve(r.Context(), actorFromContext(r.Context()), refundID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, refund)
}

type rejectRefundRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) RejectRefund(w http.ResponseWriter, r *http.Request) {
	refundID, err := refundIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req rejectRefundRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.Reject(r.Context(), actorFromContext(r.Context()), refundID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, refund)
}

type markRefundedRequest struct {
	ProofImage string `json:"proof_image"`
}

// MarkRefunded records the completed payout with its transfer proof.
func (h *Handlers) MarkRefunded(w http.ResponseWriter, r *http.Request) {
	refundID, err := refundIDFromRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req markRefundedRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	refund, err := h.refundService.MarkRefunded(r.Context(), actorFromContext(r.Context()), refundID, req.ProofImage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, refund)
}
