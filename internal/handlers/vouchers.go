package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/threadlane/threadlane/internal/models"
)

func (h *Handlers) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var voucher models.Voucher
	if err := h.decodeJSON(w, r, &voucher); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.voucherService.Create(r.Context(), actorFromContext(r.Context()), &voucher); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, voucher)
}

func (h *Handlers) UpdateVoucher(w http.ResponseWriter, r *http.Request) {
	var voucher models.Voucher
	if err := h.decodeJSON(w, r, &voucher); err != nil {
		h.writeError(w, r, err)
		return
	}
	// The path names the voucher; the body cannot rename it.
	voucher.Code = mux.Vars(r)["code"]

	if err := h.voucherService.Update(r.Context(), actorFromContext(r.Context()), &voucher); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, voucher)
}

func (h *Handlers) GetVoucher(w http.ResponseWriter, r *http.Request) {
	voucher, err := h.voucherService.Get(r.Context(), actorFromContext(r.Context()), mux.Vars(r)["code"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, voucher)
}

func (h *Handlers) ListVouchers(w http.ResponseWriter, r *http.Request) {
	vouchers, err := h.voucherService.List(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{"vouchers": vouchers})
}
