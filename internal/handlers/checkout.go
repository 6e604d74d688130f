package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/threadlane/threadlane/internal/models"
	"github.com/threadlane/threadlane/internal/pricing"
	"github.com/threadlane/threadlane/internal/services"
	"github.com/threadlane/threadlane/internal/shoperr"
)

type checkoutRequest struct {
	Lines              []pricing.CartLine   `json:"lines"`
	VoucherCode        string               `json:"voucher_code"`
	RecipientName      string               `json:"recipient_name"`
	RecipientPhone     string               `json:"recipient_phone"`
	ShippingAddress    string               `json:"shipping_address"`
	Note               string               `json:"note"`
	CustomerEmail      string               `json:"customer_email"`
	PaymentMethod      models.PaymentMethod `json:"payment_method"`
	ExpectedTotalCents *int64               `json:"expected_total_cents"`
}

func (r checkoutRequest) toInput(actor models.Actor) (services.CheckoutInput, error) {
	customerID, err := uuid.Parse(actor.ID)
	if err != nil {
		return services.CheckoutInput{}, shoperr.Forbidden("unknown customer identity")
	}
	return services.CheckoutInput{
		CustomerID:         customerID,
		CustomerEmail:      r.CustomerEmail,
		Lines:              r.Lines,
		VoucherCode:        r.VoucherCode,
		RecipientName:      r.RecipientName,
		RecipientPhone:     r.RecipientPhone,
		ShippingAddress:    r.ShippingAddress,
		Note:               r.Note,
		PaymentMethod:      r.PaymentMethod,
		ExpectedTotalCents: r.ExpectedTotalCents,
	}, nil
}

// PreviewCheckout quotes the cart without committing anything.
func (h *Handlers) PreviewCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	input, err := req.toInput(actorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	preview, err := h.checkoutService.Preview(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, preview)
}

// PlaceOrder commits the checkout and, for gateway orders, returns the payment
// redirect alongside the created order.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	input, err := req.toInput(actorFromContext(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.checkoutService.Place(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, result)
}
