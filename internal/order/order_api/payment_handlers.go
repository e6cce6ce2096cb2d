package order_api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// InitiatePayment starts a hosted payment with the provider named in the path.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	provider := chi.URLParam(r, "provider")

	redirect, err := h.PaymentService.Initiate(r.Context(), actor, id, provider, clientIP(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusOK, "payment initiated", redirect)
}

func (h *Handler) SettleCash(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receipt, err := h.PaymentService.SettleCash(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusOK, "cash settled", receipt)
}

// PaymentCallback serves a provider notification. Providers always get their own
// acknowledgment format, never the API error body.
func (h *Handler) PaymentCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gw, err := h.PaymentService.Gateway(provider)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		cb, outcome := h.PaymentService.HandleCallback(r.Context(), provider, r)
		reference := ""
		if cb != nil {
			reference = cb.Reference
		}
		h.Logger.LogPayment(provider, reference, fmt.Sprintf("callback outcome %s", outcome))
		gw.Acknowledge(w, cb, outcome)
	}
}
