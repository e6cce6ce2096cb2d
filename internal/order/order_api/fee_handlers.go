package order_api

import (
	"net/http"

	"ms-rental/internal/models"
)

func (h *Handler) ListFees(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	fees, err := h.FeeService.ListFees(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusOK, "fees", fees)
}

func (h *Handler) AttachFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req models.AttachFeeRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	attached, err := h.FeeService.AttachFee(r.Context(), actor, id, req.FeeTypeID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusCreated, "fee attached", attached)
}

func (h *Handler) DetachFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "feeId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.FeeService.DetachFee(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusOK, "fee removed", updated)
}
