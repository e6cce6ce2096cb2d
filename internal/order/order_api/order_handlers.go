package order_api

import (
	"fmt"
	"net/http"
	"strconv"

	"ms-rental/internal/apperr"
	"ms-rental/internal/models"
	"ms-rental/internal/order"
)

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req models.OrderRequest
	if err := h.decode(r, &req, false); err != nil {
		h.writeError(w, r, err)
		return
	}

	created, err := h.OrderService.CreateOrder(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: order %d created by %s", created.ID, actor.ID))
	h.writeOK(w, http.StatusCreated, "order created", models.NewOrderResponse(*created))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.OrderService.GetOrder(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeOK(w, http.StatusOK, "order", models.NewOrderResponse(*o))
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter := models.OrderFilter{Status: models.OrderStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, r, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	orders, err := h.OrderService.ListOrders(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, models.NewOrderResponse(o))
	}
	h.writeOK(w, http.StatusOK, "orders", out)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request) (order.Action, error) { return order.Cancel{}, nil })
}

func (h *Handler) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request) (order.Action, error) { return order.Approve{}, nil })
}

func (h *Handler) RejectOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request) (order.Action, error) {
		var in order.Reject
		err := h.decode(r, &in, true)
		return in, err
	})
}

func (h *Handler) StartRental(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request) (order.Action, error) {
		var in order.Start
		err := h.decode(r, &in, false)
		return in, err
	})
}

func (h *Handler) ReturnVehicle(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(r *http.Request) (order.Action, error) {
		var in order.Return
		err := h.decode(r, &in, false)
		return in, err
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, parse func(*http.Request) (order.Action, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "orderId")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	action, err := parse(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	updated, err := h.OrderService.Transition(r.Context(), actor, id, action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("%s: order %d now %s (by %s)", action.Kind(), id, updated.Status, actor.ID))
	h.writeOK(w, http.StatusOK, string(action.Kind()), models.NewOrderResponse(*updated))
}
