package order_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"ms-rental/internal/apperr"
	"ms-rental/internal/auth"
	"ms-rental/internal/fee"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order"
	"ms-rental/internal/payment"
	"ms-rental/internal/sse"
	"ms-rental/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	OrderService   *order.OrderService
	PaymentService *payment.Service
	FeeService     *fee.Service
	Stations       *sse.StationBroker
	Logger         *logger.Logger

	validate *validator.Validate
}

func NewHandler(orders *order.OrderService, payments *payment.Service, fees *fee.Service, stations *sse.StationBroker, log *logger.Logger) *Handler {
	return &Handler{
		OrderService:   orders,
		PaymentService: payments,
		FeeService:     fees,
		Stations:       stations,
		Logger:         log,
		validate:       validator.New(),
	}
}

// Routes mounts the authenticated API under /api and the public provider callbacks.
func (h *Handler) Routes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	r.Get("/payments/vnpay/ipn", h.PaymentCallback("vnpay"))
	r.Post("/payments/momo/ipn", h.PaymentCallback("momo"))
	r.Post("/payments/stripe/webhook", h.PaymentCallback("stripe"))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/", h.ListOrders)

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", h.GetOrder)
				r.Post("/cancel", h.CancelOrder)
				r.Post("/approve", h.ApproveOrder)
				r.Post("/reject", h.RejectOrder)
				r.Post("/start", h.StartRental)
				r.Post("/return", h.ReturnVehicle)

				r.Post("/payments/cash", h.SettleCash)
				r.Post("/payments/{provider}", h.InitiatePayment)

				r.Get("/fees", h.ListFees)
				r.Post("/fees", h.AttachFee)
			})
		})
		r.Delete("/fees/{feeId}", h.DetachFee)
		r.Get("/stations/events", h.StationEvents)
	})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		_ = utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "missing actor"))
	}
	return actor, ok
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	} else {
		h.Logger.Debug("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}

	body := utils.ErrorResponse(string(kind), apperr.PublicMessage(err))
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		body.Retryable = appErr.Retryable()
	}
	_ = utils.WriteJSON(w, status, body)
}

func (h *Handler) writeOK(w http.ResponseWriter, status int, message string, data interface{}) {
	if err := utils.WriteJSON(w, status, utils.SuccessResponse(message, data)); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// decode reads a JSON body into dst and runs struct validation. An empty body is allowed
// when allowEmpty is set.
func (h *Handler) decode(r *http.Request, dst interface{}, allowEmpty bool) error {
	if r.Body == nil || r.ContentLength == 0 {
		if allowEmpty {
			return nil
		}
		return apperr.Validation("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return apperr.Validation("invalid request: %v", err)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("%s must be a positive integer", name)
	}
	return id, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
