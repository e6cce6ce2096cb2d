package order_api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ms-rental/internal/auth"
	"ms-rental/internal/contract"
	"ms-rental/internal/fee"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order"
	"ms-rental/internal/order/db"
	"ms-rental/internal/order/db/dbtest"
	"ms-rental/internal/order/order_api"
	"ms-rental/internal/payment"
	"ms-rental/internal/payment/vnpay"
	"ms-rental/internal/sse"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "handler-test-secret"

type verifiedRenters struct{}

func (verifiedRenters) HasVerifiedDocuments(context.Context, string) (bool, error) { return true, nil }

type flakyGateway struct{}

func (flakyGateway) Name() string { return "flaky" }

func (flakyGateway) Initiate(context.Context, payment.InitiateRequest) (*payment.Redirect, error) {
	return nil, errors.New("connection reset by peer")
}

func (flakyGateway) ParseCallback(*http.Request) (*payment.Callback, error) {
	return nil, errors.New("not supported")
}

func (flakyGateway) Acknowledge(w http.ResponseWriter, _ *payment.Callback, _ payment.Outcome) {
	w.WriteHeader(http.StatusOK)
}

var (
	renter   = models.Actor{ID: "renter-1", Role: models.RoleRenter}
	stranger = models.Actor{ID: "renter-2", Role: models.RoleRenter}
	pickup   = models.Actor{ID: "staff-pickup", Role: models.RoleStaff}
	ret      = models.Actor{ID: "staff-return", Role: models.RoleStaff}
	admin    = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
)

type envelope struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Retryable bool            `json:"retryable"`
}

type harness struct {
	router   http.Handler
	store    *db.DB
	f        *dbtest.Fixture
	vnpay    *vnpay.Gateway
	orders   *order.OrderService
	stations *sse.StationBroker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)
	log := logger.NewWriterLogger(io.Discard)
	stations := sse.NewStationBroker()

	vn := vnpay.New(vnpay.Config{TmnCode: "TMN", HashSecret: "vnpay-secret", PayURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"})
	orders := order.NewOrderService(store, nil, verifiedRenters{}, stations, contract.NewGenerator("contract-secret"), log)
	payments := payment.NewService(store, stations, log, vn, flakyGateway{})
	fees := fee.NewService(store, stations, log)

	r := chi.NewRouter()
	order_api.NewHandler(orders, payments, fees, stations, log).
		Routes(r, auth.Middleware(auth.NewHS256Verifier(jwtSecret, ""), log))

	return &harness{router: r, store: store, f: f, vnpay: vn, orders: orders, stations: stations}
}

func (h *harness) do(t *testing.T, actor *models.Actor, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor != nil {
		tok, err := auth.IssueToken(jwtSecret, "", *actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (h *harness) createOrder(t *testing.T, start time.Time, hours int) models.OrderResponse {
	t.Helper()
	rec, env := h.do(t, &renter, http.MethodPost, "/api/orders", models.OrderRequest{
		VehicleID:       h.f.Vehicle.ID,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(hours) * time.Hour),
		ReturnStationID: h.f.Return.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func tomorrow() time.Time {
	return time.Now().UTC().Add(24 * time.Hour).Truncate(time.Hour)
}

func orderPath(id int64, suffix string) string {
	return "/api/orders/" + strconv.FormatInt(id, 10) + suffix
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec, env := h.do(t, nil, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, nil, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndGetOrder(t *testing.T) {
	h := newHarness(t)
	created := h.createOrder(t, tomorrow(), 3)
	assert.Equal(t, models.OrderBooked, created.Status)
	assert.Equal(t, "BOOKED", created.DisplayStatus)
	assert.Equal(t, int64(3*dbtest.HourlyRate), created.TotalAmount)

	rec, env := h.do(t, &renter, http.MethodGet, orderPath(created.ID, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ID, got.ID)

	rec, env = h.do(t, &stranger, http.MethodGet, orderPath(created.ID, ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "authorization", env.Message)

	rec, _ = h.do(t, &renter, http.MethodGet, "/api/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = h.do(t, &renter, http.MethodGet, "/api/orders/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(t, &admin, http.MethodGet, "/api/orders?status=BOOKED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)

	rec, _ = h.do(t, &admin, http.MethodGet, "/api/orders?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, &renter, http.MethodPost, "/api/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	start := tomorrow()
	rec, _ = h.do(t, &renter, http.MethodPost, "/api/orders", models.OrderRequest{
		VehicleID: h.f.Vehicle.ID, StartTime: start, EndTime: start.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, &renter, http.MethodPost, "/api/orders", map[string]interface{}{"vehicle_id": h.f.Vehicle.ID, "surprise": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, &pickup, http.MethodPost, "/api/orders", models.OrderRequest{
		VehicleID: h.f.Vehicle.ID, StartTime: start, EndTime: start.Add(time.Hour),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOverlapIsConflict(t *testing.T) {
	h := newHarness(t)
	start := tomorrow()
	h.createOrder(t, start, 4)

	rec, env := h.do(t, &renter, http.MethodPost, "/api/orders", models.OrderRequest{
		VehicleID: h.f.Vehicle.ID, StartTime: start.Add(time.Hour), EndTime: start.Add(2 * time.Hour),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "vehicle already booked for requested window", env.Error)
	assert.False(t, env.Retryable)
}

func TestTransitionsOverHTTP(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 2)

	rec, _ := h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/approve"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/approve"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	assert.Equal(t, models.OrderApproved, approved.Status)
	assert.Equal(t, models.PendingHandover, approved.DisplayStatus)

	rec, _ = h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/start"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "before photo is required")

	rec, _ = h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/start"), order.Start{BeforePhotoRef: "before.jpg"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = h.do(t, &ret, http.MethodPost, orderPath(o.ID, "/return"), map[string]interface{}{
		"after_photo_ref": "after.jpg", "condition": "BROKEN", "odometer": 5100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(t, &ret, http.MethodPost, orderPath(o.ID, "/return"), order.Return{
		AfterPhotoRef: "after.jpg", Condition: models.ConditionGood, Odometer: 5100,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &done))
	assert.Equal(t, models.OrderCompleted, done.Status)

	rec, _ = h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/cancel"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectWithReason(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 2)

	rec, env := h.do(t, &admin, http.MethodPost, orderPath(o.ID, "/reject"), order.Reject{Reason: "documents expired"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rejected models.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	assert.Equal(t, models.OrderRejected, rejected.Status)
}

func TestPaymentOverHTTP(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 3)

	rec, env := h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/payments/vnpay"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var redirect models.PaymentRedirect
	require.NoError(t, json.Unmarshal(env.Data, &redirect))
	assert.Contains(t, redirect.RedirectURL, "vnp_SecureHash=")
	assert.True(t, strings.HasPrefix(redirect.Reference, strconv.FormatInt(o.ID, 10)+"_"))

	rec, _ = h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/payments/paypal"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/payments/flaky"), nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, env.Retryable)

	fields := map[string]string{
		"vnp_TmnCode":           "TMN",
		"vnp_Amount":            strconv.FormatInt(o.TotalAmount*100, 10),
		"vnp_TxnRef":            redirect.Reference,
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "777",
	}
	query := h.vnpay.SignQuery(fields)

	tampered := h.vnpay.SignQuery(fields)
	tampered.Set("vnp_Amount", "100")
	rsp := h.ipn(t, tampered.Encode())
	assert.Equal(t, "97", rsp["RspCode"])

	for i := 0; i < 2; i++ {
		rsp = h.ipn(t, query.Encode())
		assert.Equal(t, "00", rsp["RspCode"], "delivery %d", i)
	}
	assert.Equal(t, 1, dbtest.CountPayments(t, h.store, o.ID))

	rec, env = h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/payments/cash"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "policy", env.Message)
}

func (h *harness) ipn(t *testing.T, query string) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/vnpay/ipn?"+query, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUnconfiguredProviderCallback(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/momo/ipn", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCashSettlementOverHTTP(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 2)

	rec, _ := h.do(t, &renter, http.MethodPost, orderPath(o.ID, "/payments/cash"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env := h.do(t, &ret, http.MethodPost, orderPath(o.ID, "/payments/cash"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt models.CashReceipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.Equal(t, o.TotalAmount, receipt.Amount)
	assert.Equal(t, ret.ID, receipt.StaffID)
}

func TestFeesOverHTTP(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 2)

	rec, env := h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/fees"), map[string]int64{"fee_type_id": h.f.FeeTypes[0].ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var attached models.ExtraFee
	require.NoError(t, json.Unmarshal(env.Data, &attached))
	assert.Equal(t, h.f.FeeTypes[0].Amount, attached.Amount)

	rec, _ = h.do(t, &pickup, http.MethodPost, orderPath(o.ID, "/fees"), map[string]int64{"fee_type_id": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = h.do(t, &renter, http.MethodGet, orderPath(o.ID, "/fees"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fees []models.ExtraFee
	require.NoError(t, json.Unmarshal(env.Data, &fees))
	assert.Len(t, fees, 1)

	rec, _ = h.do(t, &renter, http.MethodDelete, fmt.Sprintf("/api/fees/%d", attached.ID), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = h.do(t, &admin, http.MethodDelete, fmt.Sprintf("/api/fees/%d", attached.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.RentalOrder
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, o.BaseAmount, updated.TotalAmount)
}

func TestStationEventsStream(t *testing.T) {
	h := newHarness(t)
	o := h.createOrder(t, tomorrow(), 2)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stations/events", nil)
	require.NoError(t, err)
	tok, err := auth.IssueToken(jwtSecret, "", ret, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: connected", lines.Text())

	// subscription is registered before the connected frame is flushed
	_, err = h.orders.Approve(context.Background(), pickup, o.ID)
	require.NoError(t, err)

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "event: order") {
			require.True(t, lines.Scan())
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, data)
	var event models.OrderEvent
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, o.ID, event.OrderID)
	assert.Equal(t, models.ActionApproved, event.Action)
}

func TestStationEventsForbiddenForRenters(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, &renter, http.MethodGet, "/api/stations/events", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
