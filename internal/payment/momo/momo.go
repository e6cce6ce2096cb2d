// Package momo implements the MoMo wallet create-payment API and IPN callback.
package momo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/payment"
	"ms-rental/internal/utils"
)

const Name = "momo"

// Alphabetical field lists signed by MoMo.
var (
	createFields = []string{
		"accessKey", "amount", "extraData", "ipnUrl", "orderId", "orderInfo",
		"partnerCode", "redirectUrl", "requestId", "requestType",
	}
	ipnFields = []string{
		"accessKey", "amount", "extraData", "message", "orderId", "orderInfo", "orderType",
		"partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId",
	}
)

type Config struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Timeout     time.Duration
}

type Gateway struct {
	cfg       Config
	client    *http.Client
	createSig payment.Signer
	ipnSig    payment.Signer
}

func New(cfg Config) *Gateway {
	if cfg.RequestType == "" {
		cfg.RequestType = "captureWallet"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		createSig: payment.NewSHA256Signer(cfg.SecretKey, createFields),
		ipnSig:    payment.NewSHA256Signer(cfg.SecretKey, ipnFields),
	}
}

func (g *Gateway) Name() string { return Name }

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
	PayURL      string `json:"payUrl"`
}

func (g *Gateway) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Redirect, error) {
	amount := strconv.FormatInt(req.Amount, 10)
	fields := map[string]string{
		"accessKey":   g.cfg.AccessKey,
		"amount":      amount,
		"extraData":   "",
		"ipnUrl":      g.cfg.IPNURL,
		"orderId":     req.Reference,
		"orderInfo":   req.Description,
		"partnerCode": g.cfg.PartnerCode,
		"redirectUrl": g.cfg.RedirectURL,
		"requestId":   req.Reference,
		"requestType": g.cfg.RequestType,
	}
	body, err := json.Marshal(createRequest{
		PartnerCode: g.cfg.PartnerCode,
		RequestID:   req.Reference,
		Amount:      req.Amount,
		OrderID:     req.Reference,
		OrderInfo:   req.Description,
		RedirectURL: g.cfg.RedirectURL,
		IPNURL:      g.cfg.IPNURL,
		RequestType: g.cfg.RequestType,
		Lang:        "vi",
		Signature:   g.createSig.Sign(g.createSig.Canonicalize(fields)),
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Upstream(err, "momo create payment request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "momo create payment response unreadable")
	}
	if resp.StatusCode >= 300 {
		return nil, apperr.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, raw), "momo rejected create payment")
	}
	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Upstream(err, "momo create payment response malformed")
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return nil, apperr.Upstream(fmt.Errorf("resultCode %d: %s", out.ResultCode, out.Message), "momo declined create payment")
	}
	return &payment.Redirect{URL: out.PayURL}, nil
}

// IPN is the body MoMo posts to the notification URL.
type IPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// Fields returns the signed IPN values keyed by MoMo field name.
func (n IPN) Fields(accessKey string) map[string]string {
	return map[string]string{
		"accessKey":    accessKey,
		"amount":       strconv.FormatInt(n.Amount, 10),
		"extraData":    n.ExtraData,
		"message":      n.Message,
		"orderId":      n.OrderID,
		"orderInfo":    n.OrderInfo,
		"orderType":    n.OrderType,
		"partnerCode":  n.PartnerCode,
		"payType":      n.PayType,
		"requestId":    n.RequestID,
		"responseTime": strconv.FormatInt(n.ResponseTime, 10),
		"resultCode":   strconv.Itoa(n.ResultCode),
		"transId":      strconv.FormatInt(n.TransID, 10),
	}
}

// Sign fills in the IPN signature. MoMo does this on its side; tests and sandboxes use it.
func (g *Gateway) Sign(n *IPN) {
	n.Signature = g.ipnSig.Sign(g.ipnSig.Canonicalize(n.Fields(g.cfg.AccessKey)))
}

func (g *Gateway) ParseCallback(r *http.Request) (*payment.Callback, error) {
	var n IPN
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&n); err != nil {
		return nil, apperr.Validation("momo notification is not valid JSON")
	}
	if !g.ipnSig.Verify(n.Fields(g.cfg.AccessKey), n.Signature) {
		return nil, apperr.Authenticity("momo signature mismatch for %s", n.OrderID)
	}
	return &payment.Callback{
		Reference:   n.OrderID,
		Amount:      n.Amount,
		Success:     n.ResultCode == 0,
		ResultCode:  strconv.Itoa(n.ResultCode),
		ExternalRef: strconv.FormatInt(n.TransID, 10),
		RequestID:   n.RequestID,
	}, nil
}

type ack struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	ResponseTime int64  `json:"responseTime"`
}

func (g *Gateway) Acknowledge(w http.ResponseWriter, cb *payment.Callback, outcome payment.Outcome) {
	a := ack{PartnerCode: g.cfg.PartnerCode, ResponseTime: time.Now().UnixMilli()}
	if cb != nil {
		a.OrderID = cb.Reference
		a.RequestID = cb.RequestID
	}
	switch outcome {
	case payment.OutcomeSuccess, payment.OutcomeDuplicate, payment.OutcomeDeclined:
		a.Message = "Success"
	case payment.OutcomeNotFound:
		a.ResultCode, a.Message = 42, "Order not found"
	case payment.OutcomeAmountMismatch:
		a.ResultCode, a.Message = 22, "Invalid amount"
	case payment.OutcomeInvalidSignature:
		a.ResultCode, a.Message = 11, "Invalid signature"
	default:
		a.ResultCode, a.Message = 99, "Unknown error"
	}
	_ = utils.WriteJSON(w, http.StatusOK, a)
}
