// Package vnpay implements the VNPay hosted payment page and IPN callback.
package vnpay

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/payment"
	"ms-rental/internal/utils"
)

const (
	Name = "vnpay"

	fieldSecureHash     = "vnp_SecureHash"
	fieldSecureHashType = "vnp_SecureHashType"
	dateLayout          = "20060102150405"
)

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
	Locale     string
	// ExpireAfter bounds how long the hosted page accepts payment.
	ExpireAfter time.Duration
}

type Gateway struct {
	cfg    Config
	signer payment.Signer
	zone   *time.Location
	now    func() time.Time
}

func New(cfg Config) *Gateway {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.ExpireAfter == 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	return &Gateway{
		cfg:    cfg,
		signer: payment.NewSHA512Signer(cfg.HashSecret, "vnp_", url.QueryEscape),
		zone:   time.FixedZone("ICT", 7*60*60),
		now:    time.Now,
	}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.Redirect, error) {
	now := g.now().In(g.zone)
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	fields := map[string]string{
		"vnp_Version":    "2.1.0",
		"vnp_Command":    "pay",
		"vnp_TmnCode":    g.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     req.Reference,
		"vnp_OrderInfo":  req.Description,
		"vnp_OrderType":  "other",
		"vnp_Locale":     g.cfg.Locale,
		"vnp_ReturnUrl":  g.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": now.Format(dateLayout),
		"vnp_ExpireDate": now.Add(g.cfg.ExpireAfter).Format(dateLayout),
	}
	canonical := g.signer.Canonicalize(fields)
	signature := g.signer.Sign(canonical)
	return &payment.Redirect{
		URL: g.cfg.PayURL + "?" + canonical + "&" + fieldSecureHash + "=" + signature,
	}, nil
}

// SignQuery returns fields as a query with vnp_SecureHash set, the way VNPay sends an IPN.
func (g *Gateway) SignQuery(fields map[string]string) url.Values {
	q := make(url.Values, len(fields)+1)
	for k, v := range fields {
		q.Set(k, v)
	}
	q.Set(fieldSecureHash, g.signer.Sign(g.signer.Canonicalize(fields)))
	return q
}

// ParseCallback reads the IPN query string.
func (g *Gateway) ParseCallback(r *http.Request) (*payment.Callback, error) {
	query := r.URL.Query()
	fields := make(map[string]string, len(query))
	for k := range query {
		if k == fieldSecureHash || k == fieldSecureHashType {
			continue
		}
		fields[k] = query.Get(k)
	}
	if !g.signer.Verify(fields, query.Get(fieldSecureHash)) {
		return nil, apperr.Authenticity("vnpay signature mismatch for %s", fields["vnp_TxnRef"])
	}

	amount, err := strconv.ParseInt(fields["vnp_Amount"], 10, 64)
	if err != nil {
		return nil, apperr.Validation("vnpay amount %q is not a number", fields["vnp_Amount"])
	}
	code := fields["vnp_ResponseCode"]
	status, hasStatus := fields["vnp_TransactionStatus"]
	return &payment.Callback{
		Reference:   fields["vnp_TxnRef"],
		Amount:      amount / 100,
		Success:     code == "00" && (!hasStatus || status == "00"),
		ResultCode:  code,
		ExternalRef: fields["vnp_TransactionNo"],
	}, nil
}

type ack struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

func (g *Gateway) Acknowledge(w http.ResponseWriter, _ *payment.Callback, outcome payment.Outcome) {
	_ = utils.WriteJSON(w, http.StatusOK, acknowledgment(outcome))
}

func acknowledgment(outcome payment.Outcome) ack {
	switch outcome {
	case payment.OutcomeSuccess, payment.OutcomeDuplicate, payment.OutcomeDeclined:
		return ack{RspCode: "00", Message: "Confirm Success"}
	case payment.OutcomeNotFound:
		return ack{RspCode: "01", Message: "Order not found"}
	case payment.OutcomeAmountMismatch:
		return ack{RspCode: "04", Message: "Invalid amount"}
	case payment.OutcomeInvalidSignature:
		return ack{RspCode: "97", Message: "Invalid signature"}
	default:
		return ack{RspCode: "99", Message: "Unknown error"}
	}
}
