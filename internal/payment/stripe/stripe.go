// Package stripe implements card payments through Stripe Checkout and its signed webhooks.
package stripe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/payment"
	"ms-rental/internal/utils"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	Name = "stripe"

	eventCheckoutCompleted = "checkout.session.completed"
	eventCheckoutExpired   = "checkout.session.expired"
	maxBodyBytes           = 65536
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
	// APIURL overrides the Stripe API host, used against stripe-mock or test servers.
	APIURL string
}

type Gateway struct {
	cfg Config
	sc  *client.API
}

func New(cfg Config) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "vnd"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backends := stripe.NewBackends(httpClient)
	if cfg.APIURL != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient: httpClient,
			URL:        stripe.String(cfg.APIURL),
		})
		backends.API = backend
		backends.Connect = backend
	}
	return &Gateway{cfg: cfg, sc: client.New(cfg.SecretKey, backends)}
}

func (g *Gateway) Name() string { return Name }

func (g *Gateway) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Redirect, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.cfg.SuccessURL),
		CancelURL:         stripe.String(g.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
		}},
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperr.Upstream(err, "stripe checkout session could not be created")
	}
	return &payment.Redirect{URL: session.URL, ExternalRef: session.ID}, nil
}

// ParseCallback verifies the Stripe-Signature header. Events other than checkout
// completion are returned as declined callbacks without a reference.
func (g *Gateway) ParseCallback(r *http.Request) (*payment.Callback, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperr.Validation("stripe webhook body unreadable")
	}
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, apperr.Authenticity("stripe webhook signature rejected: %v", err)
	}

	switch string(event.Type) {
	case eventCheckoutCompleted, eventCheckoutExpired:
	default:
		return &payment.Callback{ResultCode: string(event.Type), ExternalRef: event.ID}, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, apperr.Validation("stripe checkout session payload malformed")
	}
	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["reference"]
	}
	paid := string(event.Type) == eventCheckoutCompleted &&
		strings.EqualFold(string(session.PaymentStatus), string(stripe.CheckoutSessionPaymentStatusPaid))
	return &payment.Callback{
		Reference:   ref,
		Amount:      session.AmountTotal,
		Success:     paid,
		ResultCode:  string(session.PaymentStatus),
		ExternalRef: session.ID,
	}, nil
}

func (g *Gateway) Acknowledge(w http.ResponseWriter, _ *payment.Callback, outcome payment.Outcome) {
	status := http.StatusOK
	switch outcome {
	case payment.OutcomeInvalidSignature:
		status = http.StatusBadRequest
	case payment.OutcomeError:
		status = http.StatusInternalServerError
	}
	_ = utils.WriteJSON(w, status, map[string]bool{"received": status == http.StatusOK})
}
