package payment

import (
	"context"
	"net/http"
)

// Outcome is the settlement result a provider callback is acknowledged with.
type Outcome string

const (
	OutcomeSuccess          Outcome = "success"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeDeclined         Outcome = "declined"
	OutcomeNotFound         Outcome = "order_not_found"
	OutcomeAmountMismatch   Outcome = "amount_mismatch"
	OutcomeInvalidSignature Outcome = "invalid_signature"
	OutcomeError            Outcome = "error"
)

// Acknowledged reports whether the provider should stop retrying the callback.
func (o Outcome) Acknowledged() bool {
	return o == OutcomeSuccess || o == OutcomeDuplicate || o == OutcomeDeclined
}

type InitiateRequest struct {
	OrderID     int64
	Reference   string
	Amount      int64
	Description string
	ClientIP    string
}

type Redirect struct {
	URL         string
	ExternalRef string
}

// Callback is a provider notification after its signature has been verified.
type Callback struct {
	Reference   string
	Amount      int64
	Success     bool
	ResultCode  string
	ExternalRef string
	// RequestID is echoed back by providers that require it in the acknowledgment.
	RequestID string
}

// Gateway is one hosted payment provider.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error)
	// ParseCallback returns an authenticity error when the signature does not verify.
	ParseCallback(r *http.Request) (*Callback, error)
	// Acknowledge writes the provider-specific reply. cb is nil when parsing failed.
	Acknowledge(w http.ResponseWriter, cb *Callback, outcome Outcome)
}
