package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentKind string

const (
	PaymentKindRental   PaymentKind = "RENTAL"
	PaymentKindExtraFee PaymentKind = "EXTRA_FEE"
)

// MethodCash marks in-person settlement. Gateway payments use the gateway name.
const MethodCash = "cash"

// Payment rows are append only.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID          int64       `bun:"id,pk,autoincrement" json:"id"`
	OrderID     int64       `bun:"order_id,notnull" json:"order_id"`
	Amount      int64       `bun:"amount,notnull" json:"amount"`
	Method      string      `bun:"method,notnull" json:"method"`
	Kind        PaymentKind `bun:"kind,notnull" json:"kind"`
	ExternalRef string      `bun:"external_ref,nullzero" json:"external_ref,omitempty"`
	CreatedAt   time.Time   `bun:"created_at,notnull" json:"created_at"`
}

type PaymentRedirect struct {
	Provider    string `json:"provider"`
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

type CashReceipt struct {
	PaymentID int64     `json:"payment_id"`
	OrderID   int64     `json:"order_id"`
	Amount    int64     `json:"amount"`
	StaffID   string    `json:"staff_id"`
	SettledAt time.Time `json:"settled_at"`
}
