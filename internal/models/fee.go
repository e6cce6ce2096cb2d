package models

import (
	"time"

	"github.com/uptrace/bun"
)

type FeeType struct {
	bun.BaseModel `bun:"table:fee_types,alias:ft"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	Name   string `bun:"name,notnull" json:"name"`
	Amount int64  `bun:"amount,notnull" json:"amount"`
}

// ExtraFee copies name and amount from its FeeType when attached.
type ExtraFee struct {
	bun.BaseModel `bun:"table:extra_fees,alias:ef"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	OrderID   int64     `bun:"order_id,notnull" json:"order_id"`
	FeeTypeID int64     `bun:"fee_type_id,notnull" json:"fee_type_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Amount    int64     `bun:"amount,notnull" json:"amount"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

type AttachFeeRequest struct {
	FeeTypeID int64 `json:"fee_type_id" validate:"required,gt=0"`
}
