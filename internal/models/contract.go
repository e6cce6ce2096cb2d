package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Contract struct {
	bun.BaseModel `bun:"table:contracts,alias:c"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	OrderID     int64     `bun:"order_id,notnull,unique" json:"order_id"`
	StaffID     string    `bun:"staff_id,notnull" json:"staff_id"`
	SignedAt    time.Time `bun:"signed_at,notnull" json:"signed_at"`
	DocumentRef string    `bun:"document_ref,notnull" json:"document_ref"`
	QRCode      []byte    `bun:"qr_code" json:"-"`
}

// ContractPayload is what gets encrypted into the contract QR code.
type ContractPayload struct {
	DocumentRef string    `json:"document_ref"`
	OrderID     int64     `json:"order_id"`
	RenterID    string    `json:"renter_id"`
	VehicleID   int64     `json:"vehicle_id"`
	StaffID     string    `json:"staff_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	TotalAmount int64     `json:"total_amount"`
	SignedAt    time.Time `json:"signed_at"`
}
