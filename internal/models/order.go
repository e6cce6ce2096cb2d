package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderBooked    OrderStatus = "BOOKED"
	OrderApproved  OrderStatus = "APPROVED"
	OrderInUse     OrderStatus = "IN_USE"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCanceled  OrderStatus = "CANCELED"
	OrderRejected  OrderStatus = "REJECTED"
)

// PendingHandover is how APPROVED orders are shown to clients. It is not a stored status.
const PendingHandover = "PENDING_HANDOVER"

// ActiveStatuses hold a vehicle's schedule and take part in overlap checks.
var ActiveStatuses = []OrderStatus{OrderBooked, OrderApproved, OrderInUse}

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCanceled || s == OrderRejected
}

func (s OrderStatus) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	Unpaid PaymentStatus = "UNPAID"
	Paid   PaymentStatus = "PAID"
)

type RentalOrder struct {
	bun.BaseModel `bun:"table:rental_orders,alias:o"`

	ID                  int64         `bun:"id,pk,autoincrement" json:"id"`
	RenterID            string        `bun:"renter_id,notnull" json:"renter_id"`
	VehicleID           int64         `bun:"vehicle_id,notnull" json:"vehicle_id"`
	PickupStationID     int64         `bun:"pickup_station_id,notnull" json:"pickup_station_id"`
	ReturnStationID     int64         `bun:"return_station_id,notnull" json:"return_station_id"`
	StartTime           time.Time     `bun:"start_time,notnull" json:"start_time"`
	EndTime             time.Time     `bun:"end_time,notnull" json:"end_time"`
	Status              OrderStatus   `bun:"status,notnull" json:"status"`
	PaymentStatus       PaymentStatus `bun:"payment_status,notnull" json:"payment_status"`
	BaseAmount          int64         `bun:"base_amount,notnull" json:"base_amount"`
	TotalAmount         int64         `bun:"total_amount,notnull" json:"total_amount"`
	DepositAmount       int64         `bun:"deposit_amount,notnull" json:"deposit_amount"`
	BeforePhotoRef      string        `bun:"before_photo_ref,nullzero" json:"before_photo_ref,omitempty"`
	AfterPhotoRef       string        `bun:"after_photo_ref,nullzero" json:"after_photo_ref,omitempty"`
	ReturnConditionNote string        `bun:"return_condition_note,nullzero" json:"return_condition_note,omitempty"`
	CreatedAt           time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt           time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// Overlaps reports whether two half-open [start, end) windows intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// OrderRequest is the renter's create payload.
type OrderRequest struct {
	VehicleID       int64     `json:"vehicle_id" validate:"required,gt=0"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	ReturnStationID int64     `json:"return_station_id,omitempty" validate:"omitempty,gt=0"`
}

type OrderFilter struct {
	Status OrderStatus
	Limit  int
}

type OrderResponse struct {
	RentalOrder
	DisplayStatus string `json:"display_status"`
}

func NewOrderResponse(o RentalOrder) OrderResponse {
	display := string(o.Status)
	if o.Status == OrderApproved {
		display = PendingHandover
	}
	return OrderResponse{RentalOrder: o, DisplayStatus: display}
}
