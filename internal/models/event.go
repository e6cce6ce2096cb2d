package models

import "time"

type OrderAction string

const (
	ActionCreated    OrderAction = "CREATED"
	ActionCanceled   OrderAction = "CANCELED"
	ActionApproved   OrderAction = "APPROVED"
	ActionRejected   OrderAction = "REJECTED"
	ActionStarted    OrderAction = "STARTED"
	ActionReturned   OrderAction = "RETURNED"
	ActionPaid       OrderAction = "PAID"
	ActionFeeAdded   OrderAction = "FEE_ATTACHED"
	ActionFeeRemoved OrderAction = "FEE_DETACHED"
)

// OrderEvent is published to the notification sinks after a committed change.
type OrderEvent struct {
	OrderID         int64         `json:"order_id"`
	Action          OrderAction   `json:"action"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TotalAmount     int64         `json:"total_amount"`
	RenterID        string        `json:"renter_id"`
	ActorID         string        `json:"actor_id"`
	VehicleID       int64         `json:"vehicle_id"`
	PickupStationID int64         `json:"pickup_station_id"`
	ReturnStationID int64         `json:"return_station_id"`
	Detail          string        `json:"detail,omitempty"`
	OccurredAt      time.Time     `json:"occurred_at"`
}

func NewOrderEvent(o RentalOrder, action OrderAction, actorID string, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:         o.ID,
		Action:          action,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		TotalAmount:     o.TotalAmount,
		RenterID:        o.RenterID,
		ActorID:         actorID,
		VehicleID:       o.VehicleID,
		PickupStationID: o.PickupStationID,
		ReturnStationID: o.ReturnStationID,
		OccurredAt:      at,
	}
}
