package order

import (
	"context"
	"fmt"

	"ms-rental/internal/apperr"
	"ms-rental/internal/models"
	"ms-rental/internal/order/db"
)

type ActionKind string

const (
	KindCancel  ActionKind = "cancel"
	KindApprove ActionKind = "approve"
	KindReject  ActionKind = "reject"
	KindStart   ActionKind = "start"
	KindReturn  ActionKind = "return"
)

// Action is one of Cancel, Approve, Reject, Start or Return.
type Action interface {
	Kind() ActionKind
	validate() error
}

type Cancel struct{}

type Approve struct{}

type Reject struct {
	Reason string `json:"reason,omitempty"`
}

type Start struct {
	BeforePhotoRef string `json:"before_photo_ref" validate:"required"`
}

type Return struct {
	AfterPhotoRef string                  `json:"after_photo_ref" validate:"required"`
	Condition     models.VehicleCondition `json:"condition" validate:"required,oneof=GOOD IN_REPAIR DAMAGED"`
	ConditionNote string                  `json:"condition_note,omitempty"`
	Odometer      int64                   `json:"odometer" validate:"gte=0"`
}

func (Cancel) Kind() ActionKind  { return KindCancel }
func (Approve) Kind() ActionKind { return KindApprove }
func (Reject) Kind() ActionKind  { return KindReject }
func (Start) Kind() ActionKind   { return KindStart }
func (Return) Kind() ActionKind  { return KindReturn }

func (Cancel) validate() error  { return nil }
func (Approve) validate() error { return nil }
func (Reject) validate() error  { return nil }

func (a Start) validate() error {
	if a.BeforePhotoRef == "" {
		return apperr.Validation("before-photo reference is required")
	}
	return nil
}

func (a Return) validate() error {
	if a.AfterPhotoRef == "" {
		return apperr.Validation("after-photo reference is required")
	}
	if !a.Condition.Valid() {
		return apperr.Validation("condition must be GOOD, IN_REPAIR or DAMAGED")
	}
	if a.Odometer < 0 {
		return apperr.Validation("odometer reading must not be negative")
	}
	return nil
}

var (
	staffOrAdmin = []models.Role{models.RoleStaff, models.RoleAdmin}
	renterOnly   = []models.Role{models.RoleRenter}
)

// transition is one row of the lifecycle table.
type transition struct {
	rule   Rule
	from   models.OrderStatus
	to     models.OrderStatus
	event  models.OrderAction
	effect func(ctx context.Context, s *OrderService, repo db.Repository, actor models.Actor, o *models.RentalOrder, a Action) error
}

var transitions = map[ActionKind]transition{
	KindCancel: {
		rule:  Rule{Roles: renterOnly, Scope: ScopeOwner},
		from:  models.OrderBooked,
		to:    models.OrderCanceled,
		event: models.ActionCanceled,
	},
	KindApprove: {
		rule:   Rule{Roles: staffOrAdmin, Scope: ScopePickup},
		from:   models.OrderBooked,
		to:     models.OrderApproved,
		event:  models.ActionApproved,
		effect: approveEffect,
	},
	KindReject: {
		rule:  Rule{Roles: staffOrAdmin, Scope: ScopePickup},
		from:  models.OrderBooked,
		to:    models.OrderRejected,
		event: models.ActionRejected,
	},
	KindStart: {
		rule:   Rule{Roles: staffOrAdmin, Scope: ScopePickup},
		from:   models.OrderApproved,
		to:     models.OrderInUse,
		event:  models.ActionStarted,
		effect: startEffect,
	},
	KindReturn: {
		rule:   Rule{Roles: staffOrAdmin, Scope: ScopeReturn},
		from:   models.OrderInUse,
		to:     models.OrderCompleted,
		event:  models.ActionReturned,
		effect: returnEffect,
	},
}

// RuleFor exposes the authorization precondition of an action.
func RuleFor(kind ActionKind) (Rule, bool) {
	t, ok := transitions[kind]
	return t.rule, ok
}

// Transition applies action to the order in one atomic unit. The order's status is re-read
// under a row lock, never trusted from the caller.
func (s *OrderService) Transition(ctx context.Context, actor models.Actor, orderID int64, action Action) (*models.RentalOrder, error) {
	if action == nil {
		return nil, apperr.Validation("action is required")
	}
	t, ok := transitions[action.Kind()]
	if !ok {
		return nil, apperr.Validation("unknown action %q", action.Kind())
	}
	if err := t.rule.CheckRole(actor); err != nil {
		return nil, err
	}

	var updated models.RentalOrder
	err := s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			// only admins learn whether an order they cannot act on exists
			if apperr.Is(err, apperr.KindNotFound) && actor.Role != models.RoleAdmin {
				return apperr.Forbidden("%s not permitted on order %d", action.Kind(), orderID)
			}
			return err
		}
		if err := Authorize(ctx, repo, actor, t.rule, o); err != nil {
			return err
		}
		if err := action.validate(); err != nil {
			return err
		}
		if o.Status != t.from {
			return apperr.Policy("order %d is %s, %s requires %s", o.ID, o.Status, action.Kind(), t.from)
		}
		if t.effect != nil {
			if err := t.effect(ctx, s, repo, actor, o, action); err != nil {
				return err
			}
		}
		o.Status = t.to
		o.UpdatedAt = s.now()
		if err := repo.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder(string(t.event), updated.ID, fmt.Sprintf("%s by %s %s", updated.Status, actor.Role, actor.ID))
	event := models.NewOrderEvent(updated, t.event, actor.ID, updated.UpdatedAt)
	if r, ok := action.(Reject); ok {
		event.Detail = r.Reason
	}
	s.Notify(ctx, event)
	return &updated, nil
}

func (s *OrderService) Cancel(ctx context.Context, actor models.Actor, orderID int64) (*models.RentalOrder, error) {
	return s.Transition(ctx, actor, orderID, Cancel{})
}

func (s *OrderService) Approve(ctx context.Context, actor models.Actor, orderID int64) (*models.RentalOrder, error) {
	return s.Transition(ctx, actor, orderID, Approve{})
}

func (s *OrderService) Reject(ctx context.Context, actor models.Actor, orderID int64, reason string) (*models.RentalOrder, error) {
	return s.Transition(ctx, actor, orderID, Reject{Reason: reason})
}

func (s *OrderService) StartRental(ctx context.Context, actor models.Actor, orderID int64, in Start) (*models.RentalOrder, error) {
	return s.Transition(ctx, actor, orderID, in)
}

func (s *OrderService) ReturnVehicle(ctx context.Context, actor models.Actor, orderID int64, in Return) (*models.RentalOrder, error) {
	return s.Transition(ctx, actor, orderID, in)
}

// approveEffect records the handover contract signed by the approving staff member.
func approveEffect(ctx context.Context, s *OrderService, repo db.Repository, actor models.Actor, o *models.RentalOrder, _ Action) error {
	if s.Contracts == nil {
		return nil
	}
	contract, err := s.Contracts.Issue(*o, actor.ID, s.now())
	if err != nil {
		return fmt.Errorf("issue contract for order %d: %w", o.ID, err)
	}
	return repo.InsertContract(ctx, contract)
}

func startEffect(ctx context.Context, s *OrderService, repo db.Repository, _ models.Actor, o *models.RentalOrder, a Action) error {
	in := a.(Start)
	if o.VehicleID == 0 {
		return apperr.Policy("order %d has no vehicle attached", o.ID)
	}
	vehicle, err := repo.LockVehicle(ctx, o.VehicleID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Policy("order %d has no vehicle attached", o.ID)
		}
		return err
	}
	if !vehicle.IsAvailable {
		return apperr.Policy("vehicle %d is not available for handover", vehicle.ID)
	}
	vehicle.IsAvailable = false
	if err := repo.UpdateVehicle(ctx, vehicle, "is_available"); err != nil {
		return err
	}
	o.BeforePhotoRef = in.BeforePhotoRef
	return nil
}

func returnEffect(ctx context.Context, s *OrderService, repo db.Repository, _ models.Actor, o *models.RentalOrder, a Action) error {
	in := a.(Return)
	vehicle, err := repo.LockVehicle(ctx, o.VehicleID)
	if err != nil {
		return err
	}
	if in.Odometer < vehicle.CurrentMileage {
		return apperr.Integrity("odometer reading %d is lower than recorded mileage %d", in.Odometer, vehicle.CurrentMileage)
	}
	vehicle.IsAvailable = true
	vehicle.StationID = o.ReturnStationID
	vehicle.Condition = in.Condition
	vehicle.CurrentMileage = in.Odometer
	if err := repo.UpdateVehicle(ctx, vehicle, "is_available", "station_id", "condition", "current_mileage"); err != nil {
		return err
	}

	o.AfterPhotoRef = in.AfterPhotoRef
	o.ReturnConditionNote = in.ConditionNote
	if o.PaymentStatus != models.Paid {
		s.Logger.Warn("ORDER", fmt.Sprintf("order %d returned while unpaid, closing the cycle as paid", o.ID))
		o.PaymentStatus = models.Paid
	}
	return nil
}
