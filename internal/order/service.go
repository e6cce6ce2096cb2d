package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order/db"
	orderredis "ms-rental/internal/order/redis"
)

type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo db.Repository) error) error
	Repo() db.Repository
}

// ScheduleLock serializes create-time schedule checks per vehicle.
type ScheduleLock interface {
	Lock(ctx context.Context, vehicleID int64) (string, error)
	Unlock(ctx context.Context, vehicleID int64, owner string) error
}

// IdentityGate answers whether a renter may book.
type IdentityGate interface {
	HasVerifiedDocuments(ctx context.Context, renterID string) (bool, error)
}

// Notifier receives committed order events. Errors are logged, never propagated.
type Notifier interface {
	Notify(ctx context.Context, event models.OrderEvent) error
}

// ContractIssuer builds the handover contract for an approved order.
type ContractIssuer interface {
	Issue(order models.RentalOrder, staffID string, signedAt time.Time) (*models.Contract, error)
}

type OrderService struct {
	Store     Store
	Lock      ScheduleLock
	Identity  IdentityGate
	Notifier  Notifier
	Contracts ContractIssuer
	Logger    *logger.Logger

	// Now is the engine clock. Tests pin it.
	Now           func() time.Time
	NotifyTimeout time.Duration
}

func NewOrderService(store Store, lock ScheduleLock, identity IdentityGate, notifier Notifier, contracts ContractIssuer, log *logger.Logger) *OrderService {
	return &OrderService{
		Store:         store,
		Lock:          lock,
		Identity:      identity,
		Notifier:      notifier,
		Contracts:     contracts,
		Logger:        log,
		Now:           time.Now,
		NotifyTimeout: 5 * time.Second,
	}
}

func (s *OrderService) now() time.Time {
	return s.Now().UTC().Truncate(time.Second)
}

var createRule = Rule{Roles: []models.Role{models.RoleRenter}}

// BillableHours rounds the window up to whole hours.
func BillableHours(start, end time.Time) int64 {
	d := end.Sub(start)
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

func validateWindow(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validation("start and end time are required")
	}
	if !end.After(start) {
		return apperr.Validation("end time must be after start time")
	}
	if start.Before(now) {
		return apperr.Validation("start time %s is in the past", start.Format(time.RFC3339))
	}
	return nil
}

// ---------------- CREATE ----------------

func (s *OrderService) CreateOrder(ctx context.Context, actor models.Actor, req models.OrderRequest) (*models.RentalOrder, error) {
	if err := createRule.CheckRole(actor); err != nil {
		return nil, err
	}
	if req.VehicleID <= 0 {
		return nil, apperr.Validation("vehicle id is required")
	}
	start := req.StartTime.UTC().Truncate(time.Second)
	end := req.EndTime.UTC().Truncate(time.Second)
	now := s.now()
	if err := validateWindow(start, end, now); err != nil {
		return nil, err
	}

	verified, err := s.Identity.HasVerifiedDocuments(ctx, actor.ID)
	if err != nil {
		return nil, apperr.Upstream(err, "identity verification unavailable")
	}
	if !verified {
		return nil, apperr.Policy("renter %s has no verified documents", actor.ID)
	}

	if s.Lock != nil {
		owner, err := s.Lock.Lock(ctx, req.VehicleID)
		if err != nil {
			if errors.Is(err, orderredis.ErrLockBusy) {
				return nil, apperr.Upstream(err, "vehicle %d is being booked by another request, retry", req.VehicleID)
			}
			return nil, fmt.Errorf("lock vehicle %d: %w", req.VehicleID, err)
		}
		defer func() {
			if err := s.Lock.Unlock(context.WithoutCancel(ctx), req.VehicleID, owner); err != nil {
				s.Logger.Warn("REDIS", fmt.Sprintf("failed to release vehicle %d lock: %v", req.VehicleID, err))
			}
		}()
	}

	var created models.RentalOrder
	err = s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		vehicle, err := repo.LockVehicle(ctx, req.VehicleID)
		if err != nil {
			return err
		}
		returnStation := vehicle.StationID
		if req.ReturnStationID != 0 && req.ReturnStationID != vehicle.StationID {
			station, err := repo.GetStation(ctx, req.ReturnStationID)
			if err != nil {
				return err
			}
			returnStation = station.ID
		}
		if !vehicle.IsAvailable || vehicle.Condition != models.ConditionGood {
			return apperr.Policy("vehicle %d is not available for booking", vehicle.ID)
		}

		active, err := repo.ListActiveOrdersForVehicle(ctx, vehicle.ID)
		if err != nil {
			return err
		}
		for _, existing := range active {
			if models.Overlaps(start, end, existing.StartTime, existing.EndTime) {
				return apperr.Policy("vehicle already booked for requested window")
			}
		}

		base := BillableHours(start, end) * vehicle.HourlyRate
		created = models.RentalOrder{
			RenterID:        actor.ID,
			VehicleID:       vehicle.ID,
			PickupStationID: vehicle.StationID,
			ReturnStationID: returnStation,
			StartTime:       start,
			EndTime:         end,
			Status:          models.OrderBooked,
			PaymentStatus:   models.Unpaid,
			BaseAmount:      base,
			TotalAmount:     base,
			DepositAmount:   vehicle.DepositAmount,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return repo.InsertOrder(ctx, &created)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("CREATE", created.ID, fmt.Sprintf("renter %s booked vehicle %d for %s - %s, total %d",
		actor.ID, created.VehicleID, start.Format(time.RFC3339), end.Format(time.RFC3339), created.TotalAmount))
	s.Notify(ctx, models.NewOrderEvent(created, models.ActionCreated, actor.ID, now))
	return &created, nil
}

// ---------------- QUERIES ----------------

func (s *OrderService) GetOrder(ctx context.Context, actor models.Actor, id int64) (*models.RentalOrder, error) {
	repo := s.Store.Repo()
	o, err := repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanView(ctx, repo, actor, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderService) ListOrders(ctx context.Context, actor models.Actor, filter models.OrderFilter) ([]models.RentalOrder, error) {
	repo := s.Store.Repo()
	q := db.OrderQuery{Status: filter.Status, Limit: filter.Limit}
	switch actor.Role {
	case models.RoleRenter:
		q.RenterID = actor.ID
	case models.RoleStaff:
		station, err := StaffStation(ctx, repo, actor.ID)
		if err != nil {
			return nil, err
		}
		q.StationID = station
	case models.RoleAdmin:
	default:
		return nil, apperr.Forbidden("unknown role %q", actor.Role)
	}
	return repo.ListOrders(ctx, q)
}

// FeedStation picks the station whose events the actor may follow. Admins follow all stations (0).
func (s *OrderService) FeedStation(ctx context.Context, actor models.Actor) (int64, error) {
	switch actor.Role {
	case models.RoleStaff:
		return StaffStation(ctx, s.Store.Repo(), actor.ID)
	case models.RoleAdmin:
		return 0, nil
	default:
		return 0, apperr.Forbidden("station feed is for staff")
	}
}

// Notify hands a committed event to the sink with a bounded timeout. Failures are only logged.
func (s *OrderService) Notify(ctx context.Context, event models.OrderEvent) {
	if s.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.NotifyTimeout)
	defer cancel()
	if err := s.Notifier.Notify(ctx, event); err != nil {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("order %d %s event not delivered: %v", event.OrderID, event.Action, err))
	}
}
