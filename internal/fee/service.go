// Package fee keeps the auxiliary charges attached to a rental order and the order total in step.
package fee

import (
	"context"
	"fmt"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order"
	"ms-rental/internal/order/db"
)

var (
	manageRule = order.Rule{Roles: []models.Role{models.RoleStaff, models.RoleAdmin}, Scope: order.ScopeEitherStation}
)

type Service struct {
	Store    order.Store
	Notifier order.Notifier
	Logger   *logger.Logger
	Now      func() time.Time

	NotifyTimeout time.Duration
}

func NewService(store order.Store, notifier order.Notifier, log *logger.Logger) *Service {
	return &Service{
		Store:         store,
		Notifier:      notifier,
		Logger:        log,
		Now:           time.Now,
		NotifyTimeout: 5 * time.Second,
	}
}

func checkOpen(o *models.RentalOrder) error {
	if o.PaymentStatus == models.Paid {
		return apperr.Policy("order already paid")
	}
	if o.Status.Terminal() {
		return apperr.Policy("order %d is %s", o.ID, o.Status)
	}
	return nil
}

// AttachFee copies the fee type's current name and amount onto the order.
func (s *Service) AttachFee(ctx context.Context, actor models.Actor, orderID, feeTypeID int64) (*models.ExtraFee, error) {
	if err := manageRule.CheckRole(actor); err != nil {
		return nil, err
	}

	var attached models.ExtraFee
	var updated models.RentalOrder
	err := s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Authorize(ctx, repo, actor, manageRule, o); err != nil {
			return err
		}
		if err := checkOpen(o); err != nil {
			return err
		}
		feeType, err := repo.GetFeeType(ctx, feeTypeID)
		if err != nil {
			return err
		}
		if feeType.Amount < 0 {
			return apperr.Integrity("fee type %d has a negative amount", feeType.ID)
		}

		now := s.Now().UTC()
		attached = models.ExtraFee{
			OrderID:   o.ID,
			FeeTypeID: feeType.ID,
			Name:      feeType.Name,
			Amount:    feeType.Amount,
			CreatedAt: now,
		}
		if err := repo.InsertExtraFee(ctx, &attached); err != nil {
			return err
		}
		o.TotalAmount += attached.Amount
		o.UpdatedAt = now
		if err := repo.UpdateOrder(ctx, o, "total_amount", "updated_at"); err != nil {
			return err
		}
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("FEE_ATTACH", orderID, fmt.Sprintf("%s (%d) added by %s, total now %d", attached.Name, attached.Amount, actor.ID, updated.TotalAmount))
	event := models.NewOrderEvent(updated, models.ActionFeeAdded, actor.ID, updated.UpdatedAt)
	event.Detail = attached.Name
	s.notify(ctx, event)
	return &attached, nil
}

// DetachFee removes a fee. The order total never drops below zero.
func (s *Service) DetachFee(ctx context.Context, actor models.Actor, feeID int64) (*models.RentalOrder, error) {
	if err := manageRule.CheckRole(actor); err != nil {
		return nil, err
	}

	var removed models.ExtraFee
	var updated models.RentalOrder
	err := s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		owner, err := repo.GetExtraFee(ctx, feeID)
		if err != nil {
			return err
		}
		o, err := repo.LockOrder(ctx, owner.OrderID)
		if err != nil {
			return err
		}
		// a concurrent detach may have removed the fee while we waited for the lock
		fee, err := repo.GetExtraFee(ctx, feeID)
		if err != nil {
			return err
		}
		if fee.OrderID != o.ID {
			return apperr.NotFound("fee %d not found", feeID)
		}
		if err := order.Authorize(ctx, repo, actor, manageRule, o); err != nil {
			return err
		}
		if err := checkOpen(o); err != nil {
			return err
		}
		if err := repo.DeleteExtraFee(ctx, fee.ID); err != nil {
			return err
		}

		o.TotalAmount -= fee.Amount
		if o.TotalAmount < 0 {
			o.TotalAmount = 0
		}
		o.UpdatedAt = s.Now().UTC()
		if err := repo.UpdateOrder(ctx, o, "total_amount", "updated_at"); err != nil {
			return err
		}
		removed = *fee
		updated = *o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogOrder("FEE_DETACH", updated.ID, fmt.Sprintf("%s (%d) removed by %s, total now %d", removed.Name, removed.Amount, actor.ID, updated.TotalAmount))
	event := models.NewOrderEvent(updated, models.ActionFeeRemoved, actor.ID, updated.UpdatedAt)
	event.Detail = removed.Name
	s.notify(ctx, event)
	return &updated, nil
}

func (s *Service) ListFees(ctx context.Context, actor models.Actor, orderID int64) ([]models.ExtraFee, error) {
	repo := s.Store.Repo()
	o, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.CanView(ctx, repo, actor, o); err != nil {
		return nil, err
	}
	return repo.ListExtraFees(ctx, orderID)
}

func (s *Service) notify(ctx context.Context, event models.OrderEvent) {
	if s.Notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.NotifyTimeout)
	defer cancel()
	if err := s.Notifier.Notify(ctx, event); err != nil {
		s.Logger.Warn("NOTIFY", fmt.Sprintf("order %d %s event not delivered: %v", event.OrderID, event.Action, err))
	}
}
