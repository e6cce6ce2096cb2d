package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order"
	"ms-rental/internal/order/db"

	"github.com/google/uuid"
)

var (
	initiateRule = order.Rule{Roles: []models.Role{models.RoleRenter}, Scope: order.ScopeOwner}
	cashRule     = order.Rule{Roles: []models.Role{models.RoleStaff, models.RoleAdmin}, Scope: order.ScopeEitherStation}
)

// Service settles rental orders through hosted gateways or cash at the counter.
type Service struct {
	Store    order.Store
	Notifier order.Notifier
	Logger   *logger.Logger
	Now      func() time.Time

	NotifyTimeout time.Duration
	gateways      map[string]Gateway
}

func NewService(store order.Store, notifier order.Notifier, log *logger.Logger, gateways ...Gateway) *Service {
	s := &Service{
		Store:         store,
		Notifier:      notifier,
		Logger:        log,
		Now:           time.Now,
		NotifyTimeout: 5 * time.Second,
		gateways:      make(map[string]Gateway, len(gateways)),
	}
	for _, g := range gateways {
		s.gateways[g.Name()] = g
	}
	return s
}

func (s *Service) now() time.Time {
	return s.Now().UTC()
}

func (s *Service) Gateway(name string) (Gateway, error) {
	g, ok := s.gateways[name]
	if !ok {
		return nil, apperr.NotFound("unknown payment provider %q", name)
	}
	return g, nil
}

func checkPayable(o *models.RentalOrder) error {
	if o.PaymentStatus == models.Paid {
		return apperr.Policy("order %d already paid", o.ID)
	}
	switch o.Status {
	case models.OrderCanceled, models.OrderRejected, models.OrderCompleted:
		return apperr.Policy("order %d is %s and cannot be paid", o.ID, o.Status)
	}
	return nil
}

// Initiate asks the provider for a hosted payment page. The order is not modified.
func (s *Service) Initiate(ctx context.Context, actor models.Actor, orderID int64, provider, clientIP string) (*models.PaymentRedirect, error) {
	if err := initiateRule.CheckRole(actor); err != nil {
		return nil, err
	}
	gw, err := s.Gateway(provider)
	if err != nil {
		return nil, err
	}

	repo := s.Store.Repo()
	o, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := order.Authorize(ctx, repo, actor, initiateRule, o); err != nil {
		return nil, err
	}
	if err := checkPayable(o); err != nil {
		return nil, err
	}
	if o.TotalAmount <= 0 {
		return nil, apperr.Policy("order %d has nothing to pay", o.ID)
	}

	ref := NewReference(o.ID, s.now())
	redirect, err := gw.Initiate(ctx, InitiateRequest{
		OrderID:     o.ID,
		Reference:   ref,
		Amount:      o.TotalAmount,
		Description: fmt.Sprintf("Rental order %d", o.ID),
		ClientIP:    clientIP,
	})
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperr.Upstream(err, "%s payment initiation failed", provider)
	}

	s.Logger.LogPayment(provider, ref, fmt.Sprintf("initiated for order %d, amount %d", o.ID, o.TotalAmount))
	return &models.PaymentRedirect{Provider: provider, Reference: ref, RedirectURL: redirect.URL}, nil
}

// HandleCallback verifies and settles a provider notification. The returned callback is
// nil when the request could not be authenticated.
func (s *Service) HandleCallback(ctx context.Context, provider string, r *http.Request) (*Callback, Outcome) {
	gw, err := s.Gateway(provider)
	if err != nil {
		return nil, OutcomeError
	}
	cb, err := gw.ParseCallback(r)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthenticity) {
			s.Logger.LogSecurity("INVALID_SIGNATURE", fmt.Sprintf("%s callback from %s rejected: %v", provider, r.RemoteAddr, err))
			return nil, OutcomeInvalidSignature
		}
		s.Logger.Warn("PAYMENT", fmt.Sprintf("%s callback unreadable: %v", provider, err))
		return nil, OutcomeError
	}
	outcome, err := s.Confirm(ctx, provider, cb)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("%s callback %s failed: %v", provider, cb.Reference, err))
	}
	return cb, outcome
}

// Confirm applies an authenticated callback. Confirming an already paid order changes nothing.
func (s *Service) Confirm(ctx context.Context, provider string, cb *Callback) (Outcome, error) {
	if cb.Reference == "" && !cb.Success {
		// provider event unrelated to an order payment
		return OutcomeDeclined, nil
	}
	orderID, err := ParseReference(cb.Reference)
	if err != nil {
		s.Logger.LogPayment(provider, cb.Reference, "unparseable reference")
		return OutcomeNotFound, nil
	}

	outcome := OutcomeError
	var paid models.RentalOrder
	err = s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				outcome = OutcomeNotFound
				return nil
			}
			return err
		}
		if !cb.Success {
			outcome = OutcomeDeclined
			return nil
		}
		if o.PaymentStatus == models.Paid {
			outcome = OutcomeDuplicate
			return nil
		}
		if cb.Amount != o.TotalAmount {
			outcome = OutcomeAmountMismatch
			return nil
		}
		closed := o.Status == models.OrderCanceled || o.Status == models.OrderRejected
		if closed {
			recorded, err := repo.ListPayments(ctx, o.ID)
			if err != nil {
				return err
			}
			for _, p := range recorded {
				if p.Method == provider && p.ExternalRef == externalRef(cb) {
					outcome = OutcomeDuplicate
					return nil
				}
			}
		}

		now := s.now()
		err = repo.InsertPayment(ctx, &models.Payment{
			OrderID:     o.ID,
			Amount:      cb.Amount,
			Method:      provider,
			Kind:        models.PaymentKindRental,
			ExternalRef: externalRef(cb),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		outcome = OutcomeSuccess
		// the payment row is kept for refund, the closed order itself stays untouched
		if closed {
			s.Logger.Warn("PAYMENT", fmt.Sprintf("order %d is %s but %s reports it paid, refund required", o.ID, o.Status, provider))
			return nil
		}
		o.PaymentStatus = models.Paid
		o.UpdatedAt = now
		if err := repo.UpdateOrder(ctx, o, "payment_status", "updated_at"); err != nil {
			return err
		}
		paid = *o
		return nil
	})
	if err != nil {
		// a concurrent confirm recorded the same provider transaction first
		if apperr.Is(err, apperr.KindPolicy) {
			return OutcomeDuplicate, nil
		}
		return OutcomeError, err
	}

	s.Logger.LogPayment(provider, cb.Reference, fmt.Sprintf("order %d: %s (result %s)", orderID, outcome, cb.ResultCode))
	if outcome == OutcomeSuccess && paid.ID != 0 {
		s.notify(ctx, models.NewOrderEvent(paid, models.ActionPaid, provider, paid.UpdatedAt))
	}
	return outcome, nil
}

func externalRef(cb *Callback) string {
	if cb.ExternalRef != "" {
		return cb.ExternalRef
	}
	return cb.Reference
}

// SettleCash records an in-person payment taken by staff.
func (s *Service) SettleCash(ctx context.Context, actor models.Actor, orderID int64) (*models.CashReceipt, error) {
	if err := cashRule.CheckRole(actor); err != nil {
		return nil, err
	}

	var receipt models.CashReceipt
	var paid models.RentalOrder
	err := s.Store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		o, err := repo.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := order.Authorize(ctx, repo, actor, cashRule, o); err != nil {
			return err
		}
		if o.PaymentStatus == models.Paid {
			return apperr.Policy("order %d already paid", o.ID)
		}
		if o.Status == models.OrderCanceled || o.Status == models.OrderRejected {
			return apperr.Policy("order %d is %s and cannot be paid", o.ID, o.Status)
		}

		now := s.now()
		payment := &models.Payment{
			OrderID:     o.ID,
			Amount:      o.TotalAmount,
			Method:      models.MethodCash,
			Kind:        models.PaymentKindRental,
			ExternalRef: "cash-" + uuid.NewString(),
			CreatedAt:   now,
		}
		if err := repo.InsertPayment(ctx, payment); err != nil {
			return err
		}
		o.PaymentStatus = models.Paid
		o.UpdatedAt = now
		if err := repo.UpdateOrder(ctx, o, "payment_status", "updated_at"); err != nil {
			return err
		}
		paid = *o
		receipt = models.CashReceipt{
			PaymentID: payment.ID,
			OrderID:   o.ID,
			Amount:    payment.Amount,
			StaffID:   actor.ID,
			SettledAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogPayment(models.MethodCash, fmt.Sprintf("%d", receipt.PaymentID), fmt.Sprintf("order %d settled by %s, amount %d", orderID, actor.ID, receipt.Amount))
	s.notify(ctx, models.NewOrderEvent(paid, models.ActionPaid, actor.ID, receipt.SettledAt))
	return &receipt, nil
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
