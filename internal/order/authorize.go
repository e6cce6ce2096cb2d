package order

import (
	"context"
	"strings"

	"ms-rental/internal/apperr"
	"ms-rental/internal/models"
	"ms-rental/internal/order/db"
)

// Scope says which station or owner an actor must match on the order.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeOwner: renters must own the order.
	ScopeOwner
	// ScopePickup: staff must be assigned to the pickup station.
	ScopePickup
	// ScopeReturn: staff must be assigned to the return station.
	ScopeReturn
	// ScopeEitherStation: staff must be assigned to the pickup or the return station.
	ScopeEitherStation
)

func (s Scope) String() string {
	switch s {
	case ScopeOwner:
		return "owner"
	case ScopePickup:
		return "pickup station"
	case ScopeReturn:
		return "return station"
	case ScopeEitherStation:
		return "pickup or return station"
	default:
		return "none"
	}
}

// Rule is the precondition an actor must meet before an operation touches any state.
type Rule struct {
	Roles []models.Role
	Scope Scope
}

func (r Rule) AllowsRole(role models.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func (r Rule) roleNames() string {
	names := make([]string, len(r.Roles))
	for i, role := range r.Roles {
		names[i] = string(role)
	}
	return strings.Join(names, " or ")
}

// CheckRole is the first gate and needs no data.
func (r Rule) CheckRole(actor models.Actor) error {
	if actor.ID == "" {
		return apperr.Forbidden("missing actor identity")
	}
	if !r.AllowsRole(actor.Role) {
		return apperr.Forbidden("role %s may not perform this action, requires %s", actor.Role, r.roleNames())
	}
	return nil
}

// Authorize checks role and then station or owner scope against the order.
// Admins pass every scope. Staff station assignments are read through repo.
func Authorize(ctx context.Context, repo db.Repository, actor models.Actor, rule Rule, o *models.RentalOrder) error {
	if err := rule.CheckRole(actor); err != nil {
		return err
	}

	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleRenter:
		if rule.Scope == ScopeOwner && o.RenterID != actor.ID {
			return apperr.Forbidden("order %d belongs to another renter", o.ID)
		}
		return nil
	case models.RoleStaff:
		if rule.Scope == ScopeNone || rule.Scope == ScopeOwner {
			return nil
		}
		station, err := StaffStation(ctx, repo, actor.ID)
		if err != nil {
			return err
		}
		if !stationMatches(rule.Scope, station, o) {
			return apperr.Forbidden("staff %s at station %d is not assigned to the order's %s", actor.ID, station, rule.Scope)
		}
		return nil
	}
	return apperr.Forbidden("unknown role %q", actor.Role)
}

func stationMatches(scope Scope, station int64, o *models.RentalOrder) bool {
	switch scope {
	case ScopePickup:
		return station == o.PickupStationID
	case ScopeReturn:
		return station == o.ReturnStationID
	case ScopeEitherStation:
		return station == o.PickupStationID || station == o.ReturnStationID
	}
	return false
}

// StaffStation returns the staff member's home station.
func StaffStation(ctx context.Context, repo db.Repository, staffID string) (int64, error) {
	staff, err := repo.GetStaff(ctx, staffID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return 0, apperr.Forbidden("staff %s has no station assignment", staffID)
		}
		return 0, err
	}
	return staff.StationID, nil
}

// CanView is the read rule: owners, staff at either station and admins.
func CanView(ctx context.Context, repo db.Repository, actor models.Actor, o *models.RentalOrder) error {
	switch actor.Role {
	case models.RoleRenter:
		return Authorize(ctx, repo, actor, Rule{Roles: []models.Role{models.RoleRenter}, Scope: ScopeOwner}, o)
	default:
		return Authorize(ctx, repo, actor, Rule{Roles: []models.Role{models.RoleStaff, models.RoleAdmin}, Scope: ScopeEitherStation}, o)
	}
}
