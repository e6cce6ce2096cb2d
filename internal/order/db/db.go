package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-rental/internal/apperr"
	"ms-rental/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	pqExclusionViolation = "23P01"
	pqUniqueViolation    = "23505"
)

// Repository is the set of queries the domain services run inside an atomic unit.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*models.RentalOrder, error)
	LockOrder(ctx context.Context, id int64) (*models.RentalOrder, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]models.RentalOrder, error)
	ListActiveOrdersForVehicle(ctx context.Context, vehicleID int64) ([]models.RentalOrder, error)
	InsertOrder(ctx context.Context, order *models.RentalOrder) error
	UpdateOrder(ctx context.Context, order *models.RentalOrder, columns ...string) error

	GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	LockVehicle(ctx context.Context, id int64) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, vehicle *models.Vehicle, columns ...string) error
	GetStation(ctx context.Context, id int64) (*models.Station, error)
	GetStaff(ctx context.Context, id string) (*models.Staff, error)

	InsertPayment(ctx context.Context, payment *models.Payment) error
	ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error)

	GetFeeType(ctx context.Context, id int64) (*models.FeeType, error)
	GetExtraFee(ctx context.Context, id int64) (*models.ExtraFee, error)
	InsertExtraFee(ctx context.Context, fee *models.ExtraFee) error
	DeleteExtraFee(ctx context.Context, id int64) error
	ListExtraFees(ctx context.Context, orderID int64) ([]models.ExtraFee, error)

	InsertContract(ctx context.Context, contract *models.Contract) error
	GetContractByOrder(ctx context.Context, orderID int64) (*models.Contract, error)
}

// OrderQuery scopes ListOrders. Zero fields are ignored.
type OrderQuery struct {
	RenterID  string
	StationID int64
	Status    models.OrderStatus
	Limit     int
}

type DB struct {
	Bun *bun.DB
}

// RunInTx runs fn in one transaction. Any error from fn rolls everything back.
func (d *DB) RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Repo{db: tx})
	})
}

// Repo returns a Repository bound to the connection pool, for reads outside a transaction.
func (d *DB) Repo() Repository {
	return &Repo{db: d.Bun}
}

type Repo struct {
	db bun.IDB
}

var _ Repository = (*Repo)(nil)

// forUpdate adds a row lock where the dialect supports one. SQLite serializes writers already.
func (r *Repo) forUpdate(q *bun.SelectQuery) *bun.SelectQuery {
	if r.db.Dialect().Name() == dialect.PG {
		return q.For("UPDATE")
	}
	return q
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// ---------------- ORDERS ----------------

func (r *Repo) GetOrder(ctx context.Context, id int64) (*models.RentalOrder, error) {
	var order models.RentalOrder
	err := r.db.NewSelect().
		Model(&order).
		Where("o.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "order %d not found", id)
	}
	return &order, nil
}

// LockOrder reads the order and holds its row lock until the transaction ends.
func (r *Repo) LockOrder(ctx context.Context, id int64) (*models.RentalOrder, error) {
	var order models.RentalOrder
	q := r.db.NewSelect().
		Model(&order).
		Where("o.id = ?", id).
		Limit(1)
	if err := r.forUpdate(q).Scan(ctx); err != nil {
		return nil, notFound(err, "order %d not found", id)
	}
	return &order, nil
}

func (r *Repo) ListOrders(ctx context.Context, q OrderQuery) ([]models.RentalOrder, error) {
	var orders []models.RentalOrder
	sel := r.db.NewSelect().Model(&orders)
	if q.RenterID != "" {
		sel = sel.Where("o.renter_id = ?", q.RenterID)
	}
	if q.StationID != 0 {
		sel = sel.WhereGroup(" AND ", func(g *bun.SelectQuery) *bun.SelectQuery {
			return g.Where("o.pickup_station_id = ?", q.StationID).
				WhereOr("o.return_station_id = ?", q.StationID)
		})
	}
	if q.Status != "" {
		sel = sel.Where("o.status = ?", q.Status)
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if err := sel.Order("o.created_at DESC", "o.id DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (r *Repo) ListActiveOrdersForVehicle(ctx context.Context, vehicleID int64) ([]models.RentalOrder, error) {
	var orders []models.RentalOrder
	err := r.db.NewSelect().
		Model(&orders).
		Where("o.vehicle_id = ?", vehicleID).
		Where("o.status IN (?)", bun.In(models.ActiveStatuses)).
		Order("o.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active orders for vehicle %d: %w", vehicleID, err)
	}
	return orders, nil
}

func (r *Repo) InsertOrder(ctx context.Context, order *models.RentalOrder) error {
	_, err := r.db.NewInsert().
		Model(order).
		Returning("id").
		Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqExclusionViolation {
			return apperr.Policy("vehicle already booked for requested window")
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *Repo) UpdateOrder(ctx context.Context, order *models.RentalOrder, columns ...string) error {
	q := r.db.NewUpdate().
		Model(order).
		WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update order %d: %w", order.ID, err)
	}
	return nil
}

// ---------------- CATALOG ----------------

func (r *Repo) GetVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := r.db.NewSelect().
		Model(&vehicle).
		Where("v.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "vehicle %d not found", id)
	}
	return &vehicle, nil
}

// LockVehicle serializes everything that reads or writes the vehicle's schedule.
func (r *Repo) LockVehicle(ctx context.Context, id int64) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	q := r.db.NewSelect().
		Model(&vehicle).
		Where("v.id = ?", id).
		Limit(1)
	if err := r.forUpdate(q).Scan(ctx); err != nil {
		return nil, notFound(err, "vehicle %d not found", id)
	}
	return &vehicle, nil
}

func (r *Repo) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle, columns ...string) error {
	q := r.db.NewUpdate().
		Model(vehicle).
		WherePK()
	if len(columns) > 0 {
		q = q.Column(columns...)
	}
	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("update vehicle %d: %w", vehicle.ID, err)
	}
	return nil
}

func (r *Repo) GetStation(ctx context.Context, id int64) (*models.Station, error) {
	var station models.Station
	err := r.db.NewSelect().
		Model(&station).
		Where("st.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "station %d not found", id)
	}
	return &station, nil
}

func (r *Repo) GetStaff(ctx context.Context, id string) (*models.Staff, error) {
	var staff models.Staff
	err := r.db.NewSelect().
		Model(&staff).
		Where("sf.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "staff %s not found", id)
	}
	return &staff, nil
}

// ---------------- PAYMENTS ----------------

func (r *Repo) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := r.db.NewInsert().
		Model(payment).
		Returning("id").
		Exec(ctx)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return apperr.Policy("payment %s already recorded", payment.ExternalRef)
		}
		return fmt.Errorf("insert payment for order %d: %w", payment.OrderID, err)
	}
	return nil
}

func (r *Repo) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.NewSelect().
		Model(&payments).
		Where("p.order_id = ?", orderID).
		Order("p.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list payments for order %d: %w", orderID, err)
	}
	return payments, nil
}

// ---------------- FEES ----------------

func (r *Repo) GetFeeType(ctx context.Context, id int64) (*models.FeeType, error) {
	var feeType models.FeeType
	err := r.db.NewSelect().
		Model(&feeType).
		Where("ft.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "fee type %d not found", id)
	}
	return &feeType, nil
}

func (r *Repo) GetExtraFee(ctx context.Context, id int64) (*models.ExtraFee, error) {
	var fee models.ExtraFee
	err := r.db.NewSelect().
		Model(&fee).
		Where("ef.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "fee %d not found", id)
	}
	return &fee, nil
}

func (r *Repo) InsertExtraFee(ctx context.Context, fee *models.ExtraFee) error {
	_, err := r.db.NewInsert().
		Model(fee).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert fee for order %d: %w", fee.OrderID, err)
	}
	return nil
}

func (r *Repo) DeleteExtraFee(ctx context.Context, id int64) error {
	res, err := r.db.NewDelete().
		Model((*models.ExtraFee)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete fee %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fee %d: %w", id, err)
	}
	if n == 0 {
		return apperr.NotFound("fee %d not found", id)
	}
	return nil
}

func (r *Repo) ListExtraFees(ctx context.Context, orderID int64) ([]models.ExtraFee, error) {
	var fees []models.ExtraFee
	err := r.db.NewSelect().
		Model(&fees).
		Where("ef.order_id = ?", orderID).
		Order("ef.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list fees for order %d: %w", orderID, err)
	}
	return fees, nil
}

// ---------------- CONTRACTS ----------------

func (r *Repo) InsertContract(ctx context.Context, contract *models.Contract) error {
	_, err := r.db.NewInsert().
		Model(contract).
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert contract for order %d: %w", contract.OrderID, err)
	}
	return nil
}

func (r *Repo) GetContractByOrder(ctx context.Context, orderID int64) (*models.Contract, error) {
	var contract models.Contract
	err := r.db.NewSelect().
		Model(&contract).
		Where("c.order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "contract for order %d not found", orderID)
	}
	return &contract, nil
}
