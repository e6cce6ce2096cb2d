// Package dbtest opens throwaway in-memory stores and seeds fixtures for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ms-rental/internal/models"
	"ms-rental/internal/order/db"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a store backed by a private in-memory SQLite database with the full schema.
func New(t *testing.T) *db.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })

	require.NoError(t, db.CreateSchema(context.Background(), bunDB))
	return &db.DB{Bun: bunDB}
}

// Fixture is a station pair with one staff member each and a vehicle at the first station.
type Fixture struct {
	Pickup      models.Station
	Return      models.Station
	PickupStaff models.Staff
	ReturnStaff models.Staff
	Vehicle     models.Vehicle
	FeeTypes    []models.FeeType
}

const HourlyRate = 100

func Seed(t *testing.T, store *db.DB) *Fixture {
	t.Helper()
	ctx := context.Background()
	f := &Fixture{
		Pickup: models.Station{Name: "Pickup", Address: "1 Pickup Rd"},
		Return: models.Station{Name: "Return", Address: "2 Return Rd"},
	}
	_, err := store.Bun.NewInsert().Model(&f.Pickup).Exec(ctx)
	require.NoError(t, err)
	_, err = store.Bun.NewInsert().Model(&f.Return).Exec(ctx)
	require.NoError(t, err)

	f.PickupStaff = models.Staff{ID: "staff-pickup", StationID: f.Pickup.ID, Name: "Pickup Desk"}
	f.ReturnStaff = models.Staff{ID: "staff-return", StationID: f.Return.ID, Name: "Return Desk"}
	_, err = store.Bun.NewInsert().Model(&f.PickupStaff).Exec(ctx)
	require.NoError(t, err)
	_, err = store.Bun.NewInsert().Model(&f.ReturnStaff).Exec(ctx)
	require.NoError(t, err)

	f.Vehicle = AddVehicle(t, store, f.Pickup.ID, "TEST-001")

	f.FeeTypes = []models.FeeType{
		{Name: "Cleaning", Amount: 40},
		{Name: "Fuel refill", Amount: 75},
		{Name: "Damage", Amount: 1000},
	}
	_, err = store.Bun.NewInsert().Model(&f.FeeTypes).Exec(ctx)
	require.NoError(t, err)
	return f
}

func AddVehicle(t *testing.T, store *db.DB, stationID int64, plate string) models.Vehicle {
	t.Helper()
	v := models.Vehicle{
		PlateNumber:    plate,
		Model:          "Test Hatchback",
		StationID:      stationID,
		IsAvailable:    true,
		Condition:      models.ConditionGood,
		CurrentMileage: 5000,
		HourlyRate:     HourlyRate,
		DepositAmount:  500,
	}
	_, err := store.Bun.NewInsert().Model(&v).Exec(context.Background())
	require.NoError(t, err)
	return v
}

// InsertOrder writes an order directly, bypassing the engine.
func InsertOrder(t *testing.T, store *db.DB, o models.RentalOrder) models.RentalOrder {
	t.Helper()
	if o.Status == "" {
		o.Status = models.OrderBooked
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = models.Unpaid
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC().Truncate(time.Second)
		o.UpdatedAt = o.CreatedAt
	}
	require.NoError(t, store.Repo().InsertOrder(context.Background(), &o))
	return o
}

func GetOrder(t *testing.T, store *db.DB, id int64) *models.RentalOrder {
	t.Helper()
	o, err := store.Repo().GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func GetVehicle(t *testing.T, store *db.DB, id int64) *models.Vehicle {
	t.Helper()
	v, err := store.Repo().GetVehicle(context.Background(), id)
	require.NoError(t, err)
	return v
}

func CountPayments(t *testing.T, store *db.DB, orderID int64) int {
	t.Helper()
	payments, err := store.Repo().ListPayments(context.Background(), orderID)
	require.NoError(t, err)
	return len(payments)
}
