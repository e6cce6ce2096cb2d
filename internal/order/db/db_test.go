package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/models"
	"ms-rental/internal/order/db"
	"ms-rental/internal/order/db/dbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window(h int) (time.Time, time.Time) {
	start := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
	return start, start.Add(3 * time.Hour)
}

func TestGetOrderNotFound(t *testing.T) {
	store := dbtest.New(t)

	order, err := store.Repo().GetOrder(context.Background(), 42)
	assert.Nil(t, order)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestInsertAndUpdateOrder(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)
	start, end := window(0)

	order := dbtest.InsertOrder(t, store, models.RentalOrder{
		RenterID:        "renter-1",
		VehicleID:       f.Vehicle.ID,
		PickupStationID: f.Pickup.ID,
		ReturnStationID: f.Return.ID,
		StartTime:       start,
		EndTime:         end,
		BaseAmount:      300,
		TotalAmount:     300,
	})
	require.NotZero(t, order.ID)

	got := dbtest.GetOrder(t, store, order.ID)
	assert.Equal(t, "renter-1", got.RenterID)
	assert.Equal(t, models.OrderBooked, got.Status)
	assert.True(t, got.StartTime.Equal(start))

	got.Status = models.OrderApproved
	require.NoError(t, store.Repo().UpdateOrder(context.Background(), got, "status"))
	assert.Equal(t, models.OrderApproved, dbtest.GetOrder(t, store, order.ID).Status)
}

func TestListActiveOrdersForVehicle(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)

	for i, status := range []models.OrderStatus{models.OrderBooked, models.OrderCanceled, models.OrderInUse, models.OrderCompleted, models.OrderApproved} {
		start, end := window(i * 4)
		dbtest.InsertOrder(t, store, models.RentalOrder{
			RenterID: "renter-1", VehicleID: f.Vehicle.ID,
			PickupStationID: f.Pickup.ID, ReturnStationID: f.Pickup.ID,
			StartTime: start, EndTime: end, Status: status,
		})
	}

	active, err := store.Repo().ListActiveOrdersForVehicle(context.Background(), f.Vehicle.ID)
	require.NoError(t, err)
	require.Len(t, active, 3)
	for _, o := range active {
		assert.True(t, o.Status.Active(), o.Status)
	}
}

func TestListOrdersScopes(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)
	other := dbtest.AddVehicle(t, store, f.Return.ID, "TEST-002")
	start, end := window(0)

	dbtest.InsertOrder(t, store, models.RentalOrder{RenterID: "renter-1", VehicleID: f.Vehicle.ID, PickupStationID: f.Pickup.ID, ReturnStationID: f.Pickup.ID, StartTime: start, EndTime: end})
	dbtest.InsertOrder(t, store, models.RentalOrder{RenterID: "renter-2", VehicleID: other.ID, PickupStationID: f.Return.ID, ReturnStationID: f.Pickup.ID, StartTime: start, EndTime: end})
	dbtest.InsertOrder(t, store, models.RentalOrder{RenterID: "renter-2", VehicleID: other.ID, PickupStationID: f.Return.ID, ReturnStationID: f.Return.ID, StartTime: start.Add(24 * time.Hour), EndTime: end.Add(24 * time.Hour), Status: models.OrderCanceled})

	ctx := context.Background()
	byRenter, err := store.Repo().ListOrders(ctx, db.OrderQuery{RenterID: "renter-2"})
	require.NoError(t, err)
	assert.Len(t, byRenter, 2)

	byStation, err := store.Repo().ListOrders(ctx, db.OrderQuery{StationID: f.Pickup.ID})
	require.NoError(t, err)
	assert.Len(t, byStation, 2)

	byStatus, err := store.Repo().ListOrders(ctx, db.OrderQuery{StationID: f.Return.ID, Status: models.OrderCanceled})
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)
}

func TestRunInTxRollsBack(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)
	boom := errors.New("boom")

	err := store.RunInTx(context.Background(), func(ctx context.Context, repo db.Repository) error {
		v, err := repo.LockVehicle(ctx, f.Vehicle.ID)
		if err != nil {
			return err
		}
		v.IsAvailable = false
		if err := repo.UpdateVehicle(ctx, v, "is_available"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, dbtest.GetVehicle(t, store, f.Vehicle.ID).IsAvailable)
}

func TestExtraFeesAndPayments(t *testing.T) {
	store := dbtest.New(t)
	f := dbtest.Seed(t, store)
	start, end := window(0)
	order := dbtest.InsertOrder(t, store, models.RentalOrder{RenterID: "renter-1", VehicleID: f.Vehicle.ID, PickupStationID: f.Pickup.ID, ReturnStationID: f.Pickup.ID, StartTime: start, EndTime: end})
	ctx := context.Background()
	repo := store.Repo()

	fee := &models.ExtraFee{OrderID: order.ID, FeeTypeID: f.FeeTypes[0].ID, Name: "Cleaning", Amount: 40, CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.InsertExtraFee(ctx, fee))
	fees, err := repo.ListExtraFees(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, fees, 1)

	require.NoError(t, repo.DeleteExtraFee(ctx, fee.ID))
	_, err = repo.GetExtraFee(ctx, fee.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	err = repo.DeleteExtraFee(ctx, fee.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "deleting a removed fee: %v", err)

	payment := &models.Payment{OrderID: order.ID, Amount: 300, Method: models.MethodCash, Kind: models.PaymentKindRental, ExternalRef: "cash-1", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.InsertPayment(ctx, payment))
	assert.NotZero(t, payment.ID)
	assert.Equal(t, 1, dbtest.CountPayments(t, store, order.ID))
}
