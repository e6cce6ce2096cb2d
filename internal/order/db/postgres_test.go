package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"ms-rental/internal/apperr"
	"ms-rental/internal/database/migrations"
	"ms-rental/internal/logger"
	"ms-rental/internal/models"
	"ms-rental/internal/order/db"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// TestPostgresExclusionConstraint runs the SQL migrations against a real Postgres and checks
// that the database itself refuses overlapping active orders.
func TestPostgresExclusionConstraint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Postgres integration test in short mode")
	}

	ctx := context.Background()
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "rental",
				"POSTGRES_PASSWORD": "rental",
				"POSTGRES_DB":       "rental",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://rental:rental@%s:%s/rental?sslmode=disable", host, port.Port())

	log := logger.NewWriterLogger(io.Discard)
	migrationDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	runner := migrations.NewRunner(migrationDB, migrations.MigrateOptions{MigrationsDir: "../../../migrations", SeedData: true}, log)
	require.NoError(t, runner.RunMigrations())
	version, dirty, err := runner.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
	require.NoError(t, runner.Close())

	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}

	var vehicle models.Vehicle
	require.NoError(t, bunDB.NewSelect().Model(&vehicle).Where("plate_number = ?", "51A-12345").Scan(ctx))

	start := time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)
	newOrder := func(from, to time.Time, status models.OrderStatus) *models.RentalOrder {
		return &models.RentalOrder{
			RenterID:        "renter-1",
			VehicleID:       vehicle.ID,
			PickupStationID: vehicle.StationID,
			ReturnStationID: vehicle.StationID,
			StartTime:       from,
			EndTime:         to,
			Status:          status,
			PaymentStatus:   models.Unpaid,
			BaseAmount:      100,
			TotalAmount:     100,
			CreatedAt:       start,
			UpdatedAt:       start,
		}
	}

	first := newOrder(start, start.Add(4*time.Hour), models.OrderBooked)
	require.NoError(t, store.Repo().InsertOrder(ctx, first))

	err = store.Repo().InsertOrder(ctx, newOrder(start.Add(time.Hour), start.Add(2*time.Hour), models.OrderBooked))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPolicy), err)
	assert.Equal(t, "vehicle already booked for requested window", apperr.PublicMessage(err))

	// touching windows and inactive orders do not conflict
	require.NoError(t, store.Repo().InsertOrder(ctx, newOrder(start.Add(4*time.Hour), start.Add(5*time.Hour), models.OrderBooked)))
	require.NoError(t, store.Repo().InsertOrder(ctx, newOrder(start.Add(time.Hour), start.Add(2*time.Hour), models.OrderCanceled)))

	// canceling frees the window
	err = store.RunInTx(ctx, func(ctx context.Context, repo db.Repository) error {
		locked, err := repo.LockOrder(ctx, first.ID)
		if err != nil {
			return err
		}
		locked.Status = models.OrderCanceled
		return repo.UpdateOrder(ctx, locked, "status")
	})
	require.NoError(t, err)
	require.NoError(t, store.Repo().InsertOrder(ctx, newOrder(start.Add(time.Hour), start.Add(2*time.Hour), models.OrderApproved)))

	// duplicate provider delivery is refused by the unique index
	payment := func() *models.Payment {
		return &models.Payment{OrderID: first.ID, Amount: 100, Method: "vnpay", Kind: models.PaymentKindRental, ExternalRef: "14000", CreatedAt: start}
	}
	require.NoError(t, store.Repo().InsertPayment(ctx, payment()))
	err = store.Repo().InsertPayment(ctx, payment())
	assert.True(t, apperr.Is(err, apperr.KindPolicy), err)
}
