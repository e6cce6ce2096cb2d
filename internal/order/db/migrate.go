package db

import (
	"context"
	"fmt"

	"ms-rental/internal/models"

	"github.com/uptrace/bun"
)

var tables = []any{
	(*models.Station)(nil),
	(*models.Staff)(nil),
	(*models.Vehicle)(nil),
	(*models.RentalOrder)(nil),
	(*models.Payment)(nil),
	(*models.FeeType)(nil),
	(*models.ExtraFee)(nil),
	(*models.Contract)(nil),
}

// CreateSchema creates all tables from the models. Postgres deployments use the SQL
// migrations instead, which also add the overlap exclusion constraint.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	return nil
}
