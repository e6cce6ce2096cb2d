package models

import "github.com/uptrace/bun"

type VehicleCondition string

const (
	ConditionGood     VehicleCondition = "GOOD"
	ConditionInRepair VehicleCondition = "IN_REPAIR"
	ConditionDamaged  VehicleCondition = "DAMAGED"
)

func (c VehicleCondition) Valid() bool {
	switch c {
	case ConditionGood, ConditionInRepair, ConditionDamaged:
		return true
	}
	return false
}

type Vehicle struct {
	bun.BaseModel `bun:"table:vehicles,alias:v"`

	ID             int64            `bun:"id,pk,autoincrement" json:"id"`
	PlateNumber    string           `bun:"plate_number,notnull,unique" json:"plate_number"`
	Model          string           `bun:"model,notnull" json:"model"`
	StationID      int64            `bun:"station_id,notnull" json:"station_id"`
	IsAvailable    bool             `bun:"is_available,notnull" json:"is_available"`
	Condition      VehicleCondition `bun:"condition,notnull" json:"condition"`
	CurrentMileage int64            `bun:"current_mileage,notnull" json:"current_mileage"`
	HourlyRate     int64            `bun:"hourly_rate,notnull" json:"hourly_rate"`
	DepositAmount  int64            `bun:"deposit_amount,notnull" json:"deposit_amount"`
}

type Station struct {
	bun.BaseModel `bun:"table:stations,alias:st"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	Name    string `bun:"name,notnull" json:"name"`
	Address string `bun:"address" json:"address"`
}

// Staff is only read for station scoping.
type Staff struct {
	bun.BaseModel `bun:"table:staff,alias:sf"`

	ID        string `bun:"id,pk" json:"id"`
	StationID int64  `bun:"station_id,notnull" json:"station_id"`
	Name      string `bun:"name" json:"name"`
}
