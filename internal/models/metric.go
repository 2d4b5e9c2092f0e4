package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Row kinds.
const (
	KindWorkhours  = "workhours"
	KindAbsences   = "absences"
	KindSaleswork  = "saleswork"
	KindSalesvalue = "salesvalue"
	KindBilling    = "billing"
	KindMaximum    = "maximum"
	KindHourCost   = "hour_cost"
)

// Collections of stored rows.
const (
	CollectionHours   = "hours"
	CollectionSales   = "salesvalue"
	CollectionBilling = "billing"
)

// MetricRow is one measurement. A row either has Date set, or spans
// StartDate..EndDate and is unraveled into daily rows before charting.
type MetricRow struct {
	RowID        string     `gorm:"column:row_id;size:36;primaryKey" json:"_id,omitempty"`
	Collection   string     `gorm:"size:32;index" json:"-"`
	Kind         string     `gorm:"size:32;index" json:"id"`
	Value        float64    `json:"value"`
	User         string     `gorm:"size:64;index" json:"user"`
	Date         *time.Time `json:"date,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	ForecastDate *time.Time `gorm:"index" json:"forecast_date,omitempty"`
	InternalGUID string     `gorm:"size:64" json:"internal_guid,omitempty"`
	Project      string     `gorm:"size:64" json:"project,omitempty"`
	Phase        string     `gorm:"size:64" json:"phase,omitempty"`
	Productive   bool       `json:"productive"`
	SoldBy       string     `gorm:"size:64" json:"sold_by,omitempty"`
	Billing      float64    `json:"billing,omitempty"`
	Expense      float64    `json:"expense,omitempty"`
	Revenue      float64    `json:"revenue,omitempty"`
	LaborExpense float64    `json:"labor_expense,omitempty"`

	FirstName      string `gorm:"-" json:"first_name,omitempty"`
	LastName       string `gorm:"-" json:"last_name,omitempty"`
	BusinessUnit   string `gorm:"-" json:"business_unit,omitempty"`
	IsPast         bool   `gorm:"-" json:"is_past"`
	ForecastLength *int   `gorm:"-" json:"forecast_length,omitempty"`

	// Unraveled marks daily rows produced from a span row.
	Unraveled bool `gorm:"-" json:"-"`

	CreatedAt time.Time `json:"-"`
}

func (r *MetricRow) BeforeCreate(tx *gorm.DB) error {
	if r.RowID == "" {
		r.RowID = uuid.New().String()
	}
	return nil
}

// Day returns the row date, or the start date for span rows.
func (r MetricRow) Day() time.Time {
	if r.Date != nil {
		return *r.Date
	}
	if r.StartDate != nil {
		return *r.StartDate
	}
	return time.Time{}
}
