package models

import "time"

// InvalidSalesCase is a finding about an open sales case that lacks data.
// Findings expire a day after insertion.
type InvalidSalesCase struct {
	RowID    string    `gorm:"column:row_id;size:36;primaryKey" json:"_id"`
	Category string    `gorm:"size:100;index" json:"id"`
	Name     string    `gorm:"size:255" json:"name"`
	Phase    string    `gorm:"size:255" json:"phase"`
	SoldBy   string    `gorm:"size:100" json:"soldby"`
	Owner    string    `gorm:"size:100" json:"owner"`
	GUID     string    `gorm:"size:64" json:"guid"`
	Inserted time.Time `gorm:"index" json:"inserted"`
}
