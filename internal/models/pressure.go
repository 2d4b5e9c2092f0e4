package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PressureReading is one answer of the workload survey. X is the felt
// workload and Y the felt urgency, both in [0, 1].
type PressureReading struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	User      string    `gorm:"size:100;index;not null" json:"user"`
	Date      time.Time `gorm:"index;not null" json:"date"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *PressureReading) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
