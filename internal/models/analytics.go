package models

import (
	"time"

	"github.com/google/uuid"
)

// Analytics counts storefront traffic for one business.
type Analytics struct {
	BaseModel
	BusinessID uuid.UUID `gorm:"type:uuid;index;not null" json:"business_id"`
	Business   *Business `gorm:"constraint:OnDelete:CASCADE" json:"business,omitempty"`
	Products   []Product `gorm:"many2many:analytics_products;constraint:OnDelete:CASCADE" json:"products"`
	Views      int64     `gorm:"not null;default:0" json:"views"`
	Clicks     int64     `gorm:"not null;default:0" json:"clicks"`
	Date       time.Time `json:"date"`
}

func (Analytics) TableName() string {
	return "analytics"
}
