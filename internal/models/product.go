package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const DefaultInventory = "In Stock"

type Product struct {
	BaseModel
	Images             datatypes.JSONSlice[string] `json:"images"`
	ProductName        string                     `gorm:"not null" json:"product_name"`
	ProductDescription string                     `json:"product_description"`
	Price              decimal.Decimal            `gorm:"type:numeric(12,2);not null" json:"price"`
	IsVisible          bool                       `gorm:"not null" json:"is_visible"`
	Inventory          string                     `gorm:"not null;default:'In Stock'" json:"inventory"`
	CategoryID         *uuid.UUID                 `gorm:"type:uuid;index" json:"category_id,omitempty"`
	Category           *Category                  `gorm:"constraint:OnDelete:SET NULL" json:"category,omitempty"`
	SellerID           uuid.UUID                  `gorm:"type:uuid;index;not null" json:"seller_id"`
	Attributes         []Attribute                `gorm:"many2many:product_attributes;constraint:OnDelete:CASCADE" json:"attributes,omitempty"`
	Visits             int64                      `gorm:"not null;default:0" json:"visits"`
	Redirects          int64                      `gorm:"not null;default:0" json:"redirects"`
}
