package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Category groups products; names are unique across the platform.
type Category struct {
	BaseModel
	CategoryName string    `gorm:"uniqueIndex;not null" json:"category_name"`
	SellerID     uuid.UUID `gorm:"type:uuid;index;not null" json:"seller_id"`
}

// Attribute is a named option set such as size or colour.
type Attribute struct {
	BaseModel
	AttributeName string                     `gorm:"not null" json:"attribute_name"`
	Options       datatypes.JSONSlice[string] `json:"options"`
}
