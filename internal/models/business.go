package models

import "github.com/google/uuid"

// Business is a storefront owned by one seller.
type Business struct {
	BaseModel
	BusinessName     string     `gorm:"not null" json:"business_name"`
	BusinessTagline  string     `json:"business_tagline"`
	BusinessEmailAdd string     `json:"business_email_add"`
	SiteID           *uuid.UUID `gorm:"type:uuid;index" json:"site_id,omitempty"`
	Site             *Site      `gorm:"constraint:OnDelete:SET NULL" json:"site,omitempty"`
	SellerID         uuid.UUID  `gorm:"type:uuid;index;not null" json:"seller_id"`
	TemplateID       int        `gorm:"not null;default:1" json:"template_id"`
}

// Site holds the content a storefront renders. Reference sets are unordered.
type Site struct {
	BaseModel
	SiteName    string      `gorm:"not null" json:"site_name"`
	SiteTagline string      `json:"site_tagline"`
	SiteURL     string      `json:"site_url"`
	HeroSlides  []HeroSlide `gorm:"many2many:site_hero_slides;constraint:OnDelete:CASCADE" json:"hero_slides"`
	Products    []Product   `gorm:"many2many:site_products;constraint:OnDelete:CASCADE" json:"products"`
	Stories     []Story     `gorm:"many2many:site_stories;constraint:OnDelete:CASCADE" json:"stories"`
	Categories  []Category  `gorm:"many2many:site_categories;constraint:OnDelete:CASCADE" json:"categories"`
}
