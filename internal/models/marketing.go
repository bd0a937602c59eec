package models

// HeroSlide is a banner image with a tagline.
type HeroSlide struct {
	BaseModel
	Tagline string `json:"tagline"`
	Image   string `gorm:"not null" json:"image"`
}

type Story struct {
	BaseModel
	StoryTitle string      `gorm:"not null" json:"story_title"`
	IsVisible  bool        `gorm:"not null" json:"is_visible"`
	StoryCards []StoryCard `gorm:"many2many:story_story_cards;constraint:OnDelete:CASCADE" json:"story_cards,omitempty"`
}

type StoryCard struct {
	BaseModel
	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}
