package models

import "time"

// Place is a tourist or cultural site published by an entrepreneur.
//
// RatingTotal/RatingCount are denormalized aggregates over the ratings table,
// recomputed inside the rating transaction whenever a rating is submitted.
// The indicator report path reads them to derive the platform rating average;
// they are never edited directly by handlers.
type Place struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	OwnerID      uint      `gorm:"index;not null" json:"owner_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	Category     string    `gorm:"size:32;index;default:'general'" json:"category"`
	Address      string    `gorm:"size:255" json:"address"`
	Municipality string    `gorm:"size:128;index" json:"municipality"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	PhotoURL     string    `gorm:"size:512" json:"photo_url"`
	Published    bool      `json:"published"`
	RatingTotal  int64     `gorm:"not null;default:0" json:"rating_total"`
	RatingCount  int64     `gorm:"not null;default:0" json:"rating_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Owner       User         `gorm:"foreignKey:OwnerID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"owner"`
	Reviews     []Review     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"reviews,omitempty"`
	SocialLinks []SocialLink `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"social_links,omitempty"`
}

// AverageRating returns the denormalized mean, or 0 when unrated.
func (p *Place) AverageRating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingTotal) / float64(p.RatingCount)
}
