package models

import "time"

// Favorite marks a place saved by a tourist. One row per (user, place).
type Favorite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index:idx_fav_user_place,unique;not null" json:"user_id"`
	PlaceID   uint      `gorm:"index:idx_fav_user_place,unique;not null" json:"place_id"`
	CreatedAt time.Time `json:"created_at"`
	Place     Place     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"place"`
}
