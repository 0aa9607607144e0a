package models

import "time"

// Rating is one user's score for a place, 1 to 5. A user has at most one
// rating per place; resubmitting replaces the previous score.
type Rating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlaceID   uint      `gorm:"index:idx_rating_place_user,unique;not null" json:"place_id"`
	UserID    uint      `gorm:"index:idx_rating_place_user,unique;not null" json:"user_id"`
	Score     int       `gorm:"not null" json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
