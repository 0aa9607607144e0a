package models

import "time"

// Event is a dated activity hosted at a place.
type Event struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlaceID     uint      `gorm:"index;not null" json:"place_id"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	StartsAt    time.Time `gorm:"index;not null" json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `gorm:"default:0" json:"capacity"` // 0 means unlimited
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Place         Place               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"place"`
	Registrations []EventRegistration `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
}

// EventRegistration records a user signing up for an event.
type EventRegistration struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   uint      `gorm:"index:idx_reg_event_user,unique;not null" json:"event_id"`
	UserID    uint      `gorm:"index:idx_reg_event_user,unique;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
