package models

import "time"

// SocialLink is an outbound social-media or website link attached to a place.
// Shares through /go/:id are counted by the social_shares indicator.
type SocialLink struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PlaceID   uint      `gorm:"index;not null" json:"place_id"`
	Platform  string    `gorm:"size:32;not null" json:"platform"` // facebook, instagram, whatsapp, website...
	URL       string    `gorm:"size:512;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
