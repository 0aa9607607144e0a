package models

import "time"

// UploadedFile tracks locally stored place photos so abandoned uploads
// (never attached to a place) can be swept by the background cleaner.
type UploadedFile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FilePath  string    `gorm:"size:1024;not null" json:"file_path"` // filesystem path
	URL       string    `gorm:"size:1024;not null" json:"url"`       // public URL like /static/photos/...
	Claimed   bool      `gorm:"default:false;index" json:"claimed"`  // set once attached to a place
	ExpireAt  time.Time `gorm:"index" json:"expire_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
