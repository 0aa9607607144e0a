package utils

import (
	"os"
	"time"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/models"
)

// StartUploadCleaner launches a background goroutine that periodically deletes
// photo uploads that were never attached to a place. Best-effort, logs failures.
func StartUploadCleaner(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		for {
			// Sleep first to avoid racing immediately at startup
			time.Sleep(interval)
			db := config.DB()
			if db == nil {
				continue
			}
			var items []models.UploadedFile
			err := db.Where("claimed = ? AND expire_at <= ?", false, time.Now()).
				Limit(100).Find(&items).Error
			if err != nil {
				Sugar.Warnf("upload cleaner query failed: %v", err)
				continue
			}
			for _, it := range items {
				if it.FilePath != "" {
					_ = os.Remove(it.FilePath)
				}
				// Remove row regardless of file deletion outcome
				if err := db.Delete(&models.UploadedFile{}, it.ID).Error; err != nil {
					Sugar.Warnf("upload cleaner delete row failed: %v", err)
				}
			}
		}
	}()
}
