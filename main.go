package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/routes"
	"github.com/descubrelocal/descubre/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Place{},
		&models.Rating{},
		&models.Review{},
		&models.Favorite{},
		&models.Event{},
		&models.EventRegistration{},
		&models.SocialLink{},
		&models.Indicator{},
		&models.IndicatorDay{},
		&models.IndicatorSample{},
		&models.UploadedFile{},
	)

	if err := indicators.Seed(db); err != nil {
		utils.Sugar.Fatalf("failed to seed indicator catalog: %v", err)
	}
	promoteAdmins(cfg.AdminUsernames)

	svc := indicators.NewService(db)

	// Nightly gauge snapshots just before midnight
	c := cron.New()
	if _, err := c.AddFunc("55 23 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), indicators.SnapshotTimeout)
		defer cancel()
		if err := svc.SnapshotGauges(ctx); err != nil {
			utils.Sugar.Warnf("gauge snapshot failed: %v", err)
		}
	}); err != nil {
		utils.Sugar.Fatalf("failed to schedule gauge snapshot: %v", err)
	}
	c.Start()

	// Background cleanup for unclaimed photo uploads (best-effort)
	utils.StartUploadCleaner(5 * time.Minute)

	r := routes.SetupRouter(db, svc)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}

// promoteAdmins raises configured usernames to the admin role at boot.
func promoteAdmins(usernames []string) {
	if len(usernames) == 0 {
		return
	}
	db := config.DB()
	err := db.Model(&models.User{}).
		Where("username IN ?", usernames).
		Where("role <> ?", models.RoleAdmin).
		Update("role", models.RoleAdmin).Error
	if err != nil {
		utils.Sugar.Warnf("failed to promote admin usernames: %v", err)
	}
}
