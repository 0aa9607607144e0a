package controllers

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/models"
)

func TestMain(m *testing.M) {
	// Config and redis are package singletons, so the environment must be
	// in place before the first config.Get anywhere in the test binary.
	os.Setenv("JWT_SECRET", "test-secret")

	mr, err := miniredis.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "miniredis: %v\n", err)
		os.Exit(1)
	}
	host, port, _ := strings.Cut(mr.Addr(), ":")
	os.Setenv("REDIS_HOST", host)
	os.Setenv("REDIS_PORT", port)
	config.Load()

	gin.SetMode(gin.TestMode)

	code := m.Run()
	mr.Close()
	os.Exit(code)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
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
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username, role string) models.User {
	t.Helper()
	user := models.User{Username: username, Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}
