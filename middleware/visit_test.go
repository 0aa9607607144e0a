package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
)

func TestMain(m *testing.M) {
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
		&models.Indicator{},
		&models.IndicatorDay{},
		&models.IndicatorSample{},
	))
	return db
}

func siteVisitTotal(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var total int64
	err := db.Model(&models.IndicatorDay{}).
		Joins("JOIN indicators ON indicators.id = indicator_days.indicator_id").
		Where("indicators.name = ?", indicators.SiteVisits).
		Select("COALESCE(SUM(indicator_days.count),0)").
		Scan(&total).Error
	require.NoError(t, err)
	return total
}

// serve issues a request from a loopback address so origin classification
// short-circuits on the private-IP check.
func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:52000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVisitRecorderCountsPageViews(t *testing.T) {
	db := openTestDB(t)
	svc := indicators.NewService(db)

	r := gin.New()
	r.Use(VisitRecorder(svc))
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	r.GET("/", ok)
	r.POST("/", ok)
	r.GET("/health", ok)
	r.GET("/api/v1/places", ok)
	r.GET("/static/app.js", ok)

	// None of these should count: wrong method, skip-listed paths, 404.
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/places").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/static/app.js").Code)
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/missing").Code)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)

	// Increments are asynchronous, so poll for the expected total.
	require.Eventually(t, func() bool {
		return siteVisitTotal(t, db) == 2
	}, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, int64(2), siteVisitTotal(t, db))
}

func TestVisitRecorderSkipsErrorResponses(t *testing.T) {
	db := openTestDB(t)
	svc := indicators.NewService(db)

	r := gin.New()
	r.Use(VisitRecorder(svc))
	r.GET("/broken", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, "boom")
	})
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	require.Equal(t, http.StatusInternalServerError, serve(r, http.MethodGet, "/broken").Code)
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/").Code)

	require.Eventually(t, func() bool {
		return siteVisitTotal(t, db) == 1
	}, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, int64(1), siteVisitTotal(t, db))
}

func TestEffectiveClientIPHeaderPriority(t *testing.T) {
	r := gin.New()
	var got string
	r.GET("/", func(c *gin.Context) {
		got = effectiveClientIP(c)
		c.Status(http.StatusOK)
	})

	do := func(headers map[string]string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "127.0.0.1:52000"
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return got
	}

	require.Equal(t, "203.0.113.9", do(map[string]string{
		"CF-Connecting-IP": "203.0.113.9",
		"X-Real-IP":        "198.51.100.7",
	}))
	require.Equal(t, "198.51.100.7", do(map[string]string{
		"X-Real-IP": "198.51.100.7",
	}))
	require.Equal(t, "198.51.100.7", do(map[string]string{
		"X-Forwarded-For": "198.51.100.7, 10.0.0.1",
	}))
	require.Equal(t, "127.0.0.1", do(nil))
}
