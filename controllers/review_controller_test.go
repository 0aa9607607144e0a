package controllers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/middleware"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

func bearerFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user.ID, user.Username, user.Role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(r *gin.Engine, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRatePlaceRecomputesAggregates(t *testing.T) {
	db := openTestDB(t)
	svc := indicators.NewService(db)
	ctrl := NewReviewController(db, svc)

	r := gin.New()
	r.POST("/places/:id/rating", middleware.AuthRequired(), ctrl.RatePlace)

	owner := createTestUser(t, db, "owner", models.RoleEntrepreneur)
	alice := createTestUser(t, db, "alice", models.RoleTourist)
	bob := createTestUser(t, db, "bob", models.RoleTourist)

	place := models.Place{OwnerID: owner.ID, Name: "Laguna Azul"}
	require.NoError(t, db.Create(&place).Error)

	path := fmt.Sprintf("/places/%d/rating", place.ID)

	w := doJSON(r, http.MethodPost, path, `{"score":5}`, bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, path, `{"score":3}`, bearerFor(t, bob))
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Place
	require.NoError(t, db.First(&got, place.ID).Error)
	require.Equal(t, int64(8), got.RatingTotal)
	require.Equal(t, int64(2), got.RatingCount)
	require.InDelta(t, 4.0, got.AverageRating(), 1e-9)

	// Resubmission replaces the old score instead of adding a row.
	w = doJSON(r, http.MethodPost, path, `{"score":1}`, bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, db.First(&got, place.ID).Error)
	require.Equal(t, int64(4), got.RatingTotal)
	require.Equal(t, int64(2), got.RatingCount)

	var ratings int64
	require.NoError(t, db.Model(&models.Rating{}).Count(&ratings).Error)
	require.Equal(t, int64(2), ratings)
}

func TestRatePlaceRejectsOutOfRangeScore(t *testing.T) {
	db := openTestDB(t)
	ctrl := NewReviewController(db, indicators.NewService(db))

	r := gin.New()
	r.POST("/places/:id/rating", middleware.AuthRequired(), ctrl.RatePlace)

	owner := createTestUser(t, db, "owner", models.RoleEntrepreneur)
	place := models.Place{OwnerID: owner.ID, Name: "Mirador"}
	require.NoError(t, db.Create(&place).Error)

	alice := createTestUser(t, db, "alice", models.RoleTourist)
	path := fmt.Sprintf("/places/%d/rating", place.ID)

	w := doJSON(r, http.MethodPost, path, `{"score":6}`, bearerFor(t, alice))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, path, `{"score":0}`, bearerFor(t, alice))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndDeleteReview(t *testing.T) {
	db := openTestDB(t)
	ctrl := NewReviewController(db, indicators.NewService(db))

	r := gin.New()
	r.POST("/places/:id/reviews", middleware.AuthRequired(), ctrl.CreateReview)
	r.GET("/places/:id/reviews", ctrl.ListReviews)
	r.DELETE("/reviews/:reviewId", middleware.AuthRequired(), ctrl.DeleteReview)

	owner := createTestUser(t, db, "owner", models.RoleEntrepreneur)
	alice := createTestUser(t, db, "alice", models.RoleTourist)
	mallory := createTestUser(t, db, "mallory", models.RoleTourist)

	place := models.Place{OwnerID: owner.ID, Name: "Cascada"}
	require.NoError(t, db.Create(&place).Error)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/places/%d/reviews", place.ID), `{"content":"beautiful spot"}`, bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, fmt.Sprintf("/places/%d/reviews", place.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "beautiful spot")

	var review models.Review
	require.NoError(t, db.Where("place_id = ?", place.ID).First(&review).Error)

	// Someone else cannot delete the review.
	w = doJSON(r, http.MethodDelete, fmt.Sprintf("/reviews/%d", review.ID), "", bearerFor(t, mallory))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodDelete, fmt.Sprintf("/reviews/%d", review.ID), "", bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.Review{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestCreateReviewStripsMarkup(t *testing.T) {
	db := openTestDB(t)
	ctrl := NewReviewController(db, indicators.NewService(db))

	r := gin.New()
	r.POST("/places/:id/reviews", middleware.AuthRequired(), ctrl.CreateReview)

	owner := createTestUser(t, db, "owner", models.RoleEntrepreneur)
	alice := createTestUser(t, db, "alice", models.RoleTourist)
	place := models.Place{OwnerID: owner.ID, Name: "Plaza"}
	require.NoError(t, db.Create(&place).Error)

	w := doJSON(r, http.MethodPost, fmt.Sprintf("/places/%d/reviews", place.ID),
		`{"content":"nice <script>alert(1)</script>"}`, bearerFor(t, alice))
	require.Equal(t, http.StatusOK, w.Code)

	var review models.Review
	require.NoError(t, db.Where("place_id = ?", place.ID).First(&review).Error)
	require.NotContains(t, review.Content, "<script>")
}
