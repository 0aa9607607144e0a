package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// ReviewController handles written reviews and star ratings for places.
type ReviewController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewReviewController creates a new ReviewController instance.
func NewReviewController(db *gorm.DB, svc *indicators.Service) *ReviewController {
	return &ReviewController{db: db, indicators: svc}
}

// CreateReview allows authenticated users to review a place.
func (r *ReviewController) CreateReview(ctx *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid request payload")
		return
	}

	content := utils.Sanitize(req.Content)
	if content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40041, "content cannot be empty")
		return
	}

	placeID := ctx.Param("id")
	var place models.Place
	if err := r.db.First(&place, placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40410, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to load place")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	review := models.Review{
		PlaceID: place.ID,
		UserID:  userID,
		Content: content,
	}
	if err := r.db.Create(&review).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to create review")
		return
	}
	if err := r.db.Preload("User").First(&review, review.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to load review")
		return
	}

	r.indicators.IncrementAsync(indicators.ReviewsPublished)
	invalidatePlaceCaches(place.ID)

	utils.Success(ctx, gin.H{"review": review})
}

// ListReviews returns paginated reviews for a place (public).
func (r *ReviewController) ListReviews(ctx *gin.Context) {
	placeID := ctx.Param("id")
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var reviews []models.Review
	var total int64
	q := r.db.Where("place_id = ?", placeID).Preload("User").Order("created_at DESC")
	if err := q.Model(&models.Review{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to count reviews")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&reviews).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50044, "failed to list reviews")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      reviews,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// DeleteReview allows the author or an admin to delete a review.
func (r *ReviewController) DeleteReview(ctx *gin.Context) {
	reviewID := ctx.Param("reviewId")
	var review models.Review
	if err := r.db.First(&review, reviewID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40411, "review not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50045, "failed to load review")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if review.UserID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40320, "you can only delete your own review")
		return
	}
	if err := r.db.Delete(&review).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50046, "failed to delete review")
		return
	}
	invalidatePlaceCaches(review.PlaceID)
	utils.Success(ctx, gin.H{"message": "review deleted"})
}

// RatePlace upserts the caller's 1-5 score for a place and recomputes the
// denormalized rating aggregates inside the same transaction.
func (r *ReviewController) RatePlace(ctx *gin.Context) {
	var req struct {
		Score int `json:"score" binding:"required,min=1,max=5"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "score must be between 1 and 5")
		return
	}

	placeID, err := strconv.Atoi(ctx.Param("id"))
	if err != nil || placeID <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40043, "invalid place id")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var place models.Place
	txErr := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&place, placeID).Error; err != nil {
			return err
		}

		// One score per (place, user); resubmission replaces the old score.
		rating := models.Rating{PlaceID: place.ID, UserID: userID, Score: req.Score}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "place_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"score": req.Score}),
		}).Create(&rating).Error; err != nil {
			return err
		}

		var agg struct {
			Total int64
			Count int64
		}
		err := tx.Model(&models.Rating{}).
			Where("place_id = ?", place.ID).
			Select("COALESCE(SUM(score),0) AS total, COUNT(*) AS count").
			Scan(&agg).Error
		if err != nil {
			return err
		}

		place.RatingTotal = agg.Total
		place.RatingCount = agg.Count
		return tx.Save(&place).Error
	})

	if txErr != nil {
		if txErr == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40412, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50047, "failed to save rating")
		return
	}

	invalidatePlaceCaches(place.ID)

	utils.Success(ctx, gin.H{
		"score":          req.Score,
		"average_rating": place.AverageRating(),
		"rating_count":   place.RatingCount,
	})
}
