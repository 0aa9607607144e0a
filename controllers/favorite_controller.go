package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// FavoriteController manages per-user saved places.
type FavoriteController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewFavoriteController creates a new FavoriteController instance.
func NewFavoriteController(db *gorm.DB, svc *indicators.Service) *FavoriteController {
	return &FavoriteController{db: db, indicators: svc}
}

// AddFavorite saves a place for the authenticated user. Saving the same
// place twice is a no-op and is not counted again.
func (f *FavoriteController) AddFavorite(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	placeID := ctx.Param("id")
	var place models.Place
	if err := f.db.First(&place, placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40430, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to load place")
		return
	}

	fav := models.Favorite{UserID: userID, PlaceID: place.ID}
	res := f.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "place_id"}},
		DoNothing: true,
	}).Create(&fav)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to save favorite")
		return
	}
	if res.RowsAffected > 0 {
		f.indicators.IncrementAsync(indicators.FavoritesSaved)
	}

	utils.Success(ctx, gin.H{"message": "place saved"})
}

// RemoveFavorite removes a saved place.
func (f *FavoriteController) RemoveFavorite(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	placeID := ctx.Param("id")
	res := f.db.Where("user_id = ? AND place_id = ?", userID, placeID).Delete(&models.Favorite{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50052, "failed to remove favorite")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40431, "favorite not found")
		return
	}
	utils.Success(ctx, gin.H{"message": "favorite removed"})
}

// ListFavorites returns the authenticated user's saved places.
func (f *FavoriteController) ListFavorites(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var favorites []models.Favorite
	var total int64
	q := f.db.Where("user_id = ?", userID).Preload("Place").Order("created_at DESC")
	if err := q.Model(&models.Favorite{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50053, "failed to count favorites")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&favorites).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50054, "failed to list favorites")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      favorites,
		"pagination": paginationPayload(page, pageSize, total),
	})
}
