package controllers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// Place categories accepted by create/update.
var validPlaceCategories = []string{"general", "nature", "culture", "gastronomy", "lodging", "adventure", "nightlife"}

// PlaceController manages CRUD operations for places and their photos.
type PlaceController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewPlaceController creates a new PlaceController instance.
func NewPlaceController(db *gorm.DB, svc *indicators.Service) *PlaceController {
	return &PlaceController{db: db, indicators: svc}
}

type placeRequest struct {
	Name         string  `json:"name" binding:"required,min=1"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Address      string  `json:"address"`
	Municipality string  `json:"municipality"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	PhotoURL     string  `json:"photo_url"`
	Published    *bool   `json:"published"`
}

func validPlaceCategory(category string) bool {
	for _, c := range validPlaceCategories {
		if category == c {
			return true
		}
	}
	return false
}

// CreatePlace allows entrepreneurs to publish a new place.
func (p *PlaceController) CreatePlace(ctx *gin.Context) {
	var req placeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	name := utils.Sanitize(strings.TrimSpace(req.Name))
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "name cannot be empty")
		return
	}
	category := req.Category
	if category == "" {
		category = "general"
	}
	if !validPlaceCategory(category) {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid category")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	published := true
	if req.Published != nil {
		published = *req.Published
	}

	place := models.Place{
		OwnerID:      userID,
		Name:         name,
		Description:  utils.Sanitize(req.Description),
		Category:     category,
		Address:      utils.Sanitize(strings.TrimSpace(req.Address)),
		Municipality: utils.Sanitize(strings.TrimSpace(req.Municipality)),
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
		Published:    published,
	}

	if err := p.db.Create(&place).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create place")
		return
	}

	if place.PhotoURL != "" {
		p.claimPhoto(place.PhotoURL)
	}
	if place.Published {
		p.indicators.IncrementAsync(indicators.PlacesPublished)
	}

	utils.InvalidateByPrefix("cache:places:list:")
	utils.Success(ctx, gin.H{"place": place})
}

// ListPlaces returns paginated published places including owner information.
func (p *PlaceController) ListPlaces(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	category := strings.TrimSpace(ctx.Query("category"))
	municipality := strings.TrimSpace(ctx.Query("municipality"))

	// Cache category/municipality lists when no search term to avoid cache key explosion
	cacheKey := fmt.Sprintf("cache:places:list:cat=%s:mun=%s:page=%d:size=%d", category, municipality, page, pageSize)
	if search == "" {
		if b, ok := utils.CacheGetBytes(cacheKey); ok {
			ctx.Data(200, "application/json", b)
			return
		}
	}

	var places []models.Place
	var total int64

	query := p.db.Where("published = ?", true).Preload("Owner").Order("created_at DESC")
	if search != "" {
		query = query.Where("name LIKE ? OR description LIKE ?", "%"+search+"%", "%"+search+"%")
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if municipality != "" {
		query = query.Where("municipality = ?", municipality)
	}
	if err := query.Model(&models.Place{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count places")
		return
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Find(&places).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list places")
		return
	}

	payload := gin.H{
		"items":      places,
		"pagination": paginationPayload(page, pageSize, total),
	}
	if search == "" {
		utils.CacheSetJSON(cacheKey, wrapForCache(payload), time.Hour)
	}
	utils.Success(ctx, payload)
}

// GetPlace returns a single place with social links and rating summary.
func (p *PlaceController) GetPlace(ctx *gin.Context) {
	placeID := ctx.Param("id")

	if b, ok := utils.CacheGetBytes("cache:place:detail:" + placeID); ok {
		ctx.Data(200, "application/json", b)
		return
	}

	var place models.Place
	err := p.db.Preload("Owner").Preload("SocialLinks").First(&place, placeID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40401, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load place")
		return
	}

	payload := gin.H{"place": place, "average_rating": place.AverageRating()}
	utils.CacheSetJSON("cache:place:detail:"+placeID, wrapForCache(payload), time.Hour)
	utils.Success(ctx, payload)
}

// ListMyPlaces returns places owned by the authenticated entrepreneur.
func (p *PlaceController) ListMyPlaces(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	var places []models.Place
	var total int64
	q := p.db.Where("owner_id = ?", userID).Order("created_at DESC")
	if err := q.Model(&models.Place{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to count places")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&places).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to list places")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      places,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// UpdatePlace allows the owner or an admin to update a place.
func (p *PlaceController) UpdatePlace(ctx *gin.Context) {
	var req placeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request payload")
		return
	}

	name := utils.Sanitize(strings.TrimSpace(req.Name))
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "name cannot be empty")
		return
	}
	category := req.Category
	if category == "" {
		category = "general"
	}
	if !validPlaceCategory(category) {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid category")
		return
	}

	placeID := ctx.Param("id")
	var place models.Place
	if err := p.db.First(&place, placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40403, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to load place")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}
	if place.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only update your own places")
		return
	}

	wasPublished := place.Published
	oldPhoto := place.PhotoURL

	place.Name = name
	place.Description = utils.Sanitize(req.Description)
	place.Category = category
	place.Address = utils.Sanitize(strings.TrimSpace(req.Address))
	place.Municipality = utils.Sanitize(strings.TrimSpace(req.Municipality))
	place.Latitude = req.Latitude
	place.Longitude = req.Longitude
	place.PhotoURL = strings.TrimSpace(req.PhotoURL)
	if req.Published != nil {
		place.Published = *req.Published
	}

	if err := p.db.Save(&place).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to update place")
		return
	}

	if place.PhotoURL != "" && place.PhotoURL != oldPhoto {
		p.claimPhoto(place.PhotoURL)
	}
	if !wasPublished && place.Published {
		p.indicators.IncrementAsync(indicators.PlacesPublished)
	}

	utils.InvalidateByPrefix("cache:places:list:")
	utils.InvalidateByPrefix("cache:place:detail:" + placeID)

	utils.Success(ctx, gin.H{"place": place})
}

// DeletePlace allows the owner or an admin to delete a place.
func (p *PlaceController) DeletePlace(ctx *gin.Context) {
	placeID := ctx.Param("id")
	var place models.Place
	if err := p.db.First(&place, placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40404, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to load place")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}
	if place.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40303, "you can only delete your own places")
		return
	}

	if err := p.db.Delete(&place).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to delete place")
		return
	}

	utils.InvalidateByPrefix("cache:places:list:")
	utils.InvalidateByPrefix("cache:place:detail:" + placeID)

	utils.Success(ctx, gin.H{"message": "place deleted"})
}

// UploadPhoto handles place photo uploads. The file is stored under a
// random name and swept later unless a place claims its URL.
func (p *PlaceController) UploadPhoto(ctx *gin.Context) {
	if _, ok := getUserID(ctx); !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}

	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
		return
	}
	defer file.Close()

	// Size limit: 10MB
	const maxSize = 10 * 1024 * 1024
	if header.Size > 0 && header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 10MB")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		utils.Error(ctx, http.StatusBadRequest, 40033, "unsupported image type")
		return
	}

	now := time.Now()
	baseDir := filepath.Join(".", "static", "photos", now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to create upload directory")
		return
	}

	safeName := uuid.NewString() + ext
	dstPath := filepath.Join(baseDir, safeName)

	out, err := os.Create(dstPath)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to save file")
		return
	}
	defer out.Close()

	lr := &io.LimitedReader{R: file, N: maxSize + 1}
	written, err := io.Copy(out, lr)
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to write file")
		return
	}
	if written > maxSize {
		_ = out.Close()
		_ = os.Remove(dstPath)
		utils.Error(ctx, http.StatusBadRequest, 40032, "file size exceeds 10MB")
		return
	}

	relURL := fmt.Sprintf("/static/photos/%s/%s/%s", now.Format("2006"), now.Format("01"), safeName)
	ttl := time.Duration(config.Get().UploadTTLMinutes) * time.Minute
	absPath, _ := filepath.Abs(dstPath)
	record := models.UploadedFile{FilePath: absPath, URL: relURL, ExpireAt: now.Add(ttl)}
	if err := p.db.Create(&record).Error; err != nil {
		utils.Sugar.Warnf("failed to record upload %s: %v", relURL, err)
	}

	utils.Success(ctx, gin.H{"url": relURL})
}

// claimPhoto marks an uploaded file as attached so the cleaner skips it.
func (p *PlaceController) claimPhoto(url string) {
	err := p.db.Model(&models.UploadedFile{}).
		Where("url = ?", url).
		Update("claimed", true).Error
	if err != nil {
		utils.Sugar.Warnf("failed to claim upload %s: %v", url, err)
	}
}

// invalidatePlaceCaches drops list and detail cache entries for a place.
func invalidatePlaceCaches(placeID uint) {
	utils.InvalidateByPrefix("cache:places:list:")
	utils.InvalidateByPrefix("cache:place:detail:" + strconv.Itoa(int(placeID)))
}
