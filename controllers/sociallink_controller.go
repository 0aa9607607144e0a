package controllers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

var validPlatforms = []string{"facebook", "instagram", "whatsapp", "tiktok", "x", "youtube", "website"}

// SocialLinkController manages outbound social links on places and the
// share redirect that feeds the social_shares indicator.
type SocialLinkController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewSocialLinkController creates a new SocialLinkController instance.
func NewSocialLinkController(db *gorm.DB, svc *indicators.Service) *SocialLinkController {
	return &SocialLinkController{db: db, indicators: svc}
}

// CreateLink attaches a social link to a place (owner or admin).
func (s *SocialLinkController) CreateLink(ctx *gin.Context) {
	var req struct {
		Platform string `json:"platform" binding:"required"`
		URL      string `json:"url" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40080, "invalid request payload")
		return
	}

	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	valid := false
	for _, p := range validPlatforms {
		if platform == p {
			valid = true
			break
		}
	}
	if !valid {
		utils.Error(ctx, http.StatusBadRequest, 40081, "unsupported platform")
		return
	}

	target := strings.TrimSpace(req.URL)
	parsed, err := url.Parse(target)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		utils.Error(ctx, http.StatusBadRequest, 40082, "url must be absolute http(s)")
		return
	}

	placeID := ctx.Param("id")
	var place models.Place
	if err := s.db.First(&place, placeID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40450, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to load place")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if place.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40340, "you can only manage links on your own places")
		return
	}

	link := models.SocialLink{PlaceID: place.ID, Platform: platform, URL: target}
	if err := s.db.Create(&link).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50081, "failed to create link")
		return
	}

	invalidatePlaceCaches(place.ID)
	utils.Success(ctx, gin.H{"link": link})
}

// DeleteLink removes a social link (owner or admin).
func (s *SocialLinkController) DeleteLink(ctx *gin.Context) {
	linkID := ctx.Param("linkId")
	var link models.SocialLink
	if err := s.db.First(&link, linkID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40451, "link not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50082, "failed to load link")
		return
	}

	var place models.Place
	if err := s.db.First(&place, link.PlaceID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50083, "failed to load place")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if place.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40341, "you can only manage links on your own places")
		return
	}

	if err := s.db.Delete(&link).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50084, "failed to delete link")
		return
	}
	invalidatePlaceCaches(place.ID)
	utils.Success(ctx, gin.H{"message": "link deleted"})
}

// Share redirects to the link target and counts one share. Counting is
// fire-and-forget so a metrics outage never breaks the redirect.
func (s *SocialLinkController) Share(ctx *gin.Context) {
	linkID := ctx.Param("id")
	var link models.SocialLink
	if err := s.db.First(&link, linkID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40452, "link not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50085, "failed to load link")
		return
	}

	s.indicators.IncrementAsync(indicators.SocialShares)
	ctx.Redirect(http.StatusFound, link.URL)
}
