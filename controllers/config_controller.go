package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/utils"
)

// ConfigController serves environment-driven UI configuration.
type ConfigController struct{}

func NewConfigController() *ConfigController { return &ConfigController{} }

// GetSite returns the catalog values the frontend needs to render forms.
func (c *ConfigController) GetSite(ctx *gin.Context) {
	cfg := config.Get()
	utils.Success(ctx, gin.H{
		"home_country":     cfg.HomeCountry,
		"place_categories": validPlaceCategories,
		"link_platforms":   validPlatforms,
		"captcha_enabled":  cfg.RegisterCaptchaEnabled,
	})
}
