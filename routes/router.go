package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/descubrelocal/descubre/config"
	"github.com/descubrelocal/descubre/controllers"
	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/middleware"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, svc *indicators.Service) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	// Count page views and visitor origin after each request
	r.Use(middleware.VisitRecorder(svc))

	r.Static("/static", "./static")

	r.GET("/", func(c *gin.Context) {
		c.File("./static/index.html")
	})

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db, svc)
	placeController := controllers.NewPlaceController(db, svc)
	reviewController := controllers.NewReviewController(db, svc)
	favoriteController := controllers.NewFavoriteController(db, svc)
	eventController := controllers.NewEventController(db, svc)
	linkController := controllers.NewSocialLinkController(db, svc)
	indicatorController := controllers.NewIndicatorController(db, svc)
	configController := controllers.NewConfigController()

	// Share redirect lives outside /api so counted links look like plain URLs
	r.GET("/go/:id", linkController.Share)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/send-email-code", authController.SendEmailCode)
	authGroup.GET("/captcha", authController.Captcha)
	authGroup.POST("/captcha/verify", authController.CaptchaVerify)
	authGroup.GET("/oauth/:provider/login", authController.OAuthRedirect)
	authGroup.GET("/oauth/:provider/callback", authController.OAuthCallback)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)
	authGroup.PATCH("/profile", middleware.AuthRequired(), authController.UpdateProfile)

	// Public catalog
	api.GET("/places", placeController.ListPlaces)
	api.GET("/places/:id", placeController.GetPlace)
	api.GET("/places/:id/reviews", reviewController.ListReviews)
	api.GET("/events", eventController.ListEvents)
	api.GET("/events/:id", eventController.GetEvent)
	api.GET("/users/:id", authController.GetUserPublic)
	api.GET("/config/site", configController.GetSite)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	// Any authenticated user
	protected.POST("/places/:id/reviews", reviewController.CreateReview)
	protected.DELETE("/reviews/:reviewId", reviewController.DeleteReview)
	protected.POST("/places/:id/rating", reviewController.RatePlace)
	protected.POST("/places/:id/favorite", favoriteController.AddFavorite)
	protected.DELETE("/places/:id/favorite", favoriteController.RemoveFavorite)
	protected.GET("/users/me/favorites", favoriteController.ListFavorites)
	protected.POST("/events/:id/register", eventController.Register)
	protected.DELETE("/events/:id/register", eventController.Unregister)

	// Entrepreneurs and admins manage listings
	staff := protected.Group("")
	staff.Use(middleware.RequireRoles(models.RoleEntrepreneur, models.RoleAdmin))
	staff.POST("/places", placeController.CreatePlace)
	staff.PUT("/places/:id", placeController.UpdatePlace)
	staff.DELETE("/places/:id", placeController.DeletePlace)
	staff.GET("/users/me/places", placeController.ListMyPlaces)
	staff.POST("/upload", placeController.UploadPhoto)
	staff.POST("/events", eventController.CreateEvent)
	staff.PUT("/events/:id", eventController.UpdateEvent)
	staff.DELETE("/events/:id", eventController.DeleteEvent)
	staff.POST("/places/:id/links", linkController.CreateLink)
	staff.DELETE("/links/:linkId", linkController.DeleteLink)

	// Admin dashboard
	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.GET("/users", authController.ListUsers)
	admin.PATCH("/users/:id/role", authController.SetUserRole)
	admin.GET("/indicators", indicatorController.ListIndicators)
	admin.GET("/indicators/report", indicatorController.Report)
	admin.GET("/indicators/export", indicatorController.ExportCSV)
	admin.POST("/indicators", indicatorController.CreateIndicator)
	admin.PATCH("/indicators/:id", indicatorController.UpdateIndicator)

	r.NoRoute(func(ctx *gin.Context) {
		path := ctx.Request.URL.Path
		if strings.HasPrefix(path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		if strings.HasPrefix(path, "/static/") {
			ctx.JSON(http.StatusNotFound, gin.H{"message": "static asset not found"})
			return
		}
		// SPA fallback
		ctx.Status(http.StatusOK)
		ctx.File("./static/index.html")
	})

	return r
}
