package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

var errEventFull = errors.New("event is full")

// EventController manages events and signups.
type EventController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewEventController creates a new EventController instance.
func NewEventController(db *gorm.DB, svc *indicators.Service) *EventController {
	return &EventController{db: db, indicators: svc}
}

type eventRequest struct {
	PlaceID     uint      `json:"place_id" binding:"required"`
	Title       string    `json:"title" binding:"required,min=1"`
	Description string    `json:"description"`
	StartsAt    time.Time `json:"starts_at" binding:"required"`
	EndsAt      time.Time `json:"ends_at"`
	Capacity    int       `json:"capacity"`
}

// CreateEvent allows entrepreneurs to schedule an event at one of their places.
func (e *EventController) CreateEvent(ctx *gin.Context) {
	var req eventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40051, "title cannot be empty")
		return
	}
	if req.Capacity < 0 {
		utils.Error(ctx, http.StatusBadRequest, 40052, "capacity cannot be negative")
		return
	}
	endsAt := req.EndsAt
	if endsAt.IsZero() {
		endsAt = req.StartsAt.Add(2 * time.Hour)
	}
	if endsAt.Before(req.StartsAt) {
		utils.Error(ctx, http.StatusBadRequest, 40053, "event cannot end before it starts")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var place models.Place
	if err := e.db.First(&place, req.PlaceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40440, "place not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to load place")
		return
	}
	if place.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40330, "you can only create events at your own places")
		return
	}

	event := models.Event{
		PlaceID:     place.ID,
		OwnerID:     place.OwnerID,
		Title:       title,
		Description: utils.Sanitize(req.Description),
		StartsAt:    req.StartsAt,
		EndsAt:      endsAt,
		Capacity:    req.Capacity,
	}
	if err := e.db.Create(&event).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50061, "failed to create event")
		return
	}

	utils.InvalidateByPrefix("cache:events:list:")
	utils.Success(ctx, gin.H{"event": event})
}

// ListEvents returns paginated upcoming events (public). Pass all=1 to
// include past events.
func (e *EventController) ListEvents(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	includeAll := ctx.Query("all") == "1"

	var events []models.Event
	var total int64
	q := e.db.Preload("Place").Order("starts_at ASC")
	if !includeAll {
		q = q.Where("ends_at >= ?", time.Now())
	}
	if placeID := strings.TrimSpace(ctx.Query("place_id")); placeID != "" {
		q = q.Where("place_id = ?", placeID)
	}
	if err := q.Model(&models.Event{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50062, "failed to count events")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&events).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50063, "failed to list events")
		return
	}
	utils.Success(ctx, gin.H{
		"items":      events,
		"pagination": paginationPayload(page, pageSize, total),
	})
}

// GetEvent returns a single event with its place and signup count.
func (e *EventController) GetEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")
	var event models.Event
	if err := e.db.Preload("Place").First(&event, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40441, "event not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50064, "failed to load event")
		return
	}
	var signups int64
	if err := e.db.Model(&models.EventRegistration{}).Where("event_id = ?", event.ID).Count(&signups).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50065, "failed to count signups")
		return
	}
	utils.Success(ctx, gin.H{"event": event, "signups": signups})
}

// UpdateEvent allows the owner or an admin to update an event.
func (e *EventController) UpdateEvent(ctx *gin.Context) {
	var req eventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40054, "invalid request payload")
		return
	}
	title := utils.Sanitize(strings.TrimSpace(req.Title))
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40055, "title cannot be empty")
		return
	}

	eventID := ctx.Param("id")
	var event models.Event
	if err := e.db.First(&event, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40442, "event not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50066, "failed to load event")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if event.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40331, "you can only update your own events")
		return
	}

	event.Title = title
	event.Description = utils.Sanitize(req.Description)
	event.StartsAt = req.StartsAt
	if !req.EndsAt.IsZero() {
		event.EndsAt = req.EndsAt
	}
	event.Capacity = req.Capacity
	if err := e.db.Save(&event).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50067, "failed to update event")
		return
	}

	utils.InvalidateByPrefix("cache:events:list:")
	utils.Success(ctx, gin.H{"event": event})
}

// DeleteEvent allows the owner or an admin to delete an event.
func (e *EventController) DeleteEvent(ctx *gin.Context) {
	eventID := ctx.Param("id")
	var event models.Event
	if err := e.db.First(&event, eventID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40443, "event not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50068, "failed to load event")
		return
	}

	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	if event.OwnerID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40332, "you can only delete your own events")
		return
	}
	if err := e.db.Delete(&event).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50069, "failed to delete event")
		return
	}
	utils.InvalidateByPrefix("cache:events:list:")
	utils.Success(ctx, gin.H{"message": "event deleted"})
}

// Register signs the authenticated user up for an event, respecting capacity.
func (e *EventController) Register(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	eventID := ctx.Param("id")
	var created bool
	txErr := e.db.Transaction(func(tx *gorm.DB) error {
		var event models.Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&event, eventID).Error; err != nil {
			return err
		}
		if event.Capacity > 0 {
			var signups int64
			if err := tx.Model(&models.EventRegistration{}).Where("event_id = ?", event.ID).Count(&signups).Error; err != nil {
				return err
			}
			if signups >= int64(event.Capacity) {
				return errEventFull
			}
		}
		reg := models.EventRegistration{EventID: event.ID, UserID: userID}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&reg)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})

	if txErr != nil {
		if txErr == errEventFull {
			utils.Error(ctx, http.StatusConflict, 40910, "event is full")
			return
		}
		if txErr == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40444, "event not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to register")
		return
	}

	if created {
		e.indicators.IncrementAsync(indicators.EventSignups)
	}
	utils.Success(ctx, gin.H{"message": "registered"})
}

// Unregister removes the authenticated user's signup.
func (e *EventController) Unregister(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	eventID := ctx.Param("id")
	res := e.db.Where("event_id = ? AND user_id = ?", eventID, userID).Delete(&models.EventRegistration{})
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to unregister")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40445, "registration not found")
		return
	}
	utils.Success(ctx, gin.H{"message": "registration removed"})
}

