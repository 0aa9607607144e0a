package controllers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/descubrelocal/descubre/middleware"
	"github.com/descubrelocal/descubre/models"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

func getRole(ctx *gin.Context) string {
	return ctx.GetString(middleware.ContextRoleKey)
}

func isAdmin(ctx *gin.Context) bool {
	return getRole(ctx) == models.RoleAdmin
}

func paginationPayload(page, pageSize int, total int64) gin.H {
	return gin.H{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
}

// cachedWrapper mirrors the standard response envelope so cached bytes are
// byte-identical to a live response.
type cachedWrapper struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func wrapForCache(payload interface{}) cachedWrapper {
	return cachedWrapper{Code: 0, Message: "success", Data: payload}
}
