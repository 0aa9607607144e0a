package controllers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/middleware"
	"github.com/descubrelocal/descubre/models"
)

func TestCreateDraftPlaceStaysHidden(t *testing.T) {
	db := openTestDB(t)
	ctrl := NewPlaceController(db, indicators.NewService(db))

	r := gin.New()
	r.POST("/places", middleware.AuthRequired(), ctrl.CreatePlace)
	r.GET("/places", ctrl.ListPlaces)

	owner := createTestUser(t, db, "owner", models.RoleEntrepreneur)

	w := doJSON(r, http.MethodPost, "/places",
		`{"name":"Open Cafe","municipality":"Guatape","published":true}`, bearerFor(t, owner))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/places",
		`{"name":"Hidden Draft","municipality":"Guatape","published":false}`, bearerFor(t, owner))
	require.Equal(t, http.StatusOK, w.Code)

	// The draft survives the round trip as a draft.
	var draft models.Place
	require.NoError(t, db.Where("name = ?", "Hidden Draft").First(&draft).Error)
	require.False(t, draft.Published)

	w = doJSON(r, http.MethodGet, "/places?municipality=Guatape", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Items []models.Place `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Items, 1)
	require.Equal(t, "Open Cafe", resp.Data.Items[0].Name)
}
