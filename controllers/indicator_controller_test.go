package controllers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/middleware"
	"github.com/descubrelocal/descubre/models"
)

func indicatorRouter(t *testing.T) (*gin.Engine, *indicators.Service, *IndicatorController, models.User) {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, indicators.Seed(db))
	svc := indicators.NewService(db)
	ctrl := NewIndicatorController(db, svc)

	admin := createTestUser(t, db, "admin", models.RoleAdmin)

	r := gin.New()
	grp := r.Group("/admin", middleware.AuthRequired(), middleware.RequireRoles(models.RoleAdmin))
	grp.GET("/indicators/report", ctrl.Report)
	grp.GET("/indicators/export", ctrl.ExportCSV)
	grp.POST("/indicators", ctrl.CreateIndicator)
	grp.PATCH("/indicators/:id", ctrl.UpdateIndicator)
	return r, svc, ctrl, admin
}

func TestReportEndpointRequiresAdmin(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, indicators.Seed(db))
	ctrl := NewIndicatorController(db, indicators.NewService(db))

	r := gin.New()
	r.GET("/admin/indicators/report", middleware.AuthRequired(), middleware.RequireRoles(models.RoleAdmin), ctrl.Report)

	tourist := createTestUser(t, db, "tourist", models.RoleTourist)

	w := doJSON(r, http.MethodGet, "/admin/indicators/report", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/admin/indicators/report", "", bearerFor(t, tourist))
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestReportEndpointReturnsValues(t *testing.T) {
	r, svc, _, admin := indicatorRouter(t)

	for i := 0; i < 4; i++ {
		_, err := svc.IncrementToday(context.Background(), indicators.SiteVisits)
		require.NoError(t, err)
	}

	w := doJSON(r, http.MethodGet, "/admin/indicators/report", "", bearerFor(t, admin))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int `json:"code"`
		Data struct {
			Items []indicators.Entry `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 0, resp.Code)
	require.NotEmpty(t, resp.Data.Items)

	byName := map[string]indicators.Entry{}
	for _, e := range resp.Data.Items {
		byName[e.Indicator.Name] = e
	}

	visits, ok := byName[indicators.SiteVisits]
	require.True(t, ok)
	require.NotNil(t, visits.Value)
	require.Equal(t, float64(4), *visits.Value)

	// Never-touched counters report null, not zero.
	shares, ok := byName[indicators.SocialShares]
	require.True(t, ok)
	require.Nil(t, shares.Value)
}

func TestReportEndpointValidatesDates(t *testing.T) {
	r, _, _, admin := indicatorRouter(t)

	w := doJSON(r, http.MethodGet, "/admin/indicators/report?from=not-a-date", "", bearerFor(t, admin))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodGet, "/admin/indicators/report?from=2026-08-20&to=2026-08-10", "", bearerFor(t, admin))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportCSV(t *testing.T) {
	r, svc, _, admin := indicatorRouter(t)

	for i := 0; i < 2; i++ {
		_, err := svc.IncrementToday(context.Background(), indicators.EventSignups)
		require.NoError(t, err)
	}

	w := doJSON(r, http.MethodGet, "/admin/indicators/export", "", bearerFor(t, admin))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	require.Equal(t, []string{"name", "category", "unit", "target", "value", "sample_at"}, records[0])

	var found bool
	for _, rec := range records[1:] {
		if rec[0] == indicators.EventSignups {
			found = true
			require.Equal(t, "2", rec[4])
			require.NotEmpty(t, rec[5])
		}
		if rec[0] == indicators.SocialShares {
			// Empty cells, not zeros, for indicators with no data.
			require.Empty(t, rec[4])
			require.Empty(t, rec[5])
		}
	}
	require.True(t, found)
}

func TestCreateIndicatorRejectsDuplicateName(t *testing.T) {
	r, _, _, admin := indicatorRouter(t)

	body := `{"name":"museum_checkins","category":"engagement","kind":"counter","unit":"checkins/day","target":10}`
	w := doJSON(r, http.MethodPost, "/admin/indicators", body, bearerFor(t, admin))
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/indicators", body, bearerFor(t, admin))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateIndicatorValidatesKind(t *testing.T) {
	r, _, _, admin := indicatorRouter(t)

	w := doJSON(r, http.MethodPost, "/admin/indicators", `{"name":"x_metric","kind":"histogram"}`, bearerFor(t, admin))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/admin/indicators", `{"name":"x_metric","kind":"derived"}`, bearerFor(t, admin))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateIndicatorKeepsNameAndKind(t *testing.T) {
	r, _, ctrl, admin := indicatorRouter(t)

	var ind models.Indicator
	require.NoError(t, ctrl.db.Where("name = ?", indicators.SiteVisits).First(&ind).Error)

	w := doJSON(r, http.MethodPatch, "/admin/indicators/"+strconv.Itoa(int(ind.ID)), `{"target":900,"unit":"visits"}`, bearerFor(t, admin))
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Indicator
	require.NoError(t, ctrl.db.First(&got, ind.ID).Error)
	require.Equal(t, indicators.SiteVisits, got.Name)
	require.Equal(t, models.KindCounter, got.Kind)
	require.Equal(t, float64(900), got.Target)
	require.Equal(t, "visits", got.Unit)
}
