package controllers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/descubrelocal/descubre/indicators"
	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// IndicatorController serves the management dashboard: indicator reports,
// CSV export and catalog administration.
type IndicatorController struct {
	db         *gorm.DB
	indicators *indicators.Service
}

// NewIndicatorController creates a new IndicatorController instance.
func NewIndicatorController(db *gorm.DB, svc *indicators.Service) *IndicatorController {
	return &IndicatorController{db: db, indicators: svc}
}

// parseReportFilter reads category/dimension/from/to query parameters.
// Dates use the 2006-01-02 layout and bound inclusive calendar days.
func parseReportFilter(ctx *gin.Context) (indicators.Filter, error) {
	f := indicators.Filter{
		Category:  strings.TrimSpace(ctx.Query("category")),
		Dimension: strings.TrimSpace(ctx.Query("dimension")),
	}
	if v := strings.TrimSpace(ctx.Query("from")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid from date %q", v)
		}
		f.From = &t
	}
	if v := strings.TrimSpace(ctx.Query("to")); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			return f, fmt.Errorf("invalid to date %q", v)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, fmt.Errorf("to date before from date")
	}
	return f, nil
}

// Report returns every matching indicator with its aggregated value.
func (i *IndicatorController) Report(ctx *gin.Context) {
	filter, err := parseReportFilter(ctx)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40090, err.Error())
		return
	}

	entries, err := i.indicators.Report(ctx.Request.Context(), filter)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50090, "failed to build report")
		return
	}
	utils.Success(ctx, gin.H{"items": entries})
}

// ExportCSV streams the report as a CSV download.
func (i *IndicatorController) ExportCSV(ctx *gin.Context) {
	filter, err := parseReportFilter(ctx)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40091, err.Error())
		return
	}

	entries, err := i.indicators.Report(ctx.Request.Context(), filter)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50091, "failed to build report")
		return
	}

	filename := fmt.Sprintf("indicators_%s.csv", time.Now().Format("20060102_150405"))
	ctx.Header("Content-Type", "text/csv; charset=utf-8")
	ctx.Header("Content-Disposition", "attachment; filename="+filename)
	ctx.Status(http.StatusOK)

	w := csv.NewWriter(ctx.Writer)
	_ = w.Write([]string{"name", "category", "unit", "target", "value", "sample_at"})
	for _, e := range entries {
		value := ""
		if e.Value != nil {
			value = strconv.FormatFloat(*e.Value, 'f', -1, 64)
		}
		sampleAt := ""
		if e.SampleAt != nil {
			sampleAt = e.SampleAt.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			e.Indicator.Name,
			e.Indicator.Category,
			e.Indicator.Unit,
			strconv.FormatFloat(e.Indicator.Target, 'f', -1, 64),
			value,
			sampleAt,
		})
	}
	w.Flush()
}

type indicatorRequest struct {
	Name      string  `json:"name" binding:"required,min=1"`
	Category  string  `json:"category"`
	Dimension string  `json:"dimension"`
	Target    float64 `json:"target"`
	Unit      string  `json:"unit"`
	Kind      string  `json:"kind"`
	Source    string  `json:"source"`
}

func validIndicatorKind(kind string) bool {
	switch kind {
	case models.KindCounter, models.KindGauge, models.KindDerived:
		return true
	}
	return false
}

// CreateIndicator adds a catalog definition (admin only).
func (i *IndicatorController) CreateIndicator(ctx *gin.Context) {
	var req indicatorRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40092, "invalid request payload")
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40093, "name cannot be empty")
		return
	}
	kind := req.Kind
	if kind == "" {
		kind = models.KindCounter
	}
	if !validIndicatorKind(kind) {
		utils.Error(ctx, http.StatusBadRequest, 40094, "kind must be counter, gauge or derived")
		return
	}
	if kind == models.KindDerived && req.Source == "" {
		utils.Error(ctx, http.StatusBadRequest, 40095, "derived indicators need a source")
		return
	}

	ind := models.Indicator{
		Name:      name,
		Category:  strings.TrimSpace(req.Category),
		Dimension: strings.TrimSpace(req.Dimension),
		Target:    req.Target,
		Unit:      strings.TrimSpace(req.Unit),
		Kind:      kind,
		Source:    strings.TrimSpace(req.Source),
	}
	if err := i.db.Create(&ind).Error; err != nil {
		// The unique name index rejects duplicates.
		utils.Error(ctx, http.StatusConflict, 40920, "indicator name already exists")
		return
	}
	utils.Success(ctx, gin.H{"indicator": ind})
}

// UpdateIndicator edits catalog metadata (admin only). The name and kind
// are immutable so recorded history keeps meaning.
func (i *IndicatorController) UpdateIndicator(ctx *gin.Context) {
	var req struct {
		Category  *string  `json:"category"`
		Dimension *string  `json:"dimension"`
		Target    *float64 `json:"target"`
		Unit      *string  `json:"unit"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40096, "invalid request payload")
		return
	}

	var ind models.Indicator
	if err := i.db.First(&ind, ctx.Param("id")).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40460, "indicator not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50092, "failed to load indicator")
		return
	}

	if req.Category != nil {
		ind.Category = strings.TrimSpace(*req.Category)
	}
	if req.Dimension != nil {
		ind.Dimension = strings.TrimSpace(*req.Dimension)
	}
	if req.Target != nil {
		ind.Target = *req.Target
	}
	if req.Unit != nil {
		ind.Unit = strings.TrimSpace(*req.Unit)
	}
	if err := i.db.Save(&ind).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50093, "failed to update indicator")
		return
	}
	utils.Success(ctx, gin.H{"indicator": ind})
}

// ListIndicators returns the raw catalog without values (admin only).
func (i *IndicatorController) ListIndicators(ctx *gin.Context) {
	var catalog []models.Indicator
	if err := i.db.Order("name ASC").Find(&catalog).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50094, "failed to list indicators")
		return
	}
	utils.Success(ctx, gin.H{"items": catalog})
}
