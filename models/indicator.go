package models

import "time"

// Aggregation kinds, fixed at definition time. Counters sum per-day counts
// inside a reporting window, gauges report their latest sample, derived
// indicators are recomputed from a source-of-truth table on every read.
const (
	KindCounter = "counter"
	KindGauge   = "gauge"
	KindDerived = "derived"
)

// Derived sources understood by the report path.
const (
	SourcePlaceRatings    = "place_ratings"
	SourceEventAttendance = "event_attendance"
)

// Indicator is a named metric definition with a target and unit.
// Name carries a unique index so lazy creation under concurrency can never
// produce duplicate catalog rows.
type Indicator struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Category  string    `gorm:"size:32;index" json:"category"`
	Dimension string    `gorm:"size:32;index" json:"dimension"`
	Target    float64   `json:"target"`
	Unit      string    `gorm:"size:32" json:"unit"`
	Kind      string    `gorm:"size:16;not null;default:'counter'" json:"kind"`
	Source    string    `gorm:"size:32" json:"source,omitempty"` // derived kinds only
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IndicatorDay is the per-day counter row, atomically upsert-incremented.
// Date always holds local midnight so one row covers one calendar day.
type IndicatorDay struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IndicatorID uint      `gorm:"index:idx_ind_day,unique;not null" json:"indicator_id"`
	Date        time.Time `gorm:"index:idx_ind_day,unique;type:date;not null" json:"date"`
	Count       int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IndicatorSample is one timestamped observation in the append-only ledger.
// For counters it is an audit trail written after the day counter moves; for
// gauges it is the value itself. Rows are never updated or deleted.
type IndicatorSample struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	IndicatorID uint      `gorm:"index:idx_sample_ind_at;not null" json:"indicator_id"`
	Value       float64   `gorm:"not null" json:"value"`
	RecordedAt  time.Time `gorm:"index:idx_sample_ind_at;not null" json:"recorded_at"`
	CreatedAt   time.Time `json:"created_at"`
}
