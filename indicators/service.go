package indicators

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/descubrelocal/descubre/models"
	"github.com/descubrelocal/descubre/utils"
)

// Well-known indicator names incremented around the codebase. Handlers always
// go through IncrementAsync so a metrics failure can never fail the action
// that triggered it.
const (
	SiteVisits          = "site_visits"
	InternationalVisits = "international_visits"
	NewAccounts         = "new_accounts"
	ReviewsPublished    = "reviews_published"
	FavoritesSaved      = "favorites_saved"
	SocialShares        = "social_shares"
	EventSignups        = "event_signups"
	PlacesPublished     = "places_published"
	AveragePlaceRating  = "average_place_rating"
	AverageAttendance   = "average_event_attendance"
	PlacesTotal         = "places_total"
	ActiveEvents        = "active_events"
)

// Service owns all reads and writes against the indicator tables. Counters
// live in indicator_days rows keyed (indicator_id, date) and are moved with a
// single atomic upsert, so concurrent increments can never lose updates; the
// sample ledger is an audit trail appended after the counter row moves.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates a Service on the given database handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// startOfDay truncates t to local midnight, matching the DATE column grain.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// resolve returns the catalog row for name, lazily creating a minimal
// definition of the given kind when absent. The unique index on name makes
// the create race-safe: concurrent callers all converge on one row.
func (s *Service) resolve(ctx context.Context, name, kind string) (models.Indicator, error) {
	var ind models.Indicator
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&ind).Error
	if err == nil {
		return ind, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ind, err
	}

	ind = models.Indicator{Name: name, Kind: kind}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&ind).Error; err != nil {
		return ind, err
	}
	// Re-read: a concurrent caller may have won the insert.
	err = s.db.WithContext(ctx).Where("name = ?", name).First(&ind).Error
	return ind, err
}

// IncrementToday records one more occurrence of the named counter for the
// current calendar day and returns the day's new total.
func (s *Service) IncrementToday(ctx context.Context, name string) (int64, error) {
	ind, err := s.resolve(ctx, name, models.KindCounter)
	if err != nil {
		return 0, err
	}

	now := s.now()
	day := startOfDay(now)

	// Single-statement increment keyed (indicator_id, date); no gap between
	// read and write exists for concurrent requests to fall into.
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "indicator_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1"), "updated_at": now}),
	}).Create(&models.IndicatorDay{IndicatorID: ind.ID, Date: day, Count: 1}).Error; err != nil {
		return 0, err
	}

	var row models.IndicatorDay
	if err := s.db.WithContext(ctx).
		Where("indicator_id = ? AND date = ?", ind.ID, day).
		First(&row).Error; err != nil {
		return 0, err
	}

	// Audit ledger entry. The counter row above is the source of truth, so a
	// failure here leaves the count correct and is reported, not fatal.
	sample := models.IndicatorSample{IndicatorID: ind.ID, Value: float64(row.Count), RecordedAt: now}
	if err := s.db.WithContext(ctx).Create(&sample).Error; err != nil {
		return row.Count, err
	}
	return row.Count, nil
}

// IncrementAsync is the fire-and-forget form used by request handlers.
// Failures are logged and swallowed; the caller's primary write has already
// succeeded and must stay successful.
func (s *Service) IncrementAsync(name string) {
	go func() {
		defer func() { _ = recover() }()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.IncrementToday(ctx, name); err != nil {
			if utils.Sugar != nil {
				utils.Sugar.Warnf("indicator increment failed name=%s err=%v", name, err)
			}
		}
	}()
}

// RecordGauge appends a point-in-time sample for a gauge indicator.
func (s *Service) RecordGauge(ctx context.Context, name string, value float64) error {
	ind, err := s.resolve(ctx, name, models.KindGauge)
	if err != nil {
		return err
	}
	sample := models.IndicatorSample{IndicatorID: ind.ID, Value: value, RecordedAt: s.now()}
	return s.db.WithContext(ctx).Create(&sample).Error
}

// Filter narrows a report. From/To are inclusive calendar days; nil means
// unbounded on that side. Category and Dimension match exactly when set.
type Filter struct {
	Category  string
	Dimension string
	From      *time.Time
	To        *time.Time
}

// Entry is one reported indicator. Value and SampleAt are nil when the
// indicator has no data in range so dashboards can show a placeholder
// instead of a misleading zero.
type Entry struct {
	Indicator models.Indicator `json:"indicator"`
	Value     *float64         `json:"value"`
	SampleAt  *time.Time       `json:"sample_at"`
}

// Report evaluates every catalog indicator matching the filter, ordered by
// name ascending. Counters sum day-counts inside the window, gauges report
// their latest sample regardless of the window, derived indicators are
// recomputed fresh from their source tables on every call.
func (s *Service) Report(ctx context.Context, f Filter) ([]Entry, error) {
	q := s.db.WithContext(ctx).Model(&models.Indicator{}).Order("name ASC")
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Dimension != "" {
		q = q.Where("dimension = ?", f.Dimension)
	}

	var catalog []models.Indicator
	if err := q.Find(&catalog).Error; err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(catalog))
	for _, ind := range catalog {
		entry := Entry{Indicator: ind}
		var err error
		switch ind.Kind {
		case models.KindCounter:
			err = s.reportCounter(ctx, &entry, f)
		case models.KindGauge:
			err = s.reportGauge(ctx, &entry)
		case models.KindDerived:
			err = s.reportDerived(ctx, &entry)
		default:
			err = s.reportCounter(ctx, &entry, f)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) reportCounter(ctx context.Context, entry *Entry, f Filter) error {
	window := func() *gorm.DB {
		dq := s.db.WithContext(ctx).Model(&models.IndicatorDay{}).
			Where("indicator_id = ?", entry.Indicator.ID)
		if f.From != nil {
			dq = dq.Where("date >= ?", startOfDay(*f.From))
		}
		if f.To != nil {
			dq = dq.Where("date <= ?", startOfDay(*f.To))
		}
		return dq
	}

	var n int64
	if err := window().Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return nil // no value, not zero
	}

	var total float64
	if err := window().Select("COALESCE(SUM(count),0)").Scan(&total).Error; err != nil {
		return err
	}
	var latest models.IndicatorDay
	if err := window().Order("date DESC").First(&latest).Error; err != nil {
		return err
	}
	entry.Value = &total

	// The day row only knows its date; the audit ledger has the real time of
	// the most recent increment. Fall back to the day date when the ledger
	// has no row, counter rows are the source of truth.
	sq := s.db.WithContext(ctx).
		Where("indicator_id = ?", entry.Indicator.ID)
	if f.From != nil {
		sq = sq.Where("recorded_at >= ?", startOfDay(*f.From))
	}
	if f.To != nil {
		sq = sq.Where("recorded_at < ?", startOfDay(*f.To).AddDate(0, 0, 1))
	}
	var smp models.IndicatorSample
	err := sq.Order("recorded_at DESC, id DESC").First(&smp).Error
	switch {
	case err == nil:
		entry.SampleAt = &smp.RecordedAt
	case errors.Is(err, gorm.ErrRecordNotFound):
		entry.SampleAt = &latest.Date
	default:
		return err
	}
	return nil
}

func (s *Service) reportGauge(ctx context.Context, entry *Entry) error {
	var smp models.IndicatorSample
	err := s.db.WithContext(ctx).
		Where("indicator_id = ?", entry.Indicator.ID).
		Order("recorded_at DESC, id DESC").
		First(&smp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	entry.Value = &smp.Value
	entry.SampleAt = &smp.RecordedAt
	return nil
}

// reportDerived recomputes a value from the source-of-truth tables and
// surfaces it as a synthetic sample stamped now. Nothing is cached.
func (s *Service) reportDerived(ctx context.Context, entry *Entry) error {
	var value *float64
	switch entry.Indicator.Source {
	case models.SourcePlaceRatings:
		var agg struct {
			Total int64
			Count int64
		}
		err := s.db.WithContext(ctx).Model(&models.Place{}).
			Select("COALESCE(SUM(rating_total),0) AS total, COALESCE(SUM(rating_count),0) AS count").
			Scan(&agg).Error
		if err != nil {
			return err
		}
		if agg.Count > 0 {
			v := float64(agg.Total) / float64(agg.Count)
			value = &v
		}
	case models.SourceEventAttendance:
		var events, regs int64
		if err := s.db.WithContext(ctx).Model(&models.Event{}).Count(&events).Error; err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(&models.EventRegistration{}).Count(&regs).Error; err != nil {
			return err
		}
		if events > 0 {
			v := float64(regs) / float64(events)
			value = &v
		}
	default:
		return nil
	}

	if value != nil {
		at := s.now()
		entry.Value = value
		entry.SampleAt = &at
	}
	return nil
}
