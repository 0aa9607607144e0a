package indicators

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/descubrelocal/descubre/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the shared in-memory database alive and
	// serializes writers the way the production pool does per row.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Place{},
		&models.Rating{},
		&models.Event{},
		&models.EventRegistration{},
		&models.Indicator{},
		&models.IndicatorDay{},
		&models.IndicatorSample{},
	))
	return db
}

func TestIncrementTodaySequential(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		_, err := svc.IncrementToday(ctx, SiteVisits)
		require.NoError(t, err)
	}

	total, err := svc.IncrementToday(ctx, SiteVisits)
	require.NoError(t, err)
	require.Equal(t, int64(n+1), total)
}

func TestIncrementTodayConcurrent(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementToday(context.Background(), NewAccounts)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var row models.IndicatorDay
	require.NoError(t, db.
		Joins("JOIN indicators ON indicators.id = indicator_days.indicator_id").
		Where("indicators.name = ?", NewAccounts).
		First(&row).Error)
	require.Equal(t, int64(n), row.Count)
}

func TestIncrementDayBoundary(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	day1 := time.Date(2026, 8, 20, 23, 59, 0, 0, time.Local)
	day2 := time.Date(2026, 8, 21, 0, 1, 0, 0, time.Local)

	svc.now = func() time.Time { return day1 }
	total, err := svc.IncrementToday(ctx, ReviewsPublished)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	// The next increment lands two minutes later on a fresh calendar day.
	svc.now = func() time.Time { return day2 }
	total, err = svc.IncrementToday(ctx, ReviewsPublished)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	var rows []models.IndicatorDay
	require.NoError(t, db.
		Joins("JOIN indicators ON indicators.id = indicator_days.indicator_id").
		Where("indicators.name = ?", ReviewsPublished).
		Order("date ASC").
		Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].Count)
	require.Equal(t, int64(1), rows[1].Count)
}

func TestIncrementAutoCreatesCounter(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	_, err := svc.IncrementToday(context.Background(), "brochure_downloads")
	require.NoError(t, err)

	var ind models.Indicator
	require.NoError(t, db.Where("name = ?", "brochure_downloads").First(&ind).Error)
	require.Equal(t, models.KindCounter, ind.Kind)
}

func TestReportCounterSumsWindow(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	days := []time.Time{
		time.Date(2026, 8, 10, 12, 0, 0, 0, time.Local),
		time.Date(2026, 8, 11, 12, 0, 0, 0, time.Local),
		time.Date(2026, 8, 12, 12, 0, 0, 0, time.Local),
	}
	increments := []int{2, 3, 4}
	for i, day := range days {
		day := day
		svc.now = func() time.Time { return day }
		for j := 0; j < increments[i]; j++ {
			_, err := svc.IncrementToday(ctx, FavoritesSaved)
			require.NoError(t, err)
		}
	}

	find := func(entries []Entry, name string) *Entry {
		for i := range entries {
			if entries[i].Indicator.Name == name {
				return &entries[i]
			}
		}
		return nil
	}

	// Unbounded window sums everything.
	entries, err := svc.Report(ctx, Filter{})
	require.NoError(t, err)
	e := find(entries, FavoritesSaved)
	require.NotNil(t, e)
	require.NotNil(t, e.Value)
	require.Equal(t, float64(9), *e.Value)

	// Inner two days only.
	from := time.Date(2026, 8, 11, 0, 0, 0, 0, time.Local)
	to := time.Date(2026, 8, 12, 0, 0, 0, 0, time.Local)
	entries, err = svc.Report(ctx, Filter{From: &from, To: &to})
	require.NoError(t, err)
	e = find(entries, FavoritesSaved)
	require.NotNil(t, e.Value)
	require.Equal(t, float64(7), *e.Value)

	// A window with no rows yields no value, not zero.
	from = time.Date(2026, 9, 1, 0, 0, 0, 0, time.Local)
	to = time.Date(2026, 9, 2, 0, 0, 0, 0, time.Local)
	entries, err = svc.Report(ctx, Filter{From: &from, To: &to})
	require.NoError(t, err)
	e = find(entries, FavoritesSaved)
	require.NotNil(t, e)
	require.Nil(t, e.Value)
	require.Nil(t, e.SampleAt)
}

func TestReportIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.IncrementToday(ctx, SocialShares)
		require.NoError(t, err)
	}

	first, err := svc.Report(ctx, Filter{})
	require.NoError(t, err)
	second, err := svc.Report(ctx, Filter{})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, first[i].Indicator.Name, second[i].Indicator.Name)
		if first[i].Value == nil {
			require.Nil(t, second[i].Value)
			continue
		}
		require.NotNil(t, second[i].Value)
		require.Equal(t, *first[i].Value, *second[i].Value)
	}
}

func TestReportOrderedByName(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)

	entries, err := svc.Report(context.Background(), Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		require.LessOrEqual(t, entries[i-1].Indicator.Name, entries[i].Indicator.Name)
	}
}

func TestReportCategoryFilter(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)

	entries, err := svc.Report(context.Background(), Filter{Category: "events"})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.Equal(t, "events", e.Indicator.Category)
	}
}

func TestDerivedAverageRating(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)
	ctx := context.Background()

	// Three places holding one rating each: 3, 4 and 5 stars.
	for i, score := range []int64{3, 4, 5} {
		place := models.Place{
			OwnerID:     1,
			Name:        fmt.Sprintf("place-%d", i),
			RatingTotal: score,
			RatingCount: 1,
		}
		require.NoError(t, db.Create(&place).Error)
	}

	entries, err := svc.Report(ctx, Filter{Category: "quality"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, AveragePlaceRating, entries[0].Indicator.Name)
	require.NotNil(t, entries[0].Value)
	require.InDelta(t, 4.0, *entries[0].Value, 1e-9)
	require.NotNil(t, entries[0].SampleAt)
}

func TestDerivedAverageNilWithoutRatings(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)

	entries, err := svc.Report(context.Background(), Filter{Category: "quality"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].Value)
}

func TestDerivedAttendanceAverage(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)

	start := time.Now().Add(24 * time.Hour)
	for i := 0; i < 2; i++ {
		ev := models.Event{PlaceID: 1, OwnerID: 1, Title: fmt.Sprintf("ev-%d", i), StartsAt: start, EndsAt: start.Add(time.Hour)}
		require.NoError(t, db.Create(&ev).Error)
	}
	for u := uint(1); u <= 3; u++ {
		require.NoError(t, db.Create(&models.EventRegistration{EventID: 1, UserID: u}).Error)
	}

	entries, err := svc.Report(context.Background(), Filter{})
	require.NoError(t, err)
	for _, e := range entries {
		if e.Indicator.Name == AverageAttendance {
			require.NotNil(t, e.Value)
			require.InDelta(t, 1.5, *e.Value, 1e-9)
			return
		}
	}
	t.Fatalf("average attendance indicator missing from report")
}

func TestConcurrentIncrementsVisibleInReport(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.IncrementToday(context.Background(), EventSignups)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := svc.Report(context.Background(), Filter{})
	require.NoError(t, err)
	for _, e := range entries {
		if e.Indicator.Name == EventSignups {
			require.NotNil(t, e.Value)
			require.Equal(t, float64(3), *e.Value)
			return
		}
	}
	t.Fatalf("event signups indicator missing from report")
}

func TestGaugeReportsLatestSample(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	t1 := time.Date(2026, 8, 1, 23, 55, 0, 0, time.Local)
	t2 := time.Date(2026, 8, 2, 23, 55, 0, 0, time.Local)

	svc.now = func() time.Time { return t1 }
	require.NoError(t, svc.RecordGauge(ctx, PlacesTotal, 10))
	svc.now = func() time.Time { return t2 }
	require.NoError(t, svc.RecordGauge(ctx, PlacesTotal, 12))

	entries, err := svc.Report(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Value)
	require.Equal(t, float64(12), *entries[0].Value)
	require.True(t, entries[0].SampleAt.Equal(t2))
}

func TestIncrementWritesAuditSample(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.IncrementToday(ctx, SiteVisits)
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&models.IndicatorSample{}).Count(&count).Error)
	require.Equal(t, int64(3), count)
}

func TestSnapshotGauges(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Seed(db))
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Place{OwnerID: 1, Name: "open", Published: true}).Error)
	require.NoError(t, db.Create(&models.Place{OwnerID: 1, Name: "draft", Published: false}).Error)
	future := time.Now().Add(48 * time.Hour)
	require.NoError(t, db.Create(&models.Event{PlaceID: 1, OwnerID: 1, Title: "fair", StartsAt: future, EndsAt: future.Add(time.Hour)}).Error)

	require.NoError(t, svc.SnapshotGauges(ctx))

	entries, err := svc.Report(ctx, Filter{})
	require.NoError(t, err)
	got := map[string]*float64{}
	for _, e := range entries {
		got[e.Indicator.Name] = e.Value
	}
	require.NotNil(t, got[PlacesTotal])
	require.Equal(t, float64(1), *got[PlacesTotal])
	require.NotNil(t, got[ActiveEvents])
	require.Equal(t, float64(1), *got[ActiveEvents])
}

func TestDraftPlacePersistsUnpublished(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(&models.Place{OwnerID: 1, Name: "draft", Published: false}).Error)

	var got models.Place
	require.NoError(t, db.Where("name = ?", "draft").First(&got).Error)
	require.False(t, got.Published)
}

func TestReportCounterSampleAtFromLedger(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	t1 := time.Date(2026, 8, 25, 9, 15, 0, 0, time.Local)
	t2 := time.Date(2026, 8, 25, 16, 40, 0, 0, time.Local)

	svc.now = func() time.Time { return t1 }
	_, err := svc.IncrementToday(ctx, SocialShares)
	require.NoError(t, err)
	svc.now = func() time.Time { return t2 }
	_, err = svc.IncrementToday(ctx, SocialShares)
	require.NoError(t, err)

	from := time.Date(2026, 8, 25, 0, 0, 0, 0, time.Local)
	to := from
	entries, err := svc.Report(ctx, Filter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].Value)
	require.Equal(t, float64(2), *entries[0].Value)
	// The reported timestamp is the latest increment, not the day's midnight.
	require.NotNil(t, entries[0].SampleAt)
	require.True(t, entries[0].SampleAt.Equal(t2))
}
