package indicators

import (
	"context"
	"time"

	"github.com/descubrelocal/descubre/models"
)

// SnapshotGauges records the current value of every stock-style gauge.
// Scheduled nightly from main so the gauges keep a daily history in the
// sample ledger alongside the counter audit trail.
func (s *Service) SnapshotGauges(ctx context.Context) error {
	var places int64
	if err := s.db.WithContext(ctx).Model(&models.Place{}).
		Where("published = ?", true).
		Count(&places).Error; err != nil {
		return err
	}
	if err := s.RecordGauge(ctx, PlacesTotal, float64(places)); err != nil {
		return err
	}

	var events int64
	if err := s.db.WithContext(ctx).Model(&models.Event{}).
		Where("ends_at >= ?", s.now()).
		Count(&events).Error; err != nil {
		return err
	}
	return s.RecordGauge(ctx, ActiveEvents, float64(events))
}

// SnapshotTimeout bounds one snapshot run.
const SnapshotTimeout = 30 * time.Second
