package indicators

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/descubrelocal/descubre/models"
)

// defaultCatalog is the indicator set the platform ships with. Kind and
// Source are fixed here, at definition time; the report path never infers
// aggregation behavior from display text.
var defaultCatalog = []models.Indicator{
	{Name: SiteVisits, Category: "audience", Dimension: "reach", Target: 500, Unit: "visits/day", Kind: models.KindCounter},
	{Name: InternationalVisits, Category: "audience", Dimension: "reach", Target: 50, Unit: "visits/day", Kind: models.KindCounter},
	{Name: NewAccounts, Category: "audience", Dimension: "growth", Target: 20, Unit: "signups/day", Kind: models.KindCounter},
	{Name: ReviewsPublished, Category: "engagement", Dimension: "content", Target: 50, Unit: "reviews/day", Kind: models.KindCounter},
	{Name: FavoritesSaved, Category: "engagement", Dimension: "content", Target: 80, Unit: "saves/day", Kind: models.KindCounter},
	{Name: SocialShares, Category: "engagement", Dimension: "diffusion", Target: 30, Unit: "shares/day", Kind: models.KindCounter},
	{Name: EventSignups, Category: "events", Dimension: "participation", Target: 40, Unit: "signups/day", Kind: models.KindCounter},
	{Name: PlacesPublished, Category: "supply", Dimension: "growth", Target: 5, Unit: "places/day", Kind: models.KindCounter},
	{Name: AveragePlaceRating, Category: "quality", Dimension: "satisfaction", Target: 4.5, Unit: "stars", Kind: models.KindDerived, Source: models.SourcePlaceRatings},
	{Name: AverageAttendance, Category: "events", Dimension: "participation", Target: 25, Unit: "attendees/event", Kind: models.KindDerived, Source: models.SourceEventAttendance},
	{Name: PlacesTotal, Category: "supply", Dimension: "growth", Target: 200, Unit: "places", Kind: models.KindGauge},
	{Name: ActiveEvents, Category: "events", Dimension: "supply", Target: 15, Unit: "events", Kind: models.KindGauge},
}

// Seed inserts the default catalog. Existing rows win, so admin edits to
// targets or units survive restarts.
func Seed(db *gorm.DB) error {
	for _, ind := range defaultCatalog {
		ind := ind
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&ind).Error; err != nil {
			return err
		}
	}
	return nil
}
