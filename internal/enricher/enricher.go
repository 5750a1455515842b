// Package enricher refreshes per-company detail records: contact data,
// rating, reviews, opening hours, and a resolved photo URL.
package enricher

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/places"
)

// detailFields is the field list requested from the details endpoint.
var detailFields = []string{
	"website",
	"formatted_phone_number",
	"rating",
	"reviews",
	"user_ratings_total",
	"opening_hours",
	"photo",
}

// Dispatcher issues budget-gated details and photo calls.
type Dispatcher interface {
	Details(ctx context.Context, req places.DetailsRequest) (*places.DetailsResponse, error)
	Photo(ctx context.Context, req places.PhotoRequest) (string, error)
}

// Store lists overdue companies and persists their details.
type Store interface {
	ListStaleCompanies(ctx context.Context, cutoff time.Time, limit int) ([]model.Company, error)
	UpsertCompanyDetails(ctx context.Context, d model.CompanyDetails) error
}

// Config holds the enrichment parameters.
type Config struct {
	// Language is the results language passed to the API.
	Language string

	// PhotoMaxPx bounds the resolved photo's width and height.
	PhotoMaxPx int

	// Concurrency sizes the worker pool; 1 keeps the baseline
	// synchronous sequencing. Ledger charges stay serialized either way.
	Concurrency int
}

// Enricher runs the detail-refresh stage.
type Enricher struct {
	dispatcher Dispatcher
	store      Store
	cfg        Config
	now        func() time.Time
}

// New creates an Enricher.
func New(dispatcher Dispatcher, store Store, cfg Config) *Enricher {
	if cfg.PhotoMaxPx <= 0 {
		cfg.PhotoMaxPx = 1600
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Enricher{
		dispatcher: dispatcher,
		store:      store,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RefreshOverdue enriches up to batchLimit companies whose details are
// missing or older than staleAfterDays, oldest first. Each company is
// handled by exactly one worker and commits independently; a budget denial
// or exhausted retry stops the whole batch, keeping already-committed rows.
func (e *Enricher) RefreshOverdue(ctx context.Context, batchLimit, staleAfterDays int) (int, error) {
	cutoff := e.now().UTC().AddDate(0, 0, -staleAfterDays)
	companies, err := e.store.ListStaleCompanies(ctx, cutoff, batchLimit)
	if err != nil {
		return 0, eris.Wrap(err, "enricher: list stale companies")
	}

	log := zap.L().With(zap.String("component", "enricher"))
	log.Info("refreshing company details",
		zap.Int("companies", len(companies)),
		zap.Int("stale_after_days", staleAfterDays),
	)

	var refreshed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, company := range companies {
		g.Go(func() error {
			if err := e.refresh(gctx, company); err != nil {
				return err
			}
			refreshed.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(refreshed.Load()), err
	}
	return int(refreshed.Load()), nil
}

func (e *Enricher) refresh(ctx context.Context, company model.Company) error {
	log := zap.L().With(
		zap.String("place_id", company.PlaceID),
		zap.String("company", company.Name),
	)
	log.Debug("refreshing details")

	resp, err := e.dispatcher.Details(ctx, places.DetailsRequest{
		PlaceID:  company.PlaceID,
		Fields:   detailFields,
		Language: e.cfg.Language,
	})
	if err != nil {
		return eris.Wrapf(err, "enricher: details %s", company.PlaceID)
	}
	detail := resp.Result

	reviewsJSON, err := marshalReviews(detail.Reviews)
	if err != nil {
		return eris.Wrapf(err, "enricher: serialize reviews %s", company.PlaceID)
	}
	hoursJSON, err := marshalWeekdayHours(detail.OpeningHours)
	if err != nil {
		return eris.Wrapf(err, "enricher: serialize hours %s", company.PlaceID)
	}

	photoURL, err := e.resolvePhoto(ctx, detail.Photos, log)
	if err != nil {
		return err
	}

	details := model.CompanyDetails{
		PlaceID:      company.PlaceID,
		Website:      detail.Website,
		Phone:        detail.FormattedPhoneNumber,
		TotalReviews: detail.UserRatingsTotal,
		AvgRating:    detail.Rating,
		Reviews:      reviewsJSON,
		OpeningHours: hoursJSON,
		PhotoURL:     photoURL,
		UpdatedAt:    e.now().UTC(),
	}
	if err := e.store.UpsertCompanyDetails(ctx, details); err != nil {
		return eris.Wrapf(err, "enricher: upsert details %s", company.PlaceID)
	}
	return nil
}

// resolvePhoto turns the first photo reference into a fetchable media URL.
// Photo failures leave the field empty rather than failing the company;
// only budget exhaustion propagates, since no further dispatch is allowed.
func (e *Enricher) resolvePhoto(ctx context.Context, photos []places.Photo, log *zap.Logger) (string, error) {
	if len(photos) == 0 {
		return "", nil
	}

	url, err := e.dispatcher.Photo(ctx, places.PhotoRequest{
		PhotoReference: photos[0].PhotoReference,
		MaxWidth:       e.cfg.PhotoMaxPx,
		MaxHeight:      e.cfg.PhotoMaxPx,
	})
	if err != nil {
		if errors.Is(err, budget.ErrBudgetExceeded) {
			return "", eris.Wrap(err, "enricher: photo")
		}
		log.Warn("photo resolution failed", zap.Error(err))
		return "", nil
	}
	return url, nil
}

// marshalReviews normalizes the raw review list into the ordered serialized
// form stored with the details row. An absent list serializes as [].
func marshalReviews(raw []places.Review) (string, error) {
	reviews := make([]model.Review, 0, len(raw))
	for _, r := range raw {
		reviews = append(reviews, model.Review{
			AuthorName:              r.AuthorName,
			AuthorURL:               r.AuthorURL,
			Language:                r.Language,
			OriginalLanguage:        r.OriginalLanguage,
			ProfilePhotoURL:         r.ProfilePhotoURL,
			Rating:                  r.Rating,
			RelativeTimeDescription: r.RelativeTimeDescription,
			Text:                    r.Text,
			Time:                    r.Time,
			Translated:              r.Translated,
		})
	}
	data, err := json.Marshal(reviews)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// marshalWeekdayHours serializes the weekday hours text list, defaulting to
// [] when the place exposes no opening hours.
func marshalWeekdayHours(hours *places.OpeningHours) (string, error) {
	weekdayText := []string{}
	if hours != nil && hours.WeekdayText != nil {
		weekdayText = hours.WeekdayText
	}
	data, err := json.Marshal(weekdayText)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
