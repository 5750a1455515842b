package enricher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/places"
)

type stubDispatcher struct {
	detailsFn func(req places.DetailsRequest) (*places.DetailsResponse, error)
	photoFn   func(req places.PhotoRequest) (string, error)

	mu      sync.Mutex
	details []places.DetailsRequest
	photos  []places.PhotoRequest
}

func (d *stubDispatcher) Details(_ context.Context, req places.DetailsRequest) (*places.DetailsResponse, error) {
	d.mu.Lock()
	d.details = append(d.details, req)
	d.mu.Unlock()
	return d.detailsFn(req)
}

func (d *stubDispatcher) Photo(_ context.Context, req places.PhotoRequest) (string, error) {
	d.mu.Lock()
	d.photos = append(d.photos, req)
	d.mu.Unlock()
	if d.photoFn == nil {
		return "", nil
	}
	return d.photoFn(req)
}

type stubStore struct {
	stale []model.Company

	mu       sync.Mutex
	upserted []model.CompanyDetails
	err      error
}

func (s *stubStore) ListStaleCompanies(_ context.Context, _ time.Time, limit int) ([]model.Company, error) {
	if len(s.stale) > limit {
		return s.stale[:limit], nil
	}
	return s.stale, nil
}

func (s *stubStore) UpsertCompanyDetails(_ context.Context, d model.CompanyDetails) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.upserted = append(s.upserted, d)
	s.mu.Unlock()
	return nil
}

func fullDetailsResponse() *places.DetailsResponse {
	return &places.DetailsResponse{
		Status: "OK",
		Result: places.PlaceDetail{
			Website:              "https://barpaco.es",
			FormattedPhoneNumber: "+34 910 000 000",
			Rating:               4.5,
			UserRatingsTotal:     12,
			Reviews: []places.Review{{
				AuthorName: "Ana",
				Rating:     5,
				Text:       "Muy bueno",
				Time:       1700000000,
			}},
			OpeningHours: &places.OpeningHours{
				WeekdayText: []string{"lunes: 9:00-18:00"},
			},
			Photos: []places.Photo{{PhotoReference: "ref-1"}},
		},
	}
}

func TestRefreshOverdue_WritesFullDetails(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return fullDetailsResponse(), nil
		},
		photoFn: func(places.PhotoRequest) (string, error) {
			return "https://media.example/photo.jpg", nil
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1", Name: "Bar Paco"}}}
	e := New(d, store, Config{Language: "es", PhotoMaxPx: 1600})

	refreshed, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	require.Len(t, store.upserted, 1)
	got := store.upserted[0]
	assert.Equal(t, "p1", got.PlaceID)
	assert.Equal(t, "https://barpaco.es", got.Website)
	assert.Equal(t, "+34 910 000 000", got.Phone)
	assert.Equal(t, 12, got.TotalReviews)
	assert.InDelta(t, 4.5, got.AvgRating, 1e-9)
	assert.Equal(t, "https://media.example/photo.jpg", got.PhotoURL)
	assert.JSONEq(t, `["lunes: 9:00-18:00"]`, got.OpeningHours)
	assert.Contains(t, got.Reviews, `"author_name":"Ana"`)
	assert.False(t, got.UpdatedAt.IsZero())

	require.Len(t, d.details, 1)
	assert.Equal(t, detailFields, d.details[0].Fields)
	assert.Equal(t, "es", d.details[0].Language)
	require.Len(t, d.photos, 1)
	assert.Equal(t, 1600, d.photos[0].MaxWidth)
}

func TestRefreshOverdue_EmptyListsSerializeAsEmptyArrays(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return &places.DetailsResponse{Status: "OK"}, nil
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}}}
	e := New(d, store, Config{})

	_, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	assert.Equal(t, "[]", store.upserted[0].Reviews)
	assert.Equal(t, "[]", store.upserted[0].OpeningHours)
	assert.Empty(t, store.upserted[0].PhotoURL)
	assert.Empty(t, d.photos) // no photo reference, no photo call
}

func TestRefreshOverdue_PhotoFailureTolerated(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return fullDetailsResponse(), nil
		},
		photoFn: func(places.PhotoRequest) (string, error) {
			return "", assert.AnError
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}}}
	e := New(d, store, Config{})

	refreshed, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	require.Len(t, store.upserted, 1)
	assert.Empty(t, store.upserted[0].PhotoURL)
}

func TestRefreshOverdue_BudgetExhaustedViaPhotoIsFatal(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return fullDetailsResponse(), nil
		},
		photoFn: func(places.PhotoRequest) (string, error) {
			return "", eris.Wrap(budget.ErrBudgetExceeded, "dispatch: place_photo denied")
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}}}
	e := New(d, store, Config{})

	_, err := e.RefreshOverdue(context.Background(), 10, 30)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.Empty(t, store.upserted)
}

func TestRefreshOverdue_DetailsErrorIsFatal(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return nil, assert.AnError
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}, {PlaceID: "p2"}}}
	e := New(d, store, Config{})

	refreshed, err := e.RefreshOverdue(context.Background(), 10, 30)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, refreshed)
}

func TestRefreshOverdue_BatchLimitRespected(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return &places.DetailsResponse{Status: "OK"}, nil
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}, {PlaceID: "p2"}, {PlaceID: "p3"}}}
	e := New(d, store, Config{})

	refreshed, err := e.RefreshOverdue(context.Background(), 2, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
}

func TestRefreshOverdue_ConcurrentWorkers(t *testing.T) {
	companies := make([]model.Company, 8)
	for i := range companies {
		companies[i] = model.Company{PlaceID: string(rune('a' + i))}
	}
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return &places.DetailsResponse{Status: "OK"}, nil
		},
	}
	store := &stubStore{stale: companies}
	e := New(d, store, Config{Concurrency: 4})

	refreshed, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)
	assert.Equal(t, 8, refreshed)
	assert.Len(t, store.upserted, 8)
}

func TestRefreshOverdue_UnchangedDataIsIdempotent(t *testing.T) {
	d := &stubDispatcher{
		detailsFn: func(places.DetailsRequest) (*places.DetailsResponse, error) {
			return fullDetailsResponse(), nil
		},
		photoFn: func(places.PhotoRequest) (string, error) {
			return "https://media.example/photo.jpg", nil
		},
	}
	store := &stubStore{stale: []model.Company{{PlaceID: "p1"}}}
	e := New(d, store, Config{})

	_, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)
	_, err = e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)

	require.Len(t, store.upserted, 2)
	first, second := store.upserted[0], store.upserted[1]
	first.UpdatedAt = time.Time{}
	second.UpdatedAt = time.Time{}
	assert.Equal(t, first, second)
}

func TestRefreshOverdue_NothingStale(t *testing.T) {
	e := New(&stubDispatcher{}, &stubStore{}, Config{})

	refreshed, err := e.RefreshOverdue(context.Background(), 10, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)
}
