package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CountSections(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sections`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountSections(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedSections_CommitsAllRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sections`).
		WithArgs("Madrid", 40.4168, -3.7038, 3200000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO sections`).
		WithArgs("Getafe", 40.3083, -3.7327, 180000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SeedSections(context.Background(), []model.Section{
		{Name: "Madrid", Lat: 40.4168, Lon: -3.7038, Population: 3200000},
		{Name: "Getafe", Lat: 40.3083, Lon: -3.7327, Population: 180000},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PickStaleSections(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY MIN\(c\.updated_at\) ASC NULLS FIRST`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"section_id", "name", "lat", "lon", "population"}).
			AddRow(int64(3), "Getafe", 40.3083, -3.7327, 180000.0).
			AddRow(int64(1), "Madrid", 40.4168, -3.7038, 3200000.0))

	sections, err := s.PickStaleSections(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, int64(3), sections[0].ID)
	assert.Equal(t, "Madrid", sections[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO companies`).
		WithArgs("place-1", "Bar Paco", int64(1), "España", "Madrid", "Madrid",
			"Calle Mayor 5", "28013", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertCompany(context.Background(), model.Company{
		PlaceID:    "place-1",
		Name:       "Bar Paco",
		SectionID:  1,
		Country:    "España",
		State:      "Madrid",
		City:       "Madrid",
		Address:    "Calle Mayor 5",
		PostalCode: "28013",
		UpdatedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListStaleCompanies(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`WHERE detail_updated_at IS NULL OR detail_updated_at < \$1`).
		WithArgs(pgxmock.AnyArg(), 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"place_id", "name", "section_id", "country", "state", "city",
			"address", "postal_code", "updated_at", "detail_updated_at",
		}).AddRow("p1", "Bar Paco", int64(1), "", "", "", "", "", now, (*time.Time)(nil)))

	companies, err := s.ListStaleCompanies(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "p1", companies[0].PlaceID)
	assert.Nil(t, companies[0].DetailUpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompanyDetails_StampsParent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO company_details`).
		WithArgs("place-1", "https://barpaco.es", "+34 910 000 000", 12, 4.5,
			"[]", "[]", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE companies SET detail_updated_at`).
		WithArgs(pgxmock.AnyArg(), "place-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.UpsertCompanyDetails(context.Background(), model.CompanyDetails{
		PlaceID:      "place-1",
		Website:      "https://barpaco.es",
		Phone:        "+34 910 000 000",
		TotalReviews: 12,
		AvgRating:    4.5,
		Reviews:      "[]",
		OpeningHours: "[]",
		UpdatedAt:    time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompanyDetails_MissingCompanyRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO company_details`).
		WithArgs("ghost", "", "", 0, 0.0, "[]", "[]", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE companies SET detail_updated_at`).
		WithArgs(pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.UpsertCompanyDetails(context.Background(), model.CompanyDetails{
		PlaceID: "ghost", Reviews: "[]", OpeningHours: "[]", UpdatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ChargeCost_FirstChargeOfMonth(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cost, query_count FROM api_costs .* FOR UPDATE`).
		WithArgs(2026, 8).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO api_costs`).
		WithArgs(2026, 8, 0.032, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ok, err := s.ChargeCost(context.Background(), 2026, 8, 0.032, 200)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ChargeCost_DeniedOverCap(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT cost, query_count FROM api_costs .* FOR UPDATE`).
		WithArgs(2026, 8).
		WillReturnRows(pgxmock.NewRows([]string{"cost", "query_count"}).AddRow(199.99, 6000))
	mock.ExpectRollback()

	ok, err := s.ChargeCost(context.Background(), 2026, 8, 0.032, 200)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCostRecord_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT year, month, cost, query_count FROM api_costs`).
		WithArgs(1999, 1).
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetCostRecord(context.Background(), 1999, 1)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`INNER JOIN company_details`).
		WillReturnRows(pgxmock.NewRows([]string{
			"place_id", "name", "state", "city", "postal_code", "address",
			"website", "phone_number", "total_reviews", "avg_reviews",
			"place_photo", "updated_at", "opening_hours", "reviews",
		}).AddRow("p1", "Bar Paco", "Madrid", "Madrid", "28013", "Calle Mayor 5",
			"https://barpaco.es", "+34 910 000 000", 12, 4.5, "", now, "[]", "[]"))

	rows, err := s.ExportRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bar Paco", rows[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteRun_Unknown(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET finished_at`).
		WithArgs(pgxmock.AnyArg(), 0, 0, 0, "no-such-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteRun(context.Background(), "no-such-run", model.RunStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
