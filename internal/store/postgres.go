package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sections (
	section_id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	name       TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lon        DOUBLE PRECISION NOT NULL,
	population DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS companies (
	place_id          TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	section_id        BIGINT NOT NULL REFERENCES sections(section_id),
	country           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	postal_code       TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL,
	detail_updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS company_details (
	place_id      TEXT PRIMARY KEY REFERENCES companies(place_id),
	website       TEXT NOT NULL DEFAULT '',
	phone_number  TEXT NOT NULL DEFAULT '',
	total_reviews INTEGER NOT NULL DEFAULT 0,
	avg_reviews   DOUBLE PRECISION NOT NULL DEFAULT 0,
	reviews       TEXT NOT NULL DEFAULT '[]',
	opening_hours TEXT NOT NULL DEFAULT '[]',
	place_photo   TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS api_costs (
	year        INTEGER NOT NULL,
	month       INTEGER NOT NULL,
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	query_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (year, month)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	sections    INTEGER NOT NULL DEFAULT 0,
	companies   INTEGER NOT NULL DEFAULT 0,
	details     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_companies_section ON companies(section_id);
CREATE INDEX IF NOT EXISTS idx_companies_detail_updated ON companies(detail_updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CountSections(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sections`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count sections")
}

func (s *PostgresStore) SeedSections(ctx context.Context, sections []model.Section) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: seed begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, sec := range sections {
		_, err := tx.Exec(ctx,
			`INSERT INTO sections (name, lat, lon, population) VALUES ($1, $2, $3, $4)`,
			sec.Name, sec.Lat, sec.Lon, sec.Population,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: seed section %s", sec.Name)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: seed commit")
}

func (s *PostgresStore) PickStaleSections(ctx context.Context, limit int) ([]model.Section, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.section_id, s.name, s.lat, s.lon, s.population
		FROM sections s
		LEFT JOIN companies c ON c.section_id = s.section_id
		GROUP BY s.section_id
		ORDER BY MIN(c.updated_at) ASC NULLS FIRST, random()
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: pick stale sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Lat, &sec.Lon, &sec.Population); err != nil {
			return nil, eris.Wrap(err, "postgres: scan section")
		}
		sections = append(sections, sec)
	}
	return sections, eris.Wrap(rows.Err(), "postgres: pick stale sections iterate")
}

func (s *PostgresStore) UpsertCompany(ctx context.Context, c model.Company) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (place_id, name, section_id, country, state, city, address, postal_code, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (place_id) DO UPDATE SET
			name = EXCLUDED.name,
			section_id = EXCLUDED.section_id,
			country = EXCLUDED.country,
			state = EXCLUDED.state,
			city = EXCLUDED.city,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			updated_at = EXCLUDED.updated_at`,
		c.PlaceID, c.Name, c.SectionID, c.Country, c.State, c.City, c.Address, c.PostalCode, c.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert company %s", c.PlaceID)
}

func (s *PostgresStore) ListStaleCompanies(ctx context.Context, cutoff time.Time, limit int) ([]model.Company, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT place_id, name, section_id, country, state, city, address, postal_code, updated_at, detail_updated_at
		FROM companies
		WHERE detail_updated_at IS NULL OR detail_updated_at < $1
		ORDER BY detail_updated_at ASC NULLS FIRST
		LIMIT $2`, cutoff.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		var c model.Company
		var detailAt *time.Time
		err := rows.Scan(&c.PlaceID, &c.Name, &c.SectionID, &c.Country, &c.State, &c.City,
			&c.Address, &c.PostalCode, &c.UpdatedAt, &detailAt)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		c.DetailUpdatedAt = detailAt
		companies = append(companies, c)
	}
	return companies, eris.Wrap(rows.Err(), "postgres: list stale companies iterate")
}

func (s *PostgresStore) UpsertCompanyDetails(ctx context.Context, d model.CompanyDetails) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: details begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, `
		INSERT INTO company_details (place_id, website, phone_number, total_reviews, avg_reviews, reviews, opening_hours, place_photo, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (place_id) DO UPDATE SET
			website = EXCLUDED.website,
			phone_number = EXCLUDED.phone_number,
			total_reviews = EXCLUDED.total_reviews,
			avg_reviews = EXCLUDED.avg_reviews,
			reviews = EXCLUDED.reviews,
			opening_hours = EXCLUDED.opening_hours,
			place_photo = EXCLUDED.place_photo,
			updated_at = EXCLUDED.updated_at`,
		d.PlaceID, d.Website, d.Phone, d.TotalReviews, d.AvgRating, d.Reviews, d.OpeningHours, d.PhotoURL, d.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert details %s", d.PlaceID)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE companies SET detail_updated_at = $1 WHERE place_id = $2`,
		d.UpdatedAt.UTC(), d.PlaceID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: stamp company %s", d.PlaceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: company not found: %s", d.PlaceID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: details commit")
}

// ChargeCost locks the month row for the duration of the check-then-commit
// so concurrent charge attempts cannot race past the cap.
func (s *PostgresStore) ChargeCost(ctx context.Context, year, month int, cost, cap float64) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, eris.Wrap(err, "postgres: charge begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var cur float64
	var count int
	err = tx.QueryRow(ctx,
		`SELECT cost, query_count FROM api_costs WHERE year = $1 AND month = $2 FOR UPDATE`,
		year, month,
	).Scan(&cur, &count)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrap(err, "postgres: read cost record")
	}

	total := round6(cur + cost)
	if total > cap {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO api_costs (year, month, cost, query_count) VALUES ($1, $2, $3, $4)
		ON CONFLICT (year, month) DO UPDATE SET
			cost = EXCLUDED.cost,
			query_count = EXCLUDED.query_count`,
		year, month, total, count+1,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: write cost record")
	}
	return true, eris.Wrap(tx.Commit(ctx), "postgres: charge commit")
}

func (s *PostgresStore) GetCostRecord(ctx context.Context, year, month int) (*model.CostRecord, error) {
	var rec model.CostRecord
	err := s.pool.QueryRow(ctx,
		`SELECT year, month, cost, query_count FROM api_costs WHERE year = $1 AND month = $2`,
		year, month,
	).Scan(&rec.Year, &rec.Month, &rec.Cost, &rec.QueryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cost record")
	}
	return &rec, nil
}

func (s *PostgresStore) ExportRows(ctx context.Context) ([]model.ExportRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.place_id, c.name, c.state, c.city, c.postal_code, c.address,
		       cd.website, cd.phone_number, cd.total_reviews, cd.avg_reviews,
		       cd.place_photo, cd.updated_at, cd.opening_hours, cd.reviews
		FROM companies c
		INNER JOIN company_details cd ON cd.place_id = c.place_id
		ORDER BY c.name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: export rows")
	}
	defer rows.Close()

	var out []model.ExportRow
	for rows.Next() {
		var r model.ExportRow
		err := rows.Scan(&r.PlaceID, &r.Name, &r.State, &r.City, &r.PostalCode, &r.Address,
			&r.Website, &r.Phone, &r.TotalReviews, &r.AvgRating,
			&r.PhotoURL, &r.UpdatedAt, &r.OpeningHours, &r.Reviews)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan export row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: export rows iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES ($1, $2, $3)`,
		id, kind, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $1, sections = $2, companies = $3, details = $4 WHERE id = $5`,
		time.Now().UTC(), stats.Sections, stats.Companies, stats.Details, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}
