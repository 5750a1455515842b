package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listings-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sections (
	section_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	lat        REAL NOT NULL,
	lon        REAL NOT NULL,
	population REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS companies (
	place_id          TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	section_id        INTEGER NOT NULL REFERENCES sections(section_id),
	country           TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	address           TEXT NOT NULL DEFAULT '',
	postal_code       TEXT NOT NULL DEFAULT '',
	updated_at        DATETIME NOT NULL,
	detail_updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS company_details (
	place_id      TEXT PRIMARY KEY REFERENCES companies(place_id),
	website       TEXT NOT NULL DEFAULT '',
	phone_number  TEXT NOT NULL DEFAULT '',
	total_reviews INTEGER NOT NULL DEFAULT 0,
	avg_reviews   REAL NOT NULL DEFAULT 0,
	reviews       TEXT NOT NULL DEFAULT '[]',
	opening_hours TEXT NOT NULL DEFAULT '[]',
	place_photo   TEXT NOT NULL DEFAULT '',
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS api_costs (
	year        INTEGER NOT NULL,
	month       INTEGER NOT NULL,
	cost        REAL NOT NULL DEFAULT 0,
	query_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (year, month)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	sections    INTEGER NOT NULL DEFAULT 0,
	companies   INTEGER NOT NULL DEFAULT 0,
	details     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_companies_section ON companies(section_id);
CREATE INDEX IF NOT EXISTS idx_companies_detail_updated ON companies(detail_updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CountSections(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sections`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count sections")
}

func (s *SQLiteStore) SeedSections(ctx context.Context, sections []model.Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: seed begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, sec := range sections {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sections (name, lat, lon, population) VALUES (?, ?, ?, ?)`,
			sec.Name, sec.Lat, sec.Lon, sec.Population,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: seed section %s", sec.Name)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: seed commit")
}

// PickStaleSections orders sections by their stalest associated company.
// Sections with no companies sort first (NULL min), ties break randomly for
// fairness across equally-stale sections.
func (s *SQLiteStore) PickStaleSections(ctx context.Context, limit int) ([]model.Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.section_id, s.name, s.lat, s.lon, s.population
		FROM sections s
		LEFT JOIN companies c ON c.section_id = s.section_id
		GROUP BY s.section_id
		ORDER BY MIN(c.updated_at) ASC, RANDOM()
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: pick stale sections")
	}
	defer rows.Close()

	var sections []model.Section
	for rows.Next() {
		var sec model.Section
		if err := rows.Scan(&sec.ID, &sec.Name, &sec.Lat, &sec.Lon, &sec.Population); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan section")
		}
		sections = append(sections, sec)
	}
	return sections, eris.Wrap(rows.Err(), "sqlite: pick stale sections iterate")
}

func (s *SQLiteStore) UpsertCompany(ctx context.Context, c model.Company) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (place_id, name, section_id, country, state, city, address, postal_code, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			name = excluded.name,
			section_id = excluded.section_id,
			country = excluded.country,
			state = excluded.state,
			city = excluded.city,
			address = excluded.address,
			postal_code = excluded.postal_code,
			updated_at = excluded.updated_at`,
		c.PlaceID, c.Name, c.SectionID, c.Country, c.State, c.City, c.Address, c.PostalCode, c.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert company %s", c.PlaceID)
}

// ListStaleCompanies returns companies never enriched or enriched before
// cutoff, never-enriched first, then oldest detail timestamp.
func (s *SQLiteStore) ListStaleCompanies(ctx context.Context, cutoff time.Time, limit int) ([]model.Company, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT place_id, name, section_id, country, state, city, address, postal_code, updated_at, detail_updated_at
		FROM companies
		WHERE detail_updated_at IS NULL OR detail_updated_at < ?
		ORDER BY detail_updated_at ASC
		LIMIT ?`, cutoff.UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale companies")
	}
	defer rows.Close()

	var companies []model.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	return companies, eris.Wrap(rows.Err(), "sqlite: list stale companies iterate")
}

func (s *SQLiteStore) UpsertCompanyDetails(ctx context.Context, d model.CompanyDetails) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: details begin")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO company_details (place_id, website, phone_number, total_reviews, avg_reviews, reviews, opening_hours, place_photo, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			website = excluded.website,
			phone_number = excluded.phone_number,
			total_reviews = excluded.total_reviews,
			avg_reviews = excluded.avg_reviews,
			reviews = excluded.reviews,
			opening_hours = excluded.opening_hours,
			place_photo = excluded.place_photo,
			updated_at = excluded.updated_at`,
		d.PlaceID, d.Website, d.Phone, d.TotalReviews, d.AvgRating, d.Reviews, d.OpeningHours, d.PhotoURL, d.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert details %s", d.PlaceID)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE companies SET detail_updated_at = ? WHERE place_id = ?`,
		d.UpdatedAt.UTC(), d.PlaceID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: stamp company %s", d.PlaceID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: company not found: %s", d.PlaceID)
	}

	return eris.Wrap(tx.Commit(), "sqlite: details commit")
}

// ChargeCost runs the check-then-commit inside one transaction: the
// prospective monthly total is computed against the stored row and the
// charge is denied without mutation when it would exceed cap.
func (s *SQLiteStore) ChargeCost(ctx context.Context, year, month int, cost, cap float64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: charge begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var cur float64
	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT cost, query_count FROM api_costs WHERE year = ? AND month = ?`,
		year, month,
	).Scan(&cur, &count)
	if err != nil && err != sql.ErrNoRows {
		return false, eris.Wrap(err, "sqlite: read cost record")
	}

	total := round6(cur + cost)
	if total > cap {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO api_costs (year, month, cost, query_count) VALUES (?, ?, ?, ?)
		ON CONFLICT(year, month) DO UPDATE SET
			cost = excluded.cost,
			query_count = excluded.query_count`,
		year, month, total, count+1,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: write cost record")
	}
	return true, eris.Wrap(tx.Commit(), "sqlite: charge commit")
}

func (s *SQLiteStore) GetCostRecord(ctx context.Context, year, month int) (*model.CostRecord, error) {
	var rec model.CostRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT year, month, cost, query_count FROM api_costs WHERE year = ? AND month = ?`,
		year, month,
	).Scan(&rec.Year, &rec.Month, &rec.Cost, &rec.QueryCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cost record")
	}
	return &rec, nil
}

func (s *SQLiteStore) ExportRows(ctx context.Context) ([]model.ExportRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.place_id, c.name, c.state, c.city, c.postal_code, c.address,
		       cd.website, cd.phone_number, cd.total_reviews, cd.avg_reviews,
		       cd.place_photo, cd.updated_at, cd.opening_hours, cd.reviews
		FROM companies c
		INNER JOIN company_details cd ON cd.place_id = c.place_id
		ORDER BY c.name ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: export rows")
	}
	defer rows.Close()

	var out []model.ExportRow
	for rows.Next() {
		var r model.ExportRow
		err := rows.Scan(&r.PlaceID, &r.Name, &r.State, &r.City, &r.PostalCode, &r.Address,
			&r.Website, &r.Phone, &r.TotalReviews, &r.AvgRating,
			&r.PhotoURL, &r.UpdatedAt, &r.OpeningHours, &r.Reviews)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan export row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: export rows iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, started_at) VALUES (?, ?, ?)`,
		id, kind, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, sections = ?, companies = ?, details = ? WHERE id = ?`,
		time.Now().UTC(), stats.Sections, stats.Companies, stats.Details, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCompany(row scannable) (*model.Company, error) {
	var c model.Company
	var detailAt sql.NullTime
	err := row.Scan(&c.PlaceID, &c.Name, &c.SectionID, &c.Country, &c.State, &c.City,
		&c.Address, &c.PostalCode, &c.UpdatedAt, &detailAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan company")
	}
	if detailAt.Valid {
		t := detailAt.Time
		c.DetailUpdatedAt = &t
	}
	return &c, nil
}
