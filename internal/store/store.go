// Package store provides relational persistence for sections, companies,
// company details, the cost ledger, and run bookkeeping, with SQLite and
// Postgres implementations behind one interface.
package store

import (
	"context"
	"math"
	"time"

	"github.com/sells-group/listings-cli/internal/model"
)

// Store defines the persistence interface for the listings pipeline.
// All company and details writes use insert-or-update-on-primary-key-conflict
// semantics; key conflicts are never surfaced as errors.
type Store interface {
	// Sections
	CountSections(ctx context.Context) (int, error)
	SeedSections(ctx context.Context, sections []model.Section) error
	PickStaleSections(ctx context.Context, limit int) ([]model.Section, error)

	// Companies
	UpsertCompany(ctx context.Context, c model.Company) error
	ListStaleCompanies(ctx context.Context, cutoff time.Time, limit int) ([]model.Company, error)

	// Details. UpsertCompanyDetails replaces the details row and stamps the
	// parent company's detail timestamp in one transaction.
	UpsertCompanyDetails(ctx context.Context, d model.CompanyDetails) error

	// Cost ledger. ChargeCost atomically checks the prospective monthly
	// total against cap and commits cost+count only when it fits.
	ChargeCost(ctx context.Context, year, month int, cost, cap float64) (bool, error)
	GetCostRecord(ctx context.Context, year, month int) (*model.CostRecord, error)

	// Reporting
	ExportRows(ctx context.Context) ([]model.ExportRow, error)

	// Runs
	CreateRun(ctx context.Context, kind string) (string, error)
	CompleteRun(ctx context.Context, runID string, stats model.RunStats) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// round6 keeps accumulated costs at micro-unit precision so repeated
// additions of fractional unit costs stay stable.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
