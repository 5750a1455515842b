// Package export writes enriched listings to a CSV suitable for handoff.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/model"
)

// Store provides the joined company+details rows for export.
type Store interface {
	ExportRows(ctx context.Context) ([]model.ExportRow, error)
}

// Config holds export parameters.
type Config struct {
	// WebsiteFallback replaces an empty website column so downstream
	// consumers never see a blank URL cell.
	WebsiteFallback string
}

// Exporter writes the enriched dataset as CSV.
type Exporter struct {
	store Store
	cfg   Config
}

// New creates an Exporter.
func New(store Store, cfg Config) *Exporter {
	return &Exporter{store: store, cfg: cfg}
}

var header = []string{
	"place_id",
	"name",
	"state",
	"city",
	"postal_code",
	"address",
	"full_address",
	"website",
	"phone_number",
	"total_reviews",
	"avg_reviews",
	"place_photo",
	"listing_link",
	"opening_hours",
	"reviews",
}

// WriteFile exports all enriched companies to path, creating or truncating
// the file. Returns the number of data rows written.
func (e *Exporter) WriteFile(ctx context.Context, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close()

	n, err := e.Write(ctx, f)
	if err != nil {
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, eris.Wrapf(err, "export: close %s", path)
	}
	zap.L().Info("export complete", zap.String("path", path), zap.Int("rows", n))
	return n, nil
}

// Write streams the CSV to w and returns the number of data rows written.
func (e *Exporter) Write(ctx context.Context, w io.Writer) (int, error) {
	rows, err := e.store.ExportRows(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "export: load rows")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return 0, eris.Wrap(err, "export: write header")
	}
	for _, row := range rows {
		if err := cw.Write(e.record(row)); err != nil {
			return 0, eris.Wrapf(err, "export: write row %s", row.PlaceID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, eris.Wrap(err, "export: flush")
	}
	return len(rows), nil
}

func (e *Exporter) record(row model.ExportRow) []string {
	website := row.Website
	if website == "" {
		website = e.cfg.WebsiteFallback
	}
	full := fullAddress(row)
	return []string{
		row.PlaceID,
		row.Name,
		row.State,
		row.City,
		row.PostalCode,
		row.Address,
		full,
		website,
		row.Phone,
		strconv.Itoa(row.TotalReviews),
		strconv.FormatFloat(row.AvgRating, 'f', -1, 64),
		row.PhotoURL,
		listingLink(row.Name, full),
		row.OpeningHours,
		row.Reviews,
	}
}

// fullAddress rebuilds a display address from the parsed components,
// skipping empty parts.
func fullAddress(row model.ExportRow) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{row.Address, row.PostalCode, row.City, row.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// listingLink builds a search URL pointing at the company's review listing.
// Spaces become + and commas %2C so the query survives as a single term.
func listingLink(name, address string) string {
	q := fmt.Sprintf("%s %s", name, address)
	q = strings.ReplaceAll(q, ",", "%2C")
	q = strings.ReplaceAll(q, " ", "+")
	return "https://www.google.com/search?q=" + q + "+opiniones"
}
