// Package crawler discovers companies per geographic section via paginated
// text search and upserts them into the store.
package crawler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings-cli/internal/address"
	"github.com/sells-group/listings-cli/internal/model"
	"github.com/sells-group/listings-cli/pkg/places"
)

const (
	// maxCompaniesPerQuery bounds how deep pagination may go for one
	// query template; with 20 results per page this caps page fetches
	// even when the API keeps returning continuation tokens.
	maxCompaniesPerQuery = 1000
	resultsPerPage       = 20
)

// populationThresholds sizes the query-template prefix: one template per
// threshold the section's population meets.
var populationThresholds = [...]float64{0, 50000, 150000, 300000}

// Dispatcher issues budget-gated search calls.
type Dispatcher interface {
	Search(ctx context.Context, req places.TextSearchRequest) (*places.TextSearchResponse, error)
	SearchNextPage(ctx context.Context, req places.TextSearchRequest, token string) (*places.TextSearchResponse, error)
}

// Store persists discovered companies.
type Store interface {
	UpsertCompany(ctx context.Context, c model.Company) error
}

// Config holds the crawl parameters.
type Config struct {
	// Queries is the ordered list of search-query templates; larger
	// sections use a longer prefix of it.
	Queries []string

	// RadiusM is the search radius around the section anchor in meters.
	RadiusM int

	// Language is the results language passed to the API.
	Language string
}

// Crawler runs the discovery stage for one section at a time.
type Crawler struct {
	dispatcher Dispatcher
	store      Store
	parser     address.Parser
	cfg        Config
	now        func() time.Time
}

// SectionStats summarizes one section crawl.
type SectionStats struct {
	Queries   int
	Pages     int
	Companies int
}

// New creates a Crawler.
func New(dispatcher Dispatcher, store Store, parser address.Parser, cfg Config) *Crawler {
	if cfg.RadiusM <= 0 {
		cfg.RadiusM = 50000
	}
	return &Crawler{
		dispatcher: dispatcher,
		store:      store,
		parser:     parser,
		cfg:        cfg,
		now:        time.Now,
	}
}

// CrawlSection searches the section with a population-sized prefix of the
// query templates and upserts every hit that exposes both a place id and a
// name. Each upsert commits independently so partial progress survives a
// fatal stop.
func (c *Crawler) CrawlSection(ctx context.Context, section model.Section) (*SectionStats, error) {
	if len(c.cfg.Queries) == 0 {
		return nil, eris.New("crawler: no query templates configured")
	}

	log := zap.L().With(
		zap.Int64("section_id", section.ID),
		zap.String("section", section.Name),
	)

	stats := &SectionStats{}
	n := queryCount(section.Population, len(c.cfg.Queries))
	for _, query := range c.cfg.Queries[:n] {
		stats.Queries++
		upserted, pages, err := c.crawlQuery(ctx, section, query, log)
		stats.Pages += pages
		stats.Companies += upserted
		if err != nil {
			return stats, err
		}
		if upserted == 0 {
			// Expected for sparsely populated sections, not an error.
			log.Info("no results for this location",
				zap.String("query", query),
				zap.Float64("lat", section.Lat),
				zap.Float64("lon", section.Lon),
			)
		}
	}

	return stats, nil
}

// crawlQuery pages through one query template until the API stops returning
// a continuation token or the page cap is reached.
func (c *Crawler) crawlQuery(ctx context.Context, section model.Section, query string, log *zap.Logger) (upserted, pages int, err error) {
	req := places.TextSearchRequest{
		Query:    query,
		Lat:      section.Lat,
		Lng:      section.Lon,
		RadiusM:  c.cfg.RadiusM,
		Language: c.cfg.Language,
	}

	maxPages := (maxCompaniesPerQuery + resultsPerPage - 1) / resultsPerPage
	token := ""
	for (pages == 0 || token != "") && pages <= maxPages {
		pages++

		var resp *places.TextSearchResponse
		if token == "" {
			resp, err = c.dispatcher.Search(ctx, req)
		} else {
			resp, err = c.dispatcher.SearchNextPage(ctx, req, token)
		}
		if err != nil {
			return upserted, pages, eris.Wrapf(err, "crawler: search %q page %d", query, pages)
		}
		token = resp.NextPageToken

		for _, hit := range resp.Results {
			if hit.PlaceID == "" || hit.Name == "" {
				continue
			}

			addr := c.parser.Parse(hit.FormattedAddress)
			company := model.Company{
				PlaceID:    hit.PlaceID,
				Name:       hit.Name,
				SectionID:  section.ID,
				Country:    addr.Country,
				State:      addr.State,
				City:       addr.City,
				Address:    addr.Street,
				PostalCode: addr.PostalCode,
				UpdatedAt:  c.now().UTC(),
			}
			if err := c.store.UpsertCompany(ctx, company); err != nil {
				return upserted, pages, eris.Wrapf(err, "crawler: upsert %s", hit.PlaceID)
			}
			upserted++
		}

		log.Debug("search page processed",
			zap.String("query", query),
			zap.Int("page", pages),
			zap.Int("hits", len(resp.Results)),
		)
	}

	return upserted, pages, nil
}

// queryCount returns how many query templates a section of the given
// population uses, capped by the configured template count.
func queryCount(population float64, configured int) int {
	n := 0
	for _, threshold := range populationThresholds {
		if population >= threshold {
			n++
		}
	}
	if n > configured {
		n = configured
	}
	return n
}
