package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/dispatch"
	"github.com/sells-group/listings-cli/internal/store"
	"github.com/sells-group/listings-cli/pkg/places"
)

// initStore opens the configured backend and brings the schema current.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "listings.db"
		}
		s, err = store.NewSQLite(dsn)
	case "postgres":
		s, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate schema")
	}
	return s, nil
}

// initDispatcher wires the Places client behind the cost ledger and pacing.
func initDispatcher(s store.Store) *dispatch.Dispatcher {
	client := places.NewClient(cfg.Places.Key, places.WithBaseURL(cfg.Places.BaseURL))
	ledger := budget.NewLedger(s, budget.Costs{
		MonthlyCap: cfg.Budget.MonthlyCap,
		Search:     cfg.Budget.Search,
		Details:    cfg.Budget.Details,
		Photo:      cfg.Budget.Photo,
		Default:    cfg.Budget.Default,
	})
	return dispatch.New(client, ledger, dispatch.Config{
		RateLimit: cfg.Places.RateLimit,
	})
}
