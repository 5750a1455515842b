// Package dispatch routes every external API call through the budget ledger
// and applies the pacing, rate-limit, and retry policy.
package dispatch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/resilience"
	"github.com/sells-group/listings-cli/pkg/places"
)

// Ledger approves or denies one call of the given billing kind.
type Ledger interface {
	TryCharge(ctx context.Context, kind budget.QueryKind) (bool, error)
}

// Config tunes the dispatcher's timing behavior.
type Config struct {
	// PageTokenDelay is the wait before issuing a continuation-token
	// request; freshly minted tokens are not valid immediately.
	// Default: 2s.
	PageTokenDelay time.Duration

	// RetryBackoff is the fixed wait before the single retry of a
	// transient failure. Default: 10s.
	RetryBackoff time.Duration

	// RateLimit caps dispatches per second. Default: 10.
	RateLimit float64
}

func (cfg Config) withDefaults() Config {
	if cfg.PageTokenDelay <= 0 {
		cfg.PageTokenDelay = 2 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	return cfg
}

// Dispatcher performs typed external API calls. Each call is charged against
// the ledger before it is issued; a denial surfaces budget.ErrBudgetExceeded
// and the caller must stop cleanly. Transient failures are retried exactly
// once after the fixed backoff, with the retried result propagated on
// success.
type Dispatcher struct {
	client  places.Client
	ledger  Ledger
	limiter *rate.Limiter
	cfg     Config
}

// New creates a Dispatcher around the given client and ledger.
func New(client places.Client, ledger Ledger, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		client:  client,
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cfg:     cfg,
	}
}

// Search issues the first page of a text search.
func (d *Dispatcher) Search(ctx context.Context, req places.TextSearchRequest) (*places.TextSearchResponse, error) {
	req.PageToken = ""
	return dispatch(ctx, d, budget.QuerySearch, false, func(ctx context.Context) (*places.TextSearchResponse, error) {
		return d.client.TextSearch(ctx, req)
	})
}

// SearchNextPage issues a continuation page of a text search, waiting the
// pacing delay first so the token has become valid.
func (d *Dispatcher) SearchNextPage(ctx context.Context, req places.TextSearchRequest, token string) (*places.TextSearchResponse, error) {
	req.PageToken = token
	return dispatch(ctx, d, budget.QuerySearch, true, func(ctx context.Context) (*places.TextSearchResponse, error) {
		return d.client.TextSearch(ctx, req)
	})
}

// Details issues a place details lookup.
func (d *Dispatcher) Details(ctx context.Context, req places.DetailsRequest) (*places.DetailsResponse, error) {
	return dispatch(ctx, d, budget.QueryDetails, false, func(ctx context.Context) (*places.DetailsResponse, error) {
		return d.client.Details(ctx, req)
	})
}

// Photo resolves a photo reference to a media URL. A missing reference is a
// caller error, surfaced without retry.
func (d *Dispatcher) Photo(ctx context.Context, req places.PhotoRequest) (string, error) {
	return dispatch(ctx, d, budget.QueryPhoto, false, func(ctx context.Context) (string, error) {
		if req.PhotoReference == "" {
			return "", places.ErrMissingPhotoReference
		}
		return d.client.Photo(ctx, req)
	})
}

func dispatch[T any](ctx context.Context, d *Dispatcher, kind budget.QueryKind, paced bool, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if err := d.limiter.Wait(ctx); err != nil {
		return zero, eris.Wrap(err, "dispatch: rate limit wait")
	}

	if paced {
		timer := time.NewTimer(d.cfg.PageTokenDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, eris.Wrap(ctx.Err(), "dispatch: pacing wait")
		case <-timer.C:
		}
	}

	ok, err := d.ledger.TryCharge(ctx, kind)
	if err != nil {
		return zero, eris.Wrapf(err, "dispatch: charge %s", kind)
	}
	if !ok {
		return zero, eris.Wrapf(budget.ErrBudgetExceeded, "dispatch: %s denied", kind)
	}

	return resilience.DoVal(ctx, resilience.RetryConfig{
		Attempts: 2,
		Backoff:  d.cfg.RetryBackoff,
		OnRetry:  resilience.RetryLogger("places", string(kind)),
	}, call)
}
