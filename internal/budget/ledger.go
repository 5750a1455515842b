// Package budget gates external API calls on a configured monthly spend cap.
package budget

import (
	"context"
	"errors"
	"sync"
	"time"
)

// QueryKind identifies the billing class of an API call.
type QueryKind string

// Billing classes. Unrecognized kinds are charged at the default unit cost.
const (
	QuerySearch  QueryKind = "text_search"
	QueryDetails QueryKind = "place_details"
	QueryPhoto   QueryKind = "place_photo"
)

// ErrBudgetExceeded signals that the monthly API cost limit would be passed.
// It is fatal: no further calls may be dispatched for the rest of the run.
var ErrBudgetExceeded = errors.New("budget: monthly API cost limit reached")

// Store is the persistence surface the ledger needs. ChargeCost must perform
// the check-then-commit atomically: read the month's accumulated cost, deny
// without mutation if cost+unit would exceed cap, otherwise commit the new
// total and incremented query count.
type Store interface {
	ChargeCost(ctx context.Context, year, month int, cost, cap float64) (bool, error)
}

// Costs holds the monthly cap and per-kind unit costs.
// Update the unit costs whenever the provider's price sheet changes.
type Costs struct {
	MonthlyCap float64
	Search     float64
	Details    float64
	Photo      float64
	Default    float64
}

// Ledger approves or denies prospective API calls against the monthly cap.
// Charge attempts are serialized so concurrent approvals cannot race past
// the cap.
type Ledger struct {
	store Store
	costs Costs

	mu  sync.Mutex
	now func() time.Time
}

// NewLedger creates a Ledger backed by the given store.
func NewLedger(store Store, costs Costs) *Ledger {
	return &Ledger{
		store: store,
		costs: costs,
		now:   time.Now,
	}
}

// UnitCost returns the configured cost for one call of the given kind.
func (l *Ledger) UnitCost(kind QueryKind) float64 {
	switch kind {
	case QuerySearch:
		return l.costs.Search
	case QueryDetails:
		return l.costs.Details
	case QueryPhoto:
		return l.costs.Photo
	default:
		return l.costs.Default
	}
}

// TryCharge attempts to register the cost of one call of the given kind
// against the current month. It returns false, leaving the stored totals
// untouched, when the prospective total would exceed the monthly cap.
func (l *Ledger) TryCharge(ctx context.Context, kind QueryKind) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.now().UTC()
	return l.store.ChargeCost(ctx, today.Year(), int(today.Month()), l.UnitCost(kind), l.costs.MonthlyCap)
}
