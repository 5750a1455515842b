package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings-cli/internal/budget"
	"github.com/sells-group/listings-cli/internal/resilience"
	"github.com/sells-group/listings-cli/pkg/places"
	"github.com/sells-group/listings-cli/pkg/places/mocks"
)

type stubLedger struct {
	allow bool
	err   error
	kinds []budget.QueryKind
}

func (l *stubLedger) TryCharge(_ context.Context, kind budget.QueryKind) (bool, error) {
	l.kinds = append(l.kinds, kind)
	return l.allow, l.err
}

func newTestDispatcher(client places.Client, ledger Ledger) *Dispatcher {
	return New(client, ledger, Config{
		PageTokenDelay: time.Millisecond,
		RetryBackoff:   time.Millisecond,
		RateLimit:      10000,
	})
}

func TestDispatcher_Search_ChargesBeforeCalling(t *testing.T) {
	client := mocks.NewMockClient(t)
	ledger := &stubLedger{allow: true}
	d := newTestDispatcher(client, ledger)

	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(req places.TextSearchRequest) bool {
		return req.Query == "restaurantes" && req.PageToken == ""
	})).Return(&places.TextSearchResponse{Status: "OK"}, nil).Once()

	_, err := d.Search(context.Background(), places.TextSearchRequest{Query: "restaurantes"})
	require.NoError(t, err)
	assert.Equal(t, []budget.QueryKind{budget.QuerySearch}, ledger.kinds)
}

func TestDispatcher_Search_ClearsStalePageToken(t *testing.T) {
	client := mocks.NewMockClient(t)
	d := newTestDispatcher(client, &stubLedger{allow: true})

	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(req places.TextSearchRequest) bool {
		return req.PageToken == ""
	})).Return(&places.TextSearchResponse{}, nil).Once()

	_, err := d.Search(context.Background(), places.TextSearchRequest{
		Query:     "restaurantes",
		PageToken: "leftover-token",
	})
	require.NoError(t, err)
}

func TestDispatcher_SearchNextPage_SetsTokenAndChargesAsSearch(t *testing.T) {
	client := mocks.NewMockClient(t)
	ledger := &stubLedger{allow: true}
	d := newTestDispatcher(client, ledger)

	client.On("TextSearch", mock.Anything, mock.MatchedBy(func(req places.TextSearchRequest) bool {
		return req.PageToken == "tok-2"
	})).Return(&places.TextSearchResponse{}, nil).Once()

	_, err := d.SearchNextPage(context.Background(), places.TextSearchRequest{Query: "restaurantes"}, "tok-2")
	require.NoError(t, err)
	assert.Equal(t, []budget.QueryKind{budget.QuerySearch}, ledger.kinds)
}

func TestDispatcher_BudgetDenied_NoClientCall(t *testing.T) {
	client := mocks.NewMockClient(t)
	d := newTestDispatcher(client, &stubLedger{allow: false})

	_, err := d.Search(context.Background(), places.TextSearchRequest{Query: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	client.AssertNotCalled(t, "TextSearch", mock.Anything, mock.Anything)
}

func TestDispatcher_TransientFailureRetriedOnce_ResultPropagated(t *testing.T) {
	client := mocks.NewMockClient(t)
	ledger := &stubLedger{allow: true}
	d := newTestDispatcher(client, ledger)

	transient := resilience.NewTransient(assert.AnError, 503)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return((*places.TextSearchResponse)(nil), transient).Once()
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return(&places.TextSearchResponse{NextPageToken: "tok-2"}, nil).Once()

	resp, err := d.Search(context.Background(), places.TextSearchRequest{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, "tok-2", resp.NextPageToken)

	// Charged once for the dispatch, not once per attempt.
	assert.Len(t, ledger.kinds, 1)
}

func TestDispatcher_TransientFailureTwice_Fatal(t *testing.T) {
	client := mocks.NewMockClient(t)
	d := newTestDispatcher(client, &stubLedger{allow: true})

	transient := resilience.NewTransient(assert.AnError, 503)
	client.On("TextSearch", mock.Anything, mock.Anything).
		Return((*places.TextSearchResponse)(nil), transient).Twice()

	_, err := d.Search(context.Background(), places.TextSearchRequest{Query: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestDispatcher_PermanentFailure_NoRetry(t *testing.T) {
	client := mocks.NewMockClient(t)
	d := newTestDispatcher(client, &stubLedger{allow: true})

	client.On("Details", mock.Anything, mock.Anything).
		Return((*places.DetailsResponse)(nil), assert.AnError).Once()

	_, err := d.Details(context.Background(), places.DetailsRequest{PlaceID: "p1"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDispatcher_Details_ChargedAsDetails(t *testing.T) {
	client := mocks.NewMockClient(t)
	ledger := &stubLedger{allow: true}
	d := newTestDispatcher(client, ledger)

	client.On("Details", mock.Anything, mock.Anything).
		Return(&places.DetailsResponse{Status: "OK"}, nil).Once()

	_, err := d.Details(context.Background(), places.DetailsRequest{PlaceID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []budget.QueryKind{budget.QueryDetails}, ledger.kinds)
}

func TestDispatcher_Photo_MissingReferenceNotRetried(t *testing.T) {
	client := mocks.NewMockClient(t)
	ledger := &stubLedger{allow: true}
	d := newTestDispatcher(client, ledger)

	_, err := d.Photo(context.Background(), places.PhotoRequest{})
	assert.ErrorIs(t, err, places.ErrMissingPhotoReference)
	client.AssertNotCalled(t, "Photo", mock.Anything, mock.Anything)

	// The charge happens before the reference check, matching the billing
	// order of the underlying API.
	assert.Equal(t, []budget.QueryKind{budget.QueryPhoto}, ledger.kinds)
}

func TestDispatcher_LedgerError_Surfaced(t *testing.T) {
	client := mocks.NewMockClient(t)
	d := newTestDispatcher(client, &stubLedger{err: assert.AnError})

	_, err := d.Search(context.Background(), places.TextSearchRequest{Query: "x"})
	assert.ErrorIs(t, err, assert.AnError)
}
