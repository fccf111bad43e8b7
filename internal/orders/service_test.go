package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/receivables"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryOrderRepo struct {
	orders map[int64]SalesOrder
}

func (r *memoryOrderRepo) GetOrder(ctx context.Context, companyID, id int64) (SalesOrder, error) {
	o, ok := r.orders[id]
	if !ok || o.CompanyID != companyID {
		return SalesOrder{}, shared.ErrNotFound
	}
	return o, nil
}

func (r *memoryOrderRepo) UpdateStatus(ctx context.Context, companyID, id int64, status Status) error {
	o, ok := r.orders[id]
	if !ok || o.CompanyID != companyID {
		return shared.ErrNotFound
	}
	o.Status = status
	r.orders[id] = o
	return nil
}

func (r *memoryOrderRepo) SetAccountsPosted(ctx context.Context, companyID, id int64, posted bool, actorID int64) error {
	o, ok := r.orders[id]
	if !ok || o.CompanyID != companyID {
		return shared.ErrNotFound
	}
	o.AccountsPosted = posted
	if posted {
		now := time.Now()
		o.PostedAt = &now
		o.PostedBy = &actorID
	} else {
		o.PostedAt = nil
		o.PostedBy = nil
	}
	r.orders[id] = o
	return nil
}

type stubBridge struct {
	created       int
	cancelled     int
	reopened      int
	createErr     error
	cancelErr     error
	returnsNil    bool
	reopenReturns []receivables.Receivable
}

func (b *stubBridge) CreateFromOrder(ctx context.Context, companyID, orderID, actorID int64) (*receivables.Receivable, error) {
	if b.createErr != nil {
		return nil, b.createErr
	}
	b.created++
	if b.returnsNil {
		return nil, nil
	}
	return &receivables.Receivable{ID: 1, CompanyID: companyID}, nil
}

func (b *stubBridge) CancelByOrder(ctx context.Context, companyID, orderID int64, reason string, actorID int64) ([]receivables.Receivable, error) {
	if b.cancelErr != nil {
		return nil, b.cancelErr
	}
	b.cancelled++
	return []receivables.Receivable{{ID: 1}}, nil
}

func (b *stubBridge) ReopenByOrder(ctx context.Context, companyID, orderID int64) ([]receivables.Receivable, error) {
	b.reopened++
	return b.reopenReturns, nil
}

func newOrderFixture(status Status) (*Service, *memoryOrderRepo, *stubBridge) {
	repo := &memoryOrderRepo{orders: map[int64]SalesOrder{
		1: {ID: 1, CompanyID: 1, Number: "SO-1001", CustomerID: 7, Total: 90400, Status: status},
	}}
	bridge := &stubBridge{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, bridge, logger), repo, bridge
}

func TestTransitionToInvoicedPostsAccounts(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusConfirmed)

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, order.Status)
	require.Equal(t, 1, bridge.created)
	require.True(t, repo.orders[1].AccountsPosted)
}

func TestTransitionToCancelledReversesAccounts(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusInvoiced)
	o := repo.orders[1]
	o.AccountsPosted = true
	repo.orders[1] = o

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusCancelled, 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, order.Status)
	require.Equal(t, 1, bridge.cancelled)
	require.False(t, repo.orders[1].AccountsPosted)
}

func TestTransitionBackToQuoteReversesAccounts(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusInvoiced)
	o := repo.orders[1]
	o.AccountsPosted = true
	repo.orders[1] = o

	_, err := svc.TransitionStatus(context.Background(), 1, 1, StatusQuote, 1)
	require.NoError(t, err)
	require.Equal(t, 1, bridge.cancelled)
	require.False(t, repo.orders[1].AccountsPosted)
}

func TestTransitionSurvivesBridgeFailure(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusConfirmed)
	bridge.createErr = errors.New("ledger unavailable")

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, order.Status)
	require.False(t, repo.orders[1].AccountsPosted)
}

func TestTransitionCashOrderSkipsPostedFlag(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusConfirmed)
	bridge.returnsNil = true

	_, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 1)
	require.NoError(t, err)
	require.False(t, repo.orders[1].AccountsPosted)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newOrderFixture(StatusConfirmed)

	_, err := svc.TransitionStatus(context.Background(), 1, 1, Status("SHIPPED"), 1)
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransitionSameStatusIsNoOp(t *testing.T) {
	svc, _, bridge := newOrderFixture(StatusInvoiced)

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, order.Status)
	require.Zero(t, bridge.created)
}

func TestPostAccountsRetriesAfterFailure(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusInvoiced)

	order, err := svc.PostAccounts(context.Background(), 1, 1, 1)
	require.NoError(t, err)
	require.True(t, order.AccountsPosted)
	require.True(t, repo.orders[1].AccountsPosted)
	require.Equal(t, 1, bridge.created)
}

func TestReinvoiceReopensCancelledEntry(t *testing.T) {
	svc, repo, bridge := newOrderFixture(StatusCancelled)
	bridge.reopenReturns = []receivables.Receivable{{ID: 9, CompanyID: 1}}

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInvoiced, order.Status)
	require.Equal(t, 1, bridge.reopened)
	require.Zero(t, bridge.created, "re-invoicing must not mint a second ledger entry")
	require.True(t, repo.orders[1].AccountsPosted)
}

func TestPostingRecordsActorAndTimestamp(t *testing.T) {
	svc, repo, _ := newOrderFixture(StatusConfirmed)

	order, err := svc.TransitionStatus(context.Background(), 1, 1, StatusInvoiced, 42)
	require.NoError(t, err)
	require.NotNil(t, order.PostedAt)
	require.NotNil(t, order.PostedBy)
	require.Equal(t, int64(42), *order.PostedBy)
	require.Equal(t, int64(42), *repo.orders[1].PostedBy)

	_, err = svc.TransitionStatus(context.Background(), 1, 1, StatusCancelled, 42)
	require.NoError(t, err)
	require.Nil(t, repo.orders[1].PostedAt)
	require.Nil(t, repo.orders[1].PostedBy)
}

func TestReverseAccountsRequiresPostedOrder(t *testing.T) {
	svc, _, bridge := newOrderFixture(StatusInvoiced)

	_, err := svc.ReverseAccounts(context.Background(), 1, 1, 1)
	require.ErrorIs(t, err, ErrNotPosted)
	require.Zero(t, bridge.cancelled)
}
