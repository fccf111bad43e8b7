package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/receivables"
)

var (
	// ErrUnknownStatus rejects transitions to statuses outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown order status")
	// ErrNotPosted rejects a reversal of an order that was never posted.
	ErrNotPosted = errors.New("order accounts not posted")
)

// ReceivableBridge is the slice of the receivable service the order
// lifecycle drives.
type ReceivableBridge interface {
	CreateFromOrder(ctx context.Context, companyID, orderID, actorID int64) (*receivables.Receivable, error)
	CancelByOrder(ctx context.Context, companyID, orderID int64, reason string, actorID int64) ([]receivables.Receivable, error)
	ReopenByOrder(ctx context.Context, companyID, orderID int64) ([]receivables.Receivable, error)
}

// Service drives order status transitions and their financial side
// effects. Posting is best effort: an order transition never fails
// because the ledger write did, it is logged and left for a re-post.
type Service struct {
	repo   Repository
	bridge ReceivableBridge
	logger *slog.Logger
}

func NewService(repo Repository, bridge ReceivableBridge, logger *slog.Logger) *Service {
	return &Service{repo: repo, bridge: bridge, logger: logger}
}

func (s *Service) Get(ctx context.Context, companyID, orderID int64) (SalesOrder, error) {
	return s.repo.GetOrder(ctx, companyID, orderID)
}

// TransitionStatus moves the order to the new status and synchronizes
// the receivable side: invoicing posts accounts, cancelling or demoting
// back to quote reverses them.
func (s *Service) TransitionStatus(ctx context.Context, companyID, orderID int64, next Status, actorID int64) (SalesOrder, error) {
	if !ValidStatus(next) {
		return SalesOrder{}, ErrUnknownStatus
	}
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if order.Status == next {
		return order, nil
	}

	if err := s.repo.UpdateStatus(ctx, companyID, orderID, next); err != nil {
		return SalesOrder{}, err
	}
	order.Status = next

	switch next {
	case StatusInvoiced:
		s.postAccounts(ctx, &order, actorID)
	case StatusCancelled, StatusQuote:
		s.reverseAccounts(ctx, &order, actorID)
	}
	return order, nil
}

// PostAccounts posts the receivable side for an invoiced order: a
// cancelled entry left by an earlier reversal is reopened, otherwise a
// fresh entry is created. Safe to call again after a failed attempt.
func (s *Service) PostAccounts(ctx context.Context, companyID, orderID, actorID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	posted, err := s.postEntries(ctx, companyID, orderID, actorID)
	if err != nil {
		return SalesOrder{}, err
	}
	if posted && !order.AccountsPosted {
		if err := s.markPosted(ctx, &order, actorID); err != nil {
			return SalesOrder{}, err
		}
	}
	return order, nil
}

// ReverseAccounts cancels the order's receivables and clears the posted
// flag. The order must have been posted.
func (s *Service) ReverseAccounts(ctx context.Context, companyID, orderID, actorID int64) (SalesOrder, error) {
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return SalesOrder{}, err
	}
	if !order.AccountsPosted {
		return SalesOrder{}, ErrNotPosted
	}
	if _, err := s.bridge.CancelByOrder(ctx, companyID, orderID, "order reverted", actorID); err != nil {
		return SalesOrder{}, err
	}
	if err := s.clearPosted(ctx, &order); err != nil {
		return SalesOrder{}, err
	}
	return order, nil
}

// postEntries brings the ledger in line with an invoiced order. Entries
// cancelled by an earlier reversal are reopened rather than duplicated;
// only when none exist is a new entry created. Reports whether a ledger
// entry now backs the order.
func (s *Service) postEntries(ctx context.Context, companyID, orderID, actorID int64) (bool, error) {
	reopened, err := s.bridge.ReopenByOrder(ctx, companyID, orderID)
	if err != nil {
		return false, err
	}
	if len(reopened) > 0 {
		return true, nil
	}
	entry, err := s.bridge.CreateFromOrder(ctx, companyID, orderID, actorID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (s *Service) markPosted(ctx context.Context, order *SalesOrder, actorID int64) error {
	if err := s.repo.SetAccountsPosted(ctx, order.CompanyID, order.ID, true, actorID); err != nil {
		return err
	}
	now := time.Now()
	order.AccountsPosted = true
	order.PostedAt = &now
	order.PostedBy = &actorID
	return nil
}

func (s *Service) clearPosted(ctx context.Context, order *SalesOrder) error {
	if err := s.repo.SetAccountsPosted(ctx, order.CompanyID, order.ID, false, 0); err != nil {
		return err
	}
	order.AccountsPosted = false
	order.PostedAt = nil
	order.PostedBy = nil
	return nil
}

func (s *Service) postAccounts(ctx context.Context, order *SalesOrder, actorID int64) {
	posted, err := s.postEntries(ctx, order.CompanyID, order.ID, actorID)
	if err != nil {
		s.logger.Error("post accounts for order failed",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
		return
	}
	if !posted {
		return
	}
	if err := s.markPosted(ctx, order, actorID); err != nil {
		s.logger.Error("mark order posted failed",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}

func (s *Service) reverseAccounts(ctx context.Context, order *SalesOrder, actorID int64) {
	if _, err := s.bridge.CancelByOrder(ctx, order.CompanyID, order.ID, "order reverted", actorID); err != nil {
		s.logger.Error("reverse accounts for order failed",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
		return
	}
	if !order.AccountsPosted {
		return
	}
	if err := s.clearPosted(ctx, order); err != nil {
		s.logger.Error("clear order posted failed",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}
