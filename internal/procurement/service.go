package procurement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/payables"
)

var (
	// ErrUnknownStatus rejects transitions to statuses outside the lifecycle.
	ErrUnknownStatus = errors.New("unknown purchase order status")
	// ErrNotPosted rejects an explicit reversal of an order that never posted.
	ErrNotPosted = errors.New("order accounts not posted")
)

// PayableBridge is the slice of the payable service the purchase order
// lifecycle drives.
type PayableBridge interface {
	CreateFromPurchaseOrder(ctx context.Context, companyID, orderID, actorID int64) (*payables.Payable, error)
	CancelByOrder(ctx context.Context, companyID, orderID int64, reason string, actorID int64) ([]payables.Payable, error)
	ReopenByOrder(ctx context.Context, companyID, orderID int64) ([]payables.Payable, error)
}

// Service drives purchase order transitions and their payable side
// effects, mirroring the sales order bridge. Posting is best effort.
type Service struct {
	repo   Repository
	bridge PayableBridge
	logger *slog.Logger
}

func NewService(repo Repository, bridge PayableBridge, logger *slog.Logger) *Service {
	return &Service{repo: repo, bridge: bridge, logger: logger}
}

func (s *Service) Get(ctx context.Context, companyID, orderID int64) (PurchaseOrder, error) {
	return s.repo.GetOrder(ctx, companyID, orderID)
}

// TransitionStatus moves the order to the new status. Receiving goods
// posts the payable; cancelling or demoting back to draft reverses it.
func (s *Service) TransitionStatus(ctx context.Context, companyID, orderID int64, next Status, actorID int64) (PurchaseOrder, error) {
	if !ValidStatus(next) {
		return PurchaseOrder{}, ErrUnknownStatus
	}
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if order.Status == next {
		return order, nil
	}

	if err := s.repo.UpdateStatus(ctx, companyID, orderID, next); err != nil {
		return PurchaseOrder{}, err
	}
	order.Status = next

	switch next {
	case StatusReceived:
		s.postAccounts(ctx, &order, actorID)
	case StatusCancelled, StatusDraft:
		s.reverseAccounts(ctx, &order, actorID)
	}
	return order, nil
}

// PostAccounts creates or reopens the payable for a received order.
// Safe to call again after a failed attempt.
func (s *Service) PostAccounts(ctx context.Context, companyID, orderID, actorID int64) (PurchaseOrder, error) {
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	posted, err := s.postEntries(ctx, companyID, orderID, actorID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if posted && !order.AccountsPosted {
		if err := s.markPosted(ctx, &order, actorID); err != nil {
			return PurchaseOrder{}, err
		}
	}
	return order, nil
}

// ReverseAccounts cancels the order's payables and clears the posted flag.
func (s *Service) ReverseAccounts(ctx context.Context, companyID, orderID, actorID int64) (PurchaseOrder, error) {
	order, err := s.repo.GetOrder(ctx, companyID, orderID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if !order.AccountsPosted {
		return PurchaseOrder{}, ErrNotPosted
	}
	if _, err := s.bridge.CancelByOrder(ctx, companyID, orderID, "purchase order reverted", actorID); err != nil {
		return PurchaseOrder{}, err
	}
	if err := s.clearPosted(ctx, &order); err != nil {
		return PurchaseOrder{}, err
	}
	return order, nil
}

// postEntries reopens cancelled payables for the order before minting a
// new one, so a cancel/receive round trip never duplicates the ledger.
// Returns whether any entry is now live.
func (s *Service) postEntries(ctx context.Context, companyID, orderID, actorID int64) (bool, error) {
	reopened, err := s.bridge.ReopenByOrder(ctx, companyID, orderID)
	if err != nil {
		return false, err
	}
	if len(reopened) > 0 {
		return true, nil
	}
	entry, err := s.bridge.CreateFromPurchaseOrder(ctx, companyID, orderID, actorID)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

func (s *Service) markPosted(ctx context.Context, order *PurchaseOrder, actorID int64) error {
	if err := s.repo.SetAccountsPosted(ctx, order.CompanyID, order.ID, true, actorID); err != nil {
		return err
	}
	now := time.Now()
	order.AccountsPosted = true
	order.PostedAt = &now
	order.PostedBy = &actorID
	return nil
}

func (s *Service) clearPosted(ctx context.Context, order *PurchaseOrder) error {
	if err := s.repo.SetAccountsPosted(ctx, order.CompanyID, order.ID, false, 0); err != nil {
		return err
	}
	order.AccountsPosted = false
	order.PostedAt = nil
	order.PostedBy = nil
	return nil
}

func (s *Service) postAccounts(ctx context.Context, order *PurchaseOrder, actorID int64) {
	posted, err := s.postEntries(ctx, order.CompanyID, order.ID, actorID)
	if err != nil {
		s.logger.Error("post accounts for purchase order failed",
			slog.Int64("purchase_order_id", order.ID), slog.Any("error", err))
		return
	}
	if !posted {
		return
	}
	if err := s.markPosted(ctx, order, actorID); err != nil {
		s.logger.Error("mark purchase order posted failed",
			slog.Int64("purchase_order_id", order.ID), slog.Any("error", err))
	}
}

func (s *Service) reverseAccounts(ctx context.Context, order *PurchaseOrder, actorID int64) {
	if _, err := s.bridge.CancelByOrder(ctx, order.CompanyID, order.ID, "purchase order reverted", actorID); err != nil {
		s.logger.Error("reverse accounts for purchase order failed",
			slog.Int64("purchase_order_id", order.ID), slog.Any("error", err))
		return
	}
	if !order.AccountsPosted {
		return
	}
	if err := s.clearPosted(ctx, order); err != nil {
		s.logger.Error("clear purchase order posted failed",
			slog.Int64("purchase_order_id", order.ID), slog.Any("error", err))
	}
}
