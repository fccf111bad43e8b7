package receivables

import (
	"context"
	"log/slog"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// SweepOverdue runs the two-phase status sweep. Phase one flips OPEN
// entries past their due date to OVERDUE; phase two settles entries
// whose installments are all paid. Each entry is handled in its own
// transaction so one conflict never aborts the whole run. The sweep is
// idempotent: a second pass over the same data changes nothing.
func (s *Service) SweepOverdue(ctx context.Context, logger *slog.Logger) (SweepSummary, error) {
	var summary SweepSummary
	now := time.Now()

	overdue, err := s.repo.ListOverdueCandidates(ctx, now)
	if err != nil {
		return summary, err
	}
	for _, candidate := range overdue {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			entry, err := tx.GetEntryForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if entry.Status != money.StatusOpen {
				return nil
			}
			next := money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, now)
			if next != money.StatusOverdue {
				return nil
			}
			entry.Status = next
			if err := tx.UpdateEntry(ctx, entry); err != nil {
				return err
			}
			summary.MarkedOverdue++
			return nil
		})
		if err != nil {
			logger.Error("sweep: mark overdue failed",
				slog.Int64("receivable_id", candidate.ID), slog.Any("error", err))
			summary.Errors++
		}
	}

	settle, err := s.repo.ListSettleCandidates(ctx)
	if err != nil {
		return summary, err
	}
	for _, candidate := range settle {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			entry, err := tx.GetEntryForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if entry.Status == money.StatusPaid || entry.Status == money.StatusCancelled {
				return nil
			}
			installments, err := tx.ListInstallments(ctx, entry.ID)
			if err != nil {
				return err
			}
			if len(installments) == 0 {
				return nil
			}
			for _, inst := range installments {
				if inst.Status != money.StatusPaid {
					return nil
				}
			}
			entry.Status = money.StatusPaid
			entry.AmountRemaining = money.Remaining(entry.Amount, entry.AmountPaid)
			if entry.PaidAt == nil {
				entry.PaidAt = &now
			}
			if err := tx.UpdateEntry(ctx, entry); err != nil {
				return err
			}
			summary.MarkedPaid++
			return nil
		})
		if err != nil {
			logger.Error("sweep: settle failed",
				slog.Int64("receivable_id", candidate.ID), slog.Any("error", err))
			summary.Errors++
		}
	}

	return summary, nil
}
