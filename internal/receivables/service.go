package receivables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/terms"
)

var (
	ErrInstallmentNotFound = errors.New("installment does not belong to receivable")
	ErrEntryCancelled      = errors.New("receivable is cancelled")
	ErrEntryNotCancelled   = errors.New("receivable is not cancelled")
	ErrHasPayments         = errors.New("receivable has payments")
	ErrInstallmentPaid     = errors.New("installment has payments")
	ErrReversalTooLarge    = errors.New("reversal amount exceeds payment amount")
	ErrNoPaymentTerm       = errors.New("payment term not configured for term-based payment type")
)

// Service is the receivable lifecycle manager.
type Service struct {
	repo  Repository
	terms *terms.Service
}

// NewService builds a Service instance.
func NewService(repo Repository, termsService *terms.Service) *Service {
	return &Service{repo: repo, terms: termsService}
}

// CreateFromOrder creates the receivable for an invoiced sales order,
// splitting the order total into installments from its payment term.
// It returns (nil, nil) when the order has no payment type, the payment
// type cannot be found, or the type settles in cash: a cash sale is not
// supposed to produce a receivable.
//
// Calling it again for the same order never creates a duplicate. If a
// non-cancelled entry already exists it is returned as-is, except that
// an unpaid entry whose installments no longer match the template gets
// its schedule regenerated in place.
func (s *Service) CreateFromOrder(ctx context.Context, companyID, orderID, actorID int64) (*Receivable, error) {
	order, err := s.repo.GetOrderInfo(ctx, companyID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}
	if order.PaymentTypeID == nil {
		return nil, nil
	}

	paymentType, err := s.terms.GetPaymentType(ctx, companyID, *order.PaymentTypeID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if paymentType.TermType == terms.TermTypeCash {
		return nil, nil
	}

	termID := order.PaymentTermID
	if termID == nil {
		termID = paymentType.PaymentTermID
	}
	if termID == nil {
		return nil, ErrNoPaymentTerm
	}
	term, err := s.terms.Get(ctx, companyID, *termID)
	if err != nil {
		return nil, fmt.Errorf("load payment term %d: %w", *termID, err)
	}

	now := time.Now()
	var result Receivable
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, entry := range existing {
			if entry.Status == money.StatusCancelled {
				continue
			}
			reconciled, err := s.reconcileExisting(ctx, tx, entry, term, now)
			if err != nil {
				return err
			}
			result = reconciled
			return nil
		}

		number, err := tx.NextDocumentNumber(ctx, companyID)
		if err != nil {
			return err
		}
		dueDates := money.DueDates(now, term.FirstPaymentDays, term.IntervalDays, term.InstallmentCount)
		entry, err := tx.CreateEntry(ctx, Receivable{
			CompanyID:       companyID,
			Number:          number,
			CustomerID:      order.CustomerID,
			OrderID:         &order.ID,
			PaymentTermID:   &term.ID,
			Amount:          order.Total,
			AmountRemaining: order.Total,
			Status:          money.StatusOpen,
			IssueDate:       now,
			DueDate:         dueDates[0],
		})
		if err != nil {
			return err
		}
		if err := s.generateInstallments(ctx, tx, entry.ID, entry.Amount, dueDates); err != nil {
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// reconcileExisting regenerates an existing entry's installments when it
// has no payments and the schedule diverges from the current template.
func (s *Service) reconcileExisting(ctx context.Context, tx TxRepository, entry Receivable, term terms.PaymentTerm, now time.Time) (Receivable, error) {
	paymentCount, err := tx.CountPayments(ctx, entry.ID)
	if err != nil {
		return Receivable{}, err
	}
	if paymentCount > 0 {
		return entry, nil
	}

	installments, err := tx.ListInstallments(ctx, entry.ID)
	if err != nil {
		return Receivable{}, err
	}
	var sum int64
	for _, inst := range installments {
		sum += inst.Amount
	}
	if len(installments) == term.InstallmentCount && sum == entry.Amount {
		return entry, nil
	}

	if err := tx.DeleteInstallments(ctx, entry.ID); err != nil {
		return Receivable{}, err
	}
	dueDates := money.DueDates(entry.IssueDate, term.FirstPaymentDays, term.IntervalDays, term.InstallmentCount)
	if err := s.generateInstallments(ctx, tx, entry.ID, entry.Amount, dueDates); err != nil {
		return Receivable{}, err
	}
	entry.PaymentTermID = &term.ID
	entry.DueDate = dueDates[0]
	entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, now)
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Receivable{}, err
	}
	return entry, nil
}

func (s *Service) generateInstallments(ctx context.Context, tx TxRepository, entryID, total int64, dueDates []time.Time) error {
	parts, err := money.Split(total, len(dueDates))
	if err != nil {
		return err
	}
	batch := make([]Installment, len(parts))
	for i, part := range parts {
		batch[i] = Installment{
			ReceivableID:    entryID,
			Number:          i + 1,
			Amount:          part,
			AmountRemaining: part,
			DueDate:         dueDates[i],
			Status:          money.StatusOpen,
			Source:          InstallmentPersisted,
		}
	}
	_, err = tx.CreateInstallments(ctx, entryID, batch)
	return err
}

// CreateManual creates an entry not tied to an order. The schedule comes
// either from a named payment term or from an ad hoc count/interval, and
// the first due date is caller-supplied.
func (s *Service) CreateManual(ctx context.Context, companyID int64, req CreateManualRequest) (Receivable, error) {
	count := req.InstallmentCount
	intervalDays := req.IntervalDays
	var termID *int64
	if req.PaymentTermID != nil {
		term, err := s.terms.Get(ctx, companyID, *req.PaymentTermID)
		if err != nil {
			return Receivable{}, fmt.Errorf("load payment term %d: %w", *req.PaymentTermID, err)
		}
		count = term.InstallmentCount
		intervalDays = term.IntervalDays
		termID = &term.ID
	}
	if count < 1 {
		count = 1
	}

	issue := time.Now()
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	dueDates := make([]time.Time, count)
	for i := range dueDates {
		dueDates[i] = req.FirstDueDate.AddDate(0, 0, i*intervalDays)
	}

	var result Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, companyID)
		if err != nil {
			return err
		}
		entry, err := tx.CreateEntry(ctx, Receivable{
			CompanyID:       companyID,
			Number:          number,
			CustomerID:      req.CustomerID,
			PaymentTermID:   termID,
			Amount:          req.Amount,
			AmountRemaining: req.Amount,
			Status:          money.StatusOpen,
			IssueDate:       issue,
			DueDate:         dueDates[0],
			Notes:           req.Notes,
		})
		if err != nil {
			return err
		}
		if err := s.generateInstallments(ctx, tx, entry.ID, entry.Amount, dueDates); err != nil {
			return err
		}
		result = entry
		return nil
	})
	if err != nil {
		return Receivable{}, err
	}
	return result, nil
}

// GetWithDetails returns an entry with installments and payments, or
// shared.ErrNotFound. Company mismatch yields the same not-found so
// tenants cannot probe each other's records.
func (s *Service) GetWithDetails(ctx context.Context, companyID, id int64) (ReceivableWithDetails, error) {
	return s.repo.GetReceivableWithDetails(ctx, companyID, id)
}

// List returns entries newest first with optional filters.
func (s *Service) List(ctx context.Context, req ListReceivablesRequest) ([]Receivable, error) {
	return s.repo.ListReceivables(ctx, req)
}

// ListInstallments returns the enriched, flattened installment listing.
// Entries without installment rows (legacy data) contribute one
// synthesized row mirroring the entry so they are never dropped.
func (s *Service) ListInstallments(ctx context.Context, req ListInstallmentsRequest) ([]InstallmentRow, error) {
	entries, err := s.repo.ListEntriesWithInstallments(ctx, ListInstallmentsRequest{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		return nil, err
	}

	today := time.Now()
	var rows []InstallmentRow
	for _, e := range entries {
		if len(e.Installments) == 0 {
			rows = append(rows, enrichRow(e, synthesizeInstallment(e.Entry)))
			continue
		}
		for _, inst := range e.Installments {
			rows = append(rows, enrichRow(e, inst))
		}
	}

	filtered := rows[:0]
	for _, row := range rows {
		if req.Status != "" && row.Status != req.Status {
			continue
		}
		if req.IsOverdue && !(row.Status != money.StatusPaid && row.DueDate.Before(today)) {
			continue
		}
		if !req.DueFrom.IsZero() && row.DueDate.Before(req.DueFrom) {
			continue
		}
		if !req.DueTo.IsZero() && row.DueDate.After(req.DueTo) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered, nil
}

func enrichRow(e EntryInstallments, inst Installment) InstallmentRow {
	return InstallmentRow{
		Installment:     inst,
		DisplayNumber:   fmt.Sprintf("%s/%03d", displayBase(e), inst.Number),
		ReceivableNum:   e.Entry.Number,
		CustomerID:      e.Entry.CustomerID,
		CustomerName:    e.CustomerName,
		OrderID:         e.Entry.OrderID,
		OrderNumber:     e.OrderNumber,
		SalespersonID:   e.SalespersonID,
		SalespersonName: e.SalespersonName,
	}
}

func displayBase(e EntryInstallments) string {
	if e.OrderNumber != "" {
		return e.OrderNumber
	}
	return e.Entry.Number
}

// synthesizeInstallment mirrors a legacy entry as one virtual
// installment. The row is tagged so callers cannot mutate it as if it
// were persisted.
func synthesizeInstallment(entry Receivable) Installment {
	return Installment{
		ReceivableID:    entry.ID,
		Number:          1,
		Amount:          entry.Amount,
		AmountPaid:      entry.AmountPaid,
		AmountRemaining: entry.AmountRemaining,
		DueDate:         entry.DueDate,
		Status:          installmentStatus(entry),
		PaidAt:          entry.PaidAt,
		Source:          InstallmentSynthesized,
		CreatedAt:       entry.CreatedAt,
		UpdatedAt:       entry.UpdatedAt,
	}
}

// installmentStatus projects an entry status onto the installment enum,
// which has no OVERDUE or CANCELLED member.
func installmentStatus(entry Receivable) money.Status {
	switch entry.Status {
	case money.StatusPaid:
		return money.StatusPaid
	case money.StatusPartial:
		return money.StatusPartial
	default:
		return money.StatusOpen
	}
}

// RecordPayment posts a payment against an entry, updating the targeted
// installment and the entry balance in one transaction. OriginalAmount,
// when present, is the gross amount reducing the balance.
func (s *Service) RecordPayment(ctx context.Context, companyID, entryID int64, req RecordPaymentRequest) (Payment, error) {
	deduct := req.Amount
	if req.OriginalAmount != nil {
		deduct = *req.OriginalAmount
	}

	now := time.Now()
	reference := req.Reference
	if reference == "" {
		reference = uuid.NewString()
	}

	var created Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}
		if entry.Status == money.StatusCancelled {
			return ErrEntryCancelled
		}

		payment := Payment{
			CompanyID:      companyID,
			ReceivableID:   entryID,
			InstallmentID:  req.InstallmentID,
			Amount:         req.Amount,
			OriginalAmount: req.OriginalAmount,
			Interest:       req.Interest,
			Discount:       req.Discount,
			Fine:           req.Fine,
			Fee:            req.Fee,
			Method:         req.Method,
			PaymentDate:    req.PaymentDate,
			ReceivedAt:     now,
			ReceivedBy:     req.ReceivedBy,
			Reference:      reference,
			Notes:          req.Notes,
		}
		created, err = tx.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}

		if req.InstallmentID != nil {
			inst, err := tx.GetInstallmentForUpdate(ctx, *req.InstallmentID)
			if err != nil {
				return err
			}
			if inst.ReceivableID != entryID {
				return ErrInstallmentNotFound
			}
			inst.AmountPaid += deduct
			inst.AmountRemaining = money.Remaining(inst.Amount, inst.AmountPaid)
			inst.Status = money.DeriveStatus(inst.Amount, inst.AmountPaid, inst.DueDate, false, now)
			if inst.Status == money.StatusPaid {
				inst.PaidAt = &now
			}
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}

		entry.AmountPaid += deduct
		entry.AmountRemaining = money.Remaining(entry.Amount, entry.AmountPaid)
		entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, now)
		if entry.Status == money.StatusPaid {
			entry.PaidAt = &now
		}
		return tx.UpdateEntry(ctx, entry)
	})
	if err != nil {
		return Payment{}, err
	}
	return created, nil
}

// Cancel marks an entry cancelled with reason and actor. Installments
// and payments are left untouched to preserve history.
func (s *Service) Cancel(ctx context.Context, companyID, entryID int64, reason string, actorID int64) (Receivable, error) {
	var result Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}
		result, err = s.cancelEntry(ctx, tx, entry, reason, actorID)
		return err
	})
	if err != nil {
		return Receivable{}, err
	}
	return result, nil
}

func (s *Service) cancelEntry(ctx context.Context, tx TxRepository, entry Receivable, reason string, actorID int64) (Receivable, error) {
	now := time.Now()
	entry.Status = money.StatusCancelled
	entry.CancelReason = &reason
	entry.CancelledAt = &now
	entry.CancelledBy = &actorID
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Receivable{}, err
	}
	return entry, nil
}

// CancelByOrder cancels every non-cancelled entry linked to the order.
// Payments are reversed in full before each entry is cancelled so no
// CANCELLED entry carries a paid-down balance.
func (s *Service) CancelByOrder(ctx context.Context, companyID, orderID int64, reason string, actorID int64) ([]Receivable, error) {
	var cancelled []Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := tx.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Status == money.StatusCancelled {
				continue
			}
			if companyID != 0 && entry.CompanyID != companyID {
				continue
			}
			payments, err := tx.ListPayments(ctx, entry.ID)
			if err != nil {
				return err
			}
			for _, p := range payments {
				if _, err := s.reverseInTx(ctx, tx, p, nil); err != nil {
					return err
				}
			}
			// Re-read: reversals changed the balances.
			entry, err = tx.GetEntryForUpdate(ctx, entry.ID)
			if err != nil {
				return err
			}
			done, err := s.cancelEntry(ctx, tx, entry, reason, actorID)
			if err != nil {
				return err
			}
			cancelled = append(cancelled, done)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Reopen clears cancellation metadata. The status is re-derived from the
// amounts rather than reset to OPEN, so a previously part-paid entry
// reopens as PARTIAL.
func (s *Service) Reopen(ctx context.Context, companyID, entryID int64) (Receivable, error) {
	var result Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}
		result, err = s.reopenEntry(ctx, tx, entry)
		return err
	})
	if err != nil {
		return Receivable{}, err
	}
	return result, nil
}

func (s *Service) reopenEntry(ctx context.Context, tx TxRepository, entry Receivable) (Receivable, error) {
	if entry.Status != money.StatusCancelled {
		return Receivable{}, ErrEntryNotCancelled
	}
	entry.CancelReason = nil
	entry.CancelledAt = nil
	entry.CancelledBy = nil
	entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, time.Now())
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Receivable{}, err
	}
	return entry, nil
}

// ReopenByOrder reopens every cancelled entry linked to the order.
func (s *Service) ReopenByOrder(ctx context.Context, companyID, orderID int64) ([]Receivable, error) {
	var reopened []Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entries, err := tx.ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Status != money.StatusCancelled {
				continue
			}
			if companyID != 0 && entry.CompanyID != companyID {
				continue
			}
			done, err := s.reopenEntry(ctx, tx, entry)
			if err != nil {
				return err
			}
			reopened = append(reopened, done)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reopened, nil
}

// RecreateInstallments replaces an entry's schedule with one generated
// from the given term against the entry's existing amount. It hard-fails
// when any payment exists: paid history is never regenerated away.
func (s *Service) RecreateInstallments(ctx context.Context, companyID, entryID, termID int64) (RecreateResult, error) {
	term, err := s.terms.Get(ctx, companyID, termID)
	if err != nil {
		return RecreateResult{}, fmt.Errorf("load payment term %d: %w", termID, err)
	}

	var result RecreateResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}
		paymentCount, err := tx.CountPayments(ctx, entryID)
		if err != nil {
			return err
		}
		if paymentCount > 0 {
			return ErrHasPayments
		}

		if err := tx.DeleteInstallments(ctx, entryID); err != nil {
			return err
		}
		dueDates := money.DueDates(entry.IssueDate, term.FirstPaymentDays, term.IntervalDays, term.InstallmentCount)
		if err := s.generateInstallments(ctx, tx, entryID, entry.Amount, dueDates); err != nil {
			return err
		}
		entry.PaymentTermID = &term.ID
		entry.DueDate = dueDates[0]
		entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, time.Now())
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		result = RecreateResult{
			InstallmentCount: term.InstallmentCount,
			Total:            entry.Amount,
			FirstDueDate:     dueDates[0],
		}
		return nil
	})
	if err != nil {
		return RecreateResult{}, err
	}
	return result, nil
}

// DeleteInstallment removes an unpaid installment. Deleting the last
// remaining one deletes the parent entry and clears the source order's
// posted flag; otherwise the entry shrinks by the installment amount so
// the sum invariant holds by construction.
func (s *Service) DeleteInstallment(ctx context.Context, companyID, installmentID int64) (DeleteInstallmentResult, error) {
	var result DeleteInstallmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, inst.ReceivableID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}
		instPayments, err := tx.CountInstallmentPayments(ctx, installmentID)
		if err != nil {
			return err
		}
		if instPayments > 0 || inst.AmountPaid > 0 {
			return ErrInstallmentPaid
		}

		siblings, err := tx.ListInstallments(ctx, entry.ID)
		if err != nil {
			return err
		}
		if len(siblings) <= 1 {
			entryPayments, err := tx.CountPayments(ctx, entry.ID)
			if err != nil {
				return err
			}
			if entryPayments > 0 {
				return ErrHasPayments
			}
			if err := tx.DeleteInstallment(ctx, installmentID); err != nil {
				return err
			}
			if err := tx.DeleteEntry(ctx, entry.ID); err != nil {
				return err
			}
			if entry.OrderID != nil {
				if err := tx.ClearOrderPosted(ctx, *entry.OrderID); err != nil {
					return err
				}
			}
			result = DeleteInstallmentResult{Deleted: true, EntryDeleted: true}
			return nil
		}

		if err := tx.DeleteInstallment(ctx, installmentID); err != nil {
			return err
		}
		entry.Amount -= inst.Amount
		entry.AmountRemaining = money.Remaining(entry.Amount, entry.AmountPaid)
		entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, time.Now())
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		result = DeleteInstallmentResult{Deleted: true}
		return nil
	})
	if err != nil {
		return DeleteInstallmentResult{}, err
	}
	return result, nil
}

// UpdateInstallment adjusts one installment's amount, due date or notes,
// propagating the amount delta to the parent entry. Divergence from the
// linked order's total is reported, not blocked.
func (s *Service) UpdateInstallment(ctx context.Context, companyID, installmentID int64, req UpdateInstallmentRequest) (UpdateInstallmentResult, error) {
	var updated Installment
	var entrySnapshot Receivable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, inst.ReceivableID)
		if err != nil {
			return err
		}
		if entry.CompanyID != companyID {
			return shared.ErrNotFound
		}

		now := time.Now()
		if req.Amount != nil {
			delta := *req.Amount - inst.Amount
			inst.Amount = *req.Amount
			inst.AmountRemaining = money.Remaining(inst.Amount, inst.AmountPaid)
			entry.Amount += delta
			entry.AmountRemaining = money.Remaining(entry.Amount, entry.AmountPaid)
		}
		if req.DueDate != nil {
			inst.DueDate = *req.DueDate
		}
		if req.Notes != nil {
			inst.Notes = req.Notes
		}
		inst.Status = money.DeriveStatus(inst.Amount, inst.AmountPaid, inst.DueDate, false, now)
		entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, entry.Status == money.StatusCancelled, now)

		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, entry); err != nil {
			return err
		}
		updated = inst
		entrySnapshot = entry
		return nil
	})
	if err != nil {
		return UpdateInstallmentResult{}, err
	}

	result := UpdateInstallmentResult{Updated: updated}
	if entrySnapshot.OrderID != nil {
		order, err := s.repo.GetOrderInfo(ctx, companyID, *entrySnapshot.OrderID)
		if err == nil && order.Total != entrySnapshot.Amount {
			result.DiffersFromOrder = true
			result.OriginalOrder = &OriginalOrderInfo{
				OrderID:     order.ID,
				OrderNumber: order.Number,
				Total:       order.Total,
			}
		}
	}
	return result, nil
}

// ReversePayment undoes a payment in full or in part, restoring the
// installment and entry balances. Full reversal deletes the payment row;
// partial reversal shrinks its amount.
func (s *Service) ReversePayment(ctx context.Context, companyID, paymentID int64, amount *int64) (ReversePaymentResult, error) {
	var result ReversePaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.CompanyID != companyID {
			return shared.ErrNotFound
		}
		result, err = s.reverseInTx(ctx, tx, payment, amount)
		return err
	})
	if err != nil {
		return ReversePaymentResult{}, err
	}
	return result, nil
}

// reverseInTx applies a reversal inside an open transaction. A nil or
// full amount deletes the payment and restores the gross deducted value;
// a partial amount shrinks the payment in place.
func (s *Service) reverseInTx(ctx context.Context, tx TxRepository, payment Payment, amount *int64) (ReversePaymentResult, error) {
	full := amount == nil || *amount == payment.Amount
	var delta int64
	if full {
		delta = payment.Amount
		if payment.OriginalAmount != nil {
			delta = *payment.OriginalAmount
		}
	} else {
		if *amount > payment.Amount {
			return ReversePaymentResult{}, ErrReversalTooLarge
		}
		if *amount <= 0 {
			return ReversePaymentResult{}, ErrReversalTooLarge
		}
		delta = *amount
	}

	now := time.Now()
	if payment.InstallmentID != nil {
		inst, err := tx.GetInstallmentForUpdate(ctx, *payment.InstallmentID)
		if err != nil {
			return ReversePaymentResult{}, err
		}
		inst.AmountPaid -= delta
		if inst.AmountPaid < 0 {
			inst.AmountPaid = 0
		}
		inst.AmountRemaining = money.Remaining(inst.Amount, inst.AmountPaid)
		inst.Status = money.DeriveStatus(inst.Amount, inst.AmountPaid, inst.DueDate, false, now)
		if inst.Status != money.StatusPaid {
			inst.PaidAt = nil
		}
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return ReversePaymentResult{}, err
		}
	}

	entry, err := tx.GetEntryForUpdate(ctx, payment.ReceivableID)
	if err != nil {
		return ReversePaymentResult{}, err
	}
	entry.AmountPaid -= delta
	if entry.AmountPaid < 0 {
		entry.AmountPaid = 0
	}
	entry.AmountRemaining = money.Remaining(entry.Amount, entry.AmountPaid)
	entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, entry.Status == money.StatusCancelled, now)
	if entry.Status != money.StatusPaid {
		entry.PaidAt = nil
	}
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return ReversePaymentResult{}, err
	}

	if full {
		if err := tx.DeletePayment(ctx, payment.ID); err != nil {
			return ReversePaymentResult{}, err
		}
		return ReversePaymentResult{Reversed: true, AmountReversed: delta, PaymentDeleted: true}, nil
	}
	payment.Amount -= delta
	if err := tx.UpdatePayment(ctx, payment); err != nil {
		return ReversePaymentResult{}, err
	}
	return ReversePaymentResult{Reversed: true, AmountReversed: delta}, nil
}

// GetPaymentDetails returns a payment with its entry and installment.
// Both a missing payment and a company mismatch yield shared.ErrNotFound.
func (s *Service) GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error) {
	return s.repo.GetPaymentDetails(ctx, companyID, paymentID)
}
