package payables

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/terms"
)

var (
	ErrInstallmentNotFound = errors.New("installment does not belong to payable")
	ErrEntryCancelled      = errors.New("payable is cancelled")
	ErrEntryNotCancelled   = errors.New("payable is not cancelled")
	ErrHasPayments         = errors.New("payable has payments")
	ErrInstallmentPaid     = errors.New("installment has payments")
	ErrReversalTooLarge    = errors.New("reversal amount exceeds payment amount")
	ErrNoPaymentTerm       = errors.New("payment term not configured for term-based payment type")
)

// Service is the payable lifecycle manager.
type Service struct {
	repo  Repository
	terms *terms.Service
}

func NewService(repo Repository, termsService *terms.Service) *Service {
	return &Service{repo: repo, terms: termsService}
}

// CreateFromPurchaseOrder creates the payable for a confirmed purchase
// order, splitting its total per the payment term. Cash settlement and
// missing payment types are soft no-ops, same as on the receivable side.
func (s *Service) CreateFromPurchaseOrder(ctx context.Context, companyID, orderID, actorID int64) (*Payable, error) {
	order, err := s.repo.GetPurchaseOrderInfo(ctx, companyID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load purchase order %d: %w", orderID, err)
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
	var result Payable
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
		entry, err := tx.CreateEntry(ctx, Payable{
			CompanyID:       companyID,
			Number:          number,
			SupplierID:      order.SupplierID,
			PurchaseOrderID: &order.ID,
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
func (s *Service) reconcileExisting(ctx context.Context, tx TxRepository, entry Payable, term terms.PaymentTerm, now time.Time) (Payable, error) {
	paymentCount, err := tx.CountPayments(ctx, entry.ID)
	if err != nil {
		return Payable{}, err
	}
	if paymentCount > 0 {
		return entry, nil
	}

	installments, err := tx.ListInstallments(ctx, entry.ID)
	if err != nil {
		return Payable{}, err
	}
	var sum int64
	for _, inst := range installments {
		sum += inst.Amount
	}
	if len(installments) == term.InstallmentCount && sum == entry.Amount {
		return entry, nil
	}

	if err := tx.DeleteInstallments(ctx, entry.ID); err != nil {
		return Payable{}, err
	}
	dueDates := money.DueDates(entry.IssueDate, term.FirstPaymentDays, term.IntervalDays, term.InstallmentCount)
	if err := s.generateInstallments(ctx, tx, entry.ID, entry.Amount, dueDates); err != nil {
		return Payable{}, err
	}
	entry.PaymentTermID = &term.ID
	entry.DueDate = dueDates[0]
	entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, now)
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Payable{}, err
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
			PayableID:       entryID,
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

// CreateManual creates an entry not tied to a purchase order.
func (s *Service) CreateManual(ctx context.Context, companyID int64, req CreateManualRequest) (Payable, error) {
	count := req.InstallmentCount
	intervalDays := req.IntervalDays
	var termID *int64
	if req.PaymentTermID != nil {
		term, err := s.terms.Get(ctx, companyID, *req.PaymentTermID)
		if err != nil {
			return Payable{}, fmt.Errorf("load payment term %d: %w", *req.PaymentTermID, err)
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

	var result Payable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextDocumentNumber(ctx, companyID)
		if err != nil {
			return err
		}
		entry, err := tx.CreateEntry(ctx, Payable{
			CompanyID:       companyID,
			Number:          number,
			SupplierID:      req.SupplierID,
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
		return Payable{}, err
	}
	return result, nil
}

func (s *Service) GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error) {
	return s.repo.GetPaymentDetails(ctx, companyID, paymentID)
}

func (s *Service) GetWithDetails(ctx context.Context, companyID, id int64) (PayableWithDetails, error) {
	return s.repo.GetPayableWithDetails(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, req ListPayablesRequest) ([]Payable, error) {
	return s.repo.ListPayables(ctx, req)
}

// ListInstallments returns the flattened installment listing, with one
// synthesized row per legacy entry lacking installment rows.
func (s *Service) ListInstallments(ctx context.Context, req ListInstallmentsRequest) ([]InstallmentRow, error) {
	entries, err := s.repo.ListEntriesWithInstallments(ctx, ListInstallmentsRequest{
		CompanyID:  req.CompanyID,
		SupplierID: req.SupplierID,
	})
	if err != nil {
		return nil, err
	}

	today := time.Now()
	var rows []InstallmentRow
	for _, e := range entries {
		installments := e.Installments
		if len(installments) == 0 {
			installments = []Installment{synthesizeInstallment(e.Entry)}
		}
		for _, inst := range installments {
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
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].DueDate.Before(filtered[j].DueDate) })
	return filtered, nil
}

func enrichRow(e EntryInstallments, inst Installment) InstallmentRow {
	base := e.OrderNumber
	if base == "" {
		base = e.Entry.Number
	}
	return InstallmentRow{
		Installment:   inst,
		DisplayNumber: fmt.Sprintf("%s/%03d", base, inst.Number),
		PayableNumber: e.Entry.Number,
		SupplierID:    e.Entry.SupplierID,
		SupplierName:  e.SupplierName,
		OrderID:       e.Entry.PurchaseOrderID,
		OrderNumber:   e.OrderNumber,
	}
}

func synthesizeInstallment(entry Payable) Installment {
	status := money.StatusOpen
	switch entry.Status {
	case money.StatusPaid:
		status = money.StatusPaid
	case money.StatusPartial:
		status = money.StatusPartial
	}
	return Installment{
		PayableID:       entry.ID,
		Number:          1,
		Amount:          entry.Amount,
		AmountPaid:      entry.AmountPaid,
		AmountRemaining: entry.AmountRemaining,
		DueDate:         entry.DueDate,
		Status:          status,
		PaidAt:          entry.PaidAt,
		Source:          InstallmentSynthesized,
		CreatedAt:       entry.CreatedAt,
		UpdatedAt:       entry.UpdatedAt,
	}
}

// RecordPayment posts a disbursement, updating installment and entry
// balances in one transaction.
func (s *Service) RecordPayment(ctx context.Context, companyID, entryID int64, req RecordPaymentRequest) (Payment, error) {
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

		created, err = tx.CreatePayment(ctx, Payment{
			CompanyID:     companyID,
			PayableID:     entryID,
			InstallmentID: req.InstallmentID,
			Amount:        req.Amount,
			Method:        req.Method,
			PaymentDate:   req.PaymentDate,
			PaidBy:        req.PaidBy,
			Reference:     reference,
			Notes:         req.Notes,
		})
		if err != nil {
			return err
		}

		if req.InstallmentID != nil {
			inst, err := tx.GetInstallmentForUpdate(ctx, *req.InstallmentID)
			if err != nil {
				return err
			}
			if inst.PayableID != entryID {
				return ErrInstallmentNotFound
			}
			inst.AmountPaid += req.Amount
			inst.AmountRemaining = money.Remaining(inst.Amount, inst.AmountPaid)
			inst.Status = money.DeriveStatus(inst.Amount, inst.AmountPaid, inst.DueDate, false, now)
			if inst.Status == money.StatusPaid {
				inst.PaidAt = &now
			}
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}

		entry.AmountPaid += req.Amount
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

// Cancel marks an entry cancelled, keeping its history.
func (s *Service) Cancel(ctx context.Context, companyID, entryID int64, reason string, actorID int64) (Payable, error) {
	var result Payable
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
		return Payable{}, err
	}
	return result, nil
}

func (s *Service) cancelEntry(ctx context.Context, tx TxRepository, entry Payable, reason string, actorID int64) (Payable, error) {
	now := time.Now()
	entry.Status = money.StatusCancelled
	entry.CancelReason = &reason
	entry.CancelledAt = &now
	entry.CancelledBy = &actorID
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Payable{}, err
	}
	return entry, nil
}

// CancelByOrder cancels every non-cancelled entry for the purchase
// order, reversing all payments first.
func (s *Service) CancelByOrder(ctx context.Context, companyID, orderID int64, reason string, actorID int64) ([]Payable, error) {
	var cancelled []Payable
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

// Reopen clears cancellation metadata and re-derives the status.
func (s *Service) Reopen(ctx context.Context, companyID, entryID int64) (Payable, error) {
	var result Payable
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
		return Payable{}, err
	}
	return result, nil
}

func (s *Service) reopenEntry(ctx context.Context, tx TxRepository, entry Payable) (Payable, error) {
	if entry.Status != money.StatusCancelled {
		return Payable{}, ErrEntryNotCancelled
	}
	entry.CancelReason = nil
	entry.CancelledAt = nil
	entry.CancelledBy = nil
	entry.Status = money.DeriveStatus(entry.Amount, entry.AmountPaid, entry.DueDate, false, time.Now())
	if err := tx.UpdateEntry(ctx, entry); err != nil {
		return Payable{}, err
	}
	return entry, nil
}

// ReopenByOrder reopens every cancelled entry for the purchase order.
func (s *Service) ReopenByOrder(ctx context.Context, companyID, orderID int64) ([]Payable, error) {
	var reopened []Payable
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

// RecreateInstallments regenerates the schedule from the given term
// against the entry's existing amount. Fails when payments exist.
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

// DeleteInstallment removes an unpaid installment, cascading to the
// entry when it is the last one.
func (s *Service) DeleteInstallment(ctx context.Context, companyID, installmentID int64) (DeleteInstallmentResult, error) {
	var result DeleteInstallmentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, inst.PayableID)
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
			if entry.PurchaseOrderID != nil {
				if err := tx.ClearOrderPosted(ctx, *entry.PurchaseOrderID); err != nil {
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

// UpdateInstallment adjusts one installment, propagating the amount
// delta to the entry and flagging divergence from the purchase order.
func (s *Service) UpdateInstallment(ctx context.Context, companyID, installmentID int64, req UpdateInstallmentRequest) (UpdateInstallmentResult, error) {
	var updated Installment
	var entrySnapshot Payable
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inst, err := tx.GetInstallmentForUpdate(ctx, installmentID)
		if err != nil {
			return err
		}
		entry, err := tx.GetEntryForUpdate(ctx, inst.PayableID)
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
	if entrySnapshot.PurchaseOrderID != nil {
		order, err := s.repo.GetPurchaseOrderInfo(ctx, companyID, *entrySnapshot.PurchaseOrderID)
		if err == nil && order.Total != entrySnapshot.Amount {
			result.DiffersFromOrder = true
			result.OrderTotal = order.Total
		}
	}
	return result, nil
}

// ReversePayment undoes a disbursement fully or partially.
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

func (s *Service) reverseInTx(ctx context.Context, tx TxRepository, payment Payment, amount *int64) (ReversePaymentResult, error) {
	full := amount == nil || *amount == payment.Amount
	var delta int64
	if full {
		delta = payment.Amount
	} else {
		if *amount > payment.Amount || *amount <= 0 {
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

	entry, err := tx.GetEntryForUpdate(ctx, payment.PayableID)
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

// SweepOverdue mirrors the receivable sweep on the payable side.
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
				slog.Int64("payable_id", candidate.ID), slog.Any("error", err))
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
				slog.Int64("payable_id", candidate.ID), slog.Any("error", err))
			summary.Errors++
		}
	}

	return summary, nil
}
