package receivables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// isUniqueViolation reports a 23505 from the numbering or order indexes.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) GetEntryForUpdate(ctx context.Context, id int64) (Receivable, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+receivableColumns+` FROM receivables WHERE id = $1 FOR UPDATE`, id)
	return scanReceivable(row)
}

func (t *pgTxRepository) GetInstallmentForUpdate(ctx context.Context, id int64) (Installment, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+installmentColumns+` FROM receivable_installments WHERE id = $1 FOR UPDATE`, id)
	return scanInstallment(row)
}

func (t *pgTxRepository) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM receivable_payments WHERE id = $1 FOR UPDATE`, id)
	return scanPayment(row)
}

func (t *pgTxRepository) ListByOrder(ctx context.Context, orderID int64) ([]Receivable, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+receivableColumns+` FROM receivables WHERE order_id = $1 ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	return collectReceivables(rows)
}

func (t *pgTxRepository) ListInstallments(ctx context.Context, entryID int64) ([]Installment, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+installmentColumns+` FROM receivable_installments
		 WHERE receivable_id = $1 ORDER BY installment_number`, entryID)
	if err != nil {
		return nil, err
	}
	return collectInstallments(rows)
}

func (t *pgTxRepository) ListPayments(ctx context.Context, entryID int64) ([]Payment, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+paymentColumns+` FROM receivable_payments
		 WHERE receivable_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (t *pgTxRepository) CountPayments(ctx context.Context, entryID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM receivable_payments WHERE receivable_id = $1`, entryID).Scan(&count)
	return count, err
}

func (t *pgTxRepository) CountInstallmentPayments(ctx context.Context, installmentID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM receivable_payments WHERE installment_id = $1`, installmentID).Scan(&count)
	return count, err
}

// NextDocumentNumber returns the next REC-YYYY-NNNNNN for the company,
// bumping a per-company, per-year counter row under the tx lock.
func (t *pgTxRepository) NextDocumentNumber(ctx context.Context, companyID int64) (string, error) {
	year := time.Now().Year()
	var n int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO document_counters (company_id, scope, year, last_value)
		VALUES ($1, 'receivable', $2, 1)
		ON CONFLICT (company_id, scope, year)
		DO UPDATE SET last_value = document_counters.last_value + 1
		RETURNING last_value`, companyID, year,
	).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("REC-%d-%06d", year, n), nil
}

func (t *pgTxRepository) CreateEntry(ctx context.Context, entry Receivable) (Receivable, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receivables (
			company_id, number, customer_id, order_id, payment_term_id,
			amount, amount_paid, amount_remaining, status,
			issue_date, due_date, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		entry.CompanyID, entry.Number, entry.CustomerID, entry.OrderID, entry.PaymentTermID,
		entry.Amount, entry.AmountPaid, entry.AmountRemaining, entry.Status,
		entry.IssueDate, entry.DueDate, entry.Notes,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Receivable{}, shared.ErrDuplicate
		}
		return Receivable{}, err
	}
	return entry, nil
}

func (t *pgTxRepository) UpdateEntry(ctx context.Context, entry Receivable) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receivables SET
			payment_term_id = $2,
			amount = $3, amount_paid = $4, amount_remaining = $5, status = $6,
			due_date = $7, paid_at = $8,
			cancel_reason = $9, cancelled_at = $10, cancelled_by = $11,
			notes = $12, updated_at = NOW()
		WHERE id = $1`,
		entry.ID,
		entry.PaymentTermID,
		entry.Amount, entry.AmountPaid, entry.AmountRemaining, entry.Status,
		entry.DueDate, entry.PaidAt,
		entry.CancelReason, entry.CancelledAt, entry.CancelledBy,
		entry.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) DeleteEntry(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM receivables WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) CreateInstallments(ctx context.Context, entryID int64, batch []Installment) ([]Installment, error) {
	if len(batch) == 0 {
		return nil, errors.New("empty installment batch")
	}
	out := make([]Installment, 0, len(batch))
	for _, inst := range batch {
		err := t.tx.QueryRow(ctx, `
			INSERT INTO receivable_installments (
				receivable_id, installment_number, amount, amount_paid, amount_remaining,
				due_date, status, notes, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			entryID, inst.Number, inst.Amount, inst.AmountPaid, inst.AmountRemaining,
			inst.DueDate, inst.Status, inst.Notes,
		).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			return nil, err
		}
		inst.ReceivableID = entryID
		inst.Source = InstallmentPersisted
		out = append(out, inst)
	}
	return out, nil
}

func (t *pgTxRepository) UpdateInstallment(ctx context.Context, inst Installment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receivable_installments SET
			amount = $2, amount_paid = $3, amount_remaining = $4,
			due_date = $5, status = $6, paid_at = $7, notes = $8, updated_at = NOW()
		WHERE id = $1`,
		inst.ID,
		inst.Amount, inst.AmountPaid, inst.AmountRemaining,
		inst.DueDate, inst.Status, inst.PaidAt, inst.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) DeleteInstallment(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM receivable_installments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) DeleteInstallments(ctx context.Context, entryID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM receivable_installments WHERE receivable_id = $1`, entryID)
	return err
}

func (t *pgTxRepository) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO receivable_payments (
			company_id, receivable_id, installment_id,
			amount, original_amount, interest, discount, fine, fee,
			method, payment_date, received_at, received_by, reference, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		RETURNING id, created_at`,
		payment.CompanyID, payment.ReceivableID, payment.InstallmentID,
		payment.Amount, payment.OriginalAmount, payment.Interest, payment.Discount, payment.Fine, payment.Fee,
		payment.Method, payment.PaymentDate, payment.ReceivedAt, payment.ReceivedBy, payment.Reference, payment.Notes,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (t *pgTxRepository) UpdatePayment(ctx context.Context, payment Payment) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE receivable_payments SET amount = $2, notes = $3 WHERE id = $1`,
		payment.ID, payment.Amount, payment.Notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) DeletePayment(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM receivable_payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *pgTxRepository) ClearOrderPosted(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE sales_orders SET accounts_posted = FALSE, posted_at = NULL, posted_by = NULL, updated_at = NOW() WHERE id = $1`, orderID)
	return err
}
