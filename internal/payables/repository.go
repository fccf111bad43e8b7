package payables

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides persistence for payables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetPayable(ctx context.Context, companyID, id int64) (Payable, error)
	GetPayableWithDetails(ctx context.Context, companyID, id int64) (PayableWithDetails, error)
	ListPayables(ctx context.Context, req ListPayablesRequest) ([]Payable, error)
	ListEntriesWithInstallments(ctx context.Context, req ListInstallmentsRequest) ([]EntryInstallments, error)
	GetPurchaseOrderInfo(ctx context.Context, companyID, orderID int64) (PurchaseOrderInfo, error)
	GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Payable, error)
	ListSettleCandidates(ctx context.Context) ([]Payable, error)
}

// TxRepository exposes the writes available inside a transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, id int64) (Payable, error)
	GetInstallmentForUpdate(ctx context.Context, id int64) (Installment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Payable, error)
	ListInstallments(ctx context.Context, entryID int64) ([]Installment, error)
	ListPayments(ctx context.Context, entryID int64) ([]Payment, error)
	CountPayments(ctx context.Context, entryID int64) (int, error)
	CountInstallmentPayments(ctx context.Context, installmentID int64) (int, error)

	NextDocumentNumber(ctx context.Context, companyID int64) (string, error)
	CreateEntry(ctx context.Context, entry Payable) (Payable, error)
	UpdateEntry(ctx context.Context, entry Payable) error
	DeleteEntry(ctx context.Context, id int64) error
	CreateInstallments(ctx context.Context, entryID int64, batch []Installment) ([]Installment, error)
	UpdateInstallment(ctx context.Context, inst Installment) error
	DeleteInstallment(ctx context.Context, id int64) error
	DeleteInstallments(ctx context.Context, entryID int64) error
	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	UpdatePayment(ctx context.Context, payment Payment) error
	DeletePayment(ctx context.Context, id int64) error
	ClearOrderPosted(ctx context.Context, orderID int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const payableColumns = `
	id, company_id, number, supplier_id, purchase_order_id, payment_term_id,
	amount, amount_paid, amount_remaining, status,
	issue_date, due_date, paid_at,
	cancel_reason, cancelled_at, cancelled_by,
	notes, created_at, updated_at`

func scanPayable(row pgx.Row) (Payable, error) {
	var e Payable
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.Number, &e.SupplierID, &e.PurchaseOrderID, &e.PaymentTermID,
		&e.Amount, &e.AmountPaid, &e.AmountRemaining, &e.Status,
		&e.IssueDate, &e.DueDate, &e.PaidAt,
		&e.CancelReason, &e.CancelledAt, &e.CancelledBy,
		&e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payable{}, shared.ErrNotFound
	}
	return e, err
}

func collectPayables(rows pgx.Rows) ([]Payable, error) {
	defer rows.Close()
	var out []Payable
	for rows.Next() {
		e, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const installmentColumns = `
	id, payable_id, installment_number, amount, amount_paid, amount_remaining,
	due_date, status, paid_at, notes, created_at, updated_at`

func scanInstallment(row pgx.Row) (Installment, error) {
	var inst Installment
	err := row.Scan(
		&inst.ID, &inst.PayableID, &inst.Number, &inst.Amount, &inst.AmountPaid, &inst.AmountRemaining,
		&inst.DueDate, &inst.Status, &inst.PaidAt, &inst.Notes, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, shared.ErrNotFound
	}
	inst.Source = InstallmentPersisted
	return inst, err
}

func collectInstallments(rows pgx.Rows) ([]Installment, error) {
	defer rows.Close()
	var out []Installment
	for rows.Next() {
		inst, err := scanInstallment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

const paymentColumns = `
	id, company_id, payable_id, installment_id,
	amount, method, payment_date, paid_by, reference, notes, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.PayableID, &p.InstallmentID,
		&p.Amount, &p.Method, &p.PaymentDate, &p.PaidBy, &p.Reference, &p.Notes, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	return p, err
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgRepository) GetPayable(ctx context.Context, companyID, id int64) (Payable, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+payableColumns+` FROM payables WHERE id = $1 AND company_id = $2`,
		id, companyID)
	return scanPayable(row)
}

func (r *pgRepository) GetPayableWithDetails(ctx context.Context, companyID, id int64) (PayableWithDetails, error) {
	entry, err := r.GetPayable(ctx, companyID, id)
	if err != nil {
		return PayableWithDetails{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+installmentColumns+` FROM payable_installments
		 WHERE payable_id = $1 ORDER BY installment_number`, id)
	if err != nil {
		return PayableWithDetails{}, err
	}
	installments, err := collectInstallments(rows)
	if err != nil {
		return PayableWithDetails{}, err
	}

	payRows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payable_payments
		 WHERE payable_id = $1 ORDER BY id`, id)
	if err != nil {
		return PayableWithDetails{}, err
	}
	payments, err := collectPayments(payRows)
	if err != nil {
		return PayableWithDetails{}, err
	}

	return PayableWithDetails{Payable: entry, Installments: installments, Payments: payments}, nil
}

func (r *pgRepository) ListPayables(ctx context.Context, req ListPayablesRequest) ([]Payable, error) {
	where := []string{"company_id = $1"}
	args := []any{req.CompanyID}

	if req.SupplierID != 0 {
		args = append(args, req.SupplierID)
		where = append(where, fmt.Sprintf("supplier_id = $%d", len(args)))
	}
	if req.Status != "" {
		args = append(args, req.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if req.IsOverdue {
		where = append(where, "due_date < NOW()", "status NOT IN ('PAID', 'CANCELLED')")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, req.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM payables WHERE %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		payableColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectPayables(rows)
}

func (r *pgRepository) ListEntriesWithInstallments(ctx context.Context, req ListInstallmentsRequest) ([]EntryInstallments, error) {
	where := []string{"p.company_id = $1"}
	args := []any{req.CompanyID}
	if req.SupplierID != 0 {
		args = append(args, req.SupplierID)
		where = append(where, fmt.Sprintf("p.supplier_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT `+prefixColumns("p", payableColumns)+`,
		       COALESCE(o.number, ''), COALESCE(s.name, '')
		FROM payables p
		LEFT JOIN purchase_orders o ON o.id = p.purchase_order_id
		LEFT JOIN suppliers s ON s.id = p.supplier_id
		WHERE %s
		ORDER BY p.issue_date DESC, p.id DESC`, strings.Join(where, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EntryInstallments
	ids := make([]int64, 0)
	for rows.Next() {
		var e EntryInstallments
		err := rows.Scan(
			&e.Entry.ID, &e.Entry.CompanyID, &e.Entry.Number, &e.Entry.SupplierID, &e.Entry.PurchaseOrderID, &e.Entry.PaymentTermID,
			&e.Entry.Amount, &e.Entry.AmountPaid, &e.Entry.AmountRemaining, &e.Entry.Status,
			&e.Entry.IssueDate, &e.Entry.DueDate, &e.Entry.PaidAt,
			&e.Entry.CancelReason, &e.Entry.CancelledAt, &e.Entry.CancelledBy,
			&e.Entry.Notes, &e.Entry.CreatedAt, &e.Entry.UpdatedAt,
			&e.OrderNumber, &e.SupplierName,
		)
		if err != nil {
			return nil, err
		}
		ids = append(ids, e.Entry.ID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	instRows, err := r.pool.Query(ctx,
		`SELECT `+installmentColumns+` FROM payable_installments
		 WHERE payable_id = ANY($1) ORDER BY payable_id, installment_number`, ids)
	if err != nil {
		return nil, err
	}
	installments, err := collectInstallments(instRows)
	if err != nil {
		return nil, err
	}

	byEntry := make(map[int64][]Installment, len(out))
	for _, inst := range installments {
		byEntry[inst.PayableID] = append(byEntry[inst.PayableID], inst)
	}
	for i := range out {
		out[i].Installments = byEntry[out[i].Entry.ID]
	}
	return out, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (r *pgRepository) GetPurchaseOrderInfo(ctx context.Context, companyID, orderID int64) (PurchaseOrderInfo, error) {
	var o PurchaseOrderInfo
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, number, supplier_id,
		       total, payment_type_id, payment_term_id, accounts_posted
		FROM purchase_orders WHERE id = $1 AND company_id = $2`, orderID, companyID,
	).Scan(
		&o.ID, &o.CompanyID, &o.Number, &o.SupplierID,
		&o.Total, &o.PaymentTypeID, &o.PaymentTermID, &o.AccountsPosted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrderInfo{}, shared.ErrNotFound
	}
	return o, err
}

func (r *pgRepository) GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payable_payments WHERE id = $1 AND company_id = $2`,
		paymentID, companyID)
	payment, err := scanPayment(row)
	if err != nil {
		return PaymentDetails{}, err
	}

	entry, err := r.GetPayable(ctx, companyID, payment.PayableID)
	if err != nil {
		return PaymentDetails{}, err
	}

	details := PaymentDetails{Payment: payment, Entry: entry}
	if payment.InstallmentID != nil {
		row := r.pool.QueryRow(ctx,
			`SELECT `+installmentColumns+` FROM payable_installments WHERE id = $1`,
			*payment.InstallmentID)
		inst, err := scanInstallment(row)
		if err != nil {
			return PaymentDetails{}, err
		}
		details.Installment = &inst
	}
	return details, nil
}

// ListOverdueCandidates returns open entries due on a calendar day
// strictly before asOf, matching how statuses are derived.
func (r *pgRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Payable, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+payableColumns+` FROM payables
		 WHERE status = 'OPEN' AND due_date::date < $1::date ORDER BY id`, asOf)
	if err != nil {
		return nil, err
	}
	return collectPayables(rows)
}

func (r *pgRepository) ListSettleCandidates(ctx context.Context) ([]Payable, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixColumns("p", payableColumns)+`
		 FROM payables p
		 WHERE p.status NOT IN ('PAID', 'CANCELLED')
		   AND EXISTS (SELECT 1 FROM payable_installments i WHERE i.payable_id = p.id)
		   AND NOT EXISTS (
		     SELECT 1 FROM payable_installments i
		     WHERE i.payable_id = p.id AND i.status <> 'PAID')
		 ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	return collectPayables(rows)
}
