package receivables

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

// Repository provides persistence for receivables.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetReceivable(ctx context.Context, companyID, id int64) (Receivable, error)
	GetReceivableWithDetails(ctx context.Context, companyID, id int64) (ReceivableWithDetails, error)
	ListReceivables(ctx context.Context, req ListReceivablesRequest) ([]Receivable, error)
	ListEntriesWithInstallments(ctx context.Context, req ListInstallmentsRequest) ([]EntryInstallments, error)
	GetOrderInfo(ctx context.Context, companyID, orderID int64) (OrderInfo, error)
	GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error)
	ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Receivable, error)
	ListSettleCandidates(ctx context.Context) ([]Receivable, error)
}

// TxRepository exposes the write operations available inside a
// transaction, plus the reads the lifecycle operations need under lock.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, id int64) (Receivable, error)
	GetInstallmentForUpdate(ctx context.Context, id int64) (Installment, error)
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	ListByOrder(ctx context.Context, orderID int64) ([]Receivable, error)
	ListInstallments(ctx context.Context, entryID int64) ([]Installment, error)
	ListPayments(ctx context.Context, entryID int64) ([]Payment, error)
	CountPayments(ctx context.Context, entryID int64) (int, error)
	CountInstallmentPayments(ctx context.Context, installmentID int64) (int, error)

	NextDocumentNumber(ctx context.Context, companyID int64) (string, error)
	CreateEntry(ctx context.Context, entry Receivable) (Receivable, error)
	UpdateEntry(ctx context.Context, entry Receivable) error
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

// WithTx wraps the callback in a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const receivableColumns = `
	id, company_id, number, customer_id, order_id, payment_term_id,
	amount, amount_paid, amount_remaining, status,
	issue_date, due_date, paid_at,
	cancel_reason, cancelled_at, cancelled_by,
	notes, created_at, updated_at`

func scanReceivable(row pgx.Row) (Receivable, error) {
	var e Receivable
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.Number, &e.CustomerID, &e.OrderID, &e.PaymentTermID,
		&e.Amount, &e.AmountPaid, &e.AmountRemaining, &e.Status,
		&e.IssueDate, &e.DueDate, &e.PaidAt,
		&e.CancelReason, &e.CancelledAt, &e.CancelledBy,
		&e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Receivable{}, shared.ErrNotFound
	}
	return e, err
}

func collectReceivables(rows pgx.Rows) ([]Receivable, error) {
	defer rows.Close()
	var out []Receivable
	for rows.Next() {
		e, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const installmentColumns = `
	id, receivable_id, installment_number, amount, amount_paid, amount_remaining,
	due_date, status, paid_at, notes, created_at, updated_at`

func scanInstallment(row pgx.Row) (Installment, error) {
	var inst Installment
	err := row.Scan(
		&inst.ID, &inst.ReceivableID, &inst.Number, &inst.Amount, &inst.AmountPaid, &inst.AmountRemaining,
		&inst.DueDate, &inst.Status, &inst.PaidAt, &inst.Notes, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installment{}, shared.ErrNotFound
	}
	inst.Source = InstallmentPersisted
	return inst, err
}

const paymentColumns = `
	id, company_id, receivable_id, installment_id,
	amount, original_amount, interest, discount, fine, fee,
	method, payment_date, received_at, received_by, reference, notes, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.CompanyID, &p.ReceivableID, &p.InstallmentID,
		&p.Amount, &p.OriginalAmount, &p.Interest, &p.Discount, &p.Fine, &p.Fee,
		&p.Method, &p.PaymentDate, &p.ReceivedAt, &p.ReceivedBy, &p.Reference, &p.Notes, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, shared.ErrNotFound
	}
	return p, err
}

func (r *pgRepository) GetReceivable(ctx context.Context, companyID, id int64) (Receivable, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+receivableColumns+` FROM receivables WHERE id = $1 AND company_id = $2`,
		id, companyID)
	return scanReceivable(row)
}

func (r *pgRepository) GetReceivableWithDetails(ctx context.Context, companyID, id int64) (ReceivableWithDetails, error) {
	entry, err := r.GetReceivable(ctx, companyID, id)
	if err != nil {
		return ReceivableWithDetails{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+installmentColumns+` FROM receivable_installments
		 WHERE receivable_id = $1 ORDER BY installment_number`, id)
	if err != nil {
		return ReceivableWithDetails{}, err
	}
	installments, err := collectInstallments(rows)
	if err != nil {
		return ReceivableWithDetails{}, err
	}

	payRows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM receivable_payments
		 WHERE receivable_id = $1 ORDER BY received_at, id`, id)
	if err != nil {
		return ReceivableWithDetails{}, err
	}
	payments, err := collectPayments(payRows)
	if err != nil {
		return ReceivableWithDetails{}, err
	}

	return ReceivableWithDetails{Receivable: entry, Installments: installments, Payments: payments}, nil
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

func (r *pgRepository) ListReceivables(ctx context.Context, req ListReceivablesRequest) ([]Receivable, error) {
	where := []string{"company_id = $1"}
	args := []any{req.CompanyID}

	if req.CustomerID != 0 {
		args = append(args, req.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
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
		`SELECT %s FROM receivables WHERE %s ORDER BY issue_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		receivableColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectReceivables(rows)
}

func (r *pgRepository) ListEntriesWithInstallments(ctx context.Context, req ListInstallmentsRequest) ([]EntryInstallments, error) {
	where := []string{"r.company_id = $1"}
	args := []any{req.CompanyID}
	if req.CustomerID != 0 {
		args = append(args, req.CustomerID)
		where = append(where, fmt.Sprintf("r.customer_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT `+prefixColumns("r", receivableColumns)+`,
		       COALESCE(o.number, ''), COALESCE(o.salesperson_id, 0),
		       COALESCE(u.name, ''), COALESCE(c.name, '')
		FROM receivables r
		LEFT JOIN sales_orders o ON o.id = r.order_id
		LEFT JOIN users u ON u.id = o.salesperson_id
		LEFT JOIN customers c ON c.id = r.customer_id
		WHERE %s
		ORDER BY r.issue_date DESC, r.id DESC`, strings.Join(where, " AND "))

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
			&e.Entry.ID, &e.Entry.CompanyID, &e.Entry.Number, &e.Entry.CustomerID, &e.Entry.OrderID, &e.Entry.PaymentTermID,
			&e.Entry.Amount, &e.Entry.AmountPaid, &e.Entry.AmountRemaining, &e.Entry.Status,
			&e.Entry.IssueDate, &e.Entry.DueDate, &e.Entry.PaidAt,
			&e.Entry.CancelReason, &e.Entry.CancelledAt, &e.Entry.CancelledBy,
			&e.Entry.Notes, &e.Entry.CreatedAt, &e.Entry.UpdatedAt,
			&e.OrderNumber, &e.SalespersonID, &e.SalespersonName, &e.CustomerName,
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
		`SELECT `+installmentColumns+` FROM receivable_installments
		 WHERE receivable_id = ANY($1) ORDER BY receivable_id, installment_number`, ids)
	if err != nil {
		return nil, err
	}
	installments, err := collectInstallments(instRows)
	if err != nil {
		return nil, err
	}

	byEntry := make(map[int64][]Installment, len(out))
	for _, inst := range installments {
		byEntry[inst.ReceivableID] = append(byEntry[inst.ReceivableID], inst)
	}
	for i := range out {
		out[i].Installments = byEntry[out[i].Entry.ID]
	}
	return out, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (r *pgRepository) GetOrderInfo(ctx context.Context, companyID, orderID int64) (OrderInfo, error) {
	var o OrderInfo
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, number, customer_id, COALESCE(salesperson_id, 0),
		       total, payment_type_id, payment_term_id, accounts_posted
		FROM sales_orders WHERE id = $1 AND company_id = $2`, orderID, companyID,
	).Scan(
		&o.ID, &o.CompanyID, &o.Number, &o.CustomerID, &o.SalespersonID,
		&o.Total, &o.PaymentTypeID, &o.PaymentTermID, &o.AccountsPosted,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderInfo{}, shared.ErrNotFound
	}
	return o, err
}

func (r *pgRepository) GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM receivable_payments WHERE id = $1 AND company_id = $2`,
		paymentID, companyID)
	payment, err := scanPayment(row)
	if err != nil {
		return PaymentDetails{}, err
	}

	entry, err := r.GetReceivable(ctx, companyID, payment.ReceivableID)
	if err != nil {
		return PaymentDetails{}, err
	}

	details := PaymentDetails{Payment: payment, Entry: entry}
	if payment.InstallmentID != nil {
		row := r.pool.QueryRow(ctx,
			`SELECT `+installmentColumns+` FROM receivable_installments WHERE id = $1`,
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
func (r *pgRepository) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Receivable, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+receivableColumns+` FROM receivables
		 WHERE status = 'OPEN' AND due_date::date < $1::date ORDER BY id`, asOf)
	if err != nil {
		return nil, err
	}
	return collectReceivables(rows)
}

// ListSettleCandidates returns non-terminal entries whose installments
// are all paid; entries without installment rows never match.
func (r *pgRepository) ListSettleCandidates(ctx context.Context) ([]Receivable, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixColumns("r", receivableColumns)+`
		 FROM receivables r
		 WHERE r.status NOT IN ('PAID', 'CANCELLED')
		   AND EXISTS (SELECT 1 FROM receivable_installments i WHERE i.receivable_id = r.id)
		   AND NOT EXISTS (
		     SELECT 1 FROM receivable_installments i
		     WHERE i.receivable_id = r.id AND i.status <> 'PAID')
		 ORDER BY r.id`)
	if err != nil {
		return nil, err
	}
	return collectReceivables(rows)
}
